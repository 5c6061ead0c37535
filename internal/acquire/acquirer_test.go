package acquire_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/temirov/reposcope/internal/acquire"
	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/pathguard"
)

const testCredential = "ghp_testsecret"

type recordedAttempt struct {
	strategy string
	branch   string
	url      string
}

// scriptedStrategy returns a fixed outcome per branch and materializes a
// working tree with version control metadata when the outcome is cloned.
type scriptedStrategy struct {
	name     string
	outcomes map[string]acquire.Outcome
	fallback acquire.Outcome
	cause    error
	mutex    *sync.Mutex
	attempts *[]recordedAttempt
}

func (strategy scriptedStrategy) Name() string {
	return strategy.name
}

func (strategy scriptedStrategy) Attempt(_ context.Context, request acquire.AttemptRequest) acquire.AttemptResult {
	strategy.mutex.Lock()
	*strategy.attempts = append(*strategy.attempts, recordedAttempt{strategy: strategy.name, branch: request.Branch, url: request.URL})
	strategy.mutex.Unlock()

	outcome, scripted := strategy.outcomes[request.Branch]
	if !scripted {
		outcome = strategy.fallback
	}
	// Leave debris behind so purging can be observed.
	_ = os.MkdirAll(filepath.Join(request.Directory, ".git"), 0o755)
	_ = os.WriteFile(filepath.Join(request.Directory, ".git", "HEAD"), []byte("ref: refs/heads/"+request.Branch), 0o444)
	if outcome == acquire.OutcomeCloned {
		_ = os.WriteFile(filepath.Join(request.Directory, "README.md"), []byte("# fixture\n"), 0o644)
		return acquire.AttemptResult{Outcome: outcome}
	}
	return acquire.AttemptResult{Outcome: outcome, Cause: strategy.cause}
}

type attemptLog struct {
	mutex    sync.Mutex
	attempts []recordedAttempt
}

func (log *attemptLog) strategy(name string, fallback acquire.Outcome, outcomes map[string]acquire.Outcome, cause error) scriptedStrategy {
	return scriptedStrategy{name: name, outcomes: outcomes, fallback: fallback, cause: cause, mutex: &log.mutex, attempts: &log.attempts}
}

func (log *attemptLog) sequence() []string {
	described := make([]string, 0, len(log.attempts))
	for _, attempt := range log.attempts {
		described = append(described, attempt.strategy+":"+attempt.branch)
	}
	return described
}

func newAcquirer(baseDirectory string, strategies ...acquire.Strategy) *acquire.Acquirer {
	return acquire.New(acquire.Config{BaseDirectory: baseDirectory, CloneTimeout: time.Minute}, strategies, nil, metrics.New())
}

func TestAcquireFallsBackAcrossBranchesAndStrategies(t *testing.T) {
	testCases := []struct {
		name             string
		requestedBranch  string
		strategies       func(log *attemptLog) []acquire.Strategy
		expectedSequence []string
	}{
		{
			name: "first branch clones",
			strategies: func(log *attemptLog) []acquire.Strategy {
				return []acquire.Strategy{log.strategy("git", acquire.OutcomeCloned, nil, nil)}
			},
			expectedSequence: []string{"git:main"},
		},
		{
			name:            "requested branch missing falls back to master",
			requestedBranch: "feature",
			strategies: func(log *attemptLog) []acquire.Strategy {
				return []acquire.Strategy{log.strategy("git", acquire.OutcomeBranchMissing, map[string]acquire.Outcome{"master": acquire.OutcomeCloned}, errors.New("not found in upstream origin"))}
			},
			expectedSequence: []string{"git:feature", "git:master"},
		},
		{
			name: "unavailable mechanism moves to next strategy",
			strategies: func(log *attemptLog) []acquire.Strategy {
				return []acquire.Strategy{
					log.strategy("git", acquire.OutcomeUnavailable, nil, errors.New("executable file not found")),
					log.strategy("library", acquire.OutcomeBranchMissing, map[string]acquire.Outcome{"develop": acquire.OutcomeCloned}, nil),
				}
			},
			expectedSequence: []string{"git:main", "library:main", "library:master", "library:develop"},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			baseDirectory := filepath.Join(t.TempDir(), "repositories")
			log := &attemptLog{}
			acquirer := newAcquirer(baseDirectory, testCase.strategies(log)...)

			handle, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: "octocat/Hello-World", Branch: testCase.requestedBranch})
			if acquireError != nil {
				t.Fatalf("acquire: %v", acquireError)
			}
			if !pathguard.ValidateHandle(handle) {
				t.Fatalf("handle %q is not canonical", handle)
			}
			if strings.Join(log.sequence(), ",") != strings.Join(testCase.expectedSequence, ",") {
				t.Fatalf("expected attempts %v, got %v", testCase.expectedSequence, log.sequence())
			}
			repositoryPath := acquirer.RepositoryPath(handle)
			if _, statError := os.Stat(filepath.Join(repositoryPath, "README.md")); statError != nil {
				t.Fatalf("expected working tree, got %v", statError)
			}
			if _, statError := os.Stat(filepath.Join(repositoryPath, ".git")); !errors.Is(statError, os.ErrNotExist) {
				t.Fatalf("expected version control metadata to be removed, got %v", statError)
			}
		})
	}
}

func TestAcquireStopsOnTransportFailure(t *testing.T) {
	baseDirectory := t.TempDir()
	log := &attemptLog{}
	leakingCause := errors.New("fatal: unable to access 'https://" + testCredential + "@github.com/octocat/private.git/': 403")
	acquirer := newAcquirer(baseDirectory,
		log.strategy("git", acquire.OutcomeTransportFailure, nil, leakingCause),
		log.strategy("library", acquire.OutcomeCloned, nil, nil),
	)

	_, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: "https://github.com/octocat/private", Credential: testCredential})
	if failure.KindOf(acquireError) != failure.KindAuthOrTransportFailure {
		t.Fatalf("expected AuthOrTransportFailure, got %v", acquireError)
	}
	if strings.Contains(acquireError.Error(), testCredential) {
		t.Fatalf("credential leaked into error: %s", acquireError.Error())
	}
	if len(log.attempts) != 1 {
		t.Fatalf("expected a single attempt, got %v", log.sequence())
	}
	if !strings.Contains(log.attempts[0].url, testCredential+"@github.com") {
		t.Fatalf("expected credential to reach the strategy URL")
	}
	assertEmptyDirectory(t, baseDirectory)
}

func TestAcquireTimeoutIsTransportFailure(t *testing.T) {
	baseDirectory := t.TempDir()
	log := &attemptLog{}
	acquirer := newAcquirer(baseDirectory, log.strategy("git", acquire.OutcomeTimedOut, nil, context.DeadlineExceeded))

	_, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: "octocat/slow"})
	if failure.KindOf(acquireError) != failure.KindAuthOrTransportFailure {
		t.Fatalf("expected AuthOrTransportFailure, got %v", acquireError)
	}
	assertEmptyDirectory(t, baseDirectory)
}

func TestAcquireExhaustionIsCloneFailure(t *testing.T) {
	baseDirectory := t.TempDir()
	log := &attemptLog{}
	acquirer := newAcquirer(baseDirectory,
		log.strategy("git", acquire.OutcomeBranchMissing, nil, errors.New("git: branch absent")),
		log.strategy("library", acquire.OutcomeBranchMissing, nil, errors.New("library: branch absent")),
	)

	_, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: "octocat/empty"})
	if failure.KindOf(acquireError) != failure.KindCloneFailure {
		t.Fatalf("expected CloneFailure, got %v", acquireError)
	}
	if !strings.Contains(acquireError.Error(), "library: branch absent") {
		t.Fatalf("expected the last cause to be carried, got %v", acquireError)
	}
	if len(log.attempts) != 8 {
		t.Fatalf("expected four branches per strategy, got %v", log.sequence())
	}
	assertEmptyDirectory(t, baseDirectory)
}

func TestAcquireRejectsInvalidReferenceBeforeIO(t *testing.T) {
	baseDirectory := filepath.Join(t.TempDir(), "never-created")
	log := &attemptLog{}
	acquirer := newAcquirer(baseDirectory, log.strategy("git", acquire.OutcomeCloned, nil, nil))

	for _, reference := range []string{"", "not a repo", "https://example.com/a/b", "a/b/c"} {
		_, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: reference})
		if failure.KindOf(acquireError) != failure.KindInvalidReference {
			t.Fatalf("reference %q: expected InvalidReference, got %v", reference, acquireError)
		}
	}
	if len(log.attempts) != 0 {
		t.Fatalf("no strategy should run for invalid references")
	}
	if _, statError := os.Stat(baseDirectory); !errors.Is(statError, os.ErrNotExist) {
		t.Fatalf("base directory should not be created, got %v", statError)
	}
}

func TestAcquireHandlesAreUnique(t *testing.T) {
	baseDirectory := t.TempDir()
	log := &attemptLog{}
	acquirer := newAcquirer(baseDirectory, log.strategy("git", acquire.OutcomeCloned, nil, nil))

	seen := map[string]struct{}{}
	for attemptIndex := 0; attemptIndex < 5; attemptIndex++ {
		handle, acquireError := acquirer.Acquire(context.Background(), acquire.Request{Reference: "octocat/Hello-World"})
		if acquireError != nil {
			t.Fatalf("acquire %d: %v", attemptIndex, acquireError)
		}
		if _, duplicate := seen[handle]; duplicate {
			t.Fatalf("duplicate handle %s", handle)
		}
		seen[handle] = struct{}{}
	}
}

func TestBranchSequence(t *testing.T) {
	testCases := []struct {
		name      string
		requested string
		expected  []string
	}{
		{name: "default", requested: "", expected: []string{"main", "master", "develop", "dev"}},
		{name: "requested fallback member", requested: "develop", expected: []string{"develop", "master", "main", "dev"}},
		{name: "custom branch", requested: "release", expected: []string{"release", "master", "main", "develop", "dev"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual := acquire.BranchSequence(testCase.requested, acquire.DefaultBranch, acquire.DefaultFallbackBranches)
			if strings.Join(actual, ",") != strings.Join(testCase.expected, ",") {
				t.Fatalf("expected %v, got %v", testCase.expected, actual)
			}
		})
	}
}

func TestGitCommandStrategyReportsMissingExecutable(t *testing.T) {
	strategy := acquire.GitCommandStrategy{Executable: filepath.Join(t.TempDir(), "no-such-git")}
	result := strategy.Attempt(context.Background(), acquire.AttemptRequest{URL: "https://github.com/octocat/Hello-World.git", Branch: "main", Directory: t.TempDir()})
	if result.Outcome != acquire.OutcomeUnavailable {
		t.Fatalf("expected unavailable, got %s", result.Outcome)
	}
}

func assertEmptyDirectory(t *testing.T, directory string) {
	t.Helper()
	entries, readError := os.ReadDir(directory)
	if readError != nil {
		t.Fatalf("read %s: %v", directory, readError)
	}
	if len(entries) != 0 {
		t.Fatalf("expected %s to be empty after a failed acquisition, found %d entries", directory, len(entries))
	}
}
