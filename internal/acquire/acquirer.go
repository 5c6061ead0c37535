package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/remote"
	"github.com/temirov/reposcope/internal/utils"
)

const (
	// DefaultBranch is tried first when a request names no branch.
	DefaultBranch = "main"
	// DefaultCloneTimeout bounds each individual clone attempt.
	DefaultCloneTimeout = 5 * time.Minute

	baseDirectoryMode = 0o755

	errorPrepareBaseDirectory = "preparing repository storage"
	errorGenerateHandle       = "generating repository handle"
	errorTransportFormat      = "cloning %s with %s on branch %s failed"
	errorExhaustedFormat      = "no branch of %s could be cloned; tried %s"
	errorStripMetadata        = "removing version control metadata"
	errorCanceled             = "clone canceled"
)

// DefaultFallbackBranches are appended to the requested branch, in order.
var DefaultFallbackBranches = []string{"master", "main", "develop", "dev"}

// Config controls where and how repositories are cloned.
type Config struct {
	BaseDirectory    string
	CloneTimeout     time.Duration
	DefaultBranch    string
	FallbackBranches []string
}

// Request is a single acquisition. Credential is optional and is never logged.
type Request struct {
	Reference  string
	Branch     string
	Credential string
}

// Acquirer runs the branch-fallback clone protocol over its strategies.
type Acquirer struct {
	configuration Config
	strategies    []Strategy
	logger        *zap.Logger
	metrics       *metrics.Metrics
	newHandle     func() (uuid.UUID, error)
}

// DefaultStrategies returns the git process strategy followed by the go-git strategy.
func DefaultStrategies() []Strategy {
	return []Strategy{GitCommandStrategy{}, LibraryStrategy{}}
}

// New constructs an Acquirer. A nil logger is replaced with a no-op logger and
// zero configuration values fall back to package defaults.
func New(configuration Config, strategies []Strategy, logger *zap.Logger, collectors *metrics.Metrics) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configuration.CloneTimeout <= 0 {
		configuration.CloneTimeout = DefaultCloneTimeout
	}
	if strings.TrimSpace(configuration.DefaultBranch) == "" {
		configuration.DefaultBranch = DefaultBranch
	}
	if configuration.FallbackBranches == nil {
		configuration.FallbackBranches = DefaultFallbackBranches
	}
	return &Acquirer{
		configuration: configuration,
		strategies:    strategies,
		logger:        logger,
		metrics:       collectors,
		newHandle:     uuid.NewRandom,
	}
}

// RepositoryPath returns the directory that backs handle.
func (acquirer *Acquirer) RepositoryPath(handle string) string {
	return filepath.Join(acquirer.configuration.BaseDirectory, handle)
}

// BaseDirectory returns the directory that holds every repository.
func (acquirer *Acquirer) BaseDirectory() string {
	return acquirer.configuration.BaseDirectory
}

// BranchSequence lists the requested branch followed by the fallbacks with
// duplicates removed. An empty request selects defaultBranch.
func BranchSequence(requestedBranch string, defaultBranch string, fallbackBranches []string) []string {
	firstBranch := strings.TrimSpace(requestedBranch)
	if firstBranch == "" {
		firstBranch = defaultBranch
	}
	candidates := append([]string{firstBranch}, fallbackBranches...)
	sequence := make([]string, 0, len(candidates))
	for _, candidate := range utils.DeduplicatePatterns(candidates) {
		if strings.TrimSpace(candidate) != "" {
			sequence = append(sequence, candidate)
		}
	}
	return sequence
}

// Acquire clones the referenced repository and returns its handle. The
// reference is validated before any filesystem or network activity.
func (acquirer *Acquirer) Acquire(ctx context.Context, request Request) (string, error) {
	cloneURL, normalizeError := remote.Normalize(request.Reference)
	if normalizeError != nil {
		return "", normalizeError
	}
	authenticatedURL, injectError := remote.InjectCredential(cloneURL, request.Credential)
	if injectError != nil {
		return "", injectError
	}

	handleValue, handleError := acquirer.newHandle()
	if handleError != nil {
		return "", failure.New(failure.KindInternal, errorGenerateHandle, handleError)
	}
	handle := handleValue.String()
	if mkdirError := os.MkdirAll(acquirer.configuration.BaseDirectory, baseDirectoryMode); mkdirError != nil {
		return "", failure.New(failure.KindInternal, errorPrepareBaseDirectory, mkdirError)
	}
	targetDirectory := acquirer.RepositoryPath(handle)
	branches := BranchSequence(request.Branch, acquirer.configuration.DefaultBranch, acquirer.configuration.FallbackBranches)

	acquirer.logger.Info("acquiring repository",
		zap.String("url", remote.Redact(authenticatedURL)),
		zap.String("handle", handle),
		zap.Strings("branches", branches),
		utils.RedactedString("credential", request.Credential))

	var lastCause error
	for _, strategy := range acquirer.strategies {
	branchLoop:
		for _, branch := range branches {
			if purgeError := utils.RemoveTree(targetDirectory); purgeError != nil {
				acquirer.logger.Warn("purging clone target failed", zap.String("handle", handle), zap.Error(purgeError))
			}
			result := acquirer.attempt(ctx, strategy, AttemptRequest{URL: authenticatedURL, Branch: branch, Directory: targetDirectory})
			acquirer.metrics.RecordCloneAttempt(strategy.Name(), string(result.Outcome))
			acquirer.logger.Debug("clone attempt finished",
				zap.String("handle", handle),
				zap.String("strategy", strategy.Name()),
				zap.String("branch", branch),
				zap.String("outcome", string(result.Outcome)))

			if ctx.Err() != nil {
				acquirer.purge(targetDirectory)
				return "", failure.New(failure.KindInternal, errorCanceled, ctx.Err())
			}

			cause := scrubCause(result.Cause, request.Credential)
			switch result.Outcome {
			case OutcomeCloned:
				if stripError := utils.RemoveTree(filepath.Join(targetDirectory, utils.GitDirectoryName)); stripError != nil {
					acquirer.purge(targetDirectory)
					return "", failure.New(failure.KindInternal, errorStripMetadata, stripError)
				}
				acquirer.logger.Info("repository acquired",
					zap.String("handle", handle),
					zap.String("strategy", strategy.Name()),
					zap.String("branch", branch))
				return handle, nil
			case OutcomeBranchMissing:
				lastCause = cause
			case OutcomeUnavailable:
				lastCause = cause
				break branchLoop
			default:
				acquirer.purge(targetDirectory)
				return "", failure.New(failure.KindAuthOrTransportFailure,
					fmt.Sprintf(errorTransportFormat, cloneURL, strategy.Name(), branch), cause)
			}
		}
	}

	acquirer.purge(targetDirectory)
	return "", failure.New(failure.KindCloneFailure,
		fmt.Sprintf(errorExhaustedFormat, cloneURL, strings.Join(branches, ", ")), lastCause)
}

func (acquirer *Acquirer) attempt(ctx context.Context, strategy Strategy, request AttemptRequest) AttemptResult {
	attemptContext, cancel := context.WithTimeout(ctx, acquirer.configuration.CloneTimeout)
	defer cancel()
	result := strategy.Attempt(attemptContext, request)
	if result.Outcome != OutcomeCloned && result.Outcome != OutcomeTimedOut &&
		errors.Is(attemptContext.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.Outcome = OutcomeTimedOut
	}
	return result
}

func (acquirer *Acquirer) purge(targetDirectory string) {
	if purgeError := utils.RemoveTree(targetDirectory); purgeError != nil {
		acquirer.logger.Warn("purging partial clone failed", zap.String("directory", targetDirectory), zap.Error(purgeError))
	}
}

// scrubCause flattens cause into a message with the credential removed.
func scrubCause(cause error, credential string) error {
	if cause == nil {
		return nil
	}
	if credential == "" {
		return cause
	}
	return errors.New(remote.ScrubCredential(cause.Error(), credential))
}
