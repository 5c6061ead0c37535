package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	gitExecutableName       = "git"
	gitCommandStrategyName  = "git"
	terminalPromptVariable  = "GIT_TERMINAL_PROMPT=0"
	gitCommandFailureFormat = "git clone exited: %v: %s"
)

var (
	branchMissingMarkers = []string{
		"not found in upstream origin",
		"couldn't find remote ref",
	}
	transportFailureMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"repository not found",
		"could not resolve host",
		"unable to access",
		"connection refused",
		"connection timed out",
		"the requested url returned error",
		"terminal prompts disabled",
	}
)

// GitCommandStrategy shells out to the git executable.
type GitCommandStrategy struct {
	// Executable overrides the git binary looked up on PATH.
	Executable string
}

// Name identifies the strategy in logs and metrics.
func (GitCommandStrategy) Name() string {
	return gitCommandStrategyName
}

// Attempt runs a shallow single-branch clone and classifies its stderr.
func (strategy GitCommandStrategy) Attempt(ctx context.Context, request AttemptRequest) AttemptResult {
	executable := strategy.Executable
	if executable == "" {
		executable = gitExecutableName
	}
	executablePath, lookupError := exec.LookPath(executable)
	if lookupError != nil {
		return AttemptResult{Outcome: OutcomeUnavailable, Cause: lookupError}
	}

	// #nosec G204
	command := exec.CommandContext(ctx, executablePath,
		"clone", "--depth", "1", "--single-branch", "--branch", request.Branch,
		request.URL, request.Directory)
	command.Env = append(os.Environ(), terminalPromptVariable)
	var standardError bytes.Buffer
	command.Stderr = &standardError

	runError := command.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return AttemptResult{Outcome: OutcomeTimedOut, Cause: ctx.Err()}
	}
	if runError == nil {
		return AttemptResult{Outcome: OutcomeCloned}
	}
	if ctx.Err() != nil {
		return AttemptResult{Outcome: OutcomeFailed, Cause: ctx.Err()}
	}
	var exitError *exec.ExitError
	if !errors.As(runError, &exitError) {
		return AttemptResult{Outcome: OutcomeUnavailable, Cause: runError}
	}
	stderrText := strings.TrimSpace(standardError.String())
	return AttemptResult{
		Outcome: classifyGitStderr(stderrText),
		Cause:   fmt.Errorf(gitCommandFailureFormat, runError, stderrText),
	}
}

// classifyGitStderr maps the diagnostic text printed by git clone to an outcome.
func classifyGitStderr(stderrText string) Outcome {
	lowered := strings.ToLower(stderrText)
	for _, marker := range branchMissingMarkers {
		if strings.Contains(lowered, marker) {
			return OutcomeBranchMissing
		}
	}
	for _, marker := range transportFailureMarkers {
		if strings.Contains(lowered, marker) {
			return OutcomeTransportFailure
		}
	}
	return OutcomeFailed
}
