// Package acquire clones remote repositories into handle-addressed directories
// using an ordered list of clone strategies and a branch fallback sequence.
package acquire

import (
	"context"
)

// Outcome is the mechanism-independent classification of one clone attempt.
type Outcome string

const (
	// OutcomeCloned means the working tree was checked out.
	OutcomeCloned Outcome = "cloned"
	// OutcomeBranchMissing means the remote has no such branch.
	OutcomeBranchMissing Outcome = "branch_missing"
	// OutcomeTransportFailure covers authentication, authorization and network errors.
	OutcomeTransportFailure Outcome = "transport_failure"
	// OutcomeTimedOut means the attempt exceeded its time bound.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeUnavailable means the mechanism cannot run on this host at all.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeFailed is any other failure.
	OutcomeFailed Outcome = "failed"
)

// AttemptRequest describes a single shallow clone of one branch.
type AttemptRequest struct {
	URL       string
	Branch    string
	Directory string
}

// AttemptResult reports how an attempt ended. Cause is nil when the clone succeeded.
type AttemptResult struct {
	Outcome Outcome
	Cause   error
}

// Strategy is one clone mechanism.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, request AttemptRequest) AttemptResult
}
