package acquire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	libraryStrategyName     = "library"
	tokenAuthUsername       = "x-access-token"
	libraryCloneErrorFormat = "go-git clone: %w"
)

// LibraryStrategy clones in-process with go-git. It needs no external binary.
type LibraryStrategy struct{}

// Name identifies the strategy in logs and metrics.
func (LibraryStrategy) Name() string {
	return libraryStrategyName
}

// Attempt performs a depth-one single-branch clone onto disk. A credential in
// the URL userinfo is moved into HTTP basic authentication.
func (LibraryStrategy) Attempt(ctx context.Context, request AttemptRequest) AttemptResult {
	cloneURL, authentication, splitError := splitCredential(request.URL)
	if splitError != nil {
		return AttemptResult{Outcome: OutcomeFailed, Cause: splitError}
	}
	cloneOptions := &git.CloneOptions{
		URL:           cloneURL,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(request.Branch),
		Tags:          git.NoTags,
	}
	if authentication != nil {
		cloneOptions.Auth = authentication
	}

	_, cloneError := git.PlainCloneContext(ctx, request.Directory, false, cloneOptions)
	if cloneError == nil {
		return AttemptResult{Outcome: OutcomeCloned}
	}
	return AttemptResult{Outcome: classifyLibraryError(cloneError), Cause: fmt.Errorf(libraryCloneErrorFormat, cloneError)}
}

func splitCredential(rawURL string) (string, *githttp.BasicAuth, error) {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return "", nil, fmt.Errorf("parse clone URL: %w", parseError)
	}
	if parsedURL.User == nil {
		return rawURL, nil, nil
	}
	token := parsedURL.User.Username()
	if password, hasPassword := parsedURL.User.Password(); hasPassword {
		token = password
	}
	parsedURL.User = nil
	return parsedURL.String(), &githttp.BasicAuth{Username: tokenAuthUsername, Password: token}, nil
}

// classifyLibraryError maps typed go-git and transport errors to an outcome.
func classifyLibraryError(cloneError error) Outcome {
	switch {
	case errors.Is(cloneError, context.DeadlineExceeded):
		return OutcomeTimedOut
	case errors.Is(cloneError, git.NoMatchingRefSpecError{}),
		errors.Is(cloneError, plumbing.ErrReferenceNotFound):
		return OutcomeBranchMissing
	case errors.Is(cloneError, transport.ErrAuthenticationRequired),
		errors.Is(cloneError, transport.ErrAuthorizationFailed),
		errors.Is(cloneError, transport.ErrRepositoryNotFound):
		return OutcomeTransportFailure
	}
	var networkError net.Error
	if errors.As(cloneError, &networkError) {
		if networkError.Timeout() {
			return OutcomeTimedOut
		}
		return OutcomeTransportFailure
	}
	var urlError *url.Error
	if errors.As(cloneError, &urlError) {
		return OutcomeTransportFailure
	}
	return OutcomeFailed
}
