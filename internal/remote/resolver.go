// Package remote turns repository references into clone URLs and keeps
// credentials out of everything that is logged or returned.
package remote

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/temirov/reposcope/internal/failure"
)

const (
	// SupportedHost is the only hosting service references may point at.
	SupportedHost = "github.com"

	secureScheme        = "https"
	schemeSeparator     = "://"
	gitSuffix           = ".git"
	segmentSeparator    = "/"
	redactedPlaceholder = "[REDACTED]"
	redactedUserinfo    = "REDACTED"

	errorEmptyReference     = "repository reference is empty"
	errorMalformedReference = "repository reference %q is not a URL or owner/name pair"
	errorUnsupportedScheme  = "repository URL scheme %q is not supported; use https"
	errorUnsupportedHost    = "repository host %q is not supported; only " + SupportedHost + " is"
	errorEmbeddedUserinfo   = "repository URL must not embed credentials"
	errorMalformedCloneURL  = "clone URL is malformed"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Normalize converts a reference into https://github.com/<owner>/<name>.git.
// Accepted shapes are an https URL on the supported host with exactly two
// path segments, or a bare owner/name pair.
func Normalize(reference string) (string, error) {
	trimmedReference := strings.TrimSpace(reference)
	if trimmedReference == "" {
		return "", failure.Newf(failure.KindInvalidReference, errorEmptyReference)
	}
	if strings.Contains(trimmedReference, schemeSeparator) {
		return normalizeURL(trimmedReference)
	}
	owner, name, ok := splitOwnerName(trimmedReference)
	if !ok {
		return "", failure.Newf(failure.KindInvalidReference, errorMalformedReference, reference)
	}
	return buildCloneURL(owner, name), nil
}

func normalizeURL(reference string) (string, error) {
	parsedURL, parseError := url.Parse(reference)
	if parseError != nil {
		return "", failure.Newf(failure.KindInvalidReference, errorMalformedReference, reference)
	}
	if !strings.EqualFold(parsedURL.Scheme, secureScheme) {
		return "", failure.Newf(failure.KindInvalidReference, errorUnsupportedScheme, parsedURL.Scheme)
	}
	if parsedURL.User != nil {
		return "", failure.Newf(failure.KindInvalidReference, errorEmbeddedUserinfo)
	}
	if !strings.EqualFold(parsedURL.Hostname(), SupportedHost) || parsedURL.Port() != "" {
		return "", failure.Newf(failure.KindInvalidReference, errorUnsupportedHost, parsedURL.Host)
	}
	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return "", failure.Newf(failure.KindInvalidReference, errorMalformedReference, reference)
	}
	owner, name, ok := splitOwnerName(strings.Trim(parsedURL.Path, segmentSeparator))
	if !ok {
		return "", failure.Newf(failure.KindInvalidReference, errorMalformedReference, reference)
	}
	return buildCloneURL(owner, name), nil
}

// splitOwnerName accepts exactly two non-empty segments. A trailing .git on
// the name is dropped so that normalization is idempotent.
func splitOwnerName(reference string) (string, string, bool) {
	segments := strings.Split(reference, segmentSeparator)
	if len(segments) != 2 {
		return "", "", false
	}
	owner := segments[0]
	name := strings.TrimSuffix(segments[1], gitSuffix)
	for _, segment := range []string{owner, name} {
		if segment == "" || segment == "." || segment == ".." || !segmentPattern.MatchString(segment) {
			return "", "", false
		}
	}
	return owner, name, true
}

func buildCloneURL(owner string, name string) string {
	return secureScheme + schemeSeparator + SupportedHost + segmentSeparator + owner + segmentSeparator + name + gitSuffix
}

// InjectCredential places token in the userinfo component of cloneURL.
// Only URLs on the supported host receive the credential.
func InjectCredential(cloneURL string, token string) (string, error) {
	parsedURL, parseError := url.Parse(cloneURL)
	if parseError != nil {
		return "", failure.New(failure.KindInvalidReference, errorMalformedCloneURL, nil)
	}
	if !strings.EqualFold(parsedURL.Hostname(), SupportedHost) {
		return "", failure.Newf(failure.KindInvalidReference, errorUnsupportedHost, parsedURL.Host)
	}
	if token == "" {
		return cloneURL, nil
	}
	parsedURL.User = url.User(token)
	return parsedURL.String(), nil
}

// Redact removes any userinfo from rawURL.
func Redact(rawURL string) string {
	parsedURL, parseError := url.Parse(rawURL)
	if parseError != nil {
		return redactedPlaceholder
	}
	if parsedURL.User == nil {
		return rawURL
	}
	parsedURL.User = url.User(redactedUserinfo)
	return parsedURL.String()
}

// ScrubCredential replaces every occurrence of token in text.
func ScrubCredential(text string, token string) string {
	if token == "" {
		return text
	}
	scrubbed := strings.ReplaceAll(text, token, redactedPlaceholder)
	escapedToken := url.User(token).String()
	if escapedToken != token {
		scrubbed = strings.ReplaceAll(scrubbed, escapedToken, redactedPlaceholder)
	}
	return scrubbed
}
