// Package pathguard validates repository handles and caller-supplied paths
// before they reach the filesystem.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/temirov/reposcope/internal/failure"
)

const (
	parentSegment      = ".."
	canonicalUUIDWidth = 36

	errorInvalidPathFormat   = "path %q is not a valid relative path"
	errorOutsideRootFormat   = "path %q resolves outside the repository root"
	errorResolveRootFormat   = "resolving repository root %s: %w"
	errorInvalidHandleFormat = "handle %q is not a canonical UUID"
)

var (
	traversalPatterns = []string{"../", `..\`, "/../", `\..\`}
	driveLetterPrefix = regexp.MustCompile(`^[a-zA-Z]:`)
)

// ValidateHandle reports whether id is a UUID in canonical lower-case
// hyphenated form. Existence on disk is not checked.
func ValidateHandle(id string) bool {
	if len(id) != canonicalUUIDWidth {
		return false
	}
	parsed, parseError := uuid.Parse(id)
	if parseError != nil {
		return false
	}
	return parsed.String() == id
}

// CheckHandle returns an InvalidHandle failure when id is not a canonical UUID.
func CheckHandle(id string) error {
	if !ValidateHandle(id) {
		return failure.Newf(failure.KindInvalidHandle, errorInvalidHandleFormat, id)
	}
	return nil
}

// ValidateRelativePath is a syntactic pre-filter for caller-supplied paths.
// It rejects empty, absolute, drive-prefixed and traversal-bearing input.
// ContainmentCheck remains the authoritative defense.
func ValidateRelativePath(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	if strings.ContainsRune(relativePath, 0) {
		return false
	}
	for _, pattern := range traversalPatterns {
		if strings.Contains(relativePath, pattern) {
			return false
		}
	}
	if strings.HasPrefix(relativePath, "/") || strings.HasPrefix(relativePath, `\`) {
		return false
	}
	if driveLetterPrefix.MatchString(relativePath) {
		return false
	}
	for _, segment := range strings.FieldsFunc(relativePath, isSeparator) {
		if segment == parentSegment {
			return false
		}
	}
	return true
}

// ContainmentCheck reports whether candidate, once resolved to a canonical
// absolute path with symlinks evaluated, is a strict descendant of root.
func ContainmentCheck(root string, candidate string) bool {
	canonicalRoot, rootError := canonicalize(root)
	if rootError != nil {
		return false
	}
	canonicalCandidate, candidateError := canonicalize(candidate)
	if candidateError != nil {
		return false
	}
	relativePath, relativeError := filepath.Rel(canonicalRoot, canonicalCandidate)
	if relativeError != nil {
		return false
	}
	if relativePath == "." || relativePath == parentSegment {
		return false
	}
	if strings.HasPrefix(relativePath, parentSegment+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// Resolve applies both checks and returns the canonical absolute path of
// relativePath under root.
func Resolve(root string, relativePath string) (string, error) {
	if !ValidateRelativePath(relativePath) {
		return "", failure.Newf(failure.KindInvalidPath, errorInvalidPathFormat, relativePath)
	}
	candidate := filepath.Join(root, filepath.FromSlash(relativePath))
	if !ContainmentCheck(root, candidate) {
		return "", failure.Newf(failure.KindInvalidPath, errorOutsideRootFormat, relativePath)
	}
	canonicalCandidate, canonicalError := canonicalize(candidate)
	if canonicalError != nil {
		return "", failure.New(failure.KindInternal, fmt.Sprintf(errorOutsideRootFormat, relativePath), canonicalError)
	}
	return canonicalCandidate, nil
}

// canonicalize returns the absolute, symlink-free form of path. When path does
// not exist, its deepest existing ancestor is resolved and the remainder appended.
func canonicalize(path string) (string, error) {
	absolutePath, absoluteError := filepath.Abs(path)
	if absoluteError != nil {
		return "", fmt.Errorf(errorResolveRootFormat, path, absoluteError)
	}
	resolvedPath, resolveError := filepath.EvalSymlinks(absolutePath)
	if resolveError == nil {
		return resolvedPath, nil
	}
	if !errors.Is(resolveError, os.ErrNotExist) {
		return "", resolveError
	}

	existingPath := absolutePath
	var remainingSegments []string
	for {
		parentPath := filepath.Dir(existingPath)
		if parentPath == existingPath {
			return absolutePath, nil
		}
		remainingSegments = append([]string{filepath.Base(existingPath)}, remainingSegments...)
		existingPath = parentPath
		resolvedParent, parentError := filepath.EvalSymlinks(existingPath)
		if parentError == nil {
			return filepath.Join(append([]string{resolvedParent}, remainingSegments...)...), nil
		}
		if !errors.Is(parentError, os.ErrNotExist) {
			return "", parentError
		}
	}
}

func isSeparator(character rune) bool {
	return character == '/' || character == '\\'
}
