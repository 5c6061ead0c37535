package analyzer

import (
	"strings"

	"github.com/temirov/reposcope/internal/utils"
)

const hiddenPrefix = "."

var (
	allowedDotfiles = map[string]struct{}{
		".gitignore":    {},
		".env.example":  {},
		".dockerignore": {},
	}
	ignoredDirectoryNames = map[string]struct{}{
		"node_modules": {},
		"__pycache__":  {},
		".git":         {},
		"venv":         {},
		".venv":        {},
		"build":        {},
		"dist":         {},
		"target":       {},
		"bin":          {},
		"obj":          {},
	}
)

// Rules decides which entries of an acquired tree are analyzed. The same
// rules drive line counting, file-type counting and the structure tree.
type Rules struct {
	// ExtraPatterns are additional gitignore-style patterns from configuration.
	ExtraPatterns []string
}

// ExcludeDirectory reports whether a directory and its whole subtree are skipped.
func (rules Rules) ExcludeDirectory(relativePath string) bool {
	name := lastSegment(relativePath)
	if _, ignored := ignoredDirectoryNames[name]; ignored {
		return true
	}
	if strings.HasPrefix(name, hiddenPrefix) {
		return true
	}
	return rules.matchesExtra(relativePath)
}

// ExcludeFile reports whether a file is skipped. Its parent directories are
// assumed to have passed ExcludeDirectory already.
func (rules Rules) ExcludeFile(relativePath string) bool {
	name := lastSegment(relativePath)
	if strings.HasPrefix(name, hiddenPrefix) {
		if _, allowed := allowedDotfiles[name]; !allowed {
			return true
		}
	}
	return rules.matchesExtra(relativePath)
}

func (rules Rules) matchesExtra(relativePath string) bool {
	if len(rules.ExtraPatterns) == 0 {
		return false
	}
	return utils.ShouldIgnoreByPath(relativePath, rules.ExtraPatterns)
}

func lastSegment(relativePath string) string {
	trimmedPath := strings.TrimSuffix(strings.ReplaceAll(relativePath, "\\", "/"), "/")
	if separatorIndex := strings.LastIndex(trimmedPath, "/"); separatorIndex >= 0 {
		return trimmedPath[separatorIndex+1:]
	}
	return trimmedPath
}
