// Package config loads reposcope configuration from defaults, files and the environment.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const commentPrefix = "#"

// LoadPatternFile reads gitignore-style exclusion patterns, one per line.
// Blank lines and comments are skipped.
//
// #nosec G304
func LoadPatternFile(patternFilePath string) ([]string, error) {
	fileHandle, openFileError := os.Open(patternFilePath)
	if openFileError != nil {
		return nil, fmt.Errorf("open pattern file %s: %w", patternFilePath, openFileError)
	}
	defer func() {
		_ = fileHandle.Close()
	}()

	var patterns []string
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, commentPrefix) {
			continue
		}
		patterns = append(patterns, trimmedLine)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, fmt.Errorf("read pattern file %s: %w", patternFilePath, scanError)
	}
	return patterns, nil
}
