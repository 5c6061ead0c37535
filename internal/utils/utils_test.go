package utils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/temirov/reposcope/internal/utils"
)

// textFileName defines the name of the text file used in tests.
const textFileName = "sample.txt"

// nestedDirectoryName defines the directory used for nested path tests.
const nestedDirectoryName = "subdir"

// generatedDirectoryPattern defines the ignore pattern for a nested generated directory.
const generatedDirectoryPattern = nestedDirectoryName + "/generated/"

// backslashGeneratedDirectoryPattern defines the same pattern with backslashes to verify normalization.
const backslashGeneratedDirectoryPattern = nestedDirectoryName + `\generated\`

// generatedFilePath defines a file inside the generated directory.
const generatedFilePath = nestedDirectoryName + "/generated/index.js"

// TestDeduplicatePatterns verifies that DeduplicatePatterns removes duplicate patterns.
func TestDeduplicatePatterns(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		patterns []string
		expected []string
	}{
		{
			testName: "removes duplicates",
			patterns: []string{"a", "b", "a"},
			expected: []string{"a", "b"},
		},
		{
			testName: "keeps unique",
			patterns: []string{"a", "b"},
			expected: []string{"a", "b"},
		},
	}
	for index, testCase := range testCases {
		actual := utils.DeduplicatePatterns(testCase.patterns)
		if strings.Join(actual, ",") != strings.Join(testCase.expected, ",") {
			testingInstance.Errorf("case %d (%s): expected %v, got %v", index, testCase.testName, testCase.expected, actual)
		}
	}
}

// TestRelativePathOrSelf verifies relative path calculations.
func TestRelativePathOrSelf(testingInstance *testing.T) {
	temporaryRoot := testingInstance.TempDir()
	subPath := filepath.Join(temporaryRoot, nestedDirectoryName, textFileName)
	testCases := []struct {
		testName string
		fullPath string
		expected string
	}{
		{testName: "root path returns dot", fullPath: temporaryRoot, expected: "."},
		{testName: "sub path returns slash separated relative", fullPath: subPath, expected: nestedDirectoryName + "/" + textFileName},
	}
	for index, testCase := range testCases {
		actual := utils.RelativePathOrSelf(testCase.fullPath, temporaryRoot)
		if actual != testCase.expected {
			testingInstance.Errorf("case %d (%s): expected %s, got %s", index, testCase.testName, testCase.expected, actual)
		}
	}
}

// TestShouldIgnoreByPath verifies path ignoring logic.
func TestShouldIgnoreByPath(testingInstance *testing.T) {
	testCases := []struct {
		testName       string
		relativePath   string
		patterns       []string
		expectedIgnore bool
	}{
		{testName: "no patterns", relativePath: ".gitignore", patterns: nil, expectedIgnore: false},
		{testName: "directory pattern for directory", relativePath: "dir", patterns: []string{"dir/"}, expectedIgnore: true},
		{testName: "wildcard file pattern matches at depth", relativePath: "dir/deep/file.txt", patterns: []string{"*.txt"}, expectedIgnore: true},
		{testName: "path pattern", relativePath: "dir/file.txt", patterns: []string{"dir/*.txt"}, expectedIgnore: true},
		{testName: "not ignored", relativePath: "dir/file.txt", patterns: []string{"*.md"}, expectedIgnore: false},
		{testName: "blank pattern skipped", relativePath: "dir/file.txt", patterns: []string{"  "}, expectedIgnore: false},
		{testName: "nested directory with slash", relativePath: generatedFilePath, patterns: []string{generatedDirectoryPattern}, expectedIgnore: true},
		{testName: "nested directory with backslashes", relativePath: generatedFilePath, patterns: []string{backslashGeneratedDirectoryPattern}, expectedIgnore: true},
		{testName: "nested directory pattern no match", relativePath: "other/" + generatedFilePath, patterns: []string{generatedDirectoryPattern}, expectedIgnore: false},
	}
	for index, testCase := range testCases {
		actual := utils.ShouldIgnoreByPath(testCase.relativePath, testCase.patterns)
		if actual != testCase.expectedIgnore {
			testingInstance.Errorf("case %d (%s): expected %t, got %t", index, testCase.testName, testCase.expectedIgnore, actual)
		}
	}
}

// TestIsBinary verifies detection of binary data in byte slices.
func TestIsBinary(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		data     []byte
		expected bool
	}{
		{testName: "utf8 text", data: []byte("hello"), expected: false},
		{testName: "null byte", data: []byte{0x00, 0x01}, expected: true},
		{testName: "latin-1 text", data: []byte("caf\xe9"), expected: false},
		{testName: "nul beyond sniff window", data: append(bytes.Repeat([]byte("a"), 8000), 0x00), expected: false},
		{testName: "empty slice", data: []byte{}, expected: false},
	}
	for index, testCase := range testCases {
		actual := utils.IsBinary(testCase.data)
		if actual != testCase.expected {
			testingInstance.Errorf("case %d (%s): expected %t, got %t", index, testCase.testName, testCase.expected, actual)
		}
	}
}

// TestRemoveTreeHandlesReadOnlyEntries verifies that read-only pack files do not block removal.
func TestRemoveTreeHandlesReadOnlyEntries(testingInstance *testing.T) {
	temporaryRoot := testingInstance.TempDir()
	packDirectory := filepath.Join(temporaryRoot, "clone", ".git", "objects", "pack")
	if mkdirError := os.MkdirAll(packDirectory, 0o755); mkdirError != nil {
		testingInstance.Fatalf("mkdir: %v", mkdirError)
	}
	packFile := filepath.Join(packDirectory, "pack-1.pack")
	if writeError := os.WriteFile(packFile, []byte("PACK"), 0o444); writeError != nil {
		testingInstance.Fatalf("write: %v", writeError)
	}

	if removeError := utils.RemoveTree(filepath.Join(temporaryRoot, "clone")); removeError != nil {
		testingInstance.Fatalf("remove: %v", removeError)
	}
	if utils.DirectoryExists(filepath.Join(temporaryRoot, "clone")) {
		testingInstance.Fatalf("expected clone directory to be removed")
	}
	if removeError := utils.RemoveTree(filepath.Join(temporaryRoot, "missing")); removeError != nil {
		testingInstance.Fatalf("removing a missing tree should succeed, got %v", removeError)
	}
}

// TestRedactedStringHidesValue verifies that secrets are reduced to their length.
func TestRedactedStringHidesValue(testingInstance *testing.T) {
	field := utils.RedactedString("credential", "ghp_abcdef")
	if field.Type != zapcore.StringType {
		testingInstance.Fatalf("expected string field, got %v", field.Type)
	}
	if field.String != "[REDACTED:10]" {
		testingInstance.Fatalf("unexpected redacted value %q", field.String)
	}
}

// TestNewApplicationLoggerRejectsUnknownLevel verifies level validation.
func TestNewApplicationLoggerRejectsUnknownLevel(testingInstance *testing.T) {
	if _, loggerError := utils.NewApplicationLogger("loud"); loggerError == nil {
		testingInstance.Fatalf("expected an error for an unknown level")
	}
	logger, loggerError := utils.NewApplicationLogger("debug")
	if loggerError != nil {
		testingInstance.Fatalf("build logger: %v", loggerError)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		testingInstance.Fatalf("expected debug level to be enabled")
	}
}
