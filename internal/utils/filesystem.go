package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const writableDirectoryMode = 0o700

// RemoveTree deletes path and everything below it. When the first attempt
// fails, for example on read-only pack files, write permission is restored
// on every entry and the removal is retried once. A missing path is not an error.
func RemoveTree(path string) error {
	firstError := os.RemoveAll(path)
	if firstError == nil {
		return nil
	}
	if _, statError := os.Lstat(path); errors.Is(statError, fs.ErrNotExist) {
		return nil
	}
	_ = filepath.WalkDir(path, func(walkedPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil || directoryEntry.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		_ = os.Chmod(walkedPath, writableDirectoryMode)
		return nil
	})
	return os.RemoveAll(path)
}

// DirectoryExists reports whether path exists and is a directory.
func DirectoryExists(path string) bool {
	fileInformation, statError := os.Stat(path)
	return statError == nil && fileInformation.IsDir()
}
