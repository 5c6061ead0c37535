package utils

import (
	"bytes"
	"io"
	"os"
)

// binarySniffLength mirrors the window git inspects when it guesses whether a
// blob is binary.
const binarySniffLength = 8000

// IsBinary reports whether data looks like binary content: a NUL byte within
// the first binarySniffLength bytes. Text in single-byte encodings is not
// valid UTF-8 but is still text, so UTF-8 validity is not consulted.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffLength {
		data = data[:binarySniffLength]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// IsFileBinary applies IsBinary to the leading bytes of the file at path.
// Unreadable files report false; callers surface read errors separately.
func IsFileBinary(path string) bool {
	fileHandle, openError := os.Open(path)
	if openError != nil {
		return false
	}
	defer fileHandle.Close()

	leadingBytes, readError := io.ReadAll(io.LimitReader(fileHandle, binarySniffLength))
	if readError != nil {
		return false
	}
	return IsBinary(leadingBytes)
}
