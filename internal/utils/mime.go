package utils

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// UnknownMimeType is reported when a file type cannot be determined.
const UnknownMimeType = "application/octet-stream"

// DetectMimeType returns the MIME type of the file at filePath.
// The extension table is consulted first; otherwise up to binarySniffLength bytes
// are read and passed to http.DetectContentType. Unreadable files report
// UnknownMimeType.
func DetectMimeType(filePath string) string {
	fileHandle, openError := os.Open(filePath)
	if openError != nil {
		return UnknownMimeType
	}
	defer fileHandle.Close()

	if extensionType := mime.TypeByExtension(filepath.Ext(filePath)); extensionType != "" {
		return extensionType
	}

	buffer := make([]byte, binarySniffLength)
	bytesRead, readError := fileHandle.Read(buffer)
	if readError != nil && readError != io.EOF {
		return UnknownMimeType
	}

	return http.DetectContentType(buffer[:bytesRead])
}
