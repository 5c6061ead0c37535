// Package types defines every cross-package data structure used by reposcope.
package types

import "encoding/json"

const (
	NodeTypeFile      = "file"
	NodeTypeDirectory = "directory"

	// NoExtensionKey is the file-type bucket for files without an extension.
	NoExtensionKey = "no_extension"
	// UnknownLanguage is reported by FileInfo when no language is attributed.
	UnknownLanguage = "Unknown"

	FormatJSON = "json"
	FormatRaw  = "raw"
)

// StructureNode is one entry of the repository structure tree. Files carry a
// size and extension; directories carry ordered children unless truncated.
type StructureNode struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Size      int64           `json:"size,omitempty"`
	Extension string          `json:"extension,omitempty"`
	Children  []StructureNode `json:"children,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// IsFile reports whether the node describes a regular file.
func (node StructureNode) IsFile() bool {
	return node.Type == NodeTypeFile
}

type fileNodeJSON struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	Extension string `json:"extension,omitempty"`
}

type directoryNodeJSON struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Children  []StructureNode `json:"children,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// MarshalJSON always emits size for files, including empty ones, and never
// for directories.
func (node StructureNode) MarshalJSON() ([]byte, error) {
	if node.IsFile() {
		return json.Marshal(fileNodeJSON{Name: node.Name, Type: node.Type, Size: node.Size, Extension: node.Extension})
	}
	return json.Marshal(directoryNodeJSON{Name: node.Name, Type: node.Type, Children: node.Children, Truncated: node.Truncated})
}

// AnalysisReport summarizes an acquired repository.
type AnalysisReport struct {
	TotalLines int                `json:"total_lines"`
	FileTypes  map[string]int     `json:"file_types"`
	Languages  map[string]float64 `json:"languages"`
	Structure  []StructureNode    `json:"structure"`
}

// FileInfo describes a single file inside an acquired repository.
type FileInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	HumanSize     string `json:"human_size"`
	Extension     string `json:"extension"`
	MimeType      string `json:"mime_type"`
	IsBinary      bool   `json:"is_binary"`
	Modified      int64  `json:"modified"`
	ModifiedLocal string `json:"modified_local"`
	Language      string `json:"language"`
}

// CloneRequest is the body accepted by the clone endpoint.
type CloneRequest struct {
	RepositoryURL string `json:"repo_url"`
	Branch        string `json:"branch,omitempty"`
}

// CloneResponse reports the handle of a freshly acquired repository.
type CloneResponse struct {
	RepositoryID string `json:"repo_id"`
	Message      string `json:"message"`
}

// CleanupResponse reports whether a repository directory was removed.
type CleanupResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
