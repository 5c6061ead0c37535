// Package clipboard places repository handles on the system clipboard.
package clipboard

import (
	"errors"

	"github.com/atotto/clipboard"
)

const errorClipboardUnavailable = "system clipboard is unavailable"

// Copier copies textual data to the system clipboard.
type Copier interface {
	Copy(text string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct{}

// NewService constructs a clipboard service.
func NewService() *Service {
	return &Service{}
}

// Copy writes text to the system clipboard. It fails early on hosts without
// a clipboard utility instead of surfacing the library's exec error.
func (service *Service) Copy(text string) error {
	if clipboard.Unsupported {
		return errors.New(errorClipboardUnavailable)
	}
	return clipboard.WriteAll(text)
}

var _ Copier = (*Service)(nil)
