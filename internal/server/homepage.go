package server

import (
	"fmt"
	"os"
)

// MsgHomepageMissing is the 500 body when the homepage cannot be read.
const MsgHomepageMissing = "Error del servidor: No se encuentra index.html"

// Homepage serves the static control page from disk. The file is read on
// every request so it can be replaced without a restart.
type Homepage struct {
	path string
}

// NewHomepage creates a responder for the document at path.
func NewHomepage(path string) *Homepage {
	return &Homepage{path: path}
}

// Load returns the document contents.
func (h *Homepage) Load() ([]byte, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("read homepage '%s': %w", h.path, err)
	}
	return data, nil
}
