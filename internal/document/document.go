package document

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrEmptyDocument is returned when a payload has no bytes at all
var ErrEmptyDocument = errors.New("empty document")

// Document gives page-level access to a submitted file
type Document interface {
	// NumPage returns the number of pages
	NumPage() int
	// Text returns the native text layer of a page (0-indexed)
	Text(page int) (string, error)
	// Render rasterizes a page (0-indexed) at the given scale and returns PNG bytes
	Render(page int, scale float64) ([]byte, error)
	// Close releases the document
	Close() error
}

// Opener opens a document from its raw bytes
type Opener func(name string, data []byte) (Document, error)

// Open detects the payload type and opens it. PDFs are read through MuPDF;
// anything else is decoded as a single scanned page.
func Open(name string, data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("opening %s: %w", name, ErrEmptyDocument)
	}
	if isPDF(data) {
		doc, err := openPDF(data)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		return doc, nil
	}
	doc, err := openImage(data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return doc, nil
}

// isPDF checks for the %PDF- magic within the first KiB, where readers accept it
func isPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
