package scanning

import (
	"context"
	"fmt"
)

// ParsedItem is a clothing item guessed from a single receipt line
type ParsedItem struct {
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	Size     string `json:"size,omitempty"`
	Price    string `json:"price,omitempty"` // numeric text as printed, e.g. "129.99"
	Quantity int    `json:"quantity,omitempty"`
}

// OCR turns a receipt image into text
type OCR interface {
	// Recognize extracts the text printed on a receipt image/PDF
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the backend and releases resources
	Close() error
}

// OCRError reports a failure of an OCR backend
type OCRError struct {
	Backend string
	Err     error
}

func (e *OCRError) Error() string {
	return fmt.Sprintf("%s ocr: %v", e.Backend, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func ocrError(backend string, err error) error {
	return &OCRError{Backend: backend, Err: err}
}
