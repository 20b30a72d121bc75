package scanning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const tesseractTimeout = 60 * time.Second

// Tesseract implements the OCR interface by running the tesseract CLI
type Tesseract struct {
	binary string
}

// NewTesseract creates a Tesseract backend. An empty binary means "tesseract" on PATH.
func NewTesseract(binary string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{binary: binary}
}

// Recognize writes the image to a temp file and returns tesseract's stdout
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, tesseractTimeout)
	defer cancel()

	pngData, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", ocrError("tesseract", err)
	}

	tmpFile, err := os.CreateTemp("", "receipt-*.png")
	if err != nil {
		return "", ocrError("tesseract", fmt.Errorf("creating temp file: %w", err))
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(pngData); err != nil {
		tmpFile.Close()
		return "", ocrError("tesseract", fmt.Errorf("writing temp file: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		return "", ocrError("tesseract", fmt.Errorf("closing temp file: %w", err))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, tmpFile.Name(), "stdout")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", ocrError("tesseract", fmt.Errorf("running %s: %w: %s", t.binary, err, msg))
		}
		return "", ocrError("tesseract", fmt.Errorf("running %s: %w", t.binary, err))
	}

	return strings.TrimSpace(string(out)), nil
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}
