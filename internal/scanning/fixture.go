package scanning

import "context"

// SampleReceipt is the receipt returned by the fixture backend when no text is configured
const SampleReceipt = `RECEIPT
Store: Nike
Date: 12/15/2024

1x Nike Sneakers - Size 10        $129.99
1x Nike Sweatshirt - Size M       $79.99
1x Nike Sweatpants - Size M       $69.99

Subtotal: $279.97
Tax: $22.40
Total: $302.37`

// Fixture implements the OCR interface with canned text. It ignores the image
// and is used for demos, local development and tests.
type Fixture struct {
	Text string
}

// NewFixture returns a Fixture that always recognizes SampleReceipt
func NewFixture() *Fixture {
	return &Fixture{Text: SampleReceipt}
}

// Recognize returns the configured text
func (f *Fixture) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ocrError("fixture", err)
	}
	return f.Text, nil
}

// Close is a no-op
func (f *Fixture) Close() error {
	return nil
}
