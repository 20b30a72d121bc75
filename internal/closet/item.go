package closet

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/closet-tracker/internal/scanning"
)

var (
	// ErrNotFound is returned when a scan or item does not exist
	ErrNotFound = errors.New("not found")
	// ErrNothingRecognized is returned when a receipt was read but no clothing was found on it
	ErrNothingRecognized = errors.New("no clothing items recognized")
	// ErrInvalidItem is returned when an item or import request fails validation
	ErrInvalidItem = errors.New("invalid item")
)

// Scan is a receipt that was read and parsed
type Scan struct {
	ID          string                `json:"id"`
	Filename    string                `json:"filename,omitempty"` // empty for pasted text
	ContentType string                `json:"content_type,omitempty"`
	Text        string                `json:"text"`
	Items       []scanning.ParsedItem `json:"items"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Item is a garment in someone's closet
type Item struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	Title         string           `json:"title"`
	Brand         string           `json:"brand,omitempty"`
	Size          string           `json:"size,omitempty"`
	Category      string           `json:"category"`
	Notes         string           `json:"notes,omitempty"`
	Images        []string         `json:"images"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	ScanID        string           `json:"scan_id,omitempty"` // scan the item was imported from
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ItemUpdate holds the fields to change on an item. Nil fields are left alone.
type ItemUpdate struct {
	Title         *string          `json:"title,omitempty"`
	Brand         *string          `json:"brand,omitempty"`
	Size          *string          `json:"size,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	Images        []string         `json:"images,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

// ImportRequest selects parsed items of a scan to add to a closet
type ImportRequest struct {
	OwnerID    string            `json:"owner_id"`
	Selections []ImportSelection `json:"selections"`
}

// ImportSelection picks one parsed item by index. Non-empty fields override the parsed values.
type ImportSelection struct {
	Index    int    `json:"index"`
	Title    string `json:"title,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Size     string `json:"size,omitempty"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// normalizeCategory returns the canonical spelling of a category, or "" if it is not one
func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	for _, c := range scanning.Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return ""
}
