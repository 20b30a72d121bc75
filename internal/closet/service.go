package closet

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/closet-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for scans and items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles scans and closet items
type Service struct {
	db          DB
	ocr         scanning.OCR
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, ocr scanning.OCR, storage Storage) *Service {
	return NewServiceWithDeps(db, ocr, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, ocr scanning.OCR, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		ocr:         ocr,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated filenames
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ParseText parses pasted receipt text and saves the result as a scan.
// If nothing is recognized the saved scan is returned along with ErrNothingRecognized.
func (s *Service) ParseText(text string) (*Scan, error) {
	scan := &Scan{
		ID:        s.idGenerator.Generate(),
		Text:      text,
		Items:     scanning.ParseReceiptText(text),
		CreatedAt: s.timeSource.Now(),
	}

	if err := s.db.SaveScan(scan); err != nil {
		return nil, fmt.Errorf("saving scan: %w", err)
	}

	if len(scan.Items) == 0 {
		return scan, ErrNothingRecognized
	}
	return scan, nil
}

// ScanReceipt stores a receipt image, reads it with OCR and parses the text.
// An OCR failure is returned as a *scanning.OCRError and nothing is kept. A receipt
// that was read but has no clothing on it is saved and returned with ErrNothingRecognized.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Scan, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.ocr.Recognize(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to read receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("reading receipt: %w", err)
	}

	scan := &Scan{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Text:        text,
		Items:       scanning.ParseReceiptText(text),
		CreatedAt:   now,
	}

	if err := s.db.SaveScan(scan); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving scan: %w", err)
	}

	slog.Info("Scanned receipt", "scan_id", scan.ID, "items", len(scan.Items), "text_length", len(text))

	if len(scan.Items) == 0 {
		return scan, ErrNothingRecognized
	}
	return scan, nil
}

// GetScan retrieves a scan by ID
func (s *Service) GetScan(id string) (*Scan, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return scan, nil
}

// ListScans returns all scans, newest first
func (s *Service) ListScans() ([]*Scan, error) {
	scans, err := s.db.ListScans()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	slices.SortStableFunc(scans, func(a, b *Scan) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return scans, nil
}

// GetScanFile retrieves the receipt image of a scan
func (s *Service) GetScanFile(id string) ([]byte, string, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan: %w", err)
	}
	if scan.Filename == "" {
		return nil, "", fmt.Errorf("scan %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(scan.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan file: %w", err)
	}

	return data, scan.ContentType, nil
}

// DeleteScan removes a scan and its file. Items imported from it are kept.
func (s *Service) DeleteScan(id string) error {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return fmt.Errorf("getting scan for deletion: %w", err)
	}

	if scan.Filename != "" {
		if err := s.storage.Delete(scan.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", scan.Filename, "error", err)
		}
	}

	if err := s.db.DeleteScan(id); err != nil {
		return fmt.Errorf("deleting scan from database: %w", err)
	}
	return nil
}

// ImportItems adds the selected parsed items of a scan to a closet.
// Every selection is validated before anything is saved.
func (s *Service) ImportItems(scanID string, req ImportRequest) ([]*Item, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidItem)
	}
	if len(req.Selections) == 0 {
		return nil, fmt.Errorf("%w: at least one item must be selected", ErrInvalidItem)
	}

	scan, err := s.db.GetScan(scanID)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}

	now := s.timeSource.Now()
	items := make([]*Item, 0, len(req.Selections))
	for _, sel := range req.Selections {
		if sel.Index < 0 || sel.Index >= len(scan.Items) {
			return nil, fmt.Errorf("%w: scan %s has no item %d", ErrInvalidItem, scanID, sel.Index)
		}
		parsed := scan.Items[sel.Index]

		category := normalizeCategory(cmp.Or(sel.Category, parsed.Category))
		if category == "" {
			return nil, fmt.Errorf("%w: item %d needs a category, one of %s",
				ErrInvalidItem, sel.Index, strings.Join(scanning.Categories, ", "))
		}

		items = append(items, &Item{
			ID:            s.idGenerator.Generate(),
			OwnerID:       req.OwnerID,
			Title:         cmp.Or(sel.Title, parsed.Name),
			Brand:         cmp.Or(sel.Brand, parsed.Brand),
			Size:          cmp.Or(sel.Size, parsed.Size),
			Category:      category,
			Notes:         sel.Notes,
			Images:        []string{},
			PurchasePrice: parsePrice(parsed.Price),
			ScanID:        scan.ID,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := s.db.SaveItems(items...); err != nil {
		return nil, fmt.Errorf("saving imported items: %w", err)
	}

	slog.Info("Imported items", "scan_id", scanID, "owner_id", req.OwnerID, "count", len(items))
	return items, nil
}

// parsePrice converts a parsed price to a decimal, or nil if there is none
func parsePrice(price string) *decimal.Decimal {
	if price == "" {
		return nil
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		slog.Warn("Ignoring unparsable price", "price", price, "error", err)
		return nil
	}
	return &d
}

// AddItem validates and saves a new closet item
func (s *Service) AddItem(item *Item) (*Item, error) {
	if strings.TrimSpace(item.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidItem)
	}
	category := normalizeCategory(item.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: category %q is not one of %s",
			ErrInvalidItem, item.Category, strings.Join(scanning.Categories, ", "))
	}

	now := s.timeSource.Now()
	item.ID = s.idGenerator.Generate()
	item.Category = category
	item.IsActive = true
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Images == nil {
		item.Images = []string{}
	}

	if err := s.db.SaveItems(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// GetItem retrieves a closet item by ID, including removed items
func (s *Service) GetItem(id string) (*Item, error) {
	item, err := s.db.GetItem(id)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns the active items of an owner, oldest first. An empty owner lists every closet.
func (s *Service) ListItems(ownerID string) ([]*Item, error) {
	all, err := s.db.ListItems()
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	items := make([]*Item, 0, len(all))
	for _, item := range all {
		if !item.IsActive {
			continue
		}
		if ownerID != "" && item.OwnerID != ownerID {
			continue
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b *Item) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return items, nil
}

// UpdateItem applies a partial update to an item
func (s *Service) UpdateItem(id string, update ItemUpdate) (*Item, error) {
	item, err := s.db.GetItem(id)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	if update.Category != nil {
		category := normalizeCategory(*update.Category)
		if category == "" {
			return nil, fmt.Errorf("%w: category %q is not one of %s",
				ErrInvalidItem, *update.Category, strings.Join(scanning.Categories, ", "))
		}
		item.Category = category
	}
	if update.Title != nil {
		item.Title = *update.Title
	}
	if update.Brand != nil {
		item.Brand = *update.Brand
	}
	if update.Size != nil {
		item.Size = *update.Size
	}
	if update.Notes != nil {
		item.Notes = *update.Notes
	}
	if update.Images != nil {
		item.Images = update.Images
	}
	if update.PurchasePrice != nil {
		item.PurchasePrice = update.PurchasePrice
	}
	item.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveItems(item); err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	return item, nil
}

// DeleteItem removes an item from its closet. The record is kept but no longer listed.
func (s *Service) DeleteItem(id string) error {
	item, err := s.db.GetItem(id)
	if err != nil {
		return fmt.Errorf("getting item for deletion: %w", err)
	}

	item.IsActive = false
	item.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveItems(item); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// IsOCRFailure reports whether err came from the OCR backend rather than the parser or storage
func IsOCRFailure(err error) bool {
	var ocrErr *scanning.OCRError
	return errors.As(err, &ocrErr)
}
