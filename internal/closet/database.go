package closet

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	scanBucketName = "scans"
	itemBucketName = "items"
)

// DB defines the interface for database operations
type DB interface {
	// SaveScan saves a scan to the database
	SaveScan(scan *Scan) error

	// GetScan retrieves a scan by ID
	GetScan(id string) (*Scan, error)

	// ListScans returns all scans
	ListScans() ([]*Scan, error)

	// DeleteScan removes a scan from the database
	DeleteScan(id string) error

	// SaveItems saves closet items in a single transaction
	SaveItems(items ...*Item) error

	// GetItem retrieves a closet item by ID
	GetItem(id string) (*Item, error)

	// ListItems returns all closet items, including inactive ones
	ListItems() ([]*Item, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{scanBucketName, itemBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// put marshals v as JSON under key in the named bucket
func put(tx *bbolt.Tx, bucket string, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

// get unmarshals the JSON stored under key, returning ErrNotFound if there is none
func (b *BoltDB) get(bucket string, key string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// list unmarshals every value of a bucket in key order
func list[T any](b *BoltDB, bucket string) ([]*T, error) {
	out := make([]*T, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var record T
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling %s %s: %w", bucket, k, err)
			}
			out = append(out, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveScan saves a scan to the database
func (b *BoltDB) SaveScan(scan *Scan) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, scanBucketName, scan.ID, scan)
	})
}

// GetScan retrieves a scan by ID
func (b *BoltDB) GetScan(id string) (*Scan, error) {
	var scan Scan
	if err := b.get(scanBucketName, id, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScans returns all scans
func (b *BoltDB) ListScans() ([]*Scan, error) {
	return list[Scan](b, scanBucketName)
}

// DeleteScan removes a scan from the database
func (b *BoltDB) DeleteScan(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scanBucketName)).Delete([]byte(id))
	})
}

// SaveItems saves closet items. Either all of them are written or none are.
func (b *BoltDB) SaveItems(items ...*Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, item := range items {
			if err := put(tx, itemBucketName, item.ID, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItem retrieves a closet item by ID
func (b *BoltDB) GetItem(id string) (*Item, error) {
	var item Item
	if err := b.get(itemBucketName, id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns all closet items
func (b *BoltDB) ListItems() ([]*Item, error) {
	return list[Item](b, itemBucketName)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
