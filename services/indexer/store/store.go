package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind names a collection of entity documents.
type Kind string

// ErrNotFound is returned when no document exists for a kind and id.
var ErrNotFound = errors.New("entity not found")

// Record is a single serialized entity document.
type Record struct {
	Kind Kind
	ID   string
	Data []byte
}

// Batch is a set of writes applied atomically: either every record, the
// applied marker and the cursor are stored, or none are.
type Batch struct {
	Records []Record
	// EventID marks the event as applied. Empty means no marker is written.
	EventID string
	// Cursor, when set, is the last fully indexed block. The stored cursor
	// only ever moves forward.
	Cursor *uint64
}

// Store is a key/value document store addressed by (kind, id).
type Store interface {
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)
	List(ctx context.Context, kind Kind) ([]Record, error)
	Applied(ctx context.Context, eventID string) (bool, error)
	Cursor(ctx context.Context) (uint64, bool, error)
	SaveCursor(ctx context.Context, block uint64) error
	Commit(ctx context.Context, batch Batch) error
	Close() error
}

// Supported backend drivers.
const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
)

// Open creates a store for the named driver. Path is ignored by the memory
// driver.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverLevelDB:
		return NewLevelDBStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
