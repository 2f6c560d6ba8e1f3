package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	entityPrefix  = []byte("e/")
	appliedPrefix = []byte("a/")
	cursorKey     = []byte("c/" + cursorName)
)

// LevelDBStore persists entity documents in a LevelDB database.
type LevelDBStore struct {
	// mu serialises cursor read-modify-write against Commit.
	mu sync.Mutex
	db *leveldb.DB
}

// NewLevelDBStore opens (creating if needed) the database directory at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("leveldb store path must be configured")
	}
	db, err := leveldb.OpenFile(trimmed, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewMemLevelDBStore opens a LevelDB store backed by memory storage.
func NewMemLevelDBStore() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func entityKey(kind Kind, id string) []byte {
	return []byte(string(entityPrefix) + string(kind) + "/" + id)
}

func (l *LevelDBStore) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	data, err := l.db.Get(entityKey(kind, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return data, nil
}

// List returns every document of a kind in key (id) order.
func (l *LevelDBStore) List(_ context.Context, kind Kind) ([]Record, error) {
	prefix := []byte(string(entityPrefix) + string(kind) + "/")
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		records = append(records, Record{
			Kind: kind,
			ID:   string(iter.Key()[len(prefix):]),
			Data: cloneBytes(iter.Value()),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return records, nil
}

func (l *LevelDBStore) Applied(_ context.Context, eventID string) (bool, error) {
	ok, err := l.db.Has(append(cloneBytes(appliedPrefix), eventID...), nil)
	if err != nil {
		return false, fmt.Errorf("lookup applied event: %w", err)
	}
	return ok, nil
}

func (l *LevelDBStore) Cursor(_ context.Context) (uint64, bool, error) {
	return l.readCursor()
}

func (l *LevelDBStore) readCursor() (uint64, bool, error) {
	raw, err := l.db.Get(cursorKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("corrupt cursor value (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (l *LevelDBStore) SaveCursor(ctx context.Context, block uint64) error {
	return l.Commit(ctx, Batch{Cursor: &block})
}

func (l *LevelDBStore) Commit(_ context.Context, b Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, rec := range b.Records {
		batch.Put(entityKey(rec.Kind, rec.ID), rec.Data)
	}
	if b.EventID != "" {
		batch.Put(append(cloneBytes(appliedPrefix), b.EventID...), []byte{1})
	}

	if b.Cursor != nil {
		current, ok, err := l.readCursor()
		if err != nil {
			return err
		}
		if !ok || *b.Cursor > current {
			var raw [8]byte
			binary.BigEndian.PutUint64(raw[:], *b.Cursor)
			batch.Put(cursorKey, raw[:])
		}
	}

	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}
