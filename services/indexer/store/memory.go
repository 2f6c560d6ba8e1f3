package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps entity documents in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	entities  map[Kind]map[string][]byte
	applied   map[string]struct{}
	cursor    uint64
	hasCursor bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[Kind]map[string][]byte),
		applied:  make(map[string]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entities[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(data), nil
}

// List returns every document of a kind ordered by id.
func (m *MemoryStore) List(_ context.Context, kind Kind) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.entities[kind]
	records := make([]Record, 0, len(docs))
	for id, data := range docs {
		records = append(records, Record{Kind: kind, ID: id, Data: cloneBytes(data)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *MemoryStore) Applied(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.applied[eventID]
	return ok, nil
}

func (m *MemoryStore) Cursor(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, m.hasCursor, nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance(block)
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range batch.Records {
		docs, ok := m.entities[rec.Kind]
		if !ok {
			docs = make(map[string][]byte)
			m.entities[rec.Kind] = docs
		}
		docs[rec.ID] = cloneBytes(rec.Data)
	}
	if batch.EventID != "" {
		m.applied[batch.EventID] = struct{}{}
	}
	if batch.Cursor != nil {
		m.advance(*batch.Cursor)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) advance(block uint64) {
	if !m.hasCursor || block > m.cursor {
		m.cursor = block
		m.hasCursor = true
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
