package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "indexer.db"))
			require.NoError(t, err)
			return s
		},
		"leveldb": func(t *testing.T) Store {
			s, err := NewLevelDBStore(filepath.Join(t.TempDir(), "leveldb"))
			require.NoError(t, err)
			return s
		},
		"leveldb-mem": func(t *testing.T) Store {
			s, err := NewMemLevelDBStore()
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			t.Run("missing entity", func(t *testing.T) {
				_, err := s.Get(ctx, "trove", "0xabc")
				assert.ErrorIs(t, err, ErrNotFound)

				_, ok, err := s.Cursor(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("commit without cursor", func(t *testing.T) {
				err := s.Commit(ctx, Batch{
					Records: []Record{{Kind: "stake", ID: "0x01", Data: []byte(`{"id":"0x01"}`)}},
					EventID: "0x00-0",
				})
				require.NoError(t, err)

				applied, err := s.Applied(ctx, "0x00-0")
				require.NoError(t, err)
				assert.True(t, applied)

				_, ok, err := s.Cursor(ctx)
				require.NoError(t, err)
				assert.False(t, ok, "records alone do not move the cursor")
			})

			t.Run("commit and read back", func(t *testing.T) {
				err := s.Commit(ctx, Batch{
					Records: []Record{
						{Kind: "trove", ID: "0xabc", Data: []byte(`{"id":"0xabc"}`)},
						{Kind: "trove", ID: "0xdef", Data: []byte(`{"id":"0xdef"}`)},
						{Kind: "global", ID: "only", Data: []byte(`{"id":"only"}`)},
					},
					EventID: "0x01-0",
					Cursor:  block(10),
				})
				require.NoError(t, err)

				data, err := s.Get(ctx, "trove", "0xabc")
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"0xabc"}`, string(data))

				records, err := s.List(ctx, "trove")
				require.NoError(t, err)
				require.Len(t, records, 2)
				assert.Equal(t, "0xabc", records[0].ID)
				assert.Equal(t, "0xdef", records[1].ID)

				applied, err := s.Applied(ctx, "0x01-0")
				require.NoError(t, err)
				assert.True(t, applied)

				applied, err = s.Applied(ctx, "0x01-1")
				require.NoError(t, err)
				assert.False(t, applied)

				cursor, ok, err := s.Cursor(ctx)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, uint64(10), cursor)
			})

			t.Run("overwrite", func(t *testing.T) {
				err := s.Commit(ctx, Batch{
					Records: []Record{{Kind: "trove", ID: "0xabc", Data: []byte(`{"id":"0xabc","debt":"1"}`)}},
					Cursor:  block(11),
				})
				require.NoError(t, err)

				data, err := s.Get(ctx, "trove", "0xabc")
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"0xabc","debt":"1"}`, string(data))
			})

			t.Run("cursor never moves backwards", func(t *testing.T) {
				require.NoError(t, s.SaveCursor(ctx, 5))
				cursor, _, err := s.Cursor(ctx)
				require.NoError(t, err)
				assert.Equal(t, uint64(11), cursor)

				require.NoError(t, s.SaveCursor(ctx, 20))
				cursor, _, err = s.Cursor(ctx)
				require.NoError(t, err)
				assert.Equal(t, uint64(20), cursor)
			})

			t.Run("kinds are isolated", func(t *testing.T) {
				records, err := s.List(ctx, "redemption")
				require.NoError(t, err)
				assert.Empty(t, records)
			})
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "indexer.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, Batch{
		Records: []Record{{Kind: "global", ID: "only", Data: []byte(`{}`)}},
		EventID: "0x02-3",
		Cursor:  block(42),
	}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	applied, err := s.Applied(ctx, "0x02-3")
	require.NoError(t, err)
	assert.True(t, applied)

	cursor, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), cursor)
}

func TestOpen(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("sqlite", "")
	assert.Error(t, err)

	_, err = Open("postgres", "x")
	assert.Error(t, err)
}

func block(n uint64) *uint64 {
	return &n
}
