package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const cursorName = "blocks"

// SQLiteStore persists entity documents in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("sqlite store path must be configured")
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite has a single writer; one connection keeps commits off SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS entities (
            kind TEXT NOT NULL,
            id TEXT NOT NULL,
            data BLOB NOT NULL,
            PRIMARY KEY(kind, id)
        );`,
		`CREATE TABLE IF NOT EXISTS applied_events (
            event_id TEXT PRIMARY KEY
        );`,
		`CREATE TABLE IF NOT EXISTS event_cursors (
            name TEXT PRIMARY KEY,
            value INTEGER NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE kind = ? AND id = ?`, string(kind), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select entity: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context, kind Kind) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM entities WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Applied(ctx context.Context, eventID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM applied_events WHERE event_id = ?`, eventID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select applied event: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Cursor(ctx context.Context) (uint64, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM event_cursors WHERE name = ?`, cursorName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select cursor: %w", err)
	}
	return uint64(value), true, nil
}

func (s *SQLiteStore) SaveCursor(ctx context.Context, block uint64) error {
	return saveCursor(ctx, s.db, block)
}

func (s *SQLiteStore) Commit(ctx context.Context, batch Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range batch.Records {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO entities(kind, id, data) VALUES(?, ?, ?)
            ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data
        `, string(rec.Kind), rec.ID, rec.Data)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", rec.Kind, rec.ID, err)
		}
	}
	if batch.EventID != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO applied_events(event_id) VALUES(?)`, batch.EventID); err != nil {
			return fmt.Errorf("mark applied: %w", err)
		}
	}
	if batch.Cursor != nil {
		if err := saveCursor(ctx, tx, *batch.Cursor); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveCursor(ctx context.Context, db execer, block uint64) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO event_cursors(name, value) VALUES(?, ?)
        ON CONFLICT(name) DO UPDATE SET value = max(event_cursors.value, excluded.value)
    `, cursorName, int64(block))
	if err != nil {
		return fmt.Errorf("update cursor: %w", err)
	}
	return nil
}
