package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"siege-coordinator/models"
	"siege-coordinator/utils"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS siege_documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps each collection as one JSON row in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database at path with WAL journaling
// and a 5-second busy timeout.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM siege_documents WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return []byte(body), nil
}

func (s *SQLiteStore) save(ctx context.Context, name string, v any) error {
	data, err := encode(FormatJSON, v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO siege_documents (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) LoadLive(ctx context.Context) (map[string]models.LiveEvent, error) {
	data, err := s.load(ctx, liveDoc)
	if err != nil {
		return nil, err
	}
	return decodeLive(FormatJSON, data)
}

func (s *SQLiteStore) SaveLive(ctx context.Context, events map[string]models.LiveEvent) error {
	return s.save(ctx, liveDoc, events)
}

func (s *SQLiteStore) LoadArchive(ctx context.Context) (map[string]models.ArchiveRecord, error) {
	data, err := s.load(ctx, archiveDoc)
	if err != nil {
		return nil, err
	}
	return decodeArchive(FormatJSON, data)
}

func (s *SQLiteStore) SaveArchive(ctx context.Context, records map[string]models.ArchiveRecord) error {
	return s.save(ctx, archiveDoc, records)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
