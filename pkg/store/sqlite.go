package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists snapshots in a single sqlite table, one row per room.
type SQLiteStore struct {
	db *sql.DB
}

var _ SnapshotStore = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite snapshot store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			room_id TEXT NOT NULL PRIMARY KEY,
			saved_at_ms INTEGER NOT NULL,
			data BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS snapshots_by_time ON snapshots(saved_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite snapshot store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, false, errors.New("sqlite snapshot store: empty room id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE room_id = ?`, roomID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "sqlite snapshot store: load")
	}
	return data, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, roomID string, data []byte) error {
	if strings.TrimSpace(roomID) == "" {
		return errors.New("sqlite snapshot store: empty room id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots(room_id, saved_at_ms, data) VALUES(?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET saved_at_ms = excluded.saved_at_ms, data = excluded.data
	`, roomID, time.Now().UnixMilli(), data)
	if err != nil {
		return errors.Wrap(err, "sqlite snapshot store: save")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SQLiteDSNForFile derives a WAL-mode DSN from a file path.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite snapshot store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
