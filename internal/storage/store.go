// Package storage keeps uploaded payloads as blobs in a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes the blob operations used by the
// sqlite payload strategy.
type Store struct {
	db *sql.DB
}

// Blob is one row of the payloads table.
type Blob struct {
	ID        string
	Name      string
	MIMEType  string
	Size      int64
	Data      []byte
	CreatedAt time.Time
}

// ErrBlobNotFound is returned when no row exists for an id.
var ErrBlobNotFound = errors.New("blob not found")

// ErrBlobExists is returned when inserting an id that is already stored.
var ErrBlobExists = errors.New("blob already exists")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "sharehub.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS payloads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			size INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS payloads_created_at ON payloads(created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutBlob inserts a payload row. ErrBlobExists is returned on conflicts.
func (s *Store) PutBlob(ctx context.Context, b Blob) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payloads(id, name, mime_type, size, data, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.MIMEType, int64(len(b.Data)), b.Data, b.CreatedAt.UTC())
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrBlobExists, b.ID)
		}
		return err
	}
	return nil
}

// GetBlob fetches a payload row including its bytes.
func (s *Store) GetBlob(ctx context.Context, id string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, mime_type, size, data, created_at FROM payloads WHERE id = ?`, id)
	var b Blob
	if err := row.Scan(&b.ID, &b.Name, &b.MIMEType, &b.Size, &b.Data, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, err
	}
	return &b, nil
}

// DeleteBlob removes a payload row. Deleting a missing id reports ErrBlobNotFound.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payloads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	return nil
}

// CountBlobs returns the number of stored payloads and their total size.
func (s *Store) CountBlobs(ctx context.Context) (count int, total int64, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(size), 0) FROM payloads`)
	err = row.Scan(&count, &total)
	return count, total, err
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
