package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"sharehub/internal/storage"
)

// SQLiteStore keeps payloads as blobs in a SQLite database.
type SQLiteStore struct {
	db *storage.Store
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := storage.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (*SQLiteStore) Kind() string { return KindSQLite }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Usage reports how many payload rows the database holds and their total size.
func (s *SQLiteStore) Usage(ctx context.Context) (count int, total int64, err error) {
	return s.db.CountBlobs(ctx)
}

func (s *SQLiteStore) Save(ctx context.Context, id string, meta Meta, r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	blob := storage.Blob{ID: id, Name: meta.Name, MIMEType: meta.MIMEType, Data: data, CreatedAt: meta.UploadedAt}
	if err := s.db.PutBlob(ctx, blob); err != nil {
		return nil, err
	}
	return &sqlitePayload{id: id, size: int64(len(data)), db: s.db}, nil
}

type sqlitePayload struct {
	id   string
	size int64
	db   *storage.Store
}

func (p *sqlitePayload) Open(ctx context.Context) (io.ReadCloser, error) {
	blob, err := p.db.GetBlob(ctx, p.id)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, fmt.Errorf("%s: %w", p.id, ErrPayloadMissing)
		}
		return nil, err
	}
	return bytesReadCloser{bytes.NewReader(blob.Data)}, nil
}

func (p *sqlitePayload) Size() int64 { return p.size }

func (p *sqlitePayload) Remove(ctx context.Context) error {
	err := p.db.DeleteBlob(ctx, p.id)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return fmt.Errorf("%s: %w", p.id, ErrPayloadMissing)
	}
	return err
}
