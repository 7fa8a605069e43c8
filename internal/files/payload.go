package files

import (
	"bytes"
	"context"
	"io"
)

// Payload is the stored bytes of one file, wherever they live.
type Payload interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Size() int64
	Remove(ctx context.Context) error
}

// PayloadStore persists payloads for one storage backend. Save must not leave
// partial data behind when it returns an error.
type PayloadStore interface {
	Kind() string
	Save(ctx context.Context, id string, meta Meta, r io.Reader) (Payload, error)
	Close() error
}

// Storage backend names.
const (
	KindMemory = "memory"
	KindDisk   = "disk"
	KindInline = "inline"
	KindSQLite = "sqlite"
)

// MemoryStore keeps payload bytes in process memory.
type MemoryStore struct{}

// NewMemoryStore returns a store that holds payloads in memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (*MemoryStore) Kind() string { return KindMemory }

func (*MemoryStore) Save(_ context.Context, _ string, _ Meta, r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return memoryPayload(data), nil
}

func (*MemoryStore) Close() error { return nil }

type memoryPayload []byte

func (p memoryPayload) Open(context.Context) (io.ReadCloser, error) {
	return bytesReadCloser{bytes.NewReader(p)}, nil
}

func (p memoryPayload) Size() int64 { return int64(len(p)) }

func (memoryPayload) Remove(context.Context) error { return nil }

// bytesReadCloser keeps io.Seeker visible so downloads can use ServeContent.
type bytesReadCloser struct {
	*bytes.Reader
}

func (bytesReadCloser) Close() error { return nil }
