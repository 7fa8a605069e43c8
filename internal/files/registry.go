// Package files is the file registry: metadata for every uploaded file plus a
// pluggable payload store holding the bytes.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sharehub/internal/ident"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	maxIDAttempts = 8
)

type entry struct {
	record  FileRecord
	payload Payload
	seq     uint64
}

// Registry maps file ids to metadata and payloads. It is safe for concurrent
// use.
type Registry struct {
	store   PayloadStore
	logger  zerolog.Logger
	maxSize int64
	now     func() time.Time
	newID   ident.Generator

	mu       sync.RWMutex
	entries  map[string]*entry
	reserved map[string]struct{}
	seq      uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxSize sets the payload ceiling in bytes. Zero means unlimited.
func WithMaxSize(n int64) Option {
	return func(r *Registry) { r.maxSize = n }
}

// WithClock replaces time.Now for upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDs replaces the identifier generator.
func WithIDs(gen ident.Generator) Option {
	return func(r *Registry) { r.newID = gen }
}

// NewRegistry builds an empty registry on top of store.
func NewRegistry(store PayloadStore, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		logger:   logger.With().Str("component", "registry").Str("storage", store.Kind()).Logger(),
		now:      time.Now,
		newID:    ident.New,
		entries:  make(map[string]*entry),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StorageKind names the payload backend in use.
func (r *Registry) StorageKind() string {
	return r.store.Kind()
}

// MaxSize returns the payload ceiling in bytes (0 = unlimited).
func (r *Registry) MaxSize() int64 {
	return r.maxSize
}

// Put stores a new file and returns its record. The payload is streamed into
// the store; crossing the ceiling aborts with ErrPayloadTooLarge and nothing
// is kept.
func (r *Registry) Put(ctx context.Context, meta Meta, src io.Reader) (FileRecord, error) {
	id, err := r.reserve()
	if err != nil {
		return FileRecord{}, err
	}
	defer r.release(id)

	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = r.now()
	}
	hasher := sha256.New()
	capped := &cappedReader{r: io.TeeReader(src, hasher), limit: r.maxSize}
	payload, err := r.store.Save(ctx, id, meta, capped)
	if err != nil {
		if capped.exceeded {
			return FileRecord{}, fmt.Errorf("%s: %w", meta.Name, ErrPayloadTooLarge)
		}
		return FileRecord{}, fmt.Errorf("store %s: %w", meta.Name, err)
	}
	if r.maxSize > 0 && payload.Size() > r.maxSize {
		r.removePayload(ctx, id, payload)
		return FileRecord{}, fmt.Errorf("%s: %w", meta.Name, ErrPayloadTooLarge)
	}

	rec := FileRecord{
		ID:         id,
		Name:       meta.Name,
		MIMEType:   meta.MIMEType,
		Size:       payload.Size(),
		SHA256:     hexSum(hasher),
		UploadedAt: meta.UploadedAt,
		Storage:    r.store.Kind(),
	}

	r.mu.Lock()
	r.seq++
	r.entries[id] = &entry{record: rec, payload: payload, seq: r.seq}
	r.mu.Unlock()

	r.logger.Debug().Str("id", id).Str("name", rec.Name).Int64("size", rec.Size).Msg("file stored")
	return rec, nil
}

func (r *Registry) reserve() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		if _, taken := r.entries[id]; taken {
			continue
		}
		if _, taken := r.reserved[id]; taken {
			continue
		}
		r.reserved[id] = struct{}{}
		return id, nil
	}
	return "", errors.New("could not allocate a unique file id")
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}

// Get returns the record for id.
func (r *Registry) Get(id string) (FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return FileRecord{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return e.record, nil
}

// Query selects a page of files.
type Query struct {
	Page     int
	PageSize int
	Search   string
}

// Page is one slice of a listing.
type Page struct {
	Files      []FileRecord
	Total      int
	Page       int
	PageSize   int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// List filters by a case-insensitive name substring, orders newest first and
// paginates by offset.
func (r *Registry) List(q Query) Page {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	matched := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if needle == "" || strings.Contains(strings.ToLower(e.record.Name), needle) {
			matched = append(matched, e)
		}
	}
	records := make([]FileRecord, 0, len(matched))
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.record.UploadedAt.Equal(b.record.UploadedAt) {
			return a.record.UploadedAt.After(b.record.UploadedAt)
		}
		return a.seq > b.seq
	})
	for _, e := range matched {
		records = append(records, e.record)
	}
	r.mu.RUnlock()

	total := len(records)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return Page{
		Files:      records[start:end],
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
		HasNext:    end < total,
		HasPrev:    start > 0,
	}
}

// Open returns the record and a reader over its payload. The caller closes
// the reader. A record whose bytes cannot be resolved yields ErrPayloadMissing.
func (r *Registry) Open(ctx context.Context, id string) (FileRecord, io.ReadCloser, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	var rec FileRecord
	var payload Payload
	if ok {
		rec, payload = e.record, e.payload
	}
	r.mu.RUnlock()
	if !ok {
		return FileRecord{}, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	rc, err := payload.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPayloadMissing) {
			return rec, nil, err
		}
		return rec, nil, fmt.Errorf("open payload %s: %w", id, err)
	}
	return rec, rc, nil
}

// IncrementDownloads bumps the download counter. Unknown ids are ignored.
func (r *Registry) IncrementDownloads(id string) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.record.Downloads++
	}
	r.mu.Unlock()
}

// Delete drops the record and then tries to remove its payload. Payload
// removal failures are logged only.
func (r *Registry) Delete(ctx context.Context, id string) (FileRecord, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return FileRecord{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	r.removePayload(ctx, id, e.payload)
	return e.record, nil
}

func (r *Registry) removePayload(ctx context.Context, id string, p Payload) {
	if err := p.Remove(ctx); err != nil {
		r.logger.Warn().Err(err).Str("id", id).Msg("payload removal failed")
	}
}

// Len returns the number of stored files.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close releases the payload store.
func (r *Registry) Close() error {
	return r.store.Close()
}

// cappedReader fails with ErrPayloadTooLarge once more than limit bytes have
// been read. A zero limit disables the check.
type cappedReader struct {
	r        io.Reader
	limit    int64
	n        int64
	exceeded bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, ErrPayloadTooLarge
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.exceeded = true
		return n, ErrPayloadTooLarge
	}
	return n, err
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
