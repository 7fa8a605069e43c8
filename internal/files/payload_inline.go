package files

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// InlineStore keeps payloads base64 encoded in memory, the way a stateless
// host would embed them in a record. Decoded bytes are cached.
type InlineStore struct {
	cache *expirable.LRU[string, []byte]
}

// NewInlineStore returns an inline store. cacheSize 0 disables the decode
// cache.
func NewInlineStore(cacheSize int, ttl time.Duration) *InlineStore {
	s := &InlineStore{}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, []byte](cacheSize, nil, ttl)
	}
	return s
}

func (*InlineStore) Kind() string { return KindInline }

func (s *InlineStore) Close() error {
	if s.cache != nil {
		s.cache.Purge()
	}
	return nil
}

func (s *InlineStore) Save(_ context.Context, id string, _ Meta, r io.Reader) (Payload, error) {
	var sb strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	n, err := io.Copy(enc, r)
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return &inlinePayload{id: id, encoded: sb.String(), size: n, store: s}, nil
}

func (s *InlineStore) cached(id string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(id)
}

func (s *InlineStore) remember(id string, data []byte) {
	if s.cache != nil {
		s.cache.Add(id, data)
	}
}

func (s *InlineStore) forget(id string) {
	if s.cache != nil {
		s.cache.Remove(id)
	}
}

type inlinePayload struct {
	id      string
	encoded string
	size    int64
	store   *InlineStore
}

func (p *inlinePayload) Open(context.Context) (io.ReadCloser, error) {
	if data, ok := p.store.cached(p.id); ok {
		return bytesReadCloser{bytes.NewReader(data)}, nil
	}
	data, err := base64.StdEncoding.DecodeString(p.encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.id, ErrPayloadMissing)
	}
	p.store.remember(p.id, data)
	return bytesReadCloser{bytes.NewReader(data)}, nil
}

func (p *inlinePayload) Size() int64 { return p.size }

func (p *inlinePayload) Remove(context.Context) error {
	p.store.forget(p.id)
	return nil
}
