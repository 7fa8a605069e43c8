package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sharehub/internal/ident"
)

// tickingClock returns a clock that advances one minute per call.
func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(tickingClock()), WithIDs(ident.Sequence("f"))}, opts...)
	reg := NewRegistry(NewMemoryStore(), zerolog.Nop(), opts...)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func put(t *testing.T, reg *Registry, name, content string) FileRecord {
	t.Helper()
	rec, err := reg.Put(context.Background(), Meta{Name: name, MIMEType: "text/plain"}, strings.NewReader(content))
	if err != nil {
		t.Fatalf("put %s: %v", name, err)
	}
	return rec
}

func TestPutThenGet(t *testing.T) {
	reg := newTestRegistry(t)
	rec := put(t, reg, "hello.txt", "hello world")

	got, err := reg.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Size != int64(len("hello world")) {
		t.Fatalf("size = %d", got.Size)
	}
	if got.Downloads != 0 {
		t.Fatalf("downloads = %d", got.Downloads)
	}
	if got.Storage != KindMemory || got.Name != "hello.txt" || got.SHA256 == "" {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadCount(t *testing.T) {
	reg := newTestRegistry(t)
	rec := put(t, reg, "a.txt", "a")

	reg.IncrementDownloads(rec.ID)
	reg.List(Query{})
	reg.Get(rec.ID)
	reg.IncrementDownloads(rec.ID)
	reg.IncrementDownloads("missing")

	got, _ := reg.Get(rec.ID)
	if got.Downloads != 2 {
		t.Fatalf("downloads = %d, want 2", got.Downloads)
	}
}

func TestListPagination(t *testing.T) {
	reg := newTestRegistry(t)
	put(t, reg, "A", "a")
	put(t, reg, "B", "b")
	put(t, reg, "C", "c")

	cases := []struct {
		page    int
		want    string
		hasNext bool
		hasPrev bool
	}{
		{1, "C", true, false},
		{2, "B", true, true},
		{3, "A", false, true},
	}
	for _, tc := range cases {
		p := reg.List(Query{Page: tc.page, PageSize: 1})
		if len(p.Files) != 1 || p.Files[0].Name != tc.want {
			t.Fatalf("page %d: got %+v", tc.page, p.Files)
		}
		if p.HasNext != tc.hasNext || p.HasPrev != tc.hasPrev {
			t.Fatalf("page %d: hasNext=%v hasPrev=%v", tc.page, p.HasNext, p.HasPrev)
		}
		if p.Total != 3 || p.TotalPages != 3 {
			t.Fatalf("page %d: total=%d pages=%d", tc.page, p.Total, p.TotalPages)
		}
	}

	empty := reg.List(Query{Page: 9, PageSize: 1})
	if len(empty.Files) != 0 || empty.HasNext || !empty.HasPrev {
		t.Fatalf("out of range page: %+v", empty)
	}
}

func TestListDefaultsAndTies(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := newTestRegistry(t, WithClock(func() time.Time { return fixed }))
	put(t, reg, "first", "1")
	put(t, reg, "second", "2")

	p := reg.List(Query{Page: -1, PageSize: 1000})
	if p.Page != 1 || p.PageSize != MaxPageSize {
		t.Fatalf("defaults not applied: page=%d size=%d", p.Page, p.PageSize)
	}
	if p.Files[0].Name != "second" || p.Files[1].Name != "first" {
		t.Fatalf("ties should list newest insert first: %v, %v", p.Files[0].Name, p.Files[1].Name)
	}
	if reg.List(Query{}).PageSize != DefaultPageSize {
		t.Fatalf("default page size not applied")
	}
}

func TestListSearch(t *testing.T) {
	reg := newTestRegistry(t)
	put(t, reg, "Report-XYZ.pdf", "1")
	put(t, reg, "notes.txt", "2")
	put(t, reg, "xyz.png", "3")

	p := reg.List(Query{Search: "xyz"})
	if p.Total != 2 {
		t.Fatalf("expected 2 matches, got %d", p.Total)
	}
	for _, f := range p.Files {
		if !strings.Contains(strings.ToLower(f.Name), "xyz") {
			t.Fatalf("unexpected match %q", f.Name)
		}
	}
	if all := reg.List(Query{Search: ""}); all.Total != 3 {
		t.Fatalf("empty search should return all, got %d", all.Total)
	}
}

func TestPutTooLarge(t *testing.T) {
	reg := newTestRegistry(t, WithMaxSize(4))
	_, err := reg.Put(context.Background(), Meta{Name: "big.bin"}, strings.NewReader("12345"))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if reg.Len() != 0 || reg.List(Query{}).Total != 0 {
		t.Fatalf("rejected file must not be listed")
	}
	if _, err := reg.Put(context.Background(), Meta{Name: "ok.bin"}, strings.NewReader("1234")); err != nil {
		t.Fatalf("file at the ceiling should be accepted: %v", err)
	}
}

func TestPutNeverReusesID(t *testing.T) {
	reg := newTestRegistry(t, WithIDs(func() string { return "same" }))
	put(t, reg, "one", "1")
	if _, err := reg.Put(context.Background(), Meta{Name: "two"}, strings.NewReader("2")); err == nil {
		t.Fatalf("expected id allocation failure")
	}
	got, _ := reg.Get("same")
	if got.Name != "one" {
		t.Fatalf("existing record was overwritten: %+v", got)
	}
}

func TestOpenAndDelete(t *testing.T) {
	reg := newTestRegistry(t)
	rec := put(t, reg, "a.txt", "payload")

	_, rc, err := reg.Open(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, []byte("payload")) {
		t.Fatalf("payload = %q", data)
	}
	if _, ok := rc.(io.Seeker); !ok {
		t.Fatalf("memory payload should be seekable")
	}

	if _, err := reg.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := reg.Open(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := reg.Delete(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

type failingRemoveStore struct{ MemoryStore }

func (s *failingRemoveStore) Save(ctx context.Context, id string, meta Meta, r io.Reader) (Payload, error) {
	p, err := s.MemoryStore.Save(ctx, id, meta, r)
	if err != nil {
		return nil, err
	}
	return failingRemovePayload{p}, nil
}

type failingRemovePayload struct{ Payload }

func (failingRemovePayload) Remove(context.Context) error { return errors.New("disk on fire") }

func TestDeleteSwallowsPayloadErrors(t *testing.T) {
	reg := NewRegistry(&failingRemoveStore{}, zerolog.Nop())
	rec, err := reg.Put(context.Background(), Meta{Name: "a"}, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := reg.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete should succeed despite payload error: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("metadata should be gone")
	}
}

func TestConcurrentPutAndList(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Put(context.Background(), Meta{Name: "f"}, strings.NewReader("x"))
		}()
		go func() {
			defer wg.Done()
			reg.List(Query{})
		}()
	}
	wg.Wait()
	if reg.Len() != 20 {
		t.Fatalf("expected 20 files, got %d", reg.Len())
	}
}

func TestSeedDemo(t *testing.T) {
	reg := newTestRegistry(t)
	seeded, err := SeedDemo(context.Background(), reg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seeded) != 4 {
		t.Fatalf("expected 4 demo files, got %d", len(seeded))
	}
	p := reg.List(Query{})
	if p.Files[0].Name != "welcome-guide.pdf" || p.Files[3].Name != "data-sheet.xlsx" {
		t.Fatalf("demo files should be ordered by backdated upload time: %v", p.Files)
	}
}

func TestView(t *testing.T) {
	reg := newTestRegistry(t)
	rec, _ := reg.Put(context.Background(), Meta{Name: "pic.png", MIMEType: "image/png"}, bytes.NewReader(make([]byte, 1536)))
	v := rec.View()
	if v.OriginalName != "pic.png" || v.FormattedSize != "1.5 KB" || v.Icon != "fas fa-image" || v.Storage != KindMemory {
		t.Fatalf("unexpected view %+v", v)
	}
}
