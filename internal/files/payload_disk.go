package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	imagesDir = "images"
	filesDir  = "files"

	tempPrefix = ".upload-"
	maxExtLen  = 16
)

// DiskStore writes payloads under dir, images and everything else in
// separate subdirectories.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory layout under dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("disk store: upload dir required")
	}
	for _, sub := range []string{imagesDir, filesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("disk store: %w", err)
		}
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the root upload directory.
func (s *DiskStore) Dir() string { return s.dir }

func (*DiskStore) Kind() string { return KindDisk }

func (*DiskStore) Close() error { return nil }

// Save streams r into a temp file and renames it into place.
func (s *DiskStore) Save(_ context.Context, id string, meta Meta, r io.Reader) (Payload, error) {
	sub := filesDir
	if strings.HasPrefix(meta.MIMEType, "image/") {
		sub = imagesDir
	}
	dir := filepath.Join(s.dir, sub)
	final := filepath.Join(dir, id+safeExt(meta.Name))

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return &diskPayload{path: final, size: written}, nil
}

type diskPayload struct {
	path string
	size int64
}

func (p *diskPayload) Open(context.Context) (io.ReadCloser, error) {
	f, err := os.Open(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p.path, ErrPayloadMissing)
		}
		return nil, err
	}
	return f, nil
}

func (p *diskPayload) Size() int64 { return p.size }

func (p *diskPayload) Remove(context.Context) error {
	err := os.Remove(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p.path, ErrPayloadMissing)
	}
	return err
}

// safeExt keeps a short alphanumeric extension from an untrusted file name.
func safeExt(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// idFromPath recovers the file id from a payload path written by Save.
func idFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, tempPrefix) {
		return "", false
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), true
}
