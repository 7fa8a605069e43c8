package formdata

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"testing"
)

func TestDecodeSingleFilePart(t *testing.T) {
	body := "--X\r\n" +
		"Content-Disposition: form-data; name=\"files\"; filename=\"a.txt\"\r\n" +
		"\r\n" +
		"hi\r\n" +
		"--X--\r\n"

	parts, err := Decode([]byte(body), "X")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	p := parts[0]
	if p.Name != "files" || p.Filename != "a.txt" || string(p.Data) != "hi" {
		t.Fatalf("unexpected part: %+v", p)
	}
	if !p.IsFile() {
		t.Fatalf("expected file part")
	}
}

func TestDecodeFieldsAndFiles(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("note", "hello"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := w.CreateFormFile("files", "bin.dat")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	payload := []byte{0, 1, 2, '\r', '\n', '-', '-', 3}
	fw.Write(payload)
	w.Close()

	parts, err := Decode(buf.Bytes(), w.Boundary())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].IsFile() || parts[0].Name != "note" || string(parts[0].Data) != "hello" {
		t.Fatalf("unexpected field part: %+v", parts[0])
	}
	if !parts[1].IsFile() || !bytes.Equal(parts[1].Data, payload) {
		t.Fatalf("unexpected file part: %+v", parts[1])
	}
	if parts[1].ContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", parts[1].ContentType)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]struct {
		body     string
		boundary string
	}{
		"empty boundary": {"--X\r\n\r\nhi\r\n--X--\r\n", ""},
		"no boundary":    {"just some text", "X"},
		"only closing":   {"--X--\r\n", "X"},
		"truncated": {
			"--X\r\nContent-Disposition: form-data; name=\"files\"; filename=\"a.txt\"\r\n\r\nhi",
			"X",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body), tc.boundary)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestReaderStreamsParts(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range []string{"one.txt", "two.txt"} {
		fw, _ := w.CreateFormFile("files", name)
		io.WriteString(fw, strings.Repeat(name, 3))
	}
	w.Close()

	r := NewReader(&buf, w.Boundary())
	var names []string
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != strings.Repeat(p.Filename, 3) {
			t.Fatalf("payload mismatch for %s: %q", p.Filename, data)
		}
		names = append(names, p.Filename)
	}
	if len(names) != 2 || names[0] != "one.txt" || names[1] != "two.txt" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestBoundaryFromContentType(t *testing.T) {
	b, err := BoundaryFromContentType("multipart/form-data; boundary=abc123")
	if err != nil || b != "abc123" {
		t.Fatalf("got %q, %v", b, err)
	}
	for _, ct := range []string{"", "application/json", "multipart/form-data"} {
		if _, err := BoundaryFromContentType(ct); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", ct, err)
		}
	}
}
