// Package formdata decodes multipart/form-data request bodies into parts.
//
// Decode buffers a whole body and is meant for small inputs and tests. The
// upload endpoint uses Reader, which hands out one part at a time so a file
// payload can be checked against a size ceiling while it is still streaming.
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// ErrMalformed is returned for bodies that cannot be decoded as multipart.
var ErrMalformed = errors.New("malformed multipart body")

// Part is one segment of a multipart body. Data is set by Decode; parts
// returned by Reader.Next carry a Body to stream from instead.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
	Body        io.Reader
}

// IsFile reports whether the part carried a filename attribute. Parts without
// one are plain form fields.
func (p *Part) IsFile() bool {
	return p.Filename != ""
}

// BoundaryFromContentType extracts the boundary parameter of a
// multipart/form-data content type.
func BoundaryFromContentType(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: content type %q is not multipart", ErrMalformed, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrMalformed)
	}
	return boundary, nil
}

// Reader walks the parts of a multipart body in order.
type Reader struct {
	mr  *multipart.Reader
	err error
}

// NewReader returns a Reader over r. An empty boundary makes every call to
// Next fail with ErrMalformed.
func NewReader(r io.Reader, boundary string) *Reader {
	if boundary == "" {
		return &Reader{err: fmt.Errorf("%w: empty boundary", ErrMalformed)}
	}
	return &Reader{mr: multipart.NewReader(r, boundary)}
}

// Next returns the next part, or io.EOF after the closing boundary. The
// previous part's Body is invalid once Next is called again.
func (r *Reader) Next() (*Part, error) {
	if r.err != nil {
		return nil, r.err
	}
	p, err := r.mr.NextPart()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrMalformed, err)
		return nil, r.err
	}
	return &Part{
		Name:        p.FormName(),
		Filename:    p.FileName(),
		ContentType: p.Header.Get("Content-Type"),
		Body:        malformedOnError{p},
	}, nil
}

// malformedOnError tags read failures inside a part as ErrMalformed while
// keeping the underlying error reachable through errors.As.
type malformedOnError struct {
	r io.Reader
}

func (m malformedOnError) Read(b []byte) (int, error) {
	n, err := m.r.Read(b)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return n, err
}

// Decode splits a complete body into its parts. A body with no parts is
// malformed.
func Decode(body []byte, boundary string) ([]Part, error) {
	r := NewReader(bytes.NewReader(body), boundary)
	var parts []Part
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, err
		}
		p.Data = data
		p.Body = bytes.NewReader(data)
		parts = append(parts, *p)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", ErrMalformed)
	}
	return parts, nil
}
