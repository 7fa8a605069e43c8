package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"sharehub/internal/display"
	"sharehub/internal/files"
	"sharehub/internal/formdata"
)

const bodyOverhead = 1 << 20

// rejection explains why one file of a batch was not stored.
type rejection struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Code     string `json:"code"`
}

type uploadResponse struct {
	Success  bool         `json:"success"`
	Files    []files.View `json:"files"`
	Rejected []rejection  `json:"rejected,omitempty"`
	Message  string       `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`
	Code     string       `json:"code,omitempty"`
}

// HandleFileUpload streams a multipart body part by part into the registry.
// Each file is accepted or rejected on its own; a body that breaks mid-way
// undoes the files already stored from it.
func (s *Server) HandleFileUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.bodyLimit(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	boundary, err := formdata.BoundaryFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.writeUploadFailure(w, err)
		return
	}

	ctx := r.Context()
	reader := formdata.NewReader(r.Body, boundary)
	var (
		accepted   []files.FileRecord
		rejected   []rejection
		fileParts  int
		fieldFiles int
	)
	reject := func(name string, code string, err error) {
		rejected = append(rejected, rejection{Filename: name, Error: err.Error(), Code: code})
		s.metrics.IncRejection(code)
		s.logger.Warn().Str("file", name).Str("code", code).Msg("upload rejected")
	}

	for {
		part, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.rollback(ctx, accepted)
			s.writeUploadFailure(w, err)
			return
		}
		if !part.IsFile() {
			continue
		}
		fileParts++
		name := cleanFilename(part.Filename)
		if part.Name != s.opts.FieldName {
			reject(name, CodeUnexpectedField, fmt.Errorf("unexpected field %q", part.Name))
			continue
		}
		fieldFiles++
		if fieldFiles > s.opts.MaxFiles {
			reject(name, CodeTooManyFiles, fmt.Errorf("at most %d files per upload", s.opts.MaxFiles))
			continue
		}
		if s.isBlocked(name) {
			reject(name, CodeBlockedType, files.ErrBlockedType)
			continue
		}

		meta := files.Meta{Name: name, MIMEType: display.DetectMIME(name, part.ContentType)}
		rec, err := s.registry.Put(ctx, meta, part.Body)
		if err != nil {
			if errors.Is(err, files.ErrPayloadTooLarge) {
				reject(name, CodePayloadTooLarge, fmt.Errorf("file exceeds %s", display.FormatSize(s.registry.MaxSize())))
				continue
			}
			s.rollback(ctx, accepted)
			s.writeUploadFailure(w, err)
			return
		}
		accepted = append(accepted, rec)
		s.metrics.IncUpload(rec.Size)
		s.logger.Info().Str("id", rec.ID).Str("file", rec.Name).Int64("size", rec.Size).Msg("upload accepted")
	}

	if fileParts == 0 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Success: false, Files: []files.View{}, Error: "No files uploaded", Code: CodeNoFiles})
		return
	}

	views := make([]files.View, 0, len(accepted))
	for _, rec := range accepted {
		views = append(views, rec.View())
	}
	if len(accepted) == 0 {
		status := http.StatusRequestEntityTooLarge
		for _, rej := range rejected {
			if rej.Code != CodePayloadTooLarge {
				status = http.StatusBadRequest
				break
			}
		}
		writeJSON(w, status, uploadResponse{
			Success:  false,
			Files:    views,
			Rejected: rejected,
			Error:    "No files were accepted",
			Code:     rejected[0].Code,
		})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		Files:    views,
		Rejected: rejected,
		Message:  fmt.Sprintf("%d file(s) uploaded successfully", len(accepted)),
	})
}

// HandleFileDownload streams a stored payload as an attachment.
func (s *Server) HandleFileDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, body, err := s.registry.Open(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrPayloadMissing):
			s.metrics.IncPayloadMissing()
			s.logger.Warn().Err(err).Str("id", id).Msg("download failed: payload missing for registered file")
		case errors.Is(err, files.ErrNotFound):
			s.logger.Info().Str("id", id).Msg("download failed: unknown file id")
		}
		s.writeFailure(w, err)
		return
	}
	defer body.Close()

	contentType := rec.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachmentDisposition(rec.Name))

	// 304, 206 and 416 answers are not downloads; only a full 200 is counted.
	counted := &downloadWriter{ResponseWriter: w, onFull: func() {
		s.registry.IncrementDownloads(id)
		s.metrics.IncDownload()
	}}
	if seeker, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(counted, r, rec.Name, rec.UploadedAt, seeker)
		return
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.Size))
	counted.WriteHeader(http.StatusOK)
	if _, err := io.Copy(counted, body); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("download interrupted")
	}
}

func attachmentDisposition(name string) string {
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": name}); value != "" {
		return value
	}
	return "attachment"
}

// downloadWriter calls onFull once when the response starts with 200 OK.
type downloadWriter struct {
	http.ResponseWriter
	onFull      func()
	wroteHeader bool
}

func (w *downloadWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if status == http.StatusOK {
			w.onFull()
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *downloadWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// bodyLimit caps a whole upload request: every allowed file at the ceiling
// plus room for multipart framing.
func (s *Server) bodyLimit() int64 {
	ceiling := s.registry.MaxSize()
	if ceiling <= 0 {
		return 0
	}
	return ceiling*int64(s.opts.MaxFiles) + bodyOverhead
}

func (s *Server) isBlocked(name string) bool {
	_, blocked := s.blocked[strings.ToLower(filepath.Ext(name))]
	return blocked
}

// rollback deletes files stored earlier in a request that then failed.
func (s *Server) rollback(ctx context.Context, accepted []files.FileRecord) {
	for _, rec := range accepted {
		if _, err := s.registry.Delete(context.WithoutCancel(ctx), rec.ID); err != nil {
			s.logger.Warn().Err(err).Str("id", rec.ID).Msg("rollback failed")
		}
	}
}

func (s *Server) writeUploadFailure(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("upload failed")
	} else {
		s.logger.Warn().Err(err).Str("code", code).Msg("upload failed")
	}
	writeJSON(w, status, uploadResponse{Success: false, Files: []files.View{}, Error: publicMessage(err, code), Code: code})
}

// cleanFilename removes path components and dangerous characters from a
// client supplied name.
func cleanFilename(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." || s == "/" {
		return "unnamed"
	}
	return s
}
