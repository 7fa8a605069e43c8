package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"sharehub/internal/files"
	"sharehub/internal/formdata"
)

// Error codes in JSON error bodies.
const (
	CodeMalformedMultipart = "MALFORMED_MULTIPART"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodePayloadMissing     = "PAYLOAD_MISSING"
	CodeBlockedType        = "BLOCKED_TYPE"
	CodeUnexpectedField    = "UNEXPECTED_FIELD"
	CodeTooManyFiles       = "TOO_MANY_FILES"
	CodeNoFiles            = "NO_FILES"
	CodeInternal           = "INTERNAL_ERROR"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

const qrSize = 256

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type listResponse struct {
	Files       []files.View `json:"files"`
	TotalFiles  int          `json:"totalFiles"`
	CurrentPage int          `json:"currentPage"`
	TotalPages  int          `json:"totalPages"`
	HasNext     bool         `json:"hasNext"`
	HasPrev     bool         `json:"hasPrev"`
}

type statsResponse struct {
	TotalFiles    int       `json:"totalFiles"`
	TotalUsers    int       `json:"totalUsers"`
	TotalRooms    int       `json:"totalRooms"`
	TotalMessages int       `json:"totalMessages"`
	Uptime        float64   `json:"uptime"`
	ServerTime    time.Time `json:"serverTime"`
	Storage       string    `json:"storage"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type apiInfoResponse struct {
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Endpoints   []string  `json:"endpoints"`
	Storage     string    `json:"storage"`
	MaxFileSize int64     `json:"maxFileSize"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiInfoResponse{
		Message: "ShareHub API",
		Status:  "running",
		Version: Version,
		Endpoints: []string{
			"GET /api/stats",
			"GET /api/files",
			"GET /api/file/{id}",
			"GET /api/file/{id}/qr",
			"DELETE /api/file/{id}",
			"POST /api/upload",
			"GET /api/download/{id}",
			"GET " + s.opts.WSPath,
		},
		Storage:     s.registry.StorageKind(),
		MaxFileSize: s.registry.MaxSize(),
		Timestamp:   s.opts.Clock(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	chat := s.hub.Stats()
	now := s.opts.Clock()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalFiles:    s.registry.Len(),
		TotalUsers:    chat.Users,
		TotalRooms:    chat.Rooms,
		TotalMessages: chat.Messages,
		Uptime:        now.Sub(s.startedAt).Seconds(),
		ServerTime:    now,
		Storage:       s.registry.StorageKind(),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	result := s.registry.List(files.Query{Page: page, PageSize: limit, Search: query.Get("search")})

	views := make([]files.View, 0, len(result.Files))
	for _, rec := range result.Files {
		views = append(views, rec.View())
	}
	writeJSON(w, http.StatusOK, listResponse{
		Files:       views,
		TotalFiles:  result.Total,
		CurrentPage: result.Page,
		TotalPages:  result.TotalPages,
		HasNext:     result.HasNext,
		HasPrev:     result.HasPrev,
	})
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.View())
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.registry.Delete(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.metrics.IncDelete()
	s.logger.Info().Str("id", id).Str("name", rec.Name).Msg("file deleted")
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Message: "File deleted successfully"})
}

func (s *Server) handleFileQR(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	png, err := qrcode.Encode(absoluteURL(r, "/api/download/"+rec.ID), qrcode.Medium, qrSize)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found", Code: CodeNotFound})
}

func (s *Server) handleAPIMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Code: CodeMethodNotAllowed})
}

// absoluteURL builds a link to path on the host the request came in on.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + path
}

// statusForError maps domain errors onto an HTTP status and error code.
func statusForError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, files.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, formdata.ErrMalformed):
		return http.StatusBadRequest, CodeMalformedMultipart
	case errors.Is(err, files.ErrBlockedType):
		return http.StatusBadRequest, CodeBlockedType
	case errors.Is(err, files.ErrPayloadMissing):
		return http.StatusNotFound, CodePayloadMissing
	case errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeFailure turns err into a JSON error body. Internal errors are logged
// and hidden from the client.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	message := publicMessage(err, code)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func publicMessage(err error, code string) string {
	switch code {
	case CodePayloadTooLarge:
		return files.ErrPayloadTooLarge.Error()
	case CodeMalformedMultipart:
		return formdata.ErrMalformed.Error()
	case CodeBlockedType:
		return files.ErrBlockedType.Error()
	case CodePayloadMissing:
		return files.ErrPayloadMissing.Error()
	case CodeNotFound:
		return files.ErrNotFound.Error()
	case CodeInternal:
		return "internal server error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
