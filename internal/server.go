package internal

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sharehub/internal/files"
	"sharehub/internal/ident"
)

// ServerOptions configures the HTTP API and chat relay.
type ServerOptions struct {
	Registry          *files.Registry
	Logger            zerolog.Logger
	Metrics           *Metrics
	WSPath            string
	DefaultRoom       string
	HistoryLimit      int
	MaxFiles          int
	FieldName         string
	BlockedExtensions []string
	// Static is served for every path outside /api. Nil serves nothing.
	Static fs.FS
	IDs    ident.Generator
	Clock  func() time.Time
}

// Server owns the router, the chat hub and the shared registry.
type Server struct {
	registry  *files.Registry
	hub       *Hub
	metrics   *Metrics
	logger    zerolog.Logger
	opts      ServerOptions
	blocked   map[string]struct{}
	startedAt time.Time
	router    chi.Router
}

func NewServer(opts ServerOptions) *Server {
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	if opts.FieldName == "" {
		opts.FieldName = "files"
	}
	if opts.MaxFiles < 1 {
		opts.MaxFiles = 10
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		registry:  opts.Registry,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With().Str("component", "http").Logger(),
		opts:      opts,
		blocked:   make(map[string]struct{}, len(opts.BlockedExtensions)),
		startedAt: opts.Clock(),
	}
	for _, ext := range opts.BlockedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.blocked[ext] = struct{}{}
	}
	s.hub = NewHub(HubConfig{
		Registry:     opts.Registry,
		Presence:     NewPresenceTracker(),
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
		DefaultRoom:  opts.DefaultRoom,
		HistoryLimit: opts.HistoryLimit,
		IDs:          opts.IDs,
		Clock:        opts.Clock,
	})
	s.metrics.RegisterFileGauge(opts.Registry.Len)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.metrics.Middleware)
	r.Use(cors)

	r.Get(s.opts.WSPath, s.ServeWS)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.handleAPIInfo)
		r.Get("/stats", s.handleStats)
		r.Get("/files", s.handleListFiles)
		r.Post("/upload", s.HandleFileUpload)
		r.Get("/file/{id}", s.handleFileInfo)
		r.Delete("/file/{id}", s.handleDeleteFile)
		r.Get("/file/{id}/qr", s.handleFileQR)
		r.Get("/download/{id}", s.HandleFileDownload)
		r.NotFound(s.handleAPINotFound)
		r.MethodNotAllowed(s.handleAPIMethodNotAllowed)
	})

	if s.opts.Static != nil {
		r.Handle("/*", http.FileServer(http.FS(s.opts.Static)))
	}
	return r
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ServeWS upgrades the request and attaches the connection to the chat hub.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ServeWS(s.hub, w, r)
}

// Hub exposes the chat hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Close drops every chat connection and stops the rooms.
func (s *Server) Close() {
	s.hub.Close()
}

// cors permits every origin, method and header; preflight requests end here.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request; the level follows the status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		event := s.logger.Info()
		switch {
		case wrapped.status >= 500:
			event = s.logger.Error()
		case wrapped.status >= 400:
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Int64("bytes", wrapped.written).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}
