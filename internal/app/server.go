package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	intrnl "sharehub/internal"
	"sharehub/internal/files"
	"sharehub/internal/web"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr     string
	server   *http.Server
	api      *intrnl.Server
	registry *files.Registry
	logger   zerolog.Logger
	stopWork context.CancelFunc
	done     chan struct{}
	err      error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// URL returns the http base URL clients should use.
func (h *ServerHandle) URL() string {
	host, port, err := net.SplitHostPort(h.addr)
	if err != nil {
		return "http://" + h.addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	h.api.Close()
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits and its resources are released.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the payload store, builds the registry and API server,
// and starts serving in the background. Cancelling ctx shuts it down.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)

	store, disk, err := openPayloadStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	registry := files.NewRegistry(store, logger, files.WithMaxSize(int64(cfg.Upload.MaxFileSize)))

	if cfg.SeedDemo {
		seeded, err := files.SeedDemo(ctx, registry)
		if err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("seed demo files: %w", err)
		}
		logger.Info().Int("files", len(seeded)).Msg("demo files seeded")
	}

	static, err := staticAssets(cfg.StaticDir)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	api := intrnl.NewServer(intrnl.ServerOptions{
		Registry:          registry,
		Logger:            logger,
		WSPath:            cfg.WSPath,
		DefaultRoom:       cfg.Chat.DefaultRoom,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		MaxFiles:          cfg.Upload.MaxFiles,
		FieldName:         cfg.Upload.FieldName,
		BlockedExtensions: cfg.Upload.BlockedExtensions,
		Static:            static,
	})

	workCtx, stopWork := context.WithCancel(context.Background())
	if disk != nil && cfg.Storage.Watch {
		metrics := api.Metrics()
		err := files.Watch(workCtx, registry, disk, func(files.FileRecord) {
			metrics.IncPayloadMissing()
		})
		if err != nil {
			logger.Warn().Err(err).Str("dir", disk.Dir()).Msg("upload directory watcher disabled")
		}
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		stopWork()
		api.Close()
		_ = registry.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr: listener.Addr().String(),
		server: &http.Server{
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		},
		api:      api,
		registry: registry,
		logger:   logger,
		stopWork: stopWork,
		done:     make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().
		Str("addr", handle.addr).
		Str("storage", store.Kind()).
		Str("max_file_size", cfg.Upload.MaxFileSize.String()).
		Msg("sharehub listening")
	go handle.serve(listener)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.stopWork()
	h.api.Close()
	if err := h.registry.Close(); err != nil {
		h.logger.Error().Err(err).Msg("payload store close")
	}
	h.err = err
}

func openPayloadStore(ctx context.Context, cfg StorageConfig, logger zerolog.Logger) (files.PayloadStore, *files.DiskStore, error) {
	switch cfg.Backend {
	case files.KindMemory:
		return files.NewMemoryStore(), nil, nil
	case files.KindInline:
		return files.NewInlineStore(cfg.InlineCacheSize, cfg.InlineCacheTTL), nil, nil
	case files.KindDisk:
		disk, err := files.NewDiskStore(cfg.UploadDir)
		if err != nil {
			return nil, nil, fmt.Errorf("create upload directory: %w", err)
		}
		return disk, disk, nil
	case files.KindSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create db dir: %w", err)
		}
		store, err := files.OpenSQLiteStore(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		// rows from an earlier run are not indexed by the new registry
		if count, total, err := store.Usage(ctx); err == nil && count > 0 {
			logger.Warn().Int("rows", count).Int64("bytes", total).Str("db", cfg.DBPath).Msg("sqlite store holds unindexed payloads")
		}
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func staticAssets(dir string) (fs.FS, error) {
	if dir == "" {
		return web.Assets(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
