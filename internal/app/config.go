package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"sharehub/internal/files"
)

// ByteSize is a byte count that YAML and the environment may spell as a
// plain integer or a human string such as "50MB" or "1MiB".
type ByteSize int64

func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(b)), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr      string        `yaml:"addr"`
	WSPath    string        `yaml:"ws_path"`
	StaticDir string        `yaml:"static_dir"`
	SeedDemo  bool          `yaml:"seed_demo"`
	Storage   StorageConfig `yaml:"storage"`
	Upload    UploadConfig  `yaml:"upload"`
	Chat      ChatConfig    `yaml:"chat"`
	Log       LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	Backend         string        `yaml:"backend"`
	UploadDir       string        `yaml:"upload_dir"`
	DBPath          string        `yaml:"db_path"`
	InlineCacheSize int           `yaml:"inline_cache_size"`
	InlineCacheTTL  time.Duration `yaml:"inline_cache_ttl"`
	Watch           bool          `yaml:"watch"`
}

type UploadConfig struct {
	MaxFileSize       ByteSize `yaml:"max_file_size"`
	MaxFiles          int      `yaml:"max_files"`
	FieldName         string   `yaml:"field_name"`
	BlockedExtensions []string `yaml:"blocked_extensions"`
}

type ChatConfig struct {
	DefaultRoom  string `yaml:"default_room"`
	HistoryLimit int    `yaml:"history_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig defines the parameters the terminal client needs.
type ClientConfig struct {
	ServerURL string
	Username  string
	Room      string
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:   ":3000",
		WSPath: "/ws",
		Storage: StorageConfig{
			Backend:         files.KindDisk,
			UploadDir:       DefaultUploadDir(),
			DBPath:          DefaultDBPath(),
			InlineCacheSize: 64,
			InlineCacheTTL:  10 * time.Minute,
			Watch:           true,
		},
		Upload: UploadConfig{
			MaxFileSize:       50 << 20,
			MaxFiles:          10,
			FieldName:         "files",
			BlockedExtensions: []string{".exe", ".bat", ".cmd", ".scr", ".pif", ".com"},
		},
		Chat: ChatConfig{DefaultRoom: "general"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// LoadServerConfig layers defaults, the optional YAML file at path and the
// environment. Flags are applied by the caller afterwards.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *ServerConfig, getenv func(string) string) error {
	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	str := map[string]*string{
		"SHAREHUB_ADDR":            &cfg.Addr,
		"SHAREHUB_WS_PATH":         &cfg.WSPath,
		"SHAREHUB_STATIC_DIR":      &cfg.StaticDir,
		"SHAREHUB_STORAGE_BACKEND": &cfg.Storage.Backend,
		"SHAREHUB_UPLOAD_DIR":      &cfg.Storage.UploadDir,
		"SHAREHUB_DB_PATH":         &cfg.Storage.DBPath,
		"SHAREHUB_DEFAULT_ROOM":    &cfg.Chat.DefaultRoom,
		"SHAREHUB_LOG_LEVEL":       &cfg.Log.Level,
		"SHAREHUB_LOG_FORMAT":      &cfg.Log.Format,
	}
	for key, target := range str {
		if v := getenv(key); v != "" {
			*target = v
		}
	}
	ints := map[string]*int{
		"SHAREHUB_MAX_FILES":     &cfg.Upload.MaxFiles,
		"SHAREHUB_HISTORY_LIMIT": &cfg.Chat.HistoryLimit,
	}
	for key, target := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*target = n
		}
	}
	if v := getenv("SHAREHUB_MAX_FILE_SIZE"); v != "" {
		size, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("SHAREHUB_MAX_FILE_SIZE: %w", err)
		}
		cfg.Upload.MaxFileSize = size
	}
	if v := getenv("SHAREHUB_SEED_DEMO"); v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SHAREHUB_SEED_DEMO: %w", err)
		}
		cfg.SeedDemo = seed
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (cfg *ServerConfig) Validate() error {
	var errs []error
	switch cfg.Storage.Backend {
	case files.KindMemory, files.KindInline:
	case files.KindDisk:
		if cfg.Storage.UploadDir == "" {
			errs = append(errs, errors.New("storage.upload_dir is required for the disk backend"))
		}
	case files.KindSQLite:
		if cfg.Storage.DBPath == "" {
			errs = append(errs, errors.New("storage.db_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend))
	}
	if cfg.Upload.MaxFileSize <= 0 {
		errs = append(errs, errors.New("upload.max_file_size must be positive"))
	}
	if cfg.Upload.MaxFiles < 1 {
		errs = append(errs, errors.New("upload.max_files must be at least 1"))
	}
	if cfg.Chat.HistoryLimit < 0 {
		errs = append(errs, errors.New("chat.history_limit must not be negative"))
	}
	if cfg.Storage.InlineCacheSize < 0 {
		errs = append(errs, errors.New("storage.inline_cache_size must not be negative"))
	}
	return errors.Join(errs...)
}

// DefaultDataDir returns the per-user directory for uploads and the
// SQLite file.
func DefaultDataDir() string {
	if env := os.Getenv("SHAREHUB_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharehub")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "ShareHub")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "ShareHub")
		}
		return filepath.Join(home, ".local", "share", "sharehub")
	}
	return filepath.Join(".", ".sharehub")
}

func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "sharehub.db")
}

func DefaultUploadDir() string {
	return filepath.Join(DefaultDataDir(), "uploads")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
