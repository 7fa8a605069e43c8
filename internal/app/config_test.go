package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SHAREHUB_DATA_DIR", dir)
	for _, key := range []string{"PORT", "SHAREHUB_ADDR", "SHAREHUB_STORAGE_BACKEND", "SHAREHUB_MAX_FILE_SIZE", "SHAREHUB_MAX_FILES", "SHAREHUB_SEED_DEMO", "SHAREHUB_HISTORY_LIMIT", "SHAREHUB_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestDefaultServerConfig(t *testing.T) {
	dir := isolateEnv(t)
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":3000" || cfg.WSPath != "/ws" || cfg.Storage.Backend != "disk" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Upload.MaxFileSize != 50<<20 || cfg.Upload.MaxFiles != 10 || cfg.Upload.FieldName != "files" {
		t.Fatalf("unexpected upload defaults %+v", cfg.Upload)
	}
	if cfg.Storage.UploadDir != filepath.Join(dir, "uploads") || cfg.Storage.DBPath != filepath.Join(dir, "sharehub.db") {
		t.Fatalf("unexpected data paths %+v", cfg.Storage)
	}
	if !cfg.Storage.Watch || cfg.Chat.DefaultRoom != "general" {
		t.Fatalf("unexpected storage/chat defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadServerConfigFromYAML(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "sharehub.yaml")
	doc := `
addr: ":8080"
seed_demo: true
storage:
  backend: inline
  inline_cache_ttl: 30s
upload:
  max_file_size: 5MB
  max_files: 3
  blocked_extensions: [".exe"]
chat:
  history_limit: 200
log:
  format: console
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || !cfg.SeedDemo || cfg.Storage.Backend != "inline" {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.Storage.InlineCacheTTL != 30*time.Second || cfg.Storage.InlineCacheSize != 64 {
		t.Fatalf("inline settings %+v", cfg.Storage)
	}
	if cfg.Upload.MaxFileSize != 5_000_000 || cfg.Upload.MaxFiles != 3 || len(cfg.Upload.BlockedExtensions) != 1 {
		t.Fatalf("upload settings %+v", cfg.Upload)
	}
	if cfg.Chat.HistoryLimit != 200 || cfg.Log.Format != "console" || cfg.Log.Level != "info" {
		t.Fatalf("chat/log settings %+v %+v", cfg.Chat, cfg.Log)
	}
	if !cfg.Storage.Watch {
		t.Fatalf("keys missing from the file keep their defaults")
	}
}

func TestLoadServerConfigErrors(t *testing.T) {
	isolateEnv(t)
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing explicit file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("upload:\n  max_file_size: lots\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadServerConfig(path); err == nil || !strings.Contains(err.Error(), "lots") {
		t.Fatalf("expected byte size error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("SHAREHUB_STORAGE_BACKEND", "sqlite")
	t.Setenv("SHAREHUB_MAX_FILE_SIZE", "1MiB")
	t.Setenv("SHAREHUB_MAX_FILES", "2")
	t.Setenv("SHAREHUB_SEED_DEMO", "true")

	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":4000" || cfg.Storage.Backend != "sqlite" || cfg.Upload.MaxFileSize != 1<<20 || cfg.Upload.MaxFiles != 2 || !cfg.SeedDemo {
		t.Fatalf("env not applied: %+v", cfg)
	}

	t.Setenv("SHAREHUB_ADDR", "127.0.0.1:5000")
	cfg, _ = LoadServerConfig("")
	if cfg.Addr != "127.0.0.1:5000" {
		t.Fatalf("SHAREHUB_ADDR should win over PORT, got %s", cfg.Addr)
	}

	t.Setenv("SHAREHUB_MAX_FILES", "many")
	if _, err := LoadServerConfig(""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	isolateEnv(t)
	cases := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"backend", func(c *ServerConfig) { c.Storage.Backend = "s3" }, "unknown storage backend"},
		{"ceiling", func(c *ServerConfig) { c.Upload.MaxFileSize = 0 }, "max_file_size"},
		{"max files", func(c *ServerConfig) { c.Upload.MaxFiles = 0 }, "max_files"},
		{"history", func(c *ServerConfig) { c.Chat.HistoryLimit = -1 }, "history_limit"},
		{"db path", func(c *ServerConfig) { c.Storage.Backend = "sqlite"; c.Storage.DBPath = "" }, "db_path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct {
		server, path, want string
	}{
		{"http://localhost:3000", "", "ws://localhost:3000/ws"},
		{"https://share.example.com", "/chat", "wss://share.example.com/chat"},
		{"localhost:3000", "", "ws://localhost:3000/ws"},
		{"ws://host:1/custom", "", "ws://host:1/custom"},
	}
	for _, tc := range cases {
		got, err := JoinURL(tc.server, tc.path)
		if err != nil || got != tc.want {
			t.Fatalf("JoinURL(%q) = %q, %v; want %q", tc.server, got, err, tc.want)
		}
	}
	if _, err := JoinURL("ftp://host", ""); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "shown" || entry["level"] != "warn" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}

	if _, err := NewLogger(&buf, "loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestByteSizeString(t *testing.T) {
	if got := ByteSize(50 << 20).String(); got != "50 MiB" {
		t.Fatalf("got %q", got)
	}
}
