package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestServeFlagsOverrideConfig(t *testing.T) {
	t.Setenv("SHAREHUB_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "")
	t.Setenv("SHAREHUB_ADDR", "")
	path := filepath.Join(t.TempDir(), "sharehub.yaml")
	doc := "addr: \":7000\"\nupload:\n  max_files: 4\nstorage:\n  backend: memory\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	root := &rootOptions{configPath: path, quiet: true}
	opts := &serveOptions{}
	cmd := &cobra.Command{Use: "serve"}
	bindServeFlags(cmd, opts)
	if err := cmd.ParseFlags([]string{"--addr", "127.0.0.1:9000", "--max-file-size", "2MB", "--watch=false"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadServerConfig(cmd, root, opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("flag should win over file, got %s", cfg.Addr)
	}
	if cfg.Upload.MaxFiles != 4 || cfg.Storage.Backend != "memory" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Upload.MaxFileSize != 2_000_000 || cfg.Storage.Watch {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("--quiet should raise the level, got %s", cfg.Log.Level)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "sharehub ") {
		t.Fatalf("got %q", out.String())
	}
}

func TestChatRejectsExtraArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"chat", "one", "two"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an argument error")
	}
}
