package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	intrnl "sharehub/internal"
	"sharehub/internal/app"
)

type rootOptions struct {
	configPath string
	quiet      bool
	logLevel   string
	logFormat  string
}

type serveOptions struct {
	addr         string
	wsPath       string
	staticDir    string
	backend      string
	uploadDir    string
	dbPath       string
	maxFileSize  string
	maxFiles     int
	historyLimit int
	defaultRoom  string
	seedDemo     bool
	watch        bool
}

type chatOptions struct {
	server string
	user   string
	room   string
}

func newRootCmd() *cobra.Command {
	root := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sharehub",
		Short:         "ShareHub - share files and chat in rooms",
		Long:          "ShareHub runs a small file sharing server with chat rooms,\nand a terminal client to use it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&root.configPath, "config", "c", os.Getenv("SHAREHUB_CONFIG"), "YAML config file")
	cmd.PersistentFlags().BoolVarP(&root.quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&root.logFormat, "log-format", "", "log format (json|console)")

	cmd.AddCommand(newServeCmd(root), newChatCmd(), newLocalCmd(root), newVersionCmd())
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, web UI and chat relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServerConfig(cmd, root, opts)
			if err != nil {
				return err
			}
			logger, err := buildLogger(os.Stderr, cfg)
			if err != nil {
				return err
			}
			handle, err := app.RunServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return handle.Wait()
		},
	}
	bindServeFlags(cmd, opts)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "", "listen address (default :3000)")
	flags.StringVar(&opts.wsPath, "ws-path", "", "websocket path (default /ws)")
	flags.StringVar(&opts.staticDir, "static-dir", "", "serve the web UI from this directory instead of the embedded one")
	flags.StringVar(&opts.backend, "storage", "", "payload storage backend (memory|disk|inline|sqlite)")
	flags.StringVar(&opts.uploadDir, "upload-dir", "", "directory for the disk backend")
	flags.StringVar(&opts.dbPath, "db", "", "database file for the sqlite backend")
	flags.StringVar(&opts.maxFileSize, "max-file-size", "", "largest accepted file, e.g. 50MB")
	flags.IntVar(&opts.maxFiles, "max-files", 0, "files accepted per upload request")
	flags.IntVar(&opts.historyLimit, "history-limit", 0, "messages kept per room (0 keeps all)")
	flags.StringVar(&opts.defaultRoom, "default-room", "", "room used when a client joins without one")
	flags.BoolVar(&opts.seedDemo, "seed-demo", false, "store the demo files at startup")
	flags.BoolVar(&opts.watch, "watch", true, "watch the upload directory for removed files")
}

// loadServerConfig resolves defaults, the config file, the environment and
// finally any flag the user set explicitly.
func loadServerConfig(cmd *cobra.Command, root *rootOptions, opts *serveOptions) (app.ServerConfig, error) {
	cfg, err := app.LoadServerConfig(root.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if flags.Changed("ws-path") {
		cfg.WSPath = opts.wsPath
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = opts.staticDir
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = opts.backend
	}
	if flags.Changed("upload-dir") {
		cfg.Storage.UploadDir = opts.uploadDir
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath = opts.dbPath
	}
	if flags.Changed("max-file-size") {
		size, err := app.ParseByteSize(opts.maxFileSize)
		if err != nil {
			return cfg, err
		}
		cfg.Upload.MaxFileSize = size
	}
	if flags.Changed("max-files") {
		cfg.Upload.MaxFiles = opts.maxFiles
	}
	if flags.Changed("history-limit") {
		cfg.Chat.HistoryLimit = opts.historyLimit
	}
	if flags.Changed("default-room") {
		cfg.Chat.DefaultRoom = opts.defaultRoom
	}
	if flags.Changed("seed-demo") {
		cfg.SeedDemo = opts.seedDemo
	}
	if flags.Changed("watch") {
		cfg.Storage.Watch = opts.watch
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	if root.logFormat != "" {
		cfg.Log.Format = root.logFormat
	}
	if root.quiet {
		cfg.Log.Level = zerolog.LevelWarnValue
	}
	return cfg, nil
}

func buildLogger(w io.Writer, cfg app.ServerConfig) (zerolog.Logger, error) {
	return app.NewLogger(w, cfg.Log.Level, cfg.Log.Format)
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [room]",
		Short: "Open the terminal client against a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.room = args[0]
			}
			return app.RunClient(app.ClientConfig{ServerURL: opts.server, Username: opts.user, Room: opts.room})
		},
	}
	bindChatFlags(cmd, opts)
	return cmd
}

func bindChatFlags(cmd *cobra.Command, opts *chatOptions) {
	server := os.Getenv("SHAREHUB_SERVER")
	if server == "" {
		server = "http://localhost:3000"
	}
	cmd.Flags().StringVarP(&opts.server, "server", "s", server, "server URL (http(s) or ws(s))")
	cmd.Flags().StringVarP(&opts.user, "user", "u", os.Getenv("SHAREHUB_USER"), "display name")
	cmd.Flags().StringVarP(&opts.room, "room", "r", "", "room to join directly")
}

func newLocalCmd(root *rootOptions) *cobra.Command {
	serve := &serveOptions{}
	chat := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "local [room]",
		Short: "Run a private server on localhost and attach the terminal client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(cmd, root, serve)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				cfg.Addr = "127.0.0.1:0"
			}
			if len(args) == 1 {
				chat.room = args[0]
			}
			return runLocal(cmd.Context(), cfg, chat)
		},
	}
	bindServeFlags(cmd, serve)
	cmd.Flags().StringVarP(&chat.user, "user", "u", os.Getenv("SHAREHUB_USER"), "display name")
	return cmd
}

// runLocal logs to a file so server output does not draw over the client.
func runLocal(ctx context.Context, cfg app.ServerConfig, chat *chatOptions) error {
	logPath := filepath.Join(app.DefaultDataDir(), "sharehub-local.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logger, err := buildLogger(logFile, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = handle.Stop(stopCtx)
		_ = handle.Wait()
	}()

	wsURL, err := app.JoinURL(handle.URL(), cfg.WSPath)
	if err != nil {
		return err
	}
	return app.RunClient(app.ClientConfig{ServerURL: wsURL, Username: chat.user, Room: chat.room})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sharehub %s\n", intrnl.Version)
		},
	}
}
