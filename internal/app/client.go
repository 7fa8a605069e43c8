package app

import (
	"errors"
	"net/url"
	"strings"

	intrnl "sharehub/internal"
)

// RunClient launches the terminal client with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	wsURL, err := JoinURL(cfg.ServerURL, "")
	if err != nil {
		return err
	}
	return intrnl.RunClient(wsURL, cfg.Room, cfg.Username)
}

// JoinURL accepts an http(s) or ws(s) server address and returns the
// websocket URL. A bare host URL gets wsPath (default /ws) appended.
func JoinURL(server, wsPath string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	parsed, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported server scheme " + parsed.Scheme)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = NormalizeWSPath(wsPath)
	}
	return parsed.String(), nil
}
