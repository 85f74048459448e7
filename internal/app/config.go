package app

import (
	"os"
	"path/filepath"
	"runtime"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr        string
	DBPath      string
	AdminUser   string
	UploadDir   string
	MaxFileSize int64
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Username  string
	AdminUser string
	StatePath string
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("MULTICHAT_DB_PATH"); env != "" {
		return env
	}
	return filepath.Join(defaultDataDir(), "multichat.db")
}

// DefaultStatePath returns where the client keeps its closed-channel and
// read-watermark state.
func DefaultStatePath() string {
	if env := os.Getenv("MULTICHAT_STATE_PATH"); env != "" {
		return env
	}
	return filepath.Join(defaultDataDir(), "state.json")
}

// DefaultUploadDir returns where the server stores uploaded files.
func DefaultUploadDir() string {
	if env := os.Getenv("MULTICHAT_UPLOAD_DIR"); env != "" {
		return env
	}
	return filepath.Join(defaultDataDir(), "uploads")
}

func defaultDataDir() string {
	if env := os.Getenv("MULTICHAT_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "multichat")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Multichat")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Multichat")
		}
		return filepath.Join(home, ".local", "share", "multichat")
	}
	return filepath.Join(".", ".multichat")
}
