package app

import (
	"errors"

	intrnl "multichat/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath()
	}
	return intrnl.RunClient(cfg.ServerURL, cfg.Username, cfg.AdminUser, cfg.StatePath)
}
