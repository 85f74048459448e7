package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LocalState is the client-only state that survives restarts: which private
// channels the user closed, and how far they have read each channel. The clear
// watermark is deliberately absent here; it lives remotely and is shared.
type LocalState struct {
	ClosedChannels []string         `json:"closed_channels,omitempty"`
	LastRead       map[string]int64 `json:"last_read,omitempty"`
}

// LoadLocalState reads the state file. A missing file is a fresh session, not
// an error.
func LoadLocalState(path string) (LocalState, error) {
	var state LocalState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return LocalState{}, err
	}
	return state, nil
}

// SaveLocalState writes the state atomically via a temp file rename so a crash
// mid-write never leaves a torn file behind.
func SaveLocalState(path string, state LocalState) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
