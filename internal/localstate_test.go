package internal

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLocalStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	saved := LocalState{
		ClosedChannels: []string{"private_alice_bob"},
		LastRead:       map[string]int64{"general": 300, "private_alice_bob": 150},
	}
	if err := SaveLocalState(path, saved); err != nil {
		t.Fatalf("SaveLocalState: %v", err)
	}

	loaded, err := LoadLocalState(path)
	if err != nil {
		t.Fatalf("LoadLocalState: %v", err)
	}
	if !reflect.DeepEqual(loaded, saved) {
		t.Fatalf("unexpected state: %+v", loaded)
	}
}

func TestLoadLocalStateMissingFile(t *testing.T) {
	state, err := LoadLocalState(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("expected missing file to be a fresh session, got %v", err)
	}
	if state.ClosedChannels != nil || state.LastRead != nil {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestLoadLocalStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadLocalState(path); err == nil {
		t.Fatalf("expected error for corrupt state file")
	}
}

func TestSaveLocalStateCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	if err := SaveLocalState(path, LocalState{}); err != nil {
		t.Fatalf("SaveLocalState: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected state file to exist: %v", err)
	}
}
