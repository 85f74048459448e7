package internal

import (
	"reflect"
	"testing"
)

func TestDirectChannelIDCanonical(t *testing.T) {
	first, err := DirectChannelID("bob", "alice")
	if err != nil {
		t.Fatalf("DirectChannelID: %v", err)
	}
	second, err := DirectChannelID("alice", "bob")
	if err != nil {
		t.Fatalf("DirectChannelID: %v", err)
	}
	if first != second {
		t.Fatalf("expected same id for both orders, got %q and %q", first, second)
	}
	if first != "private_alice_bob" {
		t.Fatalf("unexpected id: %q", first)
	}
}

func TestDirectChannelIDRejectsSelf(t *testing.T) {
	if _, err := DirectChannelID("alice", "alice"); err == nil {
		t.Fatalf("expected error for self channel")
	}
	if _, err := DirectChannelID("alice", ""); err == nil {
		t.Fatalf("expected error for empty participant")
	}
}

func TestRegistryAddValidation(t *testing.T) {
	reg := NewChannelRegistry("alice")
	if !reg.Add("private_alice_bob") {
		t.Fatalf("expected add to succeed")
	}
	if reg.Add("private_alice_bob") {
		t.Fatalf("expected duplicate add to be ignored")
	}
	if reg.Add("private_bob_carol") {
		t.Fatalf("expected non-participant channel to be ignored")
	}
	if reg.Add("private_alice_alice") {
		t.Fatalf("expected self channel to be ignored")
	}
	if reg.Add("notaprivatechannel") {
		t.Fatalf("expected malformed id to be ignored")
	}
}

func TestVisibleChannelsOrder(t *testing.T) {
	reg := NewChannelRegistry("alice")
	reg.Add("private_alice_carol")
	reg.Add("private_alice_bob")

	want := []string{"general", "testing", "private_alice_carol", "private_alice_bob"}
	if got := reg.VisibleChannels(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected channel order: %v", got)
	}
}

func TestCloseAndReopen(t *testing.T) {
	reg := NewChannelRegistry("alice")
	reg.Add("private_alice_bob")

	reg.Close("private_alice_bob")
	if !reg.IsClosed("private_alice_bob") {
		t.Fatalf("expected channel to be closed")
	}
	for _, channel := range reg.VisibleChannels() {
		if channel == "private_alice_bob" {
			t.Fatalf("closed channel still visible")
		}
	}

	reg.Reopen("private_alice_bob")
	if reg.IsClosed("private_alice_bob") {
		t.Fatalf("expected channel to be reopened")
	}

	// public channels never close.
	reg.Close("general")
	if reg.IsClosed("general") {
		t.Fatalf("public channel must not close")
	}
}

func TestDisplayName(t *testing.T) {
	reg := NewChannelRegistry("alice")
	if got := reg.DisplayName("general"); got != "general" {
		t.Fatalf("unexpected display name: %q", got)
	}
	if got := reg.DisplayName("private_alice_bob"); got != "DM: bob" {
		t.Fatalf("unexpected display name: %q", got)
	}
	if got := reg.DisplayName("private_"); got != "DM: Unknown" {
		t.Fatalf("unexpected display name: %q", got)
	}
}

func TestRestoreClosed(t *testing.T) {
	reg := NewChannelRegistry("alice")
	reg.RestoreClosed([]string{"private_alice_bob", "general"})
	if !reg.IsClosed("private_alice_bob") {
		t.Fatalf("expected restored channel to stay closed")
	}
	if reg.IsClosed("general") {
		t.Fatalf("public channel must not be restorable as closed")
	}
}
