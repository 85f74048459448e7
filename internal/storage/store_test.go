package storage

import (
	"context"
	"testing"
	"time"
)

func TestAccountLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateAccount(ctx, "alice", []byte("hash")); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := store.CreateAccount(ctx, "alice", []byte("hash2")); err != ErrAccountExists {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	account, err := store.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account == nil || account.Username != "alice" {
		t.Fatalf("unexpected account: %+v", account)
	}

	missing, err := store.GetAccount(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetAccount missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing account, got %+v", missing)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateAccount(ctx, "bob", []byte("hash")); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	if err := store.CreateSession(ctx, "bob", "token123", exp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err := store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil || session.Username != "bob" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := store.DeleteSession(ctx, "token123"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	session, err = store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session after delete")
	}
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []MessageRow{
		{ID: "m2", Username: "bob", Text: "second", Timestamp: 200, Channel: "general"},
		{ID: "m1", Username: "alice", Text: "first", Timestamp: 100, Channel: "general"},
		{ID: "m3", Username: "alice", Text: "dm", Timestamp: 150, Channel: "private_alice_bob"},
	}
	for _, row := range rows {
		if err := store.InsertMessage(ctx, row); err != nil {
			t.Fatalf("InsertMessage %s: %v", row.ID, err)
		}
	}

	listed, err := store.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(listed))
	}
	if listed[0].ID != "m1" || listed[1].ID != "m3" || listed[2].ID != "m2" {
		t.Fatalf("unexpected order: %s %s %s", listed[0].ID, listed[1].ID, listed[2].ID)
	}
}

func TestPresenceUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertUserPresence(ctx, PresenceRow{Username: "alice", LastSeen: 100, Online: true}); err != nil {
		t.Fatalf("UpsertUserPresence: %v", err)
	}
	// a second heartbeat replaces the row instead of duplicating it.
	if err := store.UpsertUserPresence(ctx, PresenceRow{Username: "alice", LastSeen: 200, Online: false}); err != nil {
		t.Fatalf("UpsertUserPresence update: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].LastSeen != 200 || users[0].Online {
		t.Fatalf("unexpected presence row: %+v", users[0])
	}
}

func TestSettingsLazyAndUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings != nil {
		t.Fatalf("expected nil before first write, got %+v", settings)
	}

	if err := store.UpsertSettings(ctx, SettingsRow{ID: "settings", LastClearTimestamp: 500}); err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	if err := store.UpsertSettings(ctx, SettingsRow{ID: "settings", LastClearTimestamp: 900}); err != nil {
		t.Fatalf("UpsertSettings update: %v", err)
	}

	settings, err = store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings == nil || settings.LastClearTimestamp != 900 {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestPrivateChannels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	row := ChannelRow{ID: "private_alice_bob", UserA: "alice", UserB: "bob", CreatedBy: "alice"}
	if err := store.CreatePrivateChannel(ctx, row); err != nil {
		t.Fatalf("CreatePrivateChannel: %v", err)
	}
	if err := store.CreatePrivateChannel(ctx, row); err != ErrChannelExists {
		t.Fatalf("expected ErrChannelExists, got %v", err)
	}

	channel, err := store.GetPrivateChannel(ctx, "private_alice_bob")
	if err != nil {
		t.Fatalf("GetPrivateChannel: %v", err)
	}
	if channel == nil || channel.CreatedBy != "alice" {
		t.Fatalf("unexpected channel: %+v", channel)
	}

	forBob, err := store.ListPrivateChannelsFor(ctx, "bob")
	if err != nil {
		t.Fatalf("ListPrivateChannelsFor: %v", err)
	}
	if len(forBob) != 1 || forBob[0].ID != "private_alice_bob" {
		t.Fatalf("unexpected channels for bob: %+v", forBob)
	}

	forCarol, err := store.ListPrivateChannelsFor(ctx, "carol")
	if err != nil {
		t.Fatalf("ListPrivateChannelsFor carol: %v", err)
	}
	if len(forCarol) != 0 {
		t.Fatalf("expected no channels for carol, got %+v", forCarol)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
