package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"multichat/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	server := NewServer(store, "admin", t.TempDir(), 1<<20)

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", server.ServeFeed)
	mux.HandleFunc("/signup", server.HandleSignup)
	mux.HandleFunc("/login", server.HandleLogin)
	mux.HandleFunc("/logout", server.HandleLogout)
	mux.HandleFunc("/messages", server.HandleMessages)
	mux.HandleFunc("/users", server.HandleUsers)
	mux.HandleFunc("/users/", server.HandleUserUpdate)
	mux.HandleFunc("/settings", server.HandleSettings)
	mux.HandleFunc("/channels", server.HandleChannels)
	mux.HandleFunc("/upload", server.HandleFileUpload)
	mux.HandleFunc("/files/", server.HandleFileDownload)

	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
	})
	return ts
}

func signupAndLogin(t *testing.T, serverURL, username string) *RemoteClient {
	t.Helper()
	client, err := NewRemoteClient(serverURL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if err := client.Signup(username, "secret"); err != nil {
		t.Fatalf("Signup %s: %v", username, err)
	}
	if _, err := client.Login(username, "secret"); err != nil {
		t.Fatalf("Login %s: %v", username, err)
	}
	return client
}

func TestSignupLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	client, err := NewRemoteClient(ts.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}

	if err := client.Signup("alice", "secret"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if err := client.Signup("alice", "other"); err == nil {
		t.Fatalf("expected conflict for duplicate signup")
	} else if ErrorKindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", err)
	}

	if _, err := client.Login("alice", "wrong"); err == nil {
		t.Fatalf("expected error for bad password")
	}
	username, err := client.Login("alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if username != "alice" || client.Token() == "" {
		t.Fatalf("unexpected login result: %q token=%q", username, client.Token())
	}
}

func TestSignupRejectsInvalidUsernames(t *testing.T) {
	ts := newTestServer(t)
	client, err := NewRemoteClient(ts.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	for _, name := range []string{"System", "has space", "under_score"} {
		if err := client.Signup(name, "secret"); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	client := signupAndLogin(t, ts.URL, "alice")

	stored, err := client.SendMessage(Message{Username: "alice", Text: "hello", Channel: "general"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if stored.ID == "" || stored.Timestamp == 0 {
		t.Fatalf("expected server-assigned id and timestamp, got %+v", stored)
	}

	messages, err := client.FetchMessages()
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "hello" {
		t.Fatalf("unexpected messages: %+v", messages)
	}

	// authoring as someone else is rejected.
	if _, err := client.SendMessage(Message{Username: "bob", Text: "spoofed", Channel: "general"}); err == nil {
		t.Fatalf("expected spoofed author to be rejected")
	}
}

func TestPrivateMessageRequiresParticipation(t *testing.T) {
	ts := newTestServer(t)
	client := signupAndLogin(t, ts.URL, "alice")

	if _, err := client.SendMessage(Message{Username: "alice", Text: "hi", Channel: "private_alice_bob"}); err != nil {
		t.Fatalf("participant send should succeed: %v", err)
	}
	if _, err := client.SendMessage(Message{Username: "alice", Text: "intrude", Channel: "private_bob_carol"}); err == nil {
		t.Fatalf("expected non-participant send to be rejected")
	}
	if _, err := client.SendMessage(Message{Username: "alice", Text: "hi", Channel: "private_broken"}); err == nil {
		t.Fatalf("expected malformed channel id to be rejected")
	}
}

func TestHeartbeatAndPresence(t *testing.T) {
	ts := newTestServer(t)
	client := signupAndLogin(t, ts.URL, "alice")

	if err := client.Heartbeat("alice", true); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	users, err := client.FetchUsers()
	if err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	found := false
	for _, user := range users {
		if user.Username == "alice" && user.Online && user.LastSeen > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice to be online, got %+v", users)
	}

	// heartbeating for someone else is rejected.
	if err := client.Heartbeat("bob", true); err == nil {
		t.Fatalf("expected heartbeat for another user to be rejected")
	}
}

func TestSettingsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	alice := signupAndLogin(t, ts.URL, "alice")

	// settings row is lazily created with a zero watermark.
	settings, err := alice.FetchSettings()
	if err != nil {
		t.Fatalf("FetchSettings: %v", err)
	}
	if settings.LastClearTimestamp != 0 {
		t.Fatalf("expected zero watermark on fresh deployment, got %+v", settings)
	}

	if err := alice.ClearMessages(500); err == nil {
		t.Fatalf("expected non-admin clear to be rejected")
	}

	admin := signupAndLogin(t, ts.URL, "admin")
	if err := admin.ClearMessages(500); err != nil {
		t.Fatalf("admin ClearMessages: %v", err)
	}
	settings, err = alice.FetchSettings()
	if err != nil {
		t.Fatalf("FetchSettings after clear: %v", err)
	}
	if settings.LastClearTimestamp != 500 {
		t.Fatalf("expected watermark 500, got %+v", settings)
	}

	// the clear posts a visible system notice.
	messages, err := alice.FetchMessages()
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	foundNotice := false
	for _, m := range messages {
		if m.Username == SystemUser && m.Channel == DefaultChannel {
			foundNotice = true
		}
	}
	if !foundNotice {
		t.Fatalf("expected a system notice after clear, got %+v", messages)
	}
}

func TestChannelCreation(t *testing.T) {
	ts := newTestServer(t)
	alice := signupAndLogin(t, ts.URL, "alice")

	channel, err := alice.CreateDirectChannel("alice", "bob")
	if err != nil {
		t.Fatalf("CreateDirectChannel: %v", err)
	}
	if channel.ID != "private_alice_bob" {
		t.Fatalf("unexpected channel id: %q", channel.ID)
	}

	// creating it again from either side is idempotent.
	again, err := alice.CreateDirectChannel("alice", "bob")
	if err != nil {
		t.Fatalf("expected idempotent create, got %v", err)
	}
	if again.ID != channel.ID {
		t.Fatalf("expected same channel id, got %q", again.ID)
	}

	channels, err := alice.FetchPrivateChannels("alice")
	if err != nil {
		t.Fatalf("FetchPrivateChannels: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel, got %+v", channels)
	}

	// creation posted a system notice into the new channel.
	messages, err := alice.FetchMessages()
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	foundNotice := false
	for _, m := range messages {
		if m.Username == SystemUser && m.Channel == channel.ID {
			foundNotice = true
		}
	}
	if !foundNotice {
		t.Fatalf("expected a system notice in the new channel, got %+v", messages)
	}
}

func TestUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	client := signupAndLogin(t, ts.URL, "alice")

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("file body"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	uploaded, err := client.UploadFile(path)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if uploaded.Name != "notes.txt" || uploaded.Size != int64(len("file body")) {
		t.Fatalf("unexpected upload result: %+v", uploaded)
	}

	resp, err := http.Get(ts.URL + uploaded.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 download, got %d", resp.StatusCode)
	}
}

func TestRequestsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	client, err := NewRemoteClient(ts.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if _, err := client.FetchMessages(); err == nil {
		t.Fatalf("expected unauthenticated fetch to fail")
	}
	if _, err := client.FetchUsers(); err == nil {
		t.Fatalf("expected unauthenticated fetch to fail")
	}
}
