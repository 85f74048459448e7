package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRemoteClientDerivesURLs(t *testing.T) {
	client, err := NewRemoteClient("http://example.com:8080/")
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if client.FeedURL() != "ws://example.com:8080/feed" {
		t.Fatalf("unexpected feed url: %q", client.FeedURL())
	}

	// a ws url works too and maps back to http for the rest calls.
	client, err = NewRemoteClient("wss://example.com/feed")
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if client.baseURL != "https://example.com" {
		t.Fatalf("unexpected base url: %q", client.baseURL)
	}

	if _, err := NewRemoteClient("ftp://example.com"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	} else if ErrorKindOf(err) != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoginStoresToken(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			writeJSON(w, http.StatusOK, loginResponse{Token: "tok-1", Username: "alice"})
		case "/users":
			sawAuth = r.Header.Get("Authorization")
			writeJSON(w, http.StatusOK, []PresenceEntry{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewRemoteClient(server.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	username, err := client.Login("alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if username != "alice" || client.Token() != "tok-1" {
		t.Fatalf("unexpected login result: %q token=%q", username, client.Token())
	}

	if _, err := client.FetchUsers(); err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	if sawAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer token on request, got %q", sawAuth)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindValidation},
		{http.StatusForbidden, KindValidation},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusBadRequest, KindValidation},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, tc.status, errors.New("nope"))
		}))
		client, err := NewRemoteClient(server.URL)
		if err != nil {
			t.Fatalf("NewRemoteClient: %v", err)
		}
		_, err = client.FetchMessages()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := ErrorKindOf(err); got != tc.kind {
			t.Fatalf("status %d: expected kind %v, got %v", tc.status, tc.kind, got)
		}
		server.Close()
	}
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	client, err := NewRemoteClient("http://example.com")
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	_, err = client.SendMessage(Message{Username: "alice", Channel: "general"})
	if err == nil {
		t.Fatalf("expected validation error for empty message")
	}
	if ErrorKindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %v", err)
	}
}

func TestCreateDirectChannelConflictIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, errors.New("channel already exists"))
	}))
	defer server.Close()

	client, err := NewRemoteClient(server.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	channel, err := client.CreateDirectChannel("alice", "bob")
	if err != nil {
		t.Fatalf("expected conflict to be treated as success, got %v", err)
	}
	if channel.ID != "private_alice_bob" {
		t.Fatalf("unexpected channel id: %q", channel.ID)
	}
}

func TestCreateDirectChannelRejectsSelf(t *testing.T) {
	client, err := NewRemoteClient("http://example.com")
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if _, err := client.CreateDirectChannel("alice", "alice"); err == nil {
		t.Fatalf("expected error for self channel")
	}
}

func TestLoadSnapshotCollectsAllTables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/settings":
			writeJSON(w, http.StatusOK, AdminSettings{ID: "settings", LastClearTimestamp: 42})
		case r.URL.Path == "/messages":
			writeJSON(w, http.StatusOK, []Message{{ID: "m1", Username: "bob", Text: "hi", Timestamp: 100, Channel: "general"}})
		case r.URL.Path == "/users":
			writeJSON(w, http.StatusOK, []PresenceEntry{{Username: "bob", LastSeen: 99}})
		case strings.HasPrefix(r.URL.Path, "/channels"):
			if got := r.URL.Query().Get("user"); got != "alice" {
				t.Errorf("expected user query, got %q", got)
			}
			writeJSON(w, http.StatusOK, []PrivateChannel{{ID: "private_alice_bob", Participants: []string{"alice", "bob"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewRemoteClient(server.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	snapshot, err := client.LoadSnapshot("alice")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snapshot.Settings.LastClearTimestamp != 42 {
		t.Fatalf("unexpected settings: %+v", snapshot.Settings)
	}
	if len(snapshot.Messages) != 1 || len(snapshot.Users) != 1 || len(snapshot.Channels) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d messages, %d users, %d channels",
			len(snapshot.Messages), len(snapshot.Users), len(snapshot.Channels))
	}
}

func TestReadResponseErrorParsing(t *testing.T) {
	if got := readResponseError(strings.NewReader(`{"error":"bad input"}`)); got != "bad input" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := readResponseError(strings.NewReader("plain text")); got != "plain text" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := readResponseError(strings.NewReader("")); got != "request failed" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestClearMessagesPayload(t *testing.T) {
	var received AdminSettings
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/settings" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewRemoteClient(server.URL)
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	if err := client.ClearMessages(12345); err != nil {
		t.Fatalf("ClearMessages: %v", err)
	}
	if received.LastClearTimestamp != 12345 {
		t.Fatalf("unexpected payload: %+v", received)
	}
}
