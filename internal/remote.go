package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	httpTimeout     = 5 * time.Second
	errUnauthorized = errors.New("unauthorized")
)

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type uploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// RemoteClient talks to the remote store over its REST surface. Every failure
// it returns is a classified *SyncError; no raw transport error escapes.
type RemoteClient struct {
	baseURL    string
	feedURL    string
	token      string
	httpClient *http.Client
}

// NewRemoteClient accepts either an http(s) base URL or a ws(s) feed URL and
// derives the other form from it.
func NewRemoteClient(rawURL string) (*RemoteClient, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, newSyncError(KindConfig, "server url", err)
	}
	httpScheme, wsScheme := "http", "ws"
	switch parsed.Scheme {
	case "http", "ws":
	case "https", "wss":
		httpScheme, wsScheme = "https", "wss"
	default:
		return nil, newSyncError(KindConfig, "server url", fmt.Errorf("unsupported scheme %q", parsed.Scheme))
	}
	host := parsed.Host
	if host == "" {
		return nil, newSyncError(KindConfig, "server url", fmt.Errorf("missing host in %q", rawURL))
	}
	return &RemoteClient{
		baseURL:    httpScheme + "://" + host,
		feedURL:    wsScheme + "://" + host + "/feed",
		httpClient: &http.Client{Timeout: httpTimeout},
	}, nil
}

// FeedURL is the websocket endpoint delivering change events.
func (rc *RemoteClient) FeedURL() string {
	return rc.feedURL
}

// Token returns the session token obtained from Login.
func (rc *RemoteClient) Token() string {
	return rc.token
}

// Login validates credentials against the credential service and stores the
// session token for later calls.
func (rc *RemoteClient) Login(username, password string) (string, error) {
	var resp loginResponse
	payload := map[string]string{"username": username, "password": password}
	if err := rc.doJSON(http.MethodPost, "/login", payload, &resp); err != nil {
		return "", err
	}
	rc.token = resp.Token
	return resp.Username, nil
}

// Signup registers a new account. A taken username surfaces as a conflict.
func (rc *RemoteClient) Signup(username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	return rc.doJSON(http.MethodPost, "/signup", payload, nil)
}

// Logout invalidates the session token, best effort.
func (rc *RemoteClient) Logout() error {
	err := rc.doJSON(http.MethodPost, "/logout", nil, nil)
	rc.token = ""
	return err
}

// FetchMessages bulk-selects every message ordered by timestamp ascending.
func (rc *RemoteClient) FetchMessages() ([]Message, error) {
	var msgs []Message
	if err := rc.doJSON(http.MethodGet, "/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage inserts a message; the server assigns the id and the
// authoritative timestamp, and the stored row comes back so the caller can
// display it immediately.
func (rc *RemoteClient) SendMessage(m Message) (Message, error) {
	if !m.HasContent() && m.Username != SystemUser {
		return Message{}, newValidationError("send message", fmt.Errorf("message needs text or a file"))
	}
	var stored Message
	if err := rc.doJSON(http.MethodPost, "/messages", m, &stored); err != nil {
		return Message{}, err
	}
	return stored, nil
}

// FetchUsers returns every presence row.
func (rc *RemoteClient) FetchUsers() ([]PresenceEntry, error) {
	var users []PresenceEntry
	if err := rc.doJSON(http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Heartbeat upserts the local user's presence row. online=false is the best
// effort goodbye on logout.
func (rc *RemoteClient) Heartbeat(username string, online bool) error {
	entry := PresenceEntry{Username: username, LastSeen: time.Now().UnixMilli(), Online: online}
	return rc.doJSON(http.MethodPut, "/users/"+url.PathEscape(username), entry, nil)
}

// FetchSettings reads the shared admin settings row; the server lazily creates
// it, so a fresh deployment still yields a zero watermark.
func (rc *RemoteClient) FetchSettings() (AdminSettings, error) {
	var settings AdminSettings
	if err := rc.doJSON(http.MethodGet, "/settings", nil, &settings); err != nil {
		return AdminSettings{}, err
	}
	return settings, nil
}

// ClearMessages moves the global clear watermark. The server enforces that
// only the configured admin may do this.
func (rc *RemoteClient) ClearMessages(ts int64) error {
	settings := AdminSettings{ID: "settings", LastClearTimestamp: ts}
	return rc.doJSON(http.MethodPut, "/settings", settings, nil)
}

// FetchPrivateChannels lists the direct channels the user participates in.
func (rc *RemoteClient) FetchPrivateChannels(username string) ([]PrivateChannel, error) {
	var channels []PrivateChannel
	path := "/channels?user=" + url.QueryEscape(username)
	if err := rc.doJSON(http.MethodGet, path, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// CreateDirectChannel computes the canonical id for the pair and creates the
// channel remotely. An already-existing channel is idempotent success.
func (rc *RemoteClient) CreateDirectChannel(self, other string) (PrivateChannel, error) {
	id, err := DirectChannelID(self, other)
	if err != nil {
		return PrivateChannel{}, err
	}
	pair := []string{self, other}
	if pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	channel := PrivateChannel{ID: id, Participants: pair, CreatedBy: self}
	var stored PrivateChannel
	if err := rc.doJSON(http.MethodPost, "/channels", channel, &stored); err != nil {
		var syncErr *SyncError
		if errors.As(err, &syncErr) && syncErr.Kind == KindConflict {
			return channel, nil
		}
		return PrivateChannel{}, err
	}
	return stored, nil
}

// LoadSnapshot performs the four bulk fetches that seed the sync engine.
func (rc *RemoteClient) LoadSnapshot(username string) (RemoteSnapshot, error) {
	var snapshot RemoteSnapshot
	var err error
	if snapshot.Settings, err = rc.FetchSettings(); err != nil {
		return RemoteSnapshot{}, err
	}
	if snapshot.Messages, err = rc.FetchMessages(); err != nil {
		return RemoteSnapshot{}, err
	}
	if snapshot.Users, err = rc.FetchUsers(); err != nil {
		return RemoteSnapshot{}, err
	}
	if snapshot.Channels, err = rc.FetchPrivateChannels(username); err != nil {
		return RemoteSnapshot{}, err
	}
	return snapshot, nil
}

// UploadFile sends a local file to the storage service and returns the
// descriptor fields for the message that will carry it.
func (rc *RemoteClient) UploadFile(path string) (uploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return uploadResponse{}, newValidationError("upload", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return uploadResponse{}, newSyncError(KindTransient, "upload", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return uploadResponse{}, newSyncError(KindTransient, "upload", err)
	}
	if err := writer.Close(); err != nil {
		return uploadResponse{}, newSyncError(KindTransient, "upload", err)
	}

	req, err := http.NewRequest(http.MethodPost, rc.baseURL+"/upload", &body)
	if err != nil {
		return uploadResponse{}, newSyncError(KindTransient, "upload", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if rc.token != "" {
		req.Header.Set("Authorization", "Bearer "+rc.token)
	}
	// uploads can be slow; give them a dedicated client with a longer timeout.
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return uploadResponse{}, classifyTransportError("upload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uploadResponse{}, classifyStatus("upload", resp.StatusCode, readResponseError(resp.Body))
	}
	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return uploadResponse{}, newSyncError(KindTransient, "upload", err)
	}
	return uploaded, nil
}

func (rc *RemoteClient) doJSON(method, path string, payload interface{}, out interface{}) error {
	op := method + " " + path
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return newValidationError(op, err)
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, rc.baseURL+path, body)
	if err != nil {
		return newSyncError(KindConfig, op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rc.token != "" {
		req.Header.Set("Authorization", "Bearer "+rc.token)
	}
	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(op, resp.StatusCode, readResponseError(resp.Body))
	}
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return newSyncError(KindTransient, op, err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return newSyncError(KindTransient, op, err)
			}
		}
	}
	return nil
}

// classifyTransportError maps dial/timeout failures into the taxonomy: a
// refused connection at this layer means the backend address is wrong, while
// timeouts and resets are retryable.
func classifyTransportError(op string, err error) *SyncError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newSyncError(KindTransient, op, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return newSyncError(KindConfig, op, err)
	}
	return newSyncError(KindTransient, op, err)
}

func classifyStatus(op string, status int, detail string) *SyncError {
	err := fmt.Errorf("server returned %d: %s", status, detail)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newSyncError(KindValidation, op, errUnauthorized)
	case status == http.StatusNotFound:
		return newSyncError(KindNotFound, op, err)
	case status == http.StatusConflict:
		return newSyncError(KindConflict, op, err)
	case status >= 400 && status < 500:
		return newSyncError(KindValidation, op, err)
	default:
		return newSyncError(KindTransient, op, err)
	}
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
