package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"multichat/internal/storage"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	if username == SystemUser {
		writeError(w, http.StatusBadRequest, errors.New("that username is reserved"))
		return
	}
	if strings.ContainsAny(username, "_ \t") {
		// underscores would make private channel ids ambiguous, whitespace
		// breaks @mention parsing.
		writeError(w, http.StatusBadRequest, errors.New("username may not contain spaces or underscores"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.CreateAccount(r.Context(), username, hash); err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			writeError(w, http.StatusConflict, errors.New("username already taken"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": username})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	account, err := s.store.GetAccount(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if account == nil || bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.store.CreateSession(r.Context(), account.Username, token, expiresAt); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// login counts as a presence heartbeat with the explicit online flag set.
	s.publishPresence(r, account.Username, true)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, Username: account.Username, ExpiresAt: expiresAt})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	if err := s.store.DeleteSession(r.Context(), authCtx.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.publishPresence(r, authCtx.Username, false)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListMessages(w, r)
	case http.MethodPost:
		s.handleCreateMessage(w, r)
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPost)
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticateRequest(r); err != nil {
		unauthorized(w, err)
		return
	}
	rows, err := s.store.ListMessages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, messageFromRow(row))
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		unauthorized(w, err)
		return
	}
	if !s.msgLimiter.Allow(authCtx.Username) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var m Message
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// clients may only author as themselves; the System pseudo-user is allowed
	// for the informational notices posted around clears and DM creation.
	if m.Username != authCtx.Username && m.Username != SystemUser {
		writeError(w, http.StatusBadRequest, errors.New("message author must match the session user"))
		return
	}
	if !m.HasContent() {
		writeError(w, http.StatusBadRequest, errors.New("message needs text or a file"))
		return
	}
	if m.Channel == "" {
		m.Channel = DefaultChannel
	}
	if IsPrivateChannel(m.Channel) {
		userA, userB, ok := directParticipants(m.Channel)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("malformed private channel id"))
			return
		}
		if m.Username != SystemUser && authCtx.Username != userA && authCtx.Username != userB {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
	}

	stored, err := s.insertMessage(r, m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// insertMessage assigns the server-side id and timestamp, persists the row,
// and broadcasts the insert on the feed.
func (s *Server) insertMessage(r *http.Request, m Message) (Message, error) {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UnixMilli()
	if err := s.store.InsertMessage(r.Context(), rowFromMessage(m)); err != nil {
		return Message{}, err
	}
	s.metrics.IncMessage()
	s.hub.Broadcast(ChangeEvent{Table: TableMessages, Kind: ChangeInsert, Message: &m})
	return m, nil
}

func (s *Server) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, err := s.authenticateRequest(r); err != nil {
		unauthorized(w, err)
		return
	}
	rows, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	users := make([]PresenceEntry, 0, len(rows))
	for _, row := range rows {
		users = append(users, PresenceEntry{Username: row.Username, LastSeen: row.LastSeen, Online: row.Online})
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleUserUpdate is the heartbeat endpoint: PUT /users/{name}.
func (s *Server) HandleUserUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		unauthorized(w, err)
		return
	}
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/users/"))
	if err != nil || strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("username required"))
		return
	}
	if name != authCtx.Username {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	var entry PresenceEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.metrics.IncHeartbeat()
	s.publishPresence(r, name, entry.Online)
	w.WriteHeader(http.StatusNoContent)
}

// publishPresence stamps last_seen with the server clock, persists the row,
// and broadcasts the update. Failures are logged through the error return of
// the calling handler when they matter; presence is best effort otherwise.
func (s *Server) publishPresence(r *http.Request, username string, online bool) {
	entry := PresenceEntry{Username: username, LastSeen: time.Now().UnixMilli(), Online: online}
	if err := s.store.UpsertUserPresence(r.Context(), storage.PresenceRow{
		Username: entry.Username,
		LastSeen: entry.LastSeen,
		Online:   entry.Online,
	}); err != nil {
		return
	}
	s.hub.Broadcast(ChangeEvent{Table: TableUsers, Kind: ChangeUpdate, User: &entry})
}

func (s *Server) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetSettings(w, r)
	case http.MethodPut:
		s.handleUpdateSettings(w, r)
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPut)
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticateRequest(r); err != nil {
		unauthorized(w, err)
		return
	}
	row, err := s.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if row == nil {
		// lazily create the row so a fresh deployment behaves like one where
		// the admin has never cleared anything.
		created := storage.SettingsRow{ID: "settings", LastClearTimestamp: 0}
		if err := s.store.UpsertSettings(r.Context(), created); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		row = &created
	}
	writeJSON(w, http.StatusOK, AdminSettings{ID: row.ID, LastClearTimestamp: row.LastClearTimestamp})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		unauthorized(w, err)
		return
	}
	if s.adminUser == "" || authCtx.Username != s.adminUser {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	var settings AdminSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if settings.ID == "" {
		settings.ID = "settings"
	}
	if err := s.store.UpsertSettings(r.Context(), storage.SettingsRow{
		ID:                 settings.ID,
		LastClearTimestamp: settings.LastClearTimestamp,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncClear()
	s.hub.Broadcast(ChangeEvent{Table: TableAdminSettings, Kind: ChangeUpdate, Settings: &settings})
	// the notice is posted after the watermark moves so it survives the clear.
	notice := Message{Username: SystemUser, Text: "Chat history was cleared by " + authCtx.Username, Channel: DefaultChannel}
	_, _ = s.insertMessage(r, notice)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListChannels(w, r)
	case http.MethodPost:
		s.handleCreateChannel(w, r)
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPost)
	}
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		unauthorized(w, err)
		return
	}
	username := r.URL.Query().Get("user")
	if username == "" {
		username = authCtx.Username
	}
	rows, err := s.store.ListPrivateChannelsFor(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	channels := make([]PrivateChannel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, channelFromRow(row))
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		unauthorized(w, err)
		return
	}
	var channel PrivateChannel
	if err := decodeJSON(r, &channel); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	userA, userB, ok := directParticipants(channel.ID)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("malformed private channel id"))
		return
	}
	if authCtx.Username != userA && authCtx.Username != userB {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	row := storage.ChannelRow{ID: channel.ID, UserA: userA, UserB: userB, CreatedBy: authCtx.Username}
	if err := s.store.CreatePrivateChannel(r.Context(), row); err != nil {
		if errors.Is(err, storage.ErrChannelExists) {
			writeError(w, http.StatusConflict, errors.New("channel already exists"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	created := channelFromRow(row)
	s.hub.Broadcast(ChangeEvent{Table: TablePrivateChannels, Kind: ChangeInsert, Channel: &created})

	other := userA
	if other == authCtx.Username {
		other = userB
	}
	notice := Message{Username: SystemUser, Text: authCtx.Username + " started a conversation with " + other, Channel: channel.ID}
	_, _ = s.insertMessage(r, notice)

	writeJSON(w, http.StatusCreated, created)
}

func messageFromRow(row storage.MessageRow) Message {
	return Message{
		ID:        row.ID,
		Username:  row.Username,
		Text:      row.Text,
		FileURL:   row.FileURL,
		FileName:  row.FileName,
		FileType:  row.FileType,
		FileSize:  row.FileSize,
		Timestamp: row.Timestamp,
		Channel:   row.Channel,
	}
}

func rowFromMessage(m Message) storage.MessageRow {
	return storage.MessageRow{
		ID:        m.ID,
		Username:  m.Username,
		Text:      m.Text,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileType:  m.FileType,
		FileSize:  m.FileSize,
		Timestamp: m.Timestamp,
		Channel:   m.Channel,
	}
}

func channelFromRow(row storage.ChannelRow) PrivateChannel {
	return PrivateChannel{
		ID:           row.ID,
		Participants: []string{row.UserA, row.UserB},
		CreatedBy:    row.CreatedBy,
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errUnauthorized) {
		status = http.StatusUnauthorized
	}
	http.Error(w, http.StatusText(status), status)
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
