package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes helper methods used by the server.
type Store struct {
	db *sql.DB
}

// Account represents a row in the accounts table.
type Account struct {
	ID           int64
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Session captures persisted logins.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MessageRow is one persisted chat message.
type MessageRow struct {
	ID        string
	Username  string
	Text      string
	FileURL   string
	FileName  string
	FileType  string
	FileSize  int64
	Timestamp int64
	Channel   string
}

// PresenceRow is one user's heartbeat state.
type PresenceRow struct {
	Username string
	LastSeen int64
	Online   bool
}

// SettingsRow is the single shared admin settings row.
type SettingsRow struct {
	ID                 string
	LastClearTimestamp int64
}

// ChannelRow is a direct-message channel; the participant pair is stored
// sorted so the canonical id and the columns always agree.
type ChannelRow struct {
	ID        string
	UserA     string
	UserB     string
	CreatedBy string
}

// ErrAccountExists is returned when attempting to insert a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrChannelExists is returned when the direct channel was already created.
var ErrChannelExists = errors.New("channel already exists")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "multichat.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(username) REFERENCES accounts(username) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			file_size INTEGER NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			channel TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			last_seen INTEGER NOT NULL DEFAULT 0,
			online INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS admin_settings (
			id TEXT PRIMARY KEY,
			last_clear_timestamp INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS private_channels (
			id TEXT PRIMARY KEY,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_private_channels_users ON private_channels(user_a, user_b);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateAccount inserts a new account. ErrAccountExists is returned on conflicts.
func (s *Store) CreateAccount(ctx context.Context, username string, passwordHash []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts(username, password_hash) VALUES(?, ?)`, username, passwordHash)
	if err != nil {
		if isConstraintError(err) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

// GetAccount fetches an account by username. A missing account is (nil, nil).
func (s *Store) GetAccount(ctx context.Context, username string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?`, username)
	var account Account
	if err := row.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateSession stores a new session token for a user.
func (s *Store) CreateSession(ctx context.Context, username, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token, username, expires_at) VALUES(?, ?, ?)`, token, username, expiresAt.UTC())
	return err
}

// GetSession returns a session if it exists.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, username, expires_at, created_at FROM sessions WHERE token = ?`, token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.Username, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session token (used for logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// InsertMessage persists one message row.
func (s *Store) InsertMessage(ctx context.Context, m MessageRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(id, username, text, file_url, file_name, file_type, file_size, timestamp, channel)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Username, m.Text, m.FileURL, m.FileName, m.FileType, m.FileSize, m.Timestamp, m.Channel)
	return err
}

// ListMessages returns every message ordered by timestamp ascending.
func (s *Store) ListMessages(ctx context.Context) ([]MessageRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, text, file_url, file_name, file_type, file_size, timestamp, channel
		FROM messages
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.Username, &m.Text, &m.FileURL, &m.FileName, &m.FileType, &m.FileSize, &m.Timestamp, &m.Channel); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpsertUserPresence writes the heartbeat row for a user.
func (s *Store) UpsertUserPresence(ctx context.Context, entry PresenceRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(username, last_seen, online) VALUES(?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET last_seen=excluded.last_seen, online=excluded.online
	`, entry.Username, entry.LastSeen, entry.Online)
	return err
}

// ListUsers returns every presence row ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]PresenceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, last_seen, online FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []PresenceRow
	for rows.Next() {
		var u PresenceRow
		if err := rows.Scan(&u.Username, &u.LastSeen, &u.Online); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetSettings returns the shared settings row, or (nil, nil) when it has not
// been created yet.
func (s *Store) GetSettings(ctx context.Context) (*SettingsRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, last_clear_timestamp FROM admin_settings LIMIT 1`)
	var settings SettingsRow
	if err := row.Scan(&settings.ID, &settings.LastClearTimestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// UpsertSettings writes the shared settings row.
func (s *Store) UpsertSettings(ctx context.Context, settings SettingsRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_settings(id, last_clear_timestamp) VALUES(?, ?)
		ON CONFLICT(id) DO UPDATE SET last_clear_timestamp=excluded.last_clear_timestamp
	`, settings.ID, settings.LastClearTimestamp)
	return err
}

// CreatePrivateChannel inserts a direct channel row. ErrChannelExists is
// returned when the pair already has one.
func (s *Store) CreatePrivateChannel(ctx context.Context, channel ChannelRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO private_channels(id, user_a, user_b, created_by) VALUES(?, ?, ?, ?)
	`, channel.ID, channel.UserA, channel.UserB, channel.CreatedBy)
	if err != nil {
		if isConstraintError(err) {
			return ErrChannelExists
		}
		return err
	}
	return nil
}

// GetPrivateChannel fetches a channel by id. A missing channel is (nil, nil).
func (s *Store) GetPrivateChannel(ctx context.Context, id string) (*ChannelRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_a, user_b, created_by FROM private_channels WHERE id = ?`, id)
	var channel ChannelRow
	if err := row.Scan(&channel.ID, &channel.UserA, &channel.UserB, &channel.CreatedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// ListPrivateChannelsFor returns the direct channels a user participates in,
// oldest first.
func (s *Store) ListPrivateChannelsFor(ctx context.Context, username string) ([]ChannelRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_a, user_b, created_by
		FROM private_channels
		WHERE user_a = ? OR user_b = ?
		ORDER BY created_at ASC
	`, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []ChannelRow
	for rows.Next() {
		var channel ChannelRow
		if err := rows.Scan(&channel.ID, &channel.UserA, &channel.UserB, &channel.CreatedBy); err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintCode
	}
	return false
}
