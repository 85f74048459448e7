package internal

import "time"

// these are the json envelopes shared by the client sync engine and the backend:
// they mirror the four remote tables (messages, users, admin_settings, private_channels).
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Channel   string `json:"channel"`
}

// HasContent reports whether the message carries text or a file. A message with
// neither is degenerate and is rejected before it ever reaches the remote store.
func (m Message) HasContent() bool {
	return m.Text != "" || m.FileURL != ""
}

// PresenceEntry is one row of the users table: a heartbeat timestamp plus an
// explicit online flag set on login and cleared (best effort) on logout.
type PresenceEntry struct {
	Username string `json:"username"`
	LastSeen int64  `json:"last_seen"`
	Online   bool   `json:"online"`
}

// AdminSettings holds the single shared settings row; last_clear_timestamp is
// the global watermark that hides older public-channel history.
type AdminSettings struct {
	ID                 string `json:"id"`
	LastClearTimestamp int64  `json:"last_clear_timestamp"`
}

// PrivateChannel is a pairwise direct-message channel row.
type PrivateChannel struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	CreatedBy    string   `json:"created_by"`
}

// table names used both in the change feed envelope and the REST paths.
const (
	TableMessages        = "messages"
	TableUsers           = "users"
	TableAdminSettings   = "admin_settings"
	TablePrivateChannels = "private_channels"
)

// change kinds carried by the feed.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
)

// ChangeEvent is the envelope the /feed websocket delivers for every accepted
// mutation. Exactly one payload pointer is set, matching Table.
type ChangeEvent struct {
	Table    string          `json:"table"`
	Kind     string          `json:"kind"`
	Message  *Message        `json:"message,omitempty"`
	User     *PresenceEntry  `json:"user,omitempty"`
	Settings *AdminSettings  `json:"settings,omitempty"`
	Channel  *PrivateChannel `json:"channel,omitempty"`
}

const (
	// SystemUser is the pseudo-author for informational messages (clears, DM
	// creation notices). It never corresponds to an account.
	SystemUser = "System"

	// DefaultChannel is where messages without a channel tag land, and where
	// the client falls back after closing the active private channel.
	DefaultChannel = "general"

	onlineWindow            = 2 * time.Minute
	heartbeatInterval       = 30 * time.Second
	presenceRefreshInterval = 15 * time.Second

	// a private message younger than this on a non-active channel counts as a
	// fresh DM and pulls the channel list open.
	newDMAttentionWindow = 5 * time.Second
)

// PublicChannels is the fixed, well-known set of public rooms, in display order.
var PublicChannels = []string{"general", "testing"}
