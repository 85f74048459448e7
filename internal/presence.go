package internal

import (
	"sort"
	"time"
)

// PresenceTracker keeps the latest presence entry per user, fed by the users
// change feed plus a periodic full refresh. Online status is push+poll hybrid:
// the feed alone can miss events across reconnects, and polling alone is too
// slow for a responsive list.
type PresenceTracker struct {
	self    string
	entries map[string]PresenceEntry
}

func NewPresenceTracker(self string) *PresenceTracker {
	return &PresenceTracker{
		self:    self,
		entries: make(map[string]PresenceEntry),
	}
}

// Apply updates a single user's entry from an incremental event.
func (p *PresenceTracker) Apply(entry PresenceEntry) {
	if entry.Username == "" {
		return
	}
	p.entries[entry.Username] = entry
}

// ReplaceAll reconciles the full set from a periodic refresh, dropping users
// the server no longer reports.
func (p *PresenceTracker) ReplaceAll(entries []PresenceEntry) {
	p.entries = make(map[string]PresenceEntry, len(entries))
	for _, entry := range entries {
		p.Apply(entry)
	}
}

// OnlineUsers returns the sorted set of users considered online at the given
// instant: explicitly online, or seen within the staleness window. The local
// user is always included so replication lag never hides them from their own
// list.
func (p *PresenceTracker) OnlineUsers(now time.Time) []string {
	threshold := now.Add(-onlineWindow).UnixMilli()
	users := make([]string, 0, len(p.entries)+1)
	for name, entry := range p.entries {
		if name == p.self {
			continue
		}
		if entry.Online || entry.LastSeen > threshold {
			users = append(users, name)
		}
	}
	users = append(users, p.self)
	sort.Strings(users)
	return users
}

// KnownUsers returns every user the tracker has seen, online or not, sorted.
// This is the candidate universe for mention autocomplete.
func (p *PresenceTracker) KnownUsers() []string {
	users := make([]string, 0, len(p.entries)+1)
	seenSelf := false
	for name := range p.entries {
		if name == p.self {
			seenSelf = true
		}
		users = append(users, name)
	}
	if !seenSelf && p.self != "" {
		users = append(users, p.self)
	}
	sort.Strings(users)
	return users
}
