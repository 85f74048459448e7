package internal

import (
	"fmt"
	"sort"
	"strings"
)

const privateChannelPrefix = "private_"

// DirectChannelID computes the canonical channel id for a direct conversation.
// The two usernames are sorted so both participants derive the same id no
// matter who initiates. A pair with identical participants is invalid: self-DM
// channels must never be created or displayed.
func DirectChannelID(userA, userB string) (string, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return "", newValidationError("direct channel", fmt.Errorf("both usernames are required"))
	}
	if userA == userB {
		return "", newValidationError("direct channel", fmt.Errorf("cannot open a direct channel with yourself"))
	}
	pair := []string{userA, userB}
	sort.Strings(pair)
	return privateChannelPrefix + pair[0] + "_" + pair[1], nil
}

// IsPrivateChannel reports whether the id names a direct-message channel.
func IsPrivateChannel(id string) bool {
	return strings.HasPrefix(id, privateChannelPrefix)
}

// directParticipants splits a private channel id back into its two usernames.
// The second result is false when the id is malformed or names a self-DM.
func directParticipants(id string) (string, string, bool) {
	if !IsPrivateChannel(id) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(id, privateChannelPrefix), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if parts[0] == parts[1] {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ChannelRegistry tracks the channels the local user can see: the fixed public
// rooms plus the private channels they participate in, minus anything they
// have locally closed.
type ChannelRegistry struct {
	self     string
	publics  []string
	privates []string
	known    map[string]bool
	closed   map[string]bool
}

func NewChannelRegistry(self string) *ChannelRegistry {
	return &ChannelRegistry{
		self:    self,
		publics: append([]string(nil), PublicChannels...),
		known:   make(map[string]bool),
		closed:  make(map[string]bool),
	}
}

// Add registers a private channel. Malformed ids, self-DMs, channels the local
// user does not participate in, and duplicates are all ignored; the return
// value reports whether the channel was newly added.
func (reg *ChannelRegistry) Add(id string) bool {
	userA, userB, ok := directParticipants(id)
	if !ok {
		return false
	}
	if userA != reg.self && userB != reg.self {
		return false
	}
	if reg.known[id] {
		return false
	}
	reg.known[id] = true
	reg.privates = append(reg.privates, id)
	return true
}

// Known reports whether the private channel has been registered.
func (reg *ChannelRegistry) Known(id string) bool {
	return reg.known[id]
}

// IsPublic reports whether the id names one of the fixed public rooms.
func (reg *ChannelRegistry) IsPublic(id string) bool {
	for _, name := range reg.publics {
		if name == id {
			return true
		}
	}
	return false
}

// VisibleChannels returns the public channels in their fixed order followed by
// the user's private channels in arrival order, skipping closed ones.
func (reg *ChannelRegistry) VisibleChannels() []string {
	visible := make([]string, 0, len(reg.publics)+len(reg.privates))
	visible = append(visible, reg.publics...)
	for _, id := range reg.privates {
		if !reg.closed[id] {
			visible = append(visible, id)
		}
	}
	return visible
}

// DisplayName renders a channel for the list: public channels show their own
// name, private channels show the other participant.
func (reg *ChannelRegistry) DisplayName(id string) string {
	if !IsPrivateChannel(id) {
		return id
	}
	userA, userB, ok := directParticipants(id)
	if !ok {
		return "DM: Unknown"
	}
	other := userA
	if other == reg.self {
		other = userB
	}
	if other == reg.self {
		return "DM: Unknown"
	}
	return "DM: " + other
}

// Close hides a private channel from the list without deleting it remotely.
// Public channels cannot be closed.
func (reg *ChannelRegistry) Close(id string) {
	if !IsPrivateChannel(id) || !reg.known[id] {
		return
	}
	reg.closed[id] = true
}

// Reopen makes a previously closed channel visible again, used when a new
// message arrives on it.
func (reg *ChannelRegistry) Reopen(id string) {
	delete(reg.closed, id)
}

// IsClosed reports whether the channel is currently hidden.
func (reg *ChannelRegistry) IsClosed(id string) bool {
	return reg.closed[id]
}

// ClosedChannels returns the closed set for local persistence.
func (reg *ChannelRegistry) ClosedChannels() []string {
	ids := make([]string, 0, len(reg.closed))
	for id := range reg.closed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RestoreClosed reloads the closed set saved by a previous session. Unknown
// channels are kept closed so they stay hidden if they show up later.
func (reg *ChannelRegistry) RestoreClosed(ids []string) {
	for _, id := range ids {
		if IsPrivateChannel(id) {
			reg.closed[id] = true
		}
	}
}
