package internal

import "sort"

// MessageStore keeps the per-channel message logs, sorted ascending by
// timestamp. It is rebuilt from the remote store on load and then fed by
// incremental change events; duplicate deliveries are dropped by id.
type MessageStore struct {
	byChannel map[string][]Message
	seen      map[string]bool
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byChannel: make(map[string][]Message),
		seen:      make(map[string]bool),
	}
}

// LoadAll replaces the store contents with a bulk snapshot. Messages without a
// channel tag land in the default channel; each channel ends up sorted by
// timestamp regardless of snapshot order.
func (s *MessageStore) LoadAll(msgs []Message) {
	s.byChannel = make(map[string][]Message)
	s.seen = make(map[string]bool)
	for _, m := range msgs {
		s.insert(m)
	}
	for channel := range s.byChannel {
		s.sortChannel(channel)
	}
}

// ApplyIncoming inserts one message, keeping the channel sorted. It returns
// false when the id has already been seen, so replayed or duplicated feed
// events are harmless.
func (s *MessageStore) ApplyIncoming(m Message) bool {
	if m.ID != "" && s.seen[m.ID] {
		return false
	}
	channel := s.insert(m)
	// events arrive in near-real-time, so the append is usually already in
	// order and the sort is a cheap no-op.
	log := s.byChannel[channel]
	if len(log) > 1 && log[len(log)-2].Timestamp > m.Timestamp {
		s.sortChannel(channel)
	}
	return true
}

func (s *MessageStore) insert(m Message) string {
	channel := m.Channel
	if channel == "" {
		channel = DefaultChannel
		m.Channel = channel
	}
	if m.ID != "" {
		if s.seen[m.ID] {
			return channel
		}
		s.seen[m.ID] = true
	}
	s.byChannel[channel] = append(s.byChannel[channel], m)
	return channel
}

func (s *MessageStore) sortChannel(channel string) {
	log := s.byChannel[channel]
	sort.SliceStable(log, func(i, j int) bool {
		return log[i].Timestamp < log[j].Timestamp
	})
}

// ChannelView returns the channel's ordered log. The returned slice is the
// store's own; callers render it and do not mutate it.
func (s *MessageStore) ChannelView(channel string) []Message {
	return s.byChannel[channel]
}

// LatestTimestamp returns the newest message timestamp in the channel, zero
// when the channel is empty.
func (s *MessageStore) LatestTimestamp(channel string) int64 {
	log := s.byChannel[channel]
	if len(log) == 0 {
		return 0
	}
	return log[len(log)-1].Timestamp
}

// Len reports how many messages the channel holds.
func (s *MessageStore) Len(channel string) int {
	return len(s.byChannel[channel])
}
