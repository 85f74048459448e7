package internal

// WatermarkTracker maintains the global "messages-cleared-before" timestamp and
// the per-channel read state. The clear watermark is shared across sessions via
// the admin_settings table; lastRead and unread counts are local to this client
// and survive reloads through the local state file.
type WatermarkTracker struct {
	self          string
	clearedBefore int64
	lastRead      map[string]int64
	unread        map[string]int
}

func NewWatermarkTracker(self string) *WatermarkTracker {
	return &WatermarkTracker{
		self:     self,
		lastRead: make(map[string]int64),
		unread:   make(map[string]int),
	}
}

// Hidden reports whether the message falls behind the global clear watermark.
// Only public channels are affected; private conversations survive clears.
func (w *WatermarkTracker) Hidden(m Message) bool {
	if IsPrivateChannel(m.Channel) {
		return false
	}
	return m.Timestamp <= w.clearedBefore
}

// RecordIncoming applies the watermark filter and unread accounting for one
// incoming message. It returns false when the message is behind the clear
// watermark and must be discarded entirely; otherwise the channel's unread
// count grows when the message is from someone else and newer than lastRead.
func (w *WatermarkTracker) RecordIncoming(m Message) bool {
	if w.Hidden(m) {
		return false
	}
	channel := m.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	if m.Username != w.self && m.Timestamp > w.lastRead[channel] {
		w.unread[channel]++
	}
	return true
}

// MarkRead advances the channel's lastRead watermark (never backwards) and
// zeroes its unread count. Calling it twice with the same timestamp is a no-op
// the second time.
func (w *WatermarkTracker) MarkRead(channel string, upto int64) {
	if upto > w.lastRead[channel] {
		w.lastRead[channel] = upto
	}
	delete(w.unread, channel)
}

// SetClearedBefore moves the global clear watermark. Already-delivered
// messages are not purged here; visibility checks consult Hidden.
func (w *WatermarkTracker) SetClearedBefore(ts int64) {
	w.clearedBefore = ts
}

// ClearedBefore returns the current global watermark.
func (w *WatermarkTracker) ClearedBefore() int64 {
	return w.clearedBefore
}

// LastRead returns the channel's read watermark, zero when never read.
func (w *WatermarkTracker) LastRead(channel string) int64 {
	return w.lastRead[channel]
}

// Unread returns the channel's unread count.
func (w *WatermarkTracker) Unread(channel string) int {
	return w.unread[channel]
}

// LastReadSnapshot copies the lastRead map for local persistence.
func (w *WatermarkTracker) LastReadSnapshot() map[string]int64 {
	snapshot := make(map[string]int64, len(w.lastRead))
	for channel, ts := range w.lastRead {
		snapshot[channel] = ts
	}
	return snapshot
}

// RestoreLastRead reloads the lastRead map saved by a previous session.
func (w *WatermarkTracker) RestoreLastRead(saved map[string]int64) {
	for channel, ts := range saved {
		if ts > w.lastRead[channel] {
			w.lastRead[channel] = ts
		}
	}
}
