package internal

import (
	"fmt"
	"time"
)

// SyncState is the lifecycle of the engine's subscription to the remote store.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncLoading
	SyncSubscribed
	SyncClosed
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncLoading:
		return "loading"
	case SyncSubscribed:
		return "subscribed"
	case SyncClosed:
		return "closed"
	}
	return "unknown"
}

// RemoteSnapshot is the bulk state fetched on startup before incremental
// events are accepted.
type RemoteSnapshot struct {
	Messages []Message
	Users    []PresenceEntry
	Settings AdminSettings
	Channels []PrivateChannel
}

// EventResult tells the caller what an incremental event changed, so the view
// layer can react without re-deriving it.
type EventResult struct {
	Applied      bool
	ActiveChange bool
	NewDirect    string
}

// SyncController routes every remote event to the registry, store, watermark
// tracker, and presence tracker, and owns the load/subscribe lifecycle.
// Incremental events that arrive while the bulk load is still in flight are
// buffered and replayed after it completes, so an event can never be clobbered
// by an older snapshot; the store's id de-dupe makes the replay safe when the
// snapshot already contains the event's row.
type SyncController struct {
	self     string
	registry *ChannelRegistry
	store    *MessageStore
	marks    *WatermarkTracker
	presence *PresenceTracker

	state   SyncState
	active  string
	pending []ChangeEvent
	loadErr *SyncError

	now func() time.Time
}

func NewSyncController(self string) *SyncController {
	return &SyncController{
		self:     self,
		registry: NewChannelRegistry(self),
		store:    NewMessageStore(),
		marks:    NewWatermarkTracker(self),
		presence: NewPresenceTracker(self),
		state:    SyncIdle,
		active:   DefaultChannel,
		now:      time.Now,
	}
}

func (c *SyncController) State() SyncState           { return c.state }
func (c *SyncController) Registry() *ChannelRegistry { return c.registry }
func (c *SyncController) Marks() *WatermarkTracker   { return c.marks }
func (c *SyncController) Presence() *PresenceTracker { return c.presence }

// BeginLoad enters the Loading state; incremental events start buffering.
func (c *SyncController) BeginLoad() {
	if c.state == SyncClosed {
		return
	}
	c.state = SyncLoading
	c.loadErr = nil
	c.pending = nil
}

// CompleteLoad applies the bulk snapshot, replays any events buffered during
// the load, and enters Subscribed.
func (c *SyncController) CompleteLoad(snapshot RemoteSnapshot) {
	if c.state != SyncLoading {
		return
	}
	c.marks.SetClearedBefore(snapshot.Settings.LastClearTimestamp)

	visible := make([]Message, 0, len(snapshot.Messages))
	for _, m := range snapshot.Messages {
		if !c.marks.Hidden(m) {
			visible = append(visible, m)
		}
	}
	c.store.LoadAll(visible)

	c.presence.ReplaceAll(snapshot.Users)
	for _, channel := range snapshot.Channels {
		c.registry.Add(channel.ID)
	}

	// unread counts are derived from the snapshot against the persisted
	// lastRead watermarks, not trusted from any previous session.
	for _, m := range visible {
		c.marks.RecordIncoming(m)
	}

	c.state = SyncSubscribed
	buffered := c.pending
	c.pending = nil
	for _, ev := range buffered {
		c.HandleEvent(ev)
	}
	c.markActiveRead()
}

// FailLoad records a classified load failure; the store keeps whatever state
// it had rather than presenting an empty channel as authoritative.
func (c *SyncController) FailLoad(err error) {
	if c.state != SyncLoading {
		return
	}
	c.state = SyncIdle
	c.loadErr = newSyncError(ErrorKindOf(err), "load", err)
}

// LoadError returns the last bulk-load failure, nil after a successful load.
func (c *SyncController) LoadError() *SyncError {
	return c.loadErr
}

// Close tears the controller down; all later events are ignored.
func (c *SyncController) Close() {
	c.state = SyncClosed
	c.pending = nil
}

// HandleEvent routes one change-feed event. During Loading the event is
// buffered; after Close it is dropped.
func (c *SyncController) HandleEvent(ev ChangeEvent) EventResult {
	switch c.state {
	case SyncClosed, SyncIdle:
		return EventResult{}
	case SyncLoading:
		c.pending = append(c.pending, ev)
		return EventResult{}
	}

	switch ev.Table {
	case TableMessages:
		if ev.Message != nil && ev.Kind == ChangeInsert {
			return c.applyMessage(*ev.Message)
		}
	case TableUsers:
		if ev.User != nil {
			c.presence.Apply(*ev.User)
			return EventResult{Applied: true}
		}
	case TableAdminSettings:
		if ev.Settings != nil {
			c.marks.SetClearedBefore(ev.Settings.LastClearTimestamp)
			return EventResult{Applied: true, ActiveChange: !IsPrivateChannel(c.active)}
		}
	case TablePrivateChannels:
		if ev.Channel != nil && ev.Kind == ChangeInsert {
			if c.registry.Add(ev.Channel.ID) {
				return EventResult{Applied: true}
			}
		}
	}
	return EventResult{}
}

func (c *SyncController) applyMessage(m Message) EventResult {
	if !c.marks.Hidden(m) && m.Channel != "" && IsPrivateChannel(m.Channel) {
		// a message on a closed DM channel pulls it back into the list.
		c.registry.Add(m.Channel)
		c.registry.Reopen(m.Channel)
	}
	if c.marks.Hidden(m) {
		return EventResult{}
	}
	if !c.store.ApplyIncoming(m) {
		return EventResult{}
	}
	channel := m.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	result := EventResult{Applied: true, ActiveChange: channel == c.active}
	if channel == c.active {
		// the user is looking at this channel, so the message is read on
		// arrival rather than counted as unread.
		c.marks.MarkRead(channel, m.Timestamp)
		return result
	}
	c.marks.RecordIncoming(m)
	if IsPrivateChannel(channel) && m.Username != c.self &&
		m.Timestamp > c.now().Add(-newDMAttentionWindow).UnixMilli() {
		result.NewDirect = channel
	}
	return result
}

// ActiveChannel returns the channel currently displayed.
func (c *SyncController) ActiveChannel() string {
	return c.active
}

// SwitchChannel changes the active channel, marking the new channel read up to
// its newest message. Switching to an unknown private channel is a validation
// error.
func (c *SyncController) SwitchChannel(channel string) error {
	if channel == "" {
		channel = DefaultChannel
	}
	if IsPrivateChannel(channel) {
		if _, _, ok := directParticipants(channel); !ok {
			return newValidationError("switch channel", fmt.Errorf("malformed channel id %q", channel))
		}
		c.registry.Add(channel)
		c.registry.Reopen(channel)
	}
	c.active = channel
	c.markActiveRead()
	return nil
}

func (c *SyncController) markActiveRead() {
	if latest := c.store.LatestTimestamp(c.active); latest > 0 {
		c.marks.MarkRead(c.active, latest)
	} else {
		c.marks.MarkRead(c.active, c.marks.LastRead(c.active))
	}
}

// CloseActiveChannel hides the active private channel and falls back to the
// default public channel. Closing a public channel is a no-op.
func (c *SyncController) CloseActiveChannel() {
	if !IsPrivateChannel(c.active) {
		return
	}
	c.registry.Close(c.active)
	c.active = DefaultChannel
	c.markActiveRead()
}

// ActiveView returns the active channel's messages with the clear watermark
// applied, ready for rendering.
func (c *SyncController) ActiveView() []Message {
	log := c.store.ChannelView(c.active)
	if IsPrivateChannel(c.active) || c.marks.ClearedBefore() == 0 {
		return log
	}
	visible := make([]Message, 0, len(log))
	for _, m := range log {
		if !c.marks.Hidden(m) {
			visible = append(visible, m)
		}
	}
	return visible
}

// UnreadCount exposes the watermark tracker's per-channel badge count.
func (c *SyncController) UnreadCount(channel string) int {
	return c.marks.Unread(channel)
}

// VisibleChannels is the channel list in display order.
func (c *SyncController) VisibleChannels() []string {
	return c.registry.VisibleChannels()
}

// RegisterDirect records a freshly created (or re-fetched) direct channel and
// makes it active.
func (c *SyncController) RegisterDirect(channel string) error {
	if _, _, ok := directParticipants(channel); !ok {
		return newValidationError("register direct", fmt.Errorf("malformed channel id %q", channel))
	}
	c.registry.Add(channel)
	c.registry.Reopen(channel)
	return c.SwitchChannel(channel)
}
