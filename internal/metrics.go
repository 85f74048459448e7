package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	messages    atomic.Uint64
	heartbeats  atomic.Uint64
	clears      atomic.Uint64
	activeFeeds atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncMessage() {
	m.messages.Add(1)
}

func (m *Metrics) IncHeartbeat() {
	m.heartbeats.Add(1)
}

func (m *Metrics) IncClear() {
	m.clears.Add(1)
}

func (m *Metrics) IncFeed() {
	m.activeFeeds.Add(1)
}

func (m *Metrics) DecFeed() {
	m.activeFeeds.Add(-1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"messages_total":   m.messages.Load(),
		"heartbeats_total": m.heartbeats.Load(),
		"clears_total":     m.clears.Load(),
		"active_feeds":     m.activeFeeds.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
