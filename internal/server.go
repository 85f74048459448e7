package internal

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"multichat/internal/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// we allow all origins in development; in production you should tighten this if the server is exposed publicly.
		return true
	},
}

// Server bundles the persistent store, the change feed hub, and the shared
// policy knobs (rate limits, admin identity, upload limits) behind the HTTP
// handlers.
type Server struct {
	store       *storage.Store
	hub         *FeedHub
	metrics     *Metrics
	authLimiter *RateLimiter
	msgLimiter  *RateLimiter
	adminUser   string
	tokenTTL    time.Duration
	uploadDir   string
	maxFileSize int64
}

func NewServer(store *storage.Store, adminUser, uploadDir string, maxFileSize int64) *Server {
	hub := NewFeedHub()
	go hub.run()
	return &Server{
		store:       store,
		hub:         hub,
		metrics:     NewMetrics(),
		authLimiter: NewRateLimiter(10, time.Minute),
		msgLimiter:  NewRateLimiter(30, 10*time.Second),
		adminUser:   adminUser,
		tokenTTL:    30 * 24 * time.Hour,
		uploadDir:   uploadDir,
		maxFileSize: maxFileSize,
	}
}

// MetricsHandler exposes the operational counters.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

type authContext struct {
	Token    string
	Username string
}

// authenticateRequest resolves the bearer token to a live session.
func (s *Server) authenticateRequest(r *http.Request) (authContext, error) {
	token := bearerToken(r)
	if token == "" {
		return authContext{}, errUnauthorized
	}
	session, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		return authContext{}, err
	}
	if session == nil || time.Now().After(session.ExpiresAt) {
		return authContext{}, errUnauthorized
	}
	return authContext{Token: token, Username: session.Username}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// websocket dials from some clients cannot set headers, so the feed also
	// accepts the token as a query parameter.
	return r.URL.Query().Get("token")
}

func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FeedHub fans every accepted mutation out to all subscribed feed connections.
// Unlike a per-room hub there is a single broadcast domain: each client's sync
// engine filters events for the channels it cares about.
type FeedHub struct {
	mutex      sync.RWMutex
	clients    map[*feedClient]bool
	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan []byte
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[*feedClient]bool),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan []byte, 256),
	}
}

// Broadcast encodes the event once and queues it for every subscriber.
func (hub *FeedHub) Broadcast(ev ChangeEvent) {
	encoded, err := json.Marshal(ev)
	if err != nil {
		log.Printf("feed encode error: %v", err)
		return
	}
	hub.broadcast <- encoded
}

func (hub *FeedHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = true
			hub.mutex.Unlock()
		case client := <-hub.unregister:
			hub.mutex.Lock()
			if _, exists := hub.clients[client]; exists {
				delete(hub.clients, client)
				close(client.send)
			}
			hub.mutex.Unlock()
		case payload := <-hub.broadcast:
			hub.mutex.Lock()
			for client := range hub.clients {
				select {
				case client.send <- payload:
				default:
					// this client is too slow to read; we drop the connection to avoid backpressure on the hub.
					close(client.send)
					delete(hub.clients, client)
				}
			}
			hub.mutex.Unlock()
		}
	}
}

// a feedClient wraps a single websocket subscription and a buffered send queue.
type feedClient struct {
	hub      *FeedHub
	conn     *websocket.Conn
	send     chan []byte
	username string
}

// ServeFeed upgrades the request to a websocket and subscribes it to the
// change feed. The feed is one-way; mutations go through the REST handlers.
func (s *Server) ServeFeed(writer http.ResponseWriter, request *http.Request) {
	authCtx, err := s.authenticateRequest(request)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(writer, http.StatusText(status), status)
		return
	}
	websocketConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	client := &feedClient{
		hub:      s.hub,
		conn:     websocketConn,
		send:     make(chan []byte, 256),
		username: authCtx.Username,
	}
	s.hub.register <- client
	s.metrics.IncFeed()

	go client.writePump()
	go client.readPump(s.metrics)
}

// readPump only maintains the pong deadline and detects the close; inbound
// payloads on the feed are ignored.
func (client *feedClient) readPump(metrics *Metrics) {
	defer func() {
		client.hub.unregister <- client
		client.conn.Close()
		metrics.DecFeed()
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			// this is a normal close or read error, so we break and let the deferred cleanup run.
			break
		}
	}
}

func (client *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// if the send channel has been closed, we ask the peer to close and then return.
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
