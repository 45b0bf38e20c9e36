package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/pigeonchat/pigeon/internal/auth"
	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/presence"
	"github.com/pigeonchat/pigeon/internal/user"
)

const (
	sendBuffer   = 64
	eventBuffer  = 256
	writeTimeout = 5 * time.Second
)

// Hub owns every live connection. A single run loop serializes connection
// lifecycle and event fan-out, so events for one conversation reach each
// connection in the order their mutations were accepted by the store.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan chat.Event
	done       chan struct{}
	clients    map[presence.ConnID]*Client
	presence   *presence.Registry
	log        *slog.Logger
}

func NewHub(registry *presence.Registry, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan chat.Event, eventBuffer),
		done:       make(chan struct{}),
		clients:    make(map[presence.ConnID]*Client),
		presence:   registry,
		log:        log,
	}
}

// Run serializes connection lifecycle and fan-out until ctx is cancelled.
// The done channel it closes on exit releases client loops and dispatchers
// that would otherwise block on a loop that is no longer draining.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				c.close(websocket.StatusGoingAway, "server shutdown")
			}
			return
		case c := <-h.register:
			h.clients[c.connID] = c
			if h.presence.Register(c.userID, c.connID) {
				h.broadcastOnline()
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c.connID]; !ok {
				continue
			}
			delete(h.clients, c.connID)
			if _, wentOffline := h.presence.Unregister(c.connID); wentOffline {
				h.broadcastOnline()
			}
			c.close(websocket.StatusNormalClosure, "bye")
		case evt := <-h.events:
			h.fanOut(evt)
		}
	}
}

// Dispatch hands an event to the run loop. The mutation's response never
// waits on delivery; the only coupling is the enqueue itself. After the hub
// has stopped the event is dropped.
func (h *Hub) Dispatch(evt chat.Event) {
	select {
	case h.events <- evt:
	case <-h.done:
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID user.ID) bool {
	return h.presence.IsOnline(userID)
}

func (h *Hub) OnlineUserIDs() []user.ID {
	return h.presence.OnlineUserIDs()
}

func (h *Hub) ClientCount() int {
	return h.presence.ConnectionCount()
}

// fanOut delivers the event to every connection of both participants. A
// participant with no live connections simply misses the push; they will
// observe the state on their next full fetch.
func (h *Hub) fanOut(evt chat.Event) {
	data, err := json.Marshal(encodeEvent(evt))
	if err != nil {
		h.log.Error("encode event failed", "kind", evt.Kind(), "error", err)
		return
	}

	a, b := evt.Participants()
	for _, userID := range []user.ID{a, b} {
		for _, connID := range h.presence.ConnectionsFor(userID) {
			c, ok := h.clients[connID]
			if !ok {
				continue
			}
			if !c.Send(data) {
				h.log.Warn("dropping event for slow connection", "kind", evt.Kind(), "user", string(userID))
			}
		}
	}
}

// broadcastOnline pushes the full online-user set to every connection.
// Presence is global, not scoped to conversation pairs.
func (h *Hub) broadcastOnline() {
	ids := h.presence.OnlineUserIDs()
	data, err := json.Marshal(onlineEvent{Type: "online", UserIDs: ids})
	if err != nil {
		return
	}
	for _, c := range h.clients {
		_ = c.Send(data)
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	validator, ok := r.Context().Value(authValidatorKey{}).(tokenValidator)
	if !ok || validator == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	session, err := authenticateRequest(r, validator)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	client := &Client{
		conn:   conn,
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		userID: session.UserID,
		connID: presence.ConnID(uuid.NewString()),
	}

	h.register <- client

	go client.writeLoop()
	client.readLoop()
}

// Client is one live connection. It belongs to exactly one user for its
// lifetime and is never persisted.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte
	closeOnce sync.Once
	userID    user.ID
	connID    presence.ConnID
}

// Send enqueues without blocking; a full buffer drops the payload.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readLoop drains the connection. Clients mutate over the REST surface, so
// inbound frames only matter as liveness; their payloads are discarded.
func (c *Client) readLoop() {
	defer c.deregister()

	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.deregister()
				return
			}
		}
	}
}

// deregister hands the client back to the run loop, or returns immediately
// when the hub has already stopped and closed every client itself.
func (c *Client) deregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *Client) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		_ = c.conn.Close(status, reason)
	})
}

type tokenValidator interface {
	ValidateToken(token string) (auth.Session, error)
}

type authValidatorKey struct{}

func WithAuthValidator(next http.Handler, validator tokenValidator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), authValidatorKey{}, validator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authenticateRequest(r *http.Request, validator tokenValidator) (auth.Session, error) {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return validator.ValidateToken(token)
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return auth.Session{}, auth.ErrUnauthorized
		}
		return validator.ValidateToken(parts[1])
	}
	return auth.Session{}, auth.ErrUnauthorized
}
