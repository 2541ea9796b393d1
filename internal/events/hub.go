// Package events streams pipeline notifications to WebSocket clients.
//
// A [Hub] is registered as a [pipeline.Observer]. Every state change,
// transcription and error is encoded as a JSON [Event] and fanned out to all
// connected clients. Clients that fall behind lose events instead of slowing
// the pipeline down.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxshift/internal/pipeline"
)

// Event types carried in [Event.Type].
const (
	TypeState         = "state"
	TypeTranscription = "transcription"
	TypeError         = "error"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Event is the JSON payload of one WebSocket text message.
type Event struct {
	Type  string    `json:"type"`
	State string    `json:"state,omitempty"`
	Text  string    `json:"text,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// Option configures a [Hub].
type Option func(*Hub)

// WithBuffer sets the number of events queued per client before new events
// are dropped for that client.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns. See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = append(h.origins, patterns...) }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

type client struct {
	ch chan []byte
}

// Hub fans pipeline events out to WebSocket subscribers. It is safe for
// concurrent use.
type Hub struct {
	buffer  int
	origins []string
	log     *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte // most recent state event, replayed to new clients
}

var (
	_ pipeline.Observer = (*Hub)(nil)
	_ http.Handler      = (*Hub)(nil)
)

// New creates an empty [Hub].
func New(opts ...Option) *Hub {
	h := &Hub{
		buffer:  defaultBuffer,
		log:     slog.Default(),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnStateChange implements [pipeline.Observer].
func (h *Hub) OnStateChange(s pipeline.State) {
	h.publish(Event{Type: TypeState, State: s.String()}, true)
}

// OnTranscription implements [pipeline.Observer].
func (h *Hub) OnTranscription(text string) {
	h.publish(Event{Type: TypeTranscription, Text: text}, false)
}

// OnError implements [pipeline.Observer].
func (h *Hub) OnError(err error) {
	if err == nil {
		return
	}
	h.publish(Event{Type: TypeError, Error: err.Error()}, false)
}

// Publish sends e to every client. A zero e.Time is set to the current time.
func (h *Hub) Publish(e Event) {
	h.publish(e, e.Type == TypeState)
}

func (h *Hub) publish(e Event, remember bool) {
	if e.Time.IsZero() {
		e.Time = h.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Warn("events: encode failed", "type", e.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if remember {
		h.last = data
	}
	for c := range h.clients {
		select {
		case c.ch <- data:
		default:
			h.log.Debug("events: client too slow, dropping event", "type", e.Type)
		}
	}
}

func (h *Hub) subscribe() *client {
	c := &client{ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	if h.last != nil {
		c.ch <- h.last
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client disconnects or the request context ends. Messages sent by the client
// are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Debug("events: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	c := h.subscribe()
	defer h.unsubscribe(c)
	h.log.Debug("events: client connected", "remote", r.RemoteAddr)

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, c); err != nil {
		h.log.Debug("events: client disconnected", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.ch:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
