package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

// Hub tracks every open connection and routes replies to an audience.
type Hub struct {
	router   *Router
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool

	// ctx is handed to handlers and cancelled by Close, so in-flight upstream
	// calls stop when the server shuts down.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(router *Router, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served to any origin, same as its CORS policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sess := &Session{ID: xid.New().String()}
	c := newClient(h, conn, sess, h.logger)
	go c.writePump()

	// The connect reply is queued before the client joins the hub, so it is
	// always the first frame the client sees.
	if onConnect := h.router.connectHandler(); onConnect != nil {
		h.run(h.ctx, c, "connect", nil, onConnect)
	}

	if !h.register(c) {
		c.close()
		return
	}
	defer h.unregister(c)

	c.logger.Info("client connected", "remote", r.RemoteAddr, "clients", h.Count())
	c.readPump(h.ctx)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.ID()] = c
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID())
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	c.logger.Info("client disconnected", "clients", n)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// dispatch runs the handler registered for env.Event on behalf of c.
func (h *Hub) dispatch(ctx context.Context, c *Client, env Envelope) {
	handler, ok := h.router.lookup(env.Event)
	if !ok {
		h.emitError(c, env.Event, unknownEvent(env.Event))
		return
	}
	h.run(ctx, c, env.Event, env.Data, handler)
}

func (h *Hub) run(ctx context.Context, c *Client, event string, data json.RawMessage, handler HandlerFunc) {
	start := time.Now()

	reply, err := handler(ctx, c.session, data)
	if err != nil {
		c.logger.Error("event failed",
			slog.String("event", event),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		h.emitError(c, event, err)
		return
	}

	delivered := 0
	if reply.Event != "" {
		delivered = h.reply(c, reply.Audience, reply.Event, reply.Data)
	}

	c.logger.Info("event handled",
		slog.String("event", event),
		slog.String("reply", reply.Event),
		slog.String("audience", reply.Audience.String()),
		slog.Int("delivered", delivered),
		slog.Duration("duration", time.Since(start)),
	)
}

func (h *Hub) emitError(c *Client, event string, err error) {
	h.reply(c, Self, ErrorEvent, NewErrorPayload(event, err))
}

// reply delivers a handler's answer. Self goes straight to c, which may not
// be registered yet while its connect handler runs.
func (h *Hub) reply(c *Client, audience Audience, event string, data any) int {
	if audience != Self {
		return h.Emit(c.session, audience, event, data)
	}
	msg, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		h.logger.Error("encoding outbound event", "event", event, "error", err)
		return 0
	}
	if c.enqueue(msg) {
		return 1
	}
	return 0
}

// Emit sends event to the audience relative to from and returns how many
// connections it was queued for. from may be nil for server-initiated
// messages, in which case only All reaches anyone.
func (h *Hub) Emit(from *Session, audience Audience, event string, data any) int {
	msg, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		h.logger.Error("encoding outbound event", "event", event, "error", err)
		return 0
	}

	targets := h.targets(from, audience)
	n := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			n++
		}
	}
	return n
}

func (h *Hub) targets(from *Session, audience Audience) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch audience {
	case Self:
		if from == nil {
			return nil
		}
		if c, ok := h.clients[from.ID]; ok {
			return []*Client{c}
		}
		return nil
	case Others, All:
		if audience == Others && from == nil {
			return nil
		}
		out := make([]*Client, 0, len(h.clients))
		for id, c := range h.clients {
			if audience == Others && id == from.ID {
				continue
			}
			out = append(out, c)
		}
		return out
	default:
		return nil
	}
}

// Close disconnects every client and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		c.close()
	}
	h.logger.Info("hub closed", "clients", len(clients))
}

func unknownEvent(event string) error {
	return apperror.ValidationFailed("event", fmt.Sprintf("unknown event %q", event))
}
