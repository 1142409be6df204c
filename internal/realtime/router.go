package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc handles one inbound event. data is nil when the envelope had no
// payload.
type HandlerFunc func(ctx context.Context, sess *Session, data json.RawMessage) (Reply, error)

// Router maps event names to handlers. Register everything before the hub
// starts accepting connections.
type Router struct {
	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	onConnect HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// On registers h for event. Registering the same event twice panics, like
// http.ServeMux does for duplicate patterns.
func (r *Router) On(event string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event == "" {
		panic("realtime: empty event name")
	}
	if _, dup := r.handlers[event]; dup {
		panic(fmt.Sprintf("realtime: handler for %q registered twice", event))
	}
	r.handlers[event] = h
}

// OnConnect registers the handler run once for every new connection, before
// any of its inbound events.
func (r *Router) OnConnect(h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConnect = h
}

func (r *Router) lookup(event string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[event]
	return h, ok
}

func (r *Router) connectHandler() HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onConnect
}

// Events returns the registered event names, sorted, for logging at startup.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for e := range r.handlers {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
