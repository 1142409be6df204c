package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

// =========================================================================
// TEST HELPERS
// =========================================================================

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// newTestHub wires a router with a few echo handlers behind an httptest
// server and returns the hub and its ws:// URL.
func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()

	r := NewRouter()
	r.OnConnect(func(_ context.Context, sess *Session, _ json.RawMessage) (Reply, error) {
		return Reply{Event: "connect", Data: map[string]string{"id": sess.ID}, Audience: Self}, nil
	})
	r.On("ping", func(context.Context, *Session, json.RawMessage) (Reply, error) {
		return Reply{Event: "pong", Audience: Self}, nil
	})
	r.On("shout", func(_ context.Context, _ *Session, data json.RawMessage) (Reply, error) {
		return Reply{Event: "shouted", Data: data, Audience: Others}, nil
	})
	r.On("announce", func(context.Context, *Session, json.RawMessage) (Reply, error) {
		return Reply{Event: "announced", Audience: All}, nil
	})
	r.On("login", func(_ context.Context, sess *Session, data json.RawMessage) (Reply, error) {
		var p struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Reply{}, apperror.ValidationFailed("data", "bad payload")
		}
		sess.Email = p.Email
		return Reply{}, nil
	})
	r.On("whoami", func(_ context.Context, sess *Session, _ json.RawMessage) (Reply, error) {
		return Reply{Event: "whoami", Data: map[string]string{"email": sess.Email}, Audience: Self}, nil
	})
	r.On("fail", func(context.Context, *Session, json.RawMessage) (Reply, error) {
		return Reply{}, errors.New("pq: relation \"user_data\" does not exist")
	})
	r.On("missing", func(context.Context, *Session, json.RawMessage) (Reply, error) {
		return Reply{}, apperror.NotFound("country", "atlantis")
	})

	hub := NewHub(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects, consumes the connect event and waits until the hub has
// registered the connection. Inbound events are only read after
// registration, so the pong proves it.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	f := readFrame(t, conn)
	require.Equal(t, "connect", f.Event)
	send(t, conn, "ping", nil)
	expectNext(t, conn, "pong")
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env := map[string]any{"event": event}
	if data != nil {
		env["data"] = data
	}
	require.NoError(t, conn.WriteJSON(env))
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// expectNext asserts that the next frame on conn is event. Used after a
// "ping" to prove nothing else was queued ahead of the pong.
func expectNext(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, event, f.Event)
	return f
}

// =========================================================================
// AUDIENCES
// =========================================================================

func TestConnect_OnlyReachesNewClient(t *testing.T) {
	hub, url := newTestHub(t)

	a := dial(t, url)
	_ = dial(t, url)

	// If B's connect event had been broadcast, it would be queued on A ahead
	// of this pong.
	send(t, a, "ping", nil)
	expectNext(t, a, "pong")
	assert.Equal(t, 2, hub.Count())
}

func TestConnect_AssignsDistinctIDs(t *testing.T) {
	_, url := newTestHub(t)

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		resp.Body.Close()
		t.Cleanup(func() { conn.Close() })

		f := readFrame(t, conn)
		var data struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &data))
		require.NotEmpty(t, data.ID)
		ids[data.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestOthers_ExcludesSender(t *testing.T) {
	_, url := newTestHub(t)
	a, b, c := dial(t, url), dial(t, url), dial(t, url)

	send(t, a, "shout", map[string]string{"msg": "hi"})

	for _, conn := range []*websocket.Conn{b, c} {
		f := expectNext(t, conn, "shouted")
		assert.JSONEq(t, `{"msg":"hi"}`, string(f.Data))
	}

	send(t, a, "ping", nil)
	expectNext(t, a, "pong")
}

func TestAll_IncludesSender(t *testing.T) {
	_, url := newTestHub(t)
	a, b := dial(t, url), dial(t, url)

	send(t, a, "announce", nil)

	expectNext(t, a, "announced")
	expectNext(t, b, "announced")
}

func TestEmit_ServerInitiated(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, url)

	assert.Equal(t, 1, hub.Emit(nil, All, "tick", 1))
	assert.Equal(t, 0, hub.Emit(nil, Self, "tick", 2), "Self without a sender reaches nobody")

	f := expectNext(t, a, "tick")
	assert.Equal(t, "1", string(f.Data))
}

func TestEmit_OthersWithoutSender(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, url)

	assert.Equal(t, 0, hub.Emit(nil, Others, "tick", 1), "Others without a sender reaches nobody")

	send(t, a, "ping", nil)
	expectNext(t, a, "pong")
}

func TestConnect_ReplyPrecedesBroadcasts(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	r := NewRouter()
	r.OnConnect(func(context.Context, *Session, json.RawMessage) (Reply, error) {
		close(entered)
		<-release
		return Reply{Event: "connect", Audience: Self}, nil
	})
	hub := NewHub(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	// A broadcast while the connect handler is still running must not
	// overtake the connect reply.
	<-entered
	assert.Equal(t, 0, hub.Emit(nil, All, "news", nil))
	close(release)

	expectNext(t, conn, "connect")
	assert.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Emit(nil, All, "news", nil))
	expectNext(t, conn, "news")
}

// =========================================================================
// SESSIONS AND ORDERING
// =========================================================================

func TestSession_IsPerConnection(t *testing.T) {
	_, url := newTestHub(t)
	a, b := dial(t, url), dial(t, url)

	send(t, a, "login", map[string]string{"email": "a@x.com"})
	send(t, b, "login", map[string]string{"email": "b@x.com"})

	send(t, a, "whoami", nil)
	send(t, b, "whoami", nil)

	fa := expectNext(t, a, "whoami")
	fb := expectNext(t, b, "whoami")
	assert.JSONEq(t, `{"email":"a@x.com"}`, string(fa.Data))
	assert.JSONEq(t, `{"email":"b@x.com"}`, string(fb.Data))
}

func TestEvents_ProcessedInOrder(t *testing.T) {
	_, url := newTestHub(t)
	a := dial(t, url)

	for i := 0; i < 5; i++ {
		send(t, a, "ping", nil)
		send(t, a, "whoami", nil)
	}
	for i := 0; i < 5; i++ {
		expectNext(t, a, "pong")
		expectNext(t, a, "whoami")
	}
}

// =========================================================================
// ERRORS
// =========================================================================

func TestUnknownEvent(t *testing.T) {
	_, url := newTestHub(t)
	a := dial(t, url)

	send(t, a, "dance", nil)

	f := expectNext(t, a, ErrorEvent)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "dance", p.Event)
	assert.Equal(t, "validation_error", p.Error)
	assert.Contains(t, p.Message, "dance")
}

func TestMalformedEnvelope(t *testing.T) {
	_, url := newTestHub(t)
	a := dial(t, url)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	f := expectNext(t, a, ErrorEvent)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "validation_error", p.Error)

	// The connection survives a bad frame.
	send(t, a, "ping", nil)
	expectNext(t, a, "pong")
}

func TestHandlerError_OnlyToSender(t *testing.T) {
	_, url := newTestHub(t)
	a, b := dial(t, url), dial(t, url)

	send(t, a, "fail", nil)

	f := expectNext(t, a, ErrorEvent)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, ErrorPayload{Event: "fail", Error: "internal_error", Message: "an internal error occurred"}, p)

	send(t, b, "ping", nil)
	expectNext(t, b, "pong")
}

func TestHandlerError_AppErrorMessage(t *testing.T) {
	_, url := newTestHub(t)
	a := dial(t, url)

	send(t, a, "missing", nil)

	f := expectNext(t, a, ErrorEvent)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "not_found", p.Error)
	assert.Equal(t, "country not found with id atlantis", p.Message)
}

// =========================================================================
// LIFECYCLE
// =========================================================================

func TestDisconnect_Unregisters(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, url)
	require.Equal(t, 1, hub.Count())

	a.Close()

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClose_DisconnectsAndRefuses(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, url)

	hub.Close()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.Close() // second call is a no-op
}

func TestEnqueue_FullQueueDropsClient(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	peer, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { peer.Close() })

	hub := NewHub(NewRouter(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := newClient(hub, <-conns, &Session{ID: "slow"}, hub.logger)

	// No writePump: the queue never drains.
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.enqueue([]byte(`{"event":"tick"}`)))
	}

	start := time.Now()
	assert.False(t, c.enqueue([]byte(`{"event":"tick"}`)))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-c.done:
	default:
		t.Fatal("client should be closed")
	}

	// The socket is cut without a close frame.
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = peer.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	assert.False(t, errors.As(err, &closeErr), "unexpected close frame: %v", err)
}

func TestUpgrade_PlainHTTPRejected(t *testing.T) {
	hub, _ := newTestHub(t)

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, hub.Count())
}
