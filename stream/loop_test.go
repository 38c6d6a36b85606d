package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
)

// testServer is a WebSocket endpoint that records every text it receives.
type testServer struct {
	*httptest.Server
	received   chan string
	closeCodes chan int
	conns      atomic.Int32
}

// newTestServer starts a server. onConnect runs for every accepted connection before
// the read loop; the connection number starts at 1.
func newTestServer(t *testing.T, onConnect func(n int32, conn *websocket.Conn)) *testServer {
	t.Helper()
	ts := &testServer{
		received:   make(chan string, 32),
		closeCodes: make(chan int, 8),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		defer conn.Close()

		n := ts.conns.Add(1)
		if onConnect != nil {
			onConnect(n, conn)
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					ts.closeCodes <- ce.Code
				}
				return
			}
			ts.received <- string(msg)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + ts.URL[4:] + "/ws/listen/test-client"
}

func testConfig(url string) Config {
	return Config{
		URL:              url,
		PingInterval:     time.Second,
		PingTimeout:      time.Second,
		HandshakeTimeout: time.Second,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     40 * time.Millisecond,
	}
}

// startLoop runs l and returns a stop function that cancels it and waits for Run.
func startLoop(t *testing.T, l *Loop) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("loop did not stop")
		}
	}
	t.Cleanup(stop)
	return stop
}

func expectText(t *testing.T, ts *testServer) string {
	t.Helper()
	select {
	case msg := <-ts.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return ""
	}
}

func TestLoop_HeartbeatGetsExactlyOnePong(t *testing.T) {
	ts := newTestServer(t, func(_ int32, conn *websocket.Conn) {
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("__ping__")))
	})
	d := newFakeDispatcher()
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(d, nil))
	require.NoError(t, err)
	startLoop(t, l)

	assert.Equal(t, "__pong__", expectText(t, ts))
	select {
	case msg := <-ts.received:
		t.Fatalf("unexpected second reply %q", msg)
	case <-time.After(150 * time.Millisecond):
	}
	assert.Zero(t, d.calls())
}

func TestLoop_ConnectedState(t *testing.T) {
	ts := newTestServer(t, nil)
	registry := metric.NewMetricsRegistry()
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(newFakeDispatcher(), nil),
		WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, l.State())

	stop := startLoop(t, l)

	require.Eventually(t, func() bool { return l.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	healthy, status := l.Healthy()
	assert.True(t, healthy)
	assert.Equal(t, "connected", status)
	assert.NotEmpty(t, l.SessionID())
	assert.Equal(t, float64(StateConnected), testutil.ToFloat64(registry.CoreMetrics().ConnectionState))

	stop()
	assert.Equal(t, StateShutdown, l.State())
	assert.Equal(t, float64(StateShutdown), testutil.ToFloat64(registry.CoreMetrics().ConnectionState))
}

func TestLoop_ShutdownSendsCloseFrame(t *testing.T) {
	ts := newTestServer(t, nil)
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(newFakeDispatcher(), nil))
	require.NoError(t, err)

	stop := startLoop(t, l)
	require.Eventually(t, func() bool { return l.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	stop()

	select {
	case code := <-ts.closeCodes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no close frame")
	}
}

func TestLoop_DispatchesDirectivesInOrder(t *testing.T) {
	ts := newTestServer(t, func(_ int32, conn *websocket.Conn) {
		for _, msg := range []string{
			`{"color":{"r":10,"g":20,"b":30}}`,
			`{"type":"info","message":"hello"}`,
			`[{"frame_nodes":[{"node_index":2,"intensity":5}],"duration":20}]`,
		} {
			assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}
	})
	d := newFakeDispatcher()
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(d, nil))
	require.NoError(t, err)
	startLoop(t, l)

	for _, want := range []string{"color", "contour"} {
		select {
		case s := <-d.notify:
			assert.Equal(t, want, s.Kind().String())
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s dispatch", want)
		}
	}
	assert.Equal(t, 2, d.calls())
}

func TestLoop_ControlCommandReply(t *testing.T) {
	ts := newTestServer(t, func(_ int32, conn *websocket.Conn) {
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"set_mode","value":"vendor"}`)))
	})
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(newFakeDispatcher(), nil))
	require.NoError(t, err)
	startLoop(t, l)

	assert.JSONEq(t, `{"ok":true,"mode":"vendor"}`, expectText(t, ts))
}

func TestLoop_BinaryFrames(t *testing.T) {
	ts := newTestServer(t, func(_ int32, conn *websocket.Conn) {
		assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xfe, 0xfd}))
		assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("__ping__")))
	})
	registry := metric.NewMetricsRegistry()
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(newFakeDispatcher(), nil),
		WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	startLoop(t, l)

	assert.Equal(t, "__pong__", expectText(t, ts))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().MessagesDropped.WithLabelValues("decode")))
	assert.Equal(t, int32(1), ts.conns.Load(), "a bad frame must not drop the connection")
}

func TestLoop_ReconnectsAfterServerClose(t *testing.T) {
	ts := newTestServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			conn.Close()
		}
	})
	registry := metric.NewMetricsRegistry()
	l, err := NewLoop(testConfig(ts.wsURL()), newTestRouter(newFakeDispatcher(), nil),
		WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	startLoop(t, l)

	require.Eventually(t, func() bool { return ts.conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return l.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, l.Sessions(), 2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(registry.CoreMetrics().ReconnectAttempts), 1.0)
}

func TestLoop_ReadDeadlineExpiryReconnects(t *testing.T) {
	ts := newTestServer(t, func(n int32, _ *websocket.Conn) {
		if n == 1 {
			// Not reading means protocol pings are never answered.
			time.Sleep(300 * time.Millisecond)
		}
	})
	cfg := testConfig(ts.wsURL())
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 20 * time.Millisecond

	l, err := NewLoop(cfg, newTestRouter(newFakeDispatcher(), nil))
	require.NoError(t, err)
	startLoop(t, l)

	require.Eventually(t, func() bool { return ts.conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestLoop_DialFailureKeepsRetryingUntilShutdown(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.wsURL()
	ts.Close()

	registry := metric.NewMetricsRegistry()
	l, err := NewLoop(testConfig(url), newTestRouter(newFakeDispatcher(), nil),
		WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)
	stop := startLoop(t, l)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(registry.CoreMetrics().ReconnectAttempts) >= 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, l.Sessions())

	stop()
	assert.Equal(t, StateShutdown, l.State())
}

func TestLoop_RunReturnsImmediatelyWhenCancelled(t *testing.T) {
	l, err := NewLoop(testConfig("ws://127.0.0.1:1/ws"), newTestRouter(newFakeDispatcher(), nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, l.Run(ctx))
	assert.Equal(t, StateShutdown, l.State())
}

func TestNewLoop_Validation(t *testing.T) {
	router := newTestRouter(newFakeDispatcher(), nil)

	_, err := NewLoop(Config{}, router)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	_, err = NewLoop(Config{URL: "http://example.com"}, router)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	_, err = NewLoop(Config{URL: "ws://example.com", ReconnectInitial: time.Minute, ReconnectMax: time.Second}, router)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	_, err = NewLoop(Config{URL: "wss://example.com"}, nil)
	assert.Error(t, err)

	l, err := NewLoop(Config{URL: "wss://example.com"}, router)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PingInterval, l.cfg.PingInterval)
	assert.Equal(t, 2*time.Second, l.backoff.Peek())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
	assert.Equal(t, "state(9)", State(9).String())
}
