package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/pkg/retry"
)

// State is the loop's connection state.
type State int

// Loop states. Shutdown is terminal.
const (
	StateDisconnected State = metric.StateDisconnected
	StateConnecting   State = metric.StateConnecting
	StateConnected    State = metric.StateConnected
	StateShutdown     State = metric.StateShutdown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loop keeps one inbound WebSocket connection alive and routes its messages one at a
// time. Connection loss leads to a backoff wait and a reconnect; only context
// cancellation ends Run.
type Loop struct {
	cfg     Config
	router  *Router
	dialer  *websocket.Dialer
	backoff *retry.Backoff
	logger  *slog.Logger
	metrics *metric.Metrics

	mu        sync.RWMutex
	state     State
	sessionID string
	sessions  int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records connection state and reconnects.
func WithMetrics(m *metric.Metrics) LoopOption {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithDialer replaces the WebSocket dialer. HandshakeTimeout is kept from the dialer.
func WithDialer(d *websocket.Dialer) LoopOption {
	return func(l *Loop) {
		if d != nil {
			l.dialer = d
		}
	}
}

// NewLoop creates a stream loop for cfg. Zero timings take their defaults.
func NewLoop(cfg Config, router *Router, opts ...LoopOption) (*Loop, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if router == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "StreamLoop", "NewLoop", "check router")
	}

	l := &Loop{
		cfg:    cfg,
		router: router,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		backoff: retry.NewBackoff(cfg.ReconnectInitial, cfg.ReconnectMax, 2),
		logger:  slog.Default(),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "stream-loop")
	return l, nil
}

// State returns the current connection state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Sessions returns the number of connections established so far.
func (l *Loop) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessions
}

// SessionID returns the id of the current or last connection.
func (l *Loop) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// Healthy reports whether the stream is connected, for health endpoints.
func (l *Loop) Healthy() (bool, string) {
	s := l.State()
	return s == StateConnected, s.String()
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()

	if prev != s {
		l.logger.Debug("Stream state", "from", prev.String(), "to", s.String())
	}
	l.metrics.RecordConnectionState(int(s))
}

// Run connects and processes messages until ctx is cancelled. It returns nil on
// shutdown.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Stream loop starting", "url", l.cfg.URL)
	defer l.logger.Info("Stream loop stopped")

	for {
		if ctx.Err() != nil {
			l.setState(StateShutdown)
			return nil
		}

		l.setState(StateConnecting)
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.setState(StateShutdown)
			return nil
		}
		l.setState(StateDisconnected)

		delay := l.backoff.Next()
		l.logger.Warn("Stream disconnected, reconnecting",
			"error", err, "class", errors.Classify(err).String(), "delay", delay)
		l.metrics.RecordError("stream-loop", errors.Kind(err))
		l.metrics.RecordReconnect(delay)

		if err := retry.Sleep(ctx, delay); err != nil {
			l.setState(StateShutdown)
			return nil
		}
	}
}

// session runs one connection from dial to loss.
func (l *Loop) session(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "StreamLoop", "session", "dial")
	}

	id := uuid.NewString()
	logger := l.logger.With("session_id", id)

	l.mu.Lock()
	l.sessionID = id
	l.sessions++
	l.mu.Unlock()

	l.backoff.Reset()
	l.setState(StateConnected)
	logger.Info("Stream connected")

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		l.watch(sessCtx, ctx, conn)
	}()
	go func() {
		defer wg.Done()
		l.ping(sessCtx, conn, logger)
	}()

	readTimeout := l.cfg.PingInterval + l.cfg.PingTimeout
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	reply := func(data []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(l.cfg.PingTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "StreamLoop", "session", "set deadline")
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return l.readFailure(err)
		}

		if msgType == websocket.BinaryMessage && !utf8.Valid(data) {
			logger.Warn("Dropping binary frame that is not UTF-8 text", "size", len(data))
			l.metrics.RecordMessageDropped("decode")
			continue
		}

		l.router.Route(ctx, data, reply)
	}
}

func (l *Loop) readFailure(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapTransient(fmt.Errorf("%w: no traffic within read deadline", errors.ErrConnectionTimeout),
			"StreamLoop", "session", "read")
	}
	return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "StreamLoop", "session", "read")
}

// watch closes the socket when the session ends. On shutdown it says goodbye first.
func (l *Loop) watch(sessCtx, parent context.Context, conn *websocket.Conn) {
	<-sessCtx.Done()
	if parent.Err() != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	_ = conn.Close()
}

func (l *Loop) ping(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(l.cfg.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("Protocol ping failed", "error", err)
				return
			}
		}
	}
}
