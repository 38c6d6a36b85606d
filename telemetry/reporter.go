package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/hapticbridge/dispatch"
	"github.com/c360/hapticbridge/errors"
)

// Publisher sends raw bytes on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the published form of a dispatch result.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Mode      string         `json:"mode"`
	Kind      string         `json:"kind"`
	Sent      bool           `json:"sent"`
	Channels  []ChannelEvent `json:"channels"`
}

// ChannelEvent is one channel outcome of an Event.
type ChannelEvent struct {
	Channel    string  `json:"channel"`
	Status     string  `json:"status"`
	Commands   int     `json:"commands"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// NewEvent converts a dispatch result.
func NewEvent(r dispatch.Result) Event {
	ev := Event{
		Timestamp: r.At.UTC(),
		Mode:      r.Mode.String(),
		Kind:      r.Kind.String(),
		Sent:      r.Sent(),
		Channels:  make([]ChannelEvent, 0, len(r.Channels)),
	}
	for _, c := range r.Channels {
		ce := ChannelEvent{
			Channel:    c.Channel,
			Status:     string(c.Status),
			Commands:   c.Commands,
			DurationMs: float64(c.Duration) / float64(time.Millisecond),
		}
		if c.Err != nil {
			ce.Error = c.Err.Error()
		}
		ev.Channels = append(ev.Channels, ce)
	}
	return ev
}

// Reporter publishes dispatch results as JSON events. It implements dispatch.Reporter.
type Reporter struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewReporter publishes on subject through pub.
func NewReporter(pub Publisher, subject string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		pub:     pub,
		subject: subject,
		logger:  logger.With("component", "telemetry", "subject", subject),
	}
}

// Connect dials the NATS server at url and returns a Reporter that owns the
// connection. The client keeps reconnecting in the background after a loss.
func Connect(ctx context.Context, url, subject string, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telemetry")

	opts := []nats.Option{
		nats.Name("hapticbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	}

	type dialResult struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(url, opts...)
		done <- dialResult{conn, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, errors.WrapTransient(res.err, "Telemetry", "Connect", "connect to "+url)
		}
		r := NewReporter(res.conn, subject, logger)
		r.conn = res.conn
		r.logger.Info("Publishing dispatch results", "url", url)
		return r, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "Telemetry", "Connect", "connection cancelled")
	}
}

// Report implements dispatch.Reporter
func (r *Reporter) Report(_ context.Context, res dispatch.Result) error {
	data, err := json.Marshal(NewEvent(res))
	if err != nil {
		return errors.WrapInvalid(err, "Telemetry", "Report", "marshal event")
	}
	if err := r.pub.Publish(r.subject, data); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrTransport, err), "Telemetry", "Report", "publish")
	}
	return nil
}

// Close drains an owned connection.
func (r *Reporter) Close() error {
	if r.conn == nil {
		return nil
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return errors.Wrap(err, "Telemetry", "Close", "drain")
	}
	return nil
}
