package stream

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/c360/hapticbridge/dispatch"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/sentence"
)

// ReplyFunc writes a text reply on the current connection.
type ReplyFunc func(data []byte) error

// Dispatcher sends color and contour sentences to the devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, s sentence.Sentence) dispatch.Result
}

// Controller answers control commands.
type Controller interface {
	Apply(cmd sentence.ControlCommand) ([]byte, error)
}

// Router classifies inbound messages and hands them to the right handler.
type Router struct {
	dispatcher Dispatcher
	controller Controller
	metrics    *metric.Metrics
	logger     *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterMetrics records received and dropped messages.
func WithRouterMetrics(m *metric.Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a Router.
func NewRouter(d Dispatcher, c Controller, opts ...RouterOption) *Router {
	r := &Router{
		dispatcher: d,
		controller: c,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// Route handles one message. It never returns an error: every failure is logged and
// the message dropped, so the loop keeps reading.
func (r *Router) Route(ctx context.Context, data []byte, reply ReplyFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic while routing message", "panic", rec, "stack", string(debug.Stack()))
			r.metrics.RecordError("router", "panic")
			r.metrics.RecordMessageDropped("panic")
		}
	}()

	s, err := sentence.Parse(data)
	if err != nil {
		r.logger.Warn("Dropping undecodable message", "error", err, "size", len(data))
		r.metrics.RecordError("router", errors.Kind(err))
		r.metrics.RecordMessageDropped("decode")
		return
	}
	r.metrics.RecordMessageReceived(s.Kind().String())

	switch v := s.(type) {
	case sentence.Heartbeat:
		if err := reply([]byte(sentence.HeartbeatReply)); err != nil {
			r.logger.Warn("Heartbeat reply failed", "error", err)
			return
		}
		r.metrics.RecordHeartbeat()

	case sentence.ServerEnvelope:
		r.logger.Info("Server message", "type", v.Type, "message", v.Message)

	case sentence.ControlCommand:
		if r.controller == nil {
			r.logger.Warn("Control command ignored, no controller", "cmd", v.Name)
			return
		}
		out, err := r.controller.Apply(v)
		if err != nil {
			r.logger.Warn("Control command rejected", "cmd", v.Name, "value", v.Value, "error", err)
		}
		if out != nil {
			if err := reply(out); err != nil {
				r.logger.Warn("Control reply failed", "cmd", v.Name, "error", err)
			}
		}

	case sentence.ColorDirective, sentence.ContourDirective:
		if r.dispatcher == nil {
			r.metrics.RecordMessageDropped("no_dispatcher")
			return
		}
		res := r.dispatcher.Dispatch(ctx, s)
		r.logger.Debug("Message dispatched",
			"kind", s.Kind().String(), "mode", res.Mode.String(), "sent", res.Sent())

	case sentence.Unrecognized:
		r.logger.Warn("Unrecognized message", "reason", v.Reason)
		r.metrics.RecordMessageDropped("unrecognized")
	}
}
