package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/hapticbridge/channel"
	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/sentence"
)

// Channels are the device channels a Dispatcher owns. Either may be nil.
type Channels struct {
	Serial channel.DeviceChannel
	Vendor channel.DeviceChannel
}

// Dispatcher converts sentences per channel flavor and sends them to the channels
// the resolver selects.
type Dispatcher struct {
	resolver  *Resolver
	converter *convert.Converter
	channels  Channels
	metrics   *metric.Metrics
	reporter  Reporter
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch outcomes in m.
func WithMetrics(m *metric.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithReporter forwards every Result to r.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) {
		d.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher. It owns the channels and closes them on Close.
func NewDispatcher(resolver *Resolver, converter *convert.Converter, channels Channels, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:  resolver,
		converter: converter,
		channels:  channels,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Resolver returns the mode resolver.
func (d *Dispatcher) Resolver() *Resolver {
	return d.resolver
}

// Dispatch resolves the current mode and sends s to the selected channels.
func (d *Dispatcher) Dispatch(ctx context.Context, s sentence.Sentence) Result {
	mode, chans := d.resolver.Selected(ctx)
	result := d.Send(ctx, s, chans)
	result.Mode = mode
	if len(chans) == 0 {
		d.logger.Info("Message processed but not sent", "mode", string(mode), "kind", result.Kind.String())
	}
	d.report(ctx, result)
	return result
}

// Send converts and sends s to each channel in order. A failing channel does not
// stop the next one. Unavailable channels drop the message.
func (d *Dispatcher) Send(ctx context.Context, s sentence.Sentence, chans []channel.DeviceChannel) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := Result{At: time.Now()}
	if s != nil {
		result.Kind = s.Kind()
	}

	for _, ch := range chans {
		result.Channels = append(result.Channels, d.sendOne(ctx, s, ch))
	}
	return result
}

func (d *Dispatcher) sendOne(ctx context.Context, s sentence.Sentence, ch channel.DeviceChannel) ChannelResult {
	cr := ChannelResult{Channel: ch.Name()}

	if err := ctx.Err(); err != nil {
		cr.Status = StatusSkipped
		cr.Err = err
		return cr
	}

	out, err := d.converter.Convert(s, ch.Flavor())
	if err != nil {
		cr.Status = StatusSkipped
		cr.Err = err
		d.logger.Warn("Conversion failed", "channel", ch.Name(), "error", err)
		d.metrics.RecordError("frame-converter", errors.Kind(err))
		d.metrics.RecordDispatch(ch.Name(), string(cr.Status), 0)
		return cr
	}
	cr.Commands = out.Len()

	start := time.Now()
	err = ch.Send(ctx, out)
	cr.Duration = time.Since(start)

	switch {
	case err == nil:
		cr.Status = StatusSent
		d.logger.Debug("Message sent", "channel", ch.Name(), "commands", cr.Commands, "duration", cr.Duration)
	case errors.Is(err, errors.ErrChannelUnavailable):
		cr.Status = StatusUnavailable
		cr.Err = err
		d.logger.Warn("Channel unavailable, message dropped", "channel", ch.Name(), "error", err)
		d.metrics.RecordMessageDropped("channel_unavailable")
	default:
		cr.Status = StatusFailed
		cr.Err = err
		class := errors.Classify(err)
		if class == errors.ErrorInvalid {
			d.logger.Warn("Channel rejected message", "channel", ch.Name(), "class", class.String(), "error", err)
		} else {
			d.logger.Error("Channel send failed", "channel", ch.Name(), "class", class.String(), "error", err)
		}
		d.metrics.RecordError(ch.Name(), errors.Kind(err))
	}

	d.metrics.RecordDispatch(ch.Name(), string(cr.Status), cr.Duration)
	return cr
}

func (d *Dispatcher) report(ctx context.Context, r Result) {
	if d.reporter == nil {
		return
	}
	if err := d.reporter.Report(ctx, r); err != nil {
		d.logger.Debug("Result report failed", "error", err)
	}
}

// Close closes every owned channel and returns the first error.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for _, ch := range []channel.DeviceChannel{d.channels.Serial, d.channels.Vendor} {
		if ch == nil {
			continue
		}
		if err := ch.Close(); err != nil {
			d.logger.Warn("Channel close failed", "channel", ch.Name(), "error", err)
			if first == nil {
				first = errors.Wrap(err, "Dispatcher", "Close", "close "+ch.Name())
			}
		}
	}
	return first
}
