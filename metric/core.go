package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hapticbridge"

// Connection state values reported by ConnectionState
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
	StateShutdown     = 3
)

// Metrics contains the bridge-wide metrics. All Record methods are safe on a nil
// receiver so components can run without a registry.
type Metrics struct {
	MessagesReceived   *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	Dispatches         *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	SerialBytesWritten prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	ModeChanges        *prometheus.CounterVec

	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	BackoffSeconds    prometheus.Gauge
	HeartbeatsHandled prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Inbound messages by sentence kind",
			},
			[]string{"kind"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Inbound messages dropped without reaching a device",
			},
			[]string{"reason"},
		),

		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Per-channel dispatch outcomes",
			},
			[]string{"channel", "status"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent driving one channel for one message, pacing included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel"},
		),

		SerialBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "serial",
				Name:      "bytes_written_total",
				Help:      "Bytes written to the serial sink",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by component and taxonomy kind",
			},
			[]string{"component", "kind"},
		),

		ModeChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mode",
				Name:      "changes_total",
				Help:      "Output mode switches by new mode",
			},
			[]string{"mode"},
		),

		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "connection_state",
				Help:      "Stream state (0=disconnected, 1=connecting, 2=connected, 3=shutdown)",
			},
		),

		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "reconnect_attempts_total",
				Help:      "Reconnection attempts after a lost or failed connection",
			},
		),

		BackoffSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "backoff_seconds",
				Help:      "Current reconnect backoff delay",
			},
		),

		HeartbeatsHandled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "heartbeats_total",
				Help:      "Application heartbeats answered",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.MessagesReceived,
		c.MessagesDropped,
		c.Dispatches,
		c.DispatchDuration,
		c.SerialBytesWritten,
		c.ErrorsTotal,
		c.ModeChanges,
		c.ConnectionState,
		c.ReconnectAttempts,
		c.BackoffSeconds,
		c.HeartbeatsHandled,
	}
}

// RecordMessageReceived increments the received counter for a sentence kind
func (c *Metrics) RecordMessageReceived(kind string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageDropped increments the dropped counter
func (c *Metrics) RecordMessageDropped(reason string) {
	if c == nil {
		return
	}
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordDispatch records one channel outcome and its duration
func (c *Metrics) RecordDispatch(channel, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.Dispatches.WithLabelValues(channel, status).Inc()
	c.DispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordSerialBytes adds to the serial byte counter
func (c *Metrics) RecordSerialBytes(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.SerialBytesWritten.Add(float64(n))
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, kind string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(component, kind).Inc()
}

// RecordModeChange counts a switch to mode
func (c *Metrics) RecordModeChange(mode string) {
	if c == nil {
		return
	}
	c.ModeChanges.WithLabelValues(mode).Inc()
}

// RecordConnectionState updates the stream state gauge
func (c *Metrics) RecordConnectionState(state int) {
	if c == nil {
		return
	}
	c.ConnectionState.Set(float64(state))
}

// RecordReconnect counts a reconnect and publishes the delay before it
func (c *Metrics) RecordReconnect(delay time.Duration) {
	if c == nil {
		return
	}
	c.ReconnectAttempts.Inc()
	c.BackoffSeconds.Set(delay.Seconds())
}

// RecordHeartbeat counts an answered heartbeat
func (c *Metrics) RecordHeartbeat() {
	if c == nil {
		return
	}
	c.HeartbeatsHandled.Inc()
}
