package channel

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.bug.st/serial"
	"golang.org/x/time/rate"

	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/pkg/retry"
)

// StopCommand silences every actuator after a frame's duration.
const StopCommand = "[L,all:0]"

// SerialConfig configures the serial actuator bus.
type SerialConfig struct {
	Port        string        `yaml:"port" json:"port"`
	Baudrate    int           `yaml:"baudrate" json:"baudrate"`
	Terminator  string        `yaml:"terminator" json:"terminator"`
	ChunkSize   int           `yaml:"chunk_size" json:"chunk_size"`
	ChunkDelay  time.Duration `yaml:"chunk_delay" json:"chunk_delay"`
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// DefaultSerialConfig returns USB CDC friendly defaults: 9600 baud, 64 byte packets
// spaced 50ms apart.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Baudrate:    9600,
		ChunkSize:   64,
		ChunkDelay:  50 * time.Millisecond,
		SettleDelay: 50 * time.Millisecond,
	}
}

// Sink is the byte stream a Serial channel writes to.
type Sink interface {
	io.Writer
	Flush() error
	Close() error
}

// SinkOpener opens the sink for a port.
type SinkOpener func(ctx context.Context, port string, baudrate int) (Sink, error)

type portSink struct {
	serial.Port
}

func (p portSink) Flush() error {
	return p.Drain()
}

// OpenSerialPort opens a real serial port. A missing or non-serial device is not
// retried.
func OpenSerialPort(_ context.Context, port string, baudrate int) (Sink, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudrate})
	if err != nil {
		return nil, openError(err)
	}
	return portSink{Port: p}, nil
}

func openError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return retry.NonRetryable(err)
	}
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortNotFound, serial.InvalidSerialPort:
			return retry.NonRetryable(err)
		}
	}
	return err
}

// Serial writes command streams to a serial actuator bus.
type Serial struct {
	cfg     SerialConfig
	opener  SinkOpener
	logger  *slog.Logger
	metrics *metric.Metrics
	retry   retry.Config

	registry *metric.MetricsRegistry
	chunks   *prometheus.CounterVec
	portOpen prometheus.Gauge

	mu      sync.Mutex
	sink    Sink
	limiter *rate.Limiter

	// Guarded separately from mu so health checks never wait behind a send.
	stateMu sync.RWMutex
	open    bool
	lastErr error
}

// SerialOption configures a Serial channel.
type SerialOption func(*Serial)

// WithSinkOpener replaces the port opener.
func WithSinkOpener(opener SinkOpener) SerialOption {
	return func(s *Serial) {
		s.opener = opener
	}
}

// WithSerialLogger sets the logger.
func WithSerialLogger(logger *slog.Logger) SerialOption {
	return func(s *Serial) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSerialRegistry records byte counts in the core metrics and registers a
// per-port chunk counter and a port-open gauge. Close unregisters both.
func WithSerialRegistry(registry *metric.MetricsRegistry) SerialOption {
	return func(s *Serial) {
		if registry == nil {
			return
		}
		s.registry = registry
		s.metrics = registry.CoreMetrics()

		chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "serial",
			Name:      "chunks_written_total",
			Help:      "Serial packets written",
		}, []string{"port"})
		if err := registry.RegisterCounterVec("serial-channel", "chunks_written", chunks); err != nil {
			s.logger.Warn("Serial chunk metric not registered", "error", err)
		} else {
			s.chunks = chunks
		}

		portOpen := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hapticbridge",
			Subsystem: "serial",
			Name:      "port_open",
			Help:      "Whether the serial port is open (0=closed, 1=open)",
		})
		if err := registry.RegisterGauge("serial-channel", "port_open", portOpen); err != nil {
			s.logger.Warn("Serial port metric not registered", "error", err)
		} else {
			s.portOpen = portOpen
		}
	}
}

// WithOpenRetry sets the retry policy for opening the port.
func WithOpenRetry(cfg retry.Config) SerialOption {
	return func(s *Serial) {
		s.retry = cfg
	}
}

// NewSerial creates a serial channel. The port is opened on first Send.
func NewSerial(cfg SerialConfig, opts ...SerialOption) *Serial {
	defaults := DefaultSerialConfig()
	if cfg.Baudrate <= 0 {
		cfg.Baudrate = defaults.Baudrate
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	s := &Serial{
		cfg:    cfg,
		opener: OpenSerialPort,
		logger: slog.Default(),
		retry:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "serial-channel", "port", cfg.Port)

	limit := rate.Inf
	if cfg.ChunkDelay > 0 {
		limit = rate.Every(cfg.ChunkDelay)
	}
	s.limiter = rate.NewLimiter(limit, 1)
	return s
}

// Name implements DeviceChannel
func (s *Serial) Name() string { return NameSerial }

// Flavor implements DeviceChannel
func (s *Serial) Flavor() convert.Flavor { return convert.FlavorSerial }

// Configured reports whether a port name is set.
func (s *Serial) Configured() bool { return s.cfg.Port != "" }

// Available reports whether a port is configured. The port itself is opened lazily.
func (s *Serial) Available(_ context.Context) bool {
	return s.Configured()
}

// Status reports whether the port is open and the error of the last failed open or
// write. A later successful write clears the error.
func (s *Serial) Status() (open bool, lastErr error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.open, s.lastErr
}

func (s *Serial) setStatus(open bool, err error) {
	s.stateMu.Lock()
	s.open = open
	s.lastErr = err
	s.stateMu.Unlock()

	if s.portOpen != nil {
		if open {
			s.portOpen.Set(1)
		} else {
			s.portOpen.Set(0)
		}
	}
}

// Send writes each Actuate as packets of at most ChunkSize bytes and turns each Pause
// into a wait followed by the stop command.
func (s *Serial) Send(ctx context.Context, out convert.Output) error {
	if err := checkFlavor(s, out); err != nil {
		return err
	}
	if !s.Configured() {
		return errors.WrapInvalid(errors.ErrChannelNotConfigured, "SerialChannel", "Send", "check port")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(ctx); err != nil {
		return err
	}

	for _, cmd := range out.Commands {
		switch cmd.Kind {
		case convert.Actuate:
			if err := s.writeChunked(ctx, []byte(cmd.Encode()+s.cfg.Terminator)); err != nil {
				return err
			}
		case convert.Pause:
			if err := retry.Sleep(ctx, cmd.Duration()); err != nil {
				return errors.Wrap(err, "SerialChannel", "Send", "pause")
			}
			if err := s.writePacket(ctx, []byte(StopCommand+s.cfg.Terminator)); err != nil {
				return err
			}
			if err := retry.Sleep(ctx, s.cfg.SettleDelay); err != nil {
				return errors.Wrap(err, "SerialChannel", "Send", "settle")
			}
		}
	}
	return nil
}

func (s *Serial) ensureOpen(ctx context.Context) error {
	if s.sink != nil {
		return nil
	}

	sink, err := retry.DoWithResult(ctx, s.retry, func() (Sink, error) {
		return s.opener(ctx, s.cfg.Port, s.cfg.Baudrate)
	})
	if err != nil {
		s.metrics.RecordError("serial-channel", "transport")
		err = errors.WrapTransient(fmt.Errorf("%w: open %s: %v", errors.ErrTransport, s.cfg.Port, err),
			"SerialChannel", "Send", "open port")
		s.setStatus(false, err)
		return err
	}

	s.sink = sink
	s.setStatus(true, nil)
	s.logger.Info("Serial opened", "baudrate", s.cfg.Baudrate)
	return nil
}

func (s *Serial) writeChunked(ctx context.Context, data []byte) error {
	for start := 0; start < len(data); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := s.writePacket(ctx, data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serial) writePacket(ctx context.Context, packet []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "SerialChannel", "Send", "pace chunk")
	}

	s.logger.Debug("Serial chunk", "chunk", string(packet))

	if _, err := s.sink.Write(packet); err != nil {
		return s.fail("write chunk", err)
	}
	if err := s.sink.Flush(); err != nil {
		return s.fail("flush chunk", err)
	}

	if _, lastErr := s.Status(); lastErr != nil {
		s.setStatus(true, nil)
	}
	s.metrics.RecordSerialBytes(len(packet))
	if s.chunks != nil {
		s.chunks.WithLabelValues(s.cfg.Port).Inc()
	}
	return nil
}

// fail drops the sink so the next message reopens the port.
func (s *Serial) fail(action string, err error) error {
	s.closeSink()
	s.metrics.RecordError("serial-channel", "transport")
	err = errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrTransport, err), "SerialChannel", "Send", action)
	s.setStatus(false, err)
	return err
}

func (s *Serial) closeSink() {
	if s.sink == nil {
		return
	}
	if err := s.sink.Close(); err != nil {
		s.logger.Warn("Serial close failed", "error", err)
	}
	s.sink = nil
}

// Close implements DeviceChannel
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSink()

	_, lastErr := s.Status()
	s.setStatus(false, lastErr)
	if s.registry != nil {
		s.registry.Unregister("serial-channel", "chunks_written")
		s.registry.Unregister("serial-channel", "port_open")
		s.registry = nil
	}
	return nil
}
