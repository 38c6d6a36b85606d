package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/hapticbridge/channel"
	"github.com/c360/hapticbridge/config"
	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/dispatch"
	"github.com/c360/hapticbridge/health"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/stream"
	"github.com/c360/hapticbridge/telemetry"
)

// bridge is the wired application: device channels, dispatcher, stream loop and
// the optional metrics server and telemetry reporter.
type bridge struct {
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	resolver   *dispatch.Resolver
	dispatcher *dispatch.Dispatcher
	loop       *stream.Loop
	monitor    *health.Monitor
	metricsSrv *metric.Server
	reporter   *telemetry.Reporter
	loopback   *channel.LoopbackSDK
}

func newBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bridge, error) {
	b := &bridge{
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
	}
	metrics := b.registry.CoreMetrics()

	serial := channel.NewSerial(cfg.SerialChannel(),
		channel.WithSerialLogger(logger),
		channel.WithSerialRegistry(b.registry))
	if cfg.Serial.Port == "" {
		logger.Info("Serial output disabled, no port configured")
	}

	b.monitor = health.NewMonitor(appName)
	b.monitor.Register("serial", serialProbe(serial))

	var vendor channel.DeviceChannel
	if cfg.Vendor.Enabled && cfg.Vendor.SDK == config.VendorSDKLoopback {
		b.loopback = channel.NewLoopbackSDK(logger)
		v, err := channel.NewVendor(b.loopback,
			channel.WithVendorLogger(logger),
			channel.WithVendorRegistry(b.registry))
		if err != nil {
			return nil, fmt.Errorf("create vendor channel: %w", err)
		}
		vendor = v
		b.monitor.Register("vendor", vendorProbe(v))
	}

	b.resolver = dispatch.NewResolver(cfg.ParsedMode(), serial, vendor, logger)
	b.resolver.SetMetrics(metrics)

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
	}
	if cfg.NATS.URL != "" {
		reporter, err := telemetry.Connect(ctx, cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Warn("Dispatch telemetry disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			b.reporter = reporter
			opts = append(opts, dispatch.WithReporter(reporter))
		}
	}

	converter := convert.NewConverter(cfg.ConverterOptions(), logger)
	b.dispatcher = dispatch.NewDispatcher(b.resolver, converter,
		dispatch.Channels{Serial: serial, Vendor: vendor}, opts...)

	router := stream.NewRouter(b.dispatcher, b.resolver,
		stream.WithRouterLogger(logger),
		stream.WithRouterMetrics(metrics))

	loop, err := stream.NewLoop(cfg.Stream(), router,
		stream.WithLogger(logger),
		stream.WithMetrics(metrics))
	if err != nil {
		_ = b.close()
		return nil, fmt.Errorf("create stream loop: %w", err)
	}
	b.loop = loop
	b.monitor.Register("stream", streamProbe(loop))

	if cfg.Metrics.Port > 0 {
		b.metricsSrv = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, b.registry, b.monitor.Report)
	}

	return b, nil
}

// run blocks until ctx is done and the loop has stopped, or a component fails.
// Components get shutdownTimeout to wind down after cancellation.
func (b *bridge) run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.loop.Run(gctx)
	})
	if b.metricsSrv != nil {
		g.Go(func() error {
			b.logger.Info("Serving metrics", "address", b.metricsSrv.Address())
			return b.metricsSrv.Run(gctx)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
}

// close releases device channels and the telemetry connection.
func (b *bridge) close() error {
	var first error
	if b.dispatcher != nil {
		first = b.dispatcher.Close()
	}
	if b.reporter != nil {
		if err := b.reporter.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func streamProbe(loop *stream.Loop) health.Probe {
	return func(context.Context) health.Status {
		healthy, status := loop.Healthy()
		switch {
		case healthy:
			return health.NewHealthy("stream", status+", session "+loop.SessionID())
		case loop.State() == stream.StateShutdown:
			return health.NewUnhealthy("stream", status)
		default:
			return health.NewDegraded("stream", status)
		}
	}
}

func serialProbe(s *channel.Serial) health.Probe {
	return func(context.Context) health.Status {
		if !s.Configured() {
			return health.NewHealthy("serial", "disabled")
		}
		open, lastErr := s.Status()
		switch {
		case lastErr != nil:
			return health.NewDegraded("serial", "last write failed: "+health.Sanitize(lastErr.Error()))
		case open:
			return health.NewHealthy("serial", "port open")
		default:
			return health.NewHealthy("serial", "port configured, opens on first message")
		}
	}
}

func vendorProbe(v *channel.Vendor) health.Probe {
	return func(context.Context) health.Status {
		if state := v.State(); state != channel.StateConnected {
			return health.NewDegraded("vendor", "engine "+state.String())
		}
		return health.NewHealthy("vendor", "engine connected")
	}
}
