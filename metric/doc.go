// Package metric provides Prometheus metrics and the HTTP server that exposes them.
//
// # Architecture
//
//  1. Core Metrics: bridge-wide metrics registered on creation (Metrics type)
//  2. Component Registry: registration of component-specific metrics (MetricsRegistrar)
//  3. HTTP Server: metrics endpoint plus /health (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, loop.Healthy)
//
//	g.Go(func() error { return server.Run(ctx) })
//
//	core := registry.CoreMetrics()
//	core.RecordMessageReceived("contour")
//	core.RecordDispatch("serial", "sent", elapsed)
//
// Every Record method tolerates a nil *Metrics, so components built without a
// registry (tests, dry runs) need no guards.
//
// # Component Metrics
//
// Components that own extra series register them under their component name:
//
//	chunks := prometheus.NewCounterVec(opts, []string{"port"})
//	if err := registry.RegisterCounterVec("serial-channel", "chunks", chunks); err != nil {
//	    return err
//	}
//
// Registering the same component and metric name twice is rejected as invalid.
//
// # Metric Names
//
// All series use the "hapticbridge" namespace:
//
//   - hapticbridge_messages_received_total{kind}
//   - hapticbridge_messages_dropped_total{reason}
//   - hapticbridge_dispatch_total{channel,status}
//   - hapticbridge_dispatch_duration_seconds{channel}
//   - hapticbridge_serial_bytes_written_total
//   - hapticbridge_errors_total{component,kind}
//   - hapticbridge_mode_changes_total{mode}
//   - hapticbridge_stream_connection_state
//   - hapticbridge_stream_reconnect_attempts_total
//   - hapticbridge_stream_backoff_seconds
//   - hapticbridge_stream_heartbeats_total
package metric
