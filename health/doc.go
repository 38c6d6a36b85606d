// Package health tracks the bridge's component health with three states.
//
//   - healthy: the component works as configured
//   - degraded: the component works with reduced reach, such as a stream that is
//     reconnecting or a vendor engine that is not yet connected
//   - unhealthy: the component cannot serve
//
// A Monitor holds one Probe per component and aggregates them on demand:
//
//	monitor := health.NewMonitor("hapticbridge")
//	monitor.Register("stream", func(context.Context) health.Status {
//		return health.NewHealthy("stream", "connected")
//	})
//	ok, body := monitor.Report()
//
// Report matches metric.HealthFunc, so the monitor plugs straight into the metrics
// server's /health endpoint. Messages built from errors go through Sanitize, which
// removes URLs, IP addresses and credentials.
package health
