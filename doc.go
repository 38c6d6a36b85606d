// Package hapticbridge connects a remote haptic message stream to local haptic devices.
//
// The bridge listens on a WebSocket stream for "sentences": color directives, contour
// payloads of timed actuator frames, output-mode control commands and heartbeats. It turns
// each directive into device commands and plays them on a raw serial actuator bus, on a
// vendor pattern-playback engine, or on both.
//
// # Architecture
//
//	stream.Loop ──> stream.Router ──> dispatch.Dispatcher ──> channel.Serial
//	     │                │                   │          └──> channel.Vendor
//	  heartbeat       control cmds      convert.Converter
//	  replies      (dispatch.Resolver)   telemetry.Reporter (NATS)
//
// Packages:
//   - sentence: order-preserving JSON decoding and message classification
//   - convert: frame normalization into serial command streams and vendor patterns
//   - channel: the DeviceChannel interface with serial and vendor implementations
//   - dispatch: output modes, the mode resolver and the dispatcher
//   - stream: the reconnecting WebSocket loop and the message router
//   - config: layered YAML configuration with BHX_* environment overrides
//   - metric, health: Prometheus metrics and the /health endpoint
//   - telemetry: dispatch results published to NATS
//   - errors, pkg/retry: classified errors and backoff helpers
//
// # Message Ordering
//
// Messages from one connection are handled strictly one at a time in arrival order. A
// contour that takes two seconds to play delays the next message by two seconds; the
// stream is never read ahead of the devices.
//
// # Running
//
//	hapticbridge --config=bridge.yaml
//	BHX_WS_URL=wss://haptics.example.com BHX_SERIAL_PORT=/dev/ttyACM0 hapticbridge
//
// See cmd/hapticbridge for flags.
package hapticbridge
