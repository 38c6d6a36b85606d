// Package config loads and validates the bridge configuration.
//
// # Loading
//
// Configuration is built in layers:
//
//  1. Default() values
//  2. each file added with AddLayer, in order (YAML, or JSON which YAML reads too)
//  3. BHX_* environment variables
//  4. Validate, unless disabled with EnableValidation(false)
//
// Example:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/hapticbridge/config.yaml")
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//	loop, err := stream.NewLoop(cfg.Stream(), router)
//
// A minimal file:
//
//	ws_url: wss://haptics.example.com:8000
//	client_id: studio-1
//	mode: both
//	serial:
//	  port: /dev/ttyACM0
//	vendor:
//	  enabled: true
//	  sdk: loopback
//
// Durations accept Go duration strings ("25s") or whole seconds (25), in files and
// in the environment. Recognized variables are BHX_WS_URL, BHX_CLIENT_ID, BHX_DEBUG,
// BHX_MODE, BHX_PING_INTERVAL, BHX_PING_TIMEOUT, BHX_RECONNECT_INITIAL,
// BHX_RECONNECT_MAX, BHX_SERIAL_PORT, BHX_SERIAL_BAUD, BHX_VENDOR_SDK, BHX_NATS_URL and
// BHX_METRICS_PORT.
//
// The listen URL is normalized with SanitizeURL: "host:8000" with client "a" becomes
// "wss://host:8000/ws/listen/a".
package config
