package channel

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
)

//go:embed schema/vendor_pattern.json
var vendorPatternSchema []byte

// ConnectionState is the vendor engine's connection state.
type ConnectionState int

const (
	StateConnected     ConnectionState = 0
	StateDisconnected  ConnectionState = -1
	StateConnecting    ConnectionState = 1
	StateDisconnecting ConnectionState = 2
	StateReconnecting  ConnectionState = 3
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SDK is the vendor pattern-playback engine.
type SDK interface {
	Connect() error
	ConnectionState() ConnectionState
	LoadPatternJSON(doc string) (int, error)
	PlayEffect(patternID int) (int, error)
	UnloadPattern(patternID int) error
}

// CodeNotConnected is the engine's "not connected" status code.
const CodeNotConnected = -3

// SDKError is a failing status code returned by the vendor engine.
type SDKError struct {
	Code int
	Op   string
}

func (e *SDKError) Error() string {
	return fmt.Sprintf("vendor sdk %s: code %d", e.Op, e.Code)
}

// Unwrap maps the status code onto the bridge taxonomy.
func (e *SDKError) Unwrap() error {
	if e.Code == CodeNotConnected {
		return errors.ErrChannelUnavailable
	}
	return errors.ErrTransport
}

// Document is the pattern JSON handed to the vendor engine.
type Document struct {
	Tracks []Track `json:"tracks"`
}

// Track is one named track of a Document.
type Track struct {
	Name    string   `json:"name"`
	Volume  int      `json:"volume"`
	Samples []Sample `json:"samples"`
}

// Sample carries the spatial keyframes of a track.
type Sample struct {
	Annotation    string         `json:"annotation"`
	Timestamp     float64        `json:"timestamp"`
	SignalIndex   int            `json:"signalIndex"`
	Speed         float64        `json:"speed"`
	RepeatCount   int            `json:"repeatCount"`
	PreDelay      float64        `json:"preDelay"`
	PostDelay     float64        `json:"postDelay"`
	MaxDuration   float64        `json:"maxDuration"`
	RepeatSpat    bool           `json:"repeatSpat"`
	SpatKeyframes []SpatKeyframe `json:"spatKeyframes"`
}

// SpatKeyframe is one weight vector.
type SpatKeyframe struct {
	Annotation string                   `json:"annotation"`
	Timestamp  float64                  `json:"timestamp"`
	Weights    [convert.WeightSlots]int `json:"weights"`
}

// BuildDocument wraps a pattern into a single-track, single-sample document.
func BuildDocument(p convert.Pattern) Document {
	name := p.Name
	if name == "" {
		name = "pattern"
	}

	frames := make([]SpatKeyframe, len(p.KeyFrames))
	for i, kf := range p.KeyFrames {
		frames[i] = SpatKeyframe{
			Annotation: kf.Annotation,
			Timestamp:  kf.Timestamp,
			Weights:    kf.Weights,
		}
	}

	return Document{Tracks: []Track{{
		Name:   name,
		Volume: 100,
		Samples: []Sample{{
			Annotation:    fmt.Sprintf("%s: %d keyframes", name, len(frames)),
			Speed:         1.0,
			RepeatCount:   1,
			MaxDuration:   1.0,
			SpatKeyframes: frames,
		}},
	}}}
}

// Vendor plays patterns through the vendor engine, one disposable pattern per message.
type Vendor struct {
	sdk     SDK
	schema  *gojsonschema.Schema
	logger  *slog.Logger
	metrics *metric.Metrics
	mu      sync.Mutex

	connects  prometheus.Counter
	keyframes prometheus.Histogram
}

// VendorOption configures a Vendor channel.
type VendorOption func(*Vendor)

// WithVendorLogger sets the logger.
func WithVendorLogger(logger *slog.Logger) VendorOption {
	return func(v *Vendor) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithVendorRegistry records SDK errors in the core metrics and registers counters
// for engine connect attempts and played pattern sizes.
func WithVendorRegistry(registry *metric.MetricsRegistry) VendorOption {
	return func(v *Vendor) {
		if registry == nil {
			return
		}
		v.metrics = registry.CoreMetrics()

		connects := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hapticbridge",
			Subsystem: "vendor",
			Name:      "connect_attempts_total",
			Help:      "Vendor engine connect attempts",
		})
		if err := registry.RegisterCounter("vendor-channel", "connect_attempts", connects); err != nil {
			v.logger.Warn("Vendor connect metric not registered", "error", err)
		} else {
			v.connects = connects
		}

		keyframes := prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hapticbridge",
			Subsystem: "vendor",
			Name:      "pattern_keyframes",
			Help:      "Keyframes per played vendor pattern",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		})
		if err := registry.RegisterHistogram("vendor-channel", "pattern_keyframes", keyframes); err != nil {
			v.logger.Warn("Vendor keyframe metric not registered", "error", err)
		} else {
			v.keyframes = keyframes
		}
	}
}

// NewVendor creates a vendor channel around sdk.
func NewVendor(sdk SDK, opts ...VendorOption) (*Vendor, error) {
	if sdk == nil {
		return nil, errors.WrapInvalid(errors.ErrChannelNotConfigured, "VendorChannel", "NewVendor", "check sdk")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(vendorPatternSchema))
	if err != nil {
		return nil, errors.WrapFatal(err, "VendorChannel", "NewVendor", "compile pattern schema")
	}

	v := &Vendor{
		sdk:    sdk,
		schema: schema,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "vendor-channel")
	return v, nil
}

// Name implements DeviceChannel
func (v *Vendor) Name() string { return NameVendor }

// Flavor implements DeviceChannel
func (v *Vendor) Flavor() convert.Flavor { return convert.FlavorVendor }

// Available connects when needed and reports whether the engine is connected.
func (v *Vendor) Available(_ context.Context) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureConnected() == StateConnected
}

// ensureConnected makes one connect attempt when the engine is not connected and
// returns the resulting state. Callers hold v.mu.
func (v *Vendor) ensureConnected() ConnectionState {
	if state := v.sdk.ConnectionState(); state == StateConnected {
		return state
	}
	if v.connects != nil {
		v.connects.Inc()
	}
	if err := v.sdk.Connect(); err != nil {
		v.logger.Debug("Vendor connect failed", "error", err)
	}
	state := v.sdk.ConnectionState()
	if state != StateConnected {
		v.logger.Debug("Vendor not connected", "state", state.String())
	}
	return state
}

// Send loads, plays and always unloads one pattern. The engine is connected on first
// use; when that fails Send yields errors.ErrChannelUnavailable and nothing is queued.
func (v *Vendor) Send(_ context.Context, out convert.Output) error {
	if err := checkFlavor(v, out); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if state := v.ensureConnected(); state != StateConnected {
		return errors.WrapTransient(
			fmt.Errorf("%w: engine %s", errors.ErrChannelUnavailable, state),
			"VendorChannel", "Send", "check connection")
	}

	if len(out.Pattern.KeyFrames) == 0 {
		v.logger.Debug("Empty pattern, nothing to play", "pattern", out.Pattern.Name)
		return nil
	}

	doc, err := v.Encode(out.Pattern)
	if err != nil {
		return err
	}

	id, err := v.sdk.LoadPatternJSON(string(doc))
	if err != nil {
		return v.sdkFailure("load pattern", err)
	}

	var playErr error
	if _, err := v.sdk.PlayEffect(id); err != nil {
		playErr = v.sdkFailure("play effect", err)
	}
	if err := v.sdk.UnloadPattern(id); err != nil {
		v.logger.Warn("Vendor unload failed", "pattern_id", id, "error", err)
		if playErr == nil {
			return v.sdkFailure("unload pattern", err)
		}
	}
	if playErr != nil {
		return playErr
	}

	if v.keyframes != nil {
		v.keyframes.Observe(float64(len(out.Pattern.KeyFrames)))
	}
	v.logger.Debug("Pattern played", "pattern_id", id, "keyframes", len(out.Pattern.KeyFrames))
	return nil
}

// Encode builds the pattern document and validates it against the engine schema.
func (v *Vendor) Encode(p convert.Pattern) ([]byte, error) {
	doc, err := json.Marshal(BuildDocument(p))
	if err != nil {
		return nil, errors.WrapInvalid(err, "VendorChannel", "Encode", "marshal document")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, errors.WrapInvalid(err, "VendorChannel", "Encode", "validate document")
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnsupportedShape, strings.Join(msgs, "; ")),
			"VendorChannel", "Encode", "validate document")
	}
	return doc, nil
}

func (v *Vendor) sdkFailure(action string, err error) error {
	if !errors.Is(err, errors.ErrTransport) && !errors.Is(err, errors.ErrChannelUnavailable) {
		err = fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	v.metrics.RecordError("vendor-channel", errors.Kind(err))
	return errors.WrapTransient(err, "VendorChannel", "Send", action)
}

// Close implements DeviceChannel. The engine connection is owned by the SDK.
func (v *Vendor) Close() error {
	return nil
}

// State reports the engine connection state without attempting to connect.
func (v *Vendor) State() ConnectionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sdk.ConnectionState()
}
