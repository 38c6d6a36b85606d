package sentence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/c360/hapticbridge/errors"
)

// HeartbeatText is the application-level ping sent by the server.
const HeartbeatText = "__ping__"

// HeartbeatReply is the literal answer to HeartbeatText.
const HeartbeatReply = "__pong__"

// Color directive defaults
const (
	DefaultIntensity  = 255
	DefaultDurationMs = 160
)

// Kind identifies the Sentence variant.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindHeartbeat
	KindEnvelope
	KindControl
	KindColor
	KindContour
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindEnvelope:
		return "envelope"
	case KindControl:
		return "control"
	case KindColor:
		return "color"
	case KindContour:
		return "contour"
	default:
		return "unrecognized"
	}
}

// Sentence is one classified inbound message. The set of implementations is closed.
type Sentence interface {
	Kind() Kind
	sentence()
}

// Heartbeat is the literal text "__ping__".
type Heartbeat struct{}

// ServerEnvelope is an informational server event. It is logged and never converted.
type ServerEnvelope struct {
	Type    string
	Message string
}

// ControlCommand changes or queries bridge state.
type ControlCommand struct {
	Name     string
	Value    string
	HasValue bool
}

// RGB channel values as received, before clamping.
type RGB struct {
	R, G, B int
}

// ColorDirective drives three fixed actuators from an RGB color.
type ColorDirective struct {
	Color      RGB
	Intensity  int
	DurationMs int
}

// ContourDirective carries the order-preserved contour payload. Frames are normalized
// by the converter so bad items can be skipped individually.
type ContourDirective struct {
	Payload any
}

// Unrecognized is valid JSON that matched no known shape.
type Unrecognized struct {
	Raw    string
	Reason string
}

func (Heartbeat) Kind() Kind        { return KindHeartbeat }
func (ServerEnvelope) Kind() Kind   { return KindEnvelope }
func (ControlCommand) Kind() Kind   { return KindControl }
func (ColorDirective) Kind() Kind   { return KindColor }
func (ContourDirective) Kind() Kind { return KindContour }
func (Unrecognized) Kind() Kind     { return KindUnrecognized }

func (Heartbeat) sentence()        {}
func (ServerEnvelope) sentence()   {}
func (ControlCommand) sentence()   {}
func (ColorDirective) sentence()   {}
func (ContourDirective) sentence() {}
func (Unrecognized) sentence()     {}

// Parse classifies raw message text. Only text that is not UTF-8 or not JSON fails;
// well-formed JSON of an unknown shape comes back as Unrecognized.
func Parse(data []byte) (Sentence, error) {
	if string(data) == HeartbeatText {
		return Heartbeat{}, nil
	}
	if !utf8.Valid(data) {
		return nil, errors.WrapInvalid(errors.ErrDecode, "sentence", "Parse", "utf-8 decode")
	}

	v, err := Decode(data)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDecode, err), "sentence", "Parse", "json decode")
	}

	return Classify(v, string(data)), nil
}

// Classify maps a decoded value onto a Sentence. Priority: envelope, control, color,
// contour, then unrecognized.
func Classify(v any, raw string) Sentence {
	if obj, ok := v.(*Object); ok {
		if obj.Has("type") && obj.Has("message") {
			t, _ := obj.Get("type")
			m, _ := obj.Get("message")
			return ServerEnvelope{Type: text(t), Message: text(m)}
		}
		if cmd, ok := obj.Get("cmd"); ok {
			c := ControlCommand{Name: strings.ToLower(strings.TrimSpace(text(cmd)))}
			if val, ok := obj.Get("value"); ok && val != nil {
				c.Value = strings.ToLower(strings.TrimSpace(text(val)))
				c.HasValue = true
			}
			return c
		}
		if obj.Has("color") {
			return colorDirective(obj)
		}
	}

	if isContour(v) {
		return ContourDirective{Payload: v}
	}

	return Unrecognized{Raw: raw, Reason: describe(v)}
}

func colorDirective(obj *Object) ColorDirective {
	d := ColorDirective{
		Intensity:  DefaultIntensity,
		DurationMs: DefaultDurationMs,
	}

	if c, _ := obj.Get("color"); c != nil {
		if co, ok := c.(*Object); ok {
			r, _ := co.Get("r")
			g, _ := co.Get("g")
			b, _ := co.Get("b")
			d.Color = RGB{R: IntOr(r, 0), G: IntOr(g, 0), B: IntOr(b, 0)}
		}
	}
	if i, ok := obj.Get("intensity"); ok {
		d.Intensity = IntOr(i, DefaultIntensity)
	}
	if dur, ok := obj.Get("duration"); ok {
		d.DurationMs = IntOr(dur, DefaultDurationMs)
	}
	if d.DurationMs < 0 {
		d.DurationMs = 0
	}
	return d
}

// IsFrameLike reports whether v is an object shaped like a contour frame.
func IsFrameLike(v any) bool {
	obj, ok := v.(*Object)
	if !ok {
		return false
	}
	return obj.Has("frame_nodes") || obj.Has("duration")
}

// isContour accepts an object when at least one value is a frame or a list holding
// one. Other values are left for the converter to skip with a warning.
func isContour(v any) bool {
	switch t := v.(type) {
	case []any:
		return containsFrame(t)
	case *Object:
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			switch inner := val.(type) {
			case *Object:
				if IsFrameLike(inner) {
					return true
				}
			case []any:
				if containsFrame(inner) {
					return true
				}
			}
		}
		return false
	default:
		return IsInteger(v)
	}
}

func containsFrame(list []any) bool {
	for _, item := range list {
		if IsFrameLike(item) {
			return true
		}
	}
	return false
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null payload"
	case bool:
		return "boolean payload"
	case string:
		return "string payload"
	case []any:
		return "list without frames"
	case *Object:
		return "object without known keys"
	default:
		return "non-integer number"
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *Object:
		b, err := t.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
