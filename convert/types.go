package convert

import (
	"fmt"
	"time"
)

// WeightSlots is the length of a vendor keyframe weight vector.
const WeightSlots = 20

// MaxIntensity is the upper bound of an actuator intensity.
const MaxIntensity = 255

// Flavor selects the shape of a conversion result.
type Flavor int

const (
	// FlavorSerial yields a flat Actuate/Pause command stream.
	FlavorSerial Flavor = iota
	// FlavorVendor yields a keyframe pattern.
	FlavorVendor
)

func (f Flavor) String() string {
	switch f {
	case FlavorSerial:
		return "serial"
	case FlavorVendor:
		return "vendor"
	default:
		return "unknown"
	}
}

// CommandKind distinguishes actuation from waiting.
type CommandKind int

const (
	Actuate CommandKind = iota
	Pause
)

// Command is one step of a serial command stream.
type Command struct {
	Kind       CommandKind
	Node       int
	Intensity  int
	DurationMs int
}

// ActuateCommand sets one node to an intensity.
func ActuateCommand(node, intensity int) Command {
	return Command{Kind: Actuate, Node: node, Intensity: intensity}
}

// PauseCommand waits durationMs, negative durations become zero.
func PauseCommand(durationMs int) Command {
	if durationMs < 0 {
		durationMs = 0
	}
	return Command{Kind: Pause, DurationMs: durationMs}
}

// Encode renders an Actuate as the serial wire text "[L,<node>:<intensity>]".
// A Pause has no wire text and encodes to "".
func (c Command) Encode() string {
	if c.Kind != Actuate {
		return ""
	}
	return fmt.Sprintf("[L,%d:%d]", c.Node, c.Intensity)
}

// Duration returns the pause length. Actuates have none.
func (c Command) Duration() time.Duration {
	if c.Kind != Pause {
		return 0
	}
	return time.Duration(c.DurationMs) * time.Millisecond
}

func (c Command) String() string {
	if c.Kind == Pause {
		return fmt.Sprintf("%dms", c.DurationMs)
	}
	return c.Encode()
}

// CommandStream is an ordered sequence of commands.
type CommandStream []Command

// Actuates counts the Actuate commands.
func (cs CommandStream) Actuates() int {
	n := 0
	for _, c := range cs {
		if c.Kind == Actuate {
			n++
		}
	}
	return n
}

// Duration sums all pauses.
func (cs CommandStream) Duration() time.Duration {
	var total time.Duration
	for _, c := range cs {
		total += c.Duration()
	}
	return total
}

// Strings renders the stream the way it reads on the wire, pauses as millisecond counts.
func (cs CommandStream) Strings() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// FrameNode is one resolved node after broadcast expansion.
type FrameNode struct {
	Index     int
	Intensity int
}

// Frame is one timed unit of a contour. A Frame without nodes is a pure pause.
type Frame struct {
	Label      string
	Index      int
	DurationMs int
	Order      int
	HasOrder   bool
	Nodes      []FrameNode
}

// KeyFrame is the vendor representation of one node activation.
type KeyFrame struct {
	Order      int
	Timestamp  float64
	Weights    [WeightSlots]int
	Annotation string
	DurationMs int
}

// Pattern is an ordered keyframe sequence for the vendor engine.
type Pattern struct {
	Name      string
	KeyFrames []KeyFrame
}

// Output is a conversion result for one flavor.
type Output struct {
	Flavor   Flavor
	Commands CommandStream
	Pattern  Pattern
	Warnings []error
}

// Len is the number of device steps in the output.
func (o Output) Len() int {
	if o.Flavor == FlavorVendor {
		return len(o.Pattern.KeyFrames)
	}
	return len(o.Commands)
}

// ColorNodes maps color channels onto actuator indices.
type ColorNodes struct {
	Red   int `yaml:"red" json:"red"`
	Green int `yaml:"green" json:"green"`
	Blue  int `yaml:"blue" json:"blue"`
}

// DefaultColorNodes returns the stock R/G/B actuator mapping.
func DefaultColorNodes() ColorNodes {
	return ColorNodes{Red: 9, Green: 6, Blue: 4}
}

// Options configures a Converter.
type Options struct {
	ColorNodes ColorNodes
}

// DefaultOptions returns the stock converter options.
func DefaultOptions() Options {
	return Options{ColorNodes: DefaultColorNodes()}
}
