package convert

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/sentence"
)

// Converter turns color and contour sentences into device output. It holds no
// per-message state and is safe for concurrent use.
type Converter struct {
	opts   Options
	logger *slog.Logger
}

// NewConverter creates a Converter. A nil logger uses slog.Default().
func NewConverter(opts Options, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		opts:   opts,
		logger: logger.With("component", "frame-converter"),
	}
}

// Convert renders s for the given flavor. Heartbeats, envelopes, control commands and
// unrecognized payloads fail with errors.ErrUnsupportedShape.
func (c *Converter) Convert(s sentence.Sentence, flavor Flavor) (Output, error) {
	switch v := s.(type) {
	case sentence.ColorDirective:
		return c.convertColor(v, flavor), nil
	case sentence.ContourDirective:
		return c.convertContour(v, flavor)
	default:
		kind := "nil"
		if s != nil {
			kind = s.Kind().String()
		}
		return Output{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s sentence", errors.ErrUnsupportedShape, kind),
			"FrameConverter", "Convert", "select conversion")
	}
}

func (c *Converter) convertContour(d sentence.ContourDirective, flavor Flavor) (Output, error) {
	frames, warnings, err := Frames(d.Payload)
	if err != nil {
		return Output{}, err
	}
	for _, w := range warnings {
		c.logger.Warn("Skipping contour item", "error", w)
	}

	out := Output{Flavor: flavor, Warnings: warnings}
	if flavor == FlavorVendor {
		out.Pattern = c.Pattern("contour", frames)
	} else {
		out.Commands = SerialStream(frames)
	}
	return out, nil
}

func (c *Converter) convertColor(d sentence.ColorDirective, flavor Flavor) Output {
	col := colorful.Color{
		R: float64(d.Color.R) / MaxIntensity,
		G: float64(d.Color.G) / MaxIntensity,
		B: float64(d.Color.B) / MaxIntensity,
	}.Clamped()
	intensity := float64(clamp(d.Intensity, 0, MaxIntensity))

	r, g, b := scale(col.R, intensity), scale(col.G, intensity), scale(col.B, intensity)
	nodes := c.opts.ColorNodes

	c.logger.Debug("Color directive",
		"color", col.Hex(),
		"intensity", d.Intensity,
		"red", r, "green", g, "blue", b,
		"duration_ms", d.DurationMs)

	frame := Frame{
		Label:      "color",
		DurationMs: d.DurationMs,
		Nodes: []FrameNode{
			{Index: nodes.Red, Intensity: r},
			{Index: nodes.Green, Intensity: g},
			{Index: nodes.Blue, Intensity: b},
		},
	}

	out := Output{Flavor: flavor}
	if flavor == FlavorVendor {
		out.Pattern = c.Pattern("color", []Frame{frame})
	} else {
		out.Commands = SerialStream([]Frame{frame})
	}
	return out
}

// SerialStream emits, per frame, one Actuate per node followed by exactly one Pause.
func SerialStream(frames []Frame) CommandStream {
	stream := make(CommandStream, 0, len(frames)*2)
	for _, f := range frames {
		for _, n := range f.Nodes {
			stream = append(stream, ActuateCommand(n.Index, n.Intensity))
		}
		stream = append(stream, PauseCommand(f.DurationMs))
	}
	return stream
}

type activation struct {
	order     int
	label     string
	frame     int
	node      int
	intensity int
	duration  int
}

// Pattern flattens every node of every frame into one keyframe each, ordered by the
// frame's explicit order when given, else by traversal position. Nodes outside the
// weight vector produce an all-zero keyframe.
func (c *Converter) Pattern(name string, frames []Frame) Pattern {
	var acts []activation
	counter := 0
	for _, f := range frames {
		for _, n := range f.Nodes {
			order := counter
			if f.HasOrder {
				order = f.Order
			}
			acts = append(acts, activation{
				order:     order,
				label:     f.Label,
				frame:     f.Index,
				node:      n.Index,
				intensity: n.Intensity,
				duration:  f.DurationMs,
			})
			counter++
		}
	}

	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].order < acts[j].order
	})

	p := Pattern{Name: name, KeyFrames: make([]KeyFrame, 0, len(acts))}
	for _, a := range acts {
		kf := KeyFrame{
			Order:      a.order,
			DurationMs: a.duration,
			Annotation: fmt.Sprintf("%s[%d] node=%d intensity=%d duration=%dms",
				a.label, a.frame, a.node, a.intensity, a.duration),
		}
		if a.node >= 0 && a.node < WeightSlots {
			kf.Weights[a.node] = clamp(a.intensity, 0, MaxIntensity)
		} else {
			c.logger.Debug("Node outside weight vector", "node", a.node, "label", a.label)
		}
		p.KeyFrames = append(p.KeyFrames, kf)
	}
	return p
}

func scale(channel, intensity float64) int {
	return int(math.RoundToEven(channel * intensity))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
