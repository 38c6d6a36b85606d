package convert

import (
	"fmt"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/sentence"
)

// Frames normalizes a decoded contour payload into frames in traversal order.
//
// Accepted shapes are an object of label to frame or frame list, a bare frame list, and
// an integer pause. Integers inside an object or list are pause frames. Items that
// cannot be used are skipped and reported as warnings wrapping errors.ErrFieldWarning.
// Only an unusable top-level value fails with errors.ErrUnsupportedShape.
func Frames(payload any) ([]Frame, []error, error) {
	n := &normalizer{}

	switch v := payload.(type) {
	case *sentence.Object:
		for _, label := range v.Keys() {
			val, _ := v.Get(label)
			switch inner := val.(type) {
			case *sentence.Object:
				if !sentence.IsFrameLike(inner) {
					n.warn("%s: object is not a frame", label)
					continue
				}
				n.frames(label, []any{inner})
			case []any:
				n.frames(label, inner)
			default:
				if sentence.IsInteger(val) {
					n.pause(label, 0, val)
					continue
				}
				n.warn("%s: unexpected type %T", label, val)
			}
		}
	case []any:
		n.frames("list", v)
	default:
		if !sentence.IsInteger(v) {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: top-level %T", errors.ErrUnsupportedShape, payload),
				"FrameConverter", "Frames", "normalize payload")
		}
		n.pause("pause", 0, v)
	}

	return n.out, n.warnings, nil
}

type normalizer struct {
	out      []Frame
	warnings []error
}

func (n *normalizer) warn(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Errorf("%w: %s", errors.ErrFieldWarning, fmt.Sprintf(format, args...)))
}

func (n *normalizer) pause(label string, index int, v any) {
	ms, _ := sentence.Int(v)
	if ms < 0 {
		ms = 0
	}
	n.out = append(n.out, Frame{Label: label, Index: index, DurationMs: ms})
}

func (n *normalizer) frames(label string, items []any) {
	for i, item := range items {
		obj, ok := item.(*sentence.Object)
		if !ok {
			if sentence.IsInteger(item) {
				n.pause(label, i, item)
				continue
			}
			n.warn("%s[%d]: non-object frame %T", label, i, item)
			continue
		}
		n.out = append(n.out, n.frame(label, i, obj))
	}
}

func (n *normalizer) frame(label string, index int, obj *sentence.Object) Frame {
	f := Frame{Label: label, Index: index}

	if d, ok := obj.Get("duration"); ok {
		f.DurationMs = sentence.IntOr(d, 0)
	}
	if f.DurationMs < 0 {
		f.DurationMs = 0
	}
	if o, ok := obj.Get("order"); ok {
		if order, ok := sentence.Int(o); ok {
			f.Order = order
			f.HasOrder = true
		} else {
			n.warn("%s[%d]: bad order=%v", label, index, o)
		}
	}

	var nodes []any
	switch fns, _ := obj.Get("frame_nodes"); v := fns.(type) {
	case nil:
	case *sentence.Object:
		nodes = []any{v}
	case []any:
		nodes = v
	default:
		n.warn("%s[%d].frame_nodes: unexpected type %T", label, index, fns)
	}

	for j, item := range nodes {
		fn, ok := item.(*sentence.Object)
		if !ok {
			n.warn("%s[%d].frame_nodes[%d]: not an object", label, index, j)
			continue
		}
		idxRaw, _ := fn.Get("node_index")
		valRaw, _ := fn.Get("intensity")
		idxs := asList(idxRaw)
		vals := asList(valRaw)
		if len(vals) == 1 && len(idxs) > 1 {
			broadcast := make([]any, len(idxs))
			for k := range broadcast {
				broadcast[k] = vals[0]
			}
			vals = broadcast
		}

		for k, raw := range idxs {
			idx, ok := sentence.Int(raw)
			if !ok {
				n.warn("%s[%d].frame_nodes[%d]: bad node_index=%v", label, index, j, raw)
				continue
			}
			intensity := 0
			if k < len(vals) {
				intensity = sentence.IntOr(vals[k], 0)
			}
			f.Nodes = append(f.Nodes, FrameNode{Index: idx, Intensity: intensity})
		}
	}

	return f
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}
