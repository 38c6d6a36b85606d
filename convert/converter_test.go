package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/sentence"
)

func parse(t *testing.T, data string) sentence.Sentence {
	t.Helper()
	s, err := sentence.Parse([]byte(data))
	require.NoError(t, err)
	return s
}

func newTestConverter() *Converter {
	return NewConverter(DefaultOptions(), nil)
}

func TestConvert_SerialExample(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"hello":[{"duration":100,"frame_nodes":[{"node_index":[1,2],"intensity":50}]}]}`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)

	assert.Equal(t, FlavorSerial, out.Flavor)
	assert.Equal(t, []string{"[L,1:50]", "[L,2:50]", "100ms"}, out.Commands.Strings())
	assert.Equal(t, CommandStream{
		ActuateCommand(1, 50),
		ActuateCommand(2, 50),
		PauseCommand(100),
	}, out.Commands)
	assert.Empty(t, out.Warnings)
}

func TestConvert_BroadcastEmitsOneActuatePerIndex(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `[{"duration":70,"frame_nodes":{"node_index":[5,3,8,1],"intensity":"9"}}]`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)

	require.Len(t, out.Commands, 5)
	for i, node := range []int{5, 3, 8, 1} {
		assert.Equal(t, ActuateCommand(node, 9), out.Commands[i])
	}
	assert.Equal(t, PauseCommand(70), out.Commands[4])
}

func TestConvert_MissingIntensitiesDefaultToZero(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `[{"duration":10,"frame_nodes":[{"node_index":[1,2,3],"intensity":[7,8]}]}]`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"[L,1:7]", "[L,2:8]", "[L,3:0]", "10ms"}, out.Commands.Strings())
}

func TestConvert_EmptyFrameStillPauses(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"w":[{"duration":250,"frame_nodes":[]},{"duration":30}]}`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, CommandStream{PauseCommand(250), PauseCommand(30)}, out.Commands)
	assert.Equal(t, 0, out.Commands.Actuates())
}

func TestConvert_EveryFrameEndsWithOnePause(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{
		"a":[{"duration":1,"frame_nodes":[{"node_index":1,"intensity":1}]},{"duration":2}],
		"b":{"duration":3,"frame_nodes":[{"node_index":[2,3],"intensity":[4,5]}]}
	}`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)

	pauses := 0
	for _, cmd := range out.Commands {
		if cmd.Kind == Pause {
			pauses++
		}
	}
	assert.Equal(t, 3, pauses)
	assert.Equal(t, Pause, out.Commands[len(out.Commands)-1].Kind)
	assert.Equal(t, []string{"[L,1:1]", "1ms", "2ms", "[L,2:4]", "[L,3:5]", "3ms"}, out.Commands.Strings())
}

func TestConvert_WordOrderPreserved(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"zz":[{"duration":1,"frame_nodes":{"node_index":1,"intensity":1}}],"aa":[{"duration":2,"frame_nodes":{"node_index":2,"intensity":2}}]}`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"[L,1:1]", "1ms", "[L,2:2]", "2ms"}, out.Commands.Strings())
}

func TestConvert_IntegerPauses(t *testing.T) {
	c := newTestConverter()

	out, err := c.Convert(parse(t, `500`), FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, CommandStream{PauseCommand(500)}, out.Commands)

	out, err = c.Convert(parse(t, `[{"duration":5},40,{"duration":6}]`), FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"5ms", "40ms", "6ms"}, out.Commands.Strings())

	out, err = c.Convert(parse(t, `{"a":{"duration":5},"gap":80}`), FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"5ms", "80ms"}, out.Commands.Strings())
}

func TestConvert_FieldWarningsSkipItems(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"w":[
		{"duration":10,"frame_nodes":[{"node_index":["x",4],"intensity":[1,2]}, "junk"]},
		"not a frame",
		{"duration":20,"frame_nodes":"bogus"}
	]}`)

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)

	assert.Equal(t, []string{"[L,4:2]", "10ms", "20ms"}, out.Commands.Strings())
	require.Len(t, out.Warnings, 4)
	for _, w := range out.Warnings {
		assert.True(t, errors.Is(w, errors.ErrFieldWarning))
	}
}

func TestConvert_NonFrameWordValuesAreSkipped(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"word":[{"duration":100,"frame_nodes":[{"node_index":1,"intensity":50}]}],"note":"hello","meta":{"foo":1}}`)
	require.Equal(t, sentence.KindContour, s.Kind())

	out, err := c.Convert(s, FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, CommandStream{ActuateCommand(1, 50), PauseCommand(100)}, out.Commands)
	assert.Equal(t, []string{"[L,1:50]", "100ms"}, out.Commands.Strings())
	require.Len(t, out.Warnings, 2)
	for _, w := range out.Warnings {
		assert.True(t, errors.Is(w, errors.ErrFieldWarning))
	}
}

func TestConvert_UnsupportedSentences(t *testing.T) {
	c := newTestConverter()

	for _, s := range []sentence.Sentence{
		sentence.Heartbeat{},
		sentence.ServerEnvelope{Type: "a", Message: "b"},
		sentence.ControlCommand{Name: "get_mode"},
		sentence.Unrecognized{Raw: "1.5"},
		nil,
	} {
		_, err := c.Convert(s, FlavorSerial)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestFrames_TopLevelShape(t *testing.T) {
	_, _, err := Frames("text")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))

	_, _, err = Frames(nil)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))

	frames, warnings, err := Frames(sentence.NewObject("w", "string value"))
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Len(t, warnings, 1)
}

func TestFrames_OrderField(t *testing.T) {
	v, err := sentence.Decode([]byte(`[{"order":3,"duration":1},{"order":"x","duration":2},{"duration":3}]`))
	require.NoError(t, err)

	frames, warnings, err := Frames(v)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.True(t, frames[0].HasOrder)
	assert.Equal(t, 3, frames[0].Order)
	assert.False(t, frames[1].HasOrder)
	assert.False(t, frames[2].HasOrder)
	assert.Len(t, warnings, 1)
}

func TestConvert_ColorSerial(t *testing.T) {
	c := newTestConverter()

	out, err := c.Convert(parse(t, `{"color":{"r":255,"g":0,"b":128},"intensity":128,"duration":200}`), FlavorSerial)
	require.NoError(t, err)

	// 128/255*128 = 64.25
	assert.Equal(t, []string{"[L,9:128]", "[L,6:0]", "[L,4:64]", "200ms"}, out.Commands.Strings())
}

func TestConvert_ColorDefaultsAndMapping(t *testing.T) {
	c := NewConverter(Options{ColorNodes: ColorNodes{Red: 1, Green: 2, Blue: 3}}, nil)

	out, err := c.Convert(parse(t, `{"color":{"r":300,"g":-5,"b":255}}`), FlavorSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"[L,1:255]", "[L,2:0]", "[L,3:255]", "160ms"}, out.Commands.Strings())
}

func TestConvert_ColorScalingBounds(t *testing.T) {
	c := newTestConverter()

	for _, intensity := range []int{-10, 0, 1, 64, 200, 255, 900} {
		for _, ch := range []int{-1, 0, 1, 127, 128, 254, 255, 256} {
			d := sentence.ColorDirective{
				Color:      sentence.RGB{R: ch, G: ch, B: 0},
				Intensity:  intensity,
				DurationMs: 10,
			}
			out, err := c.Convert(d, FlavorSerial)
			require.NoError(t, err)
			require.Len(t, out.Commands, 4)

			limit := clamp(intensity, 0, MaxIntensity)
			for _, cmd := range out.Commands[:3] {
				assert.GreaterOrEqual(t, cmd.Intensity, 0)
				assert.LessOrEqual(t, cmd.Intensity, limit)
			}
			assert.Equal(t, 0, out.Commands[2].Intensity, "blue channel is zero")
			if ch <= 0 {
				assert.Equal(t, 0, out.Commands[0].Intensity)
			}
		}
	}
}

func TestConvert_ColorVendor(t *testing.T) {
	c := newTestConverter()

	out, err := c.Convert(parse(t, `{"color":{"r":255,"g":51,"b":0},"duration":90}`), FlavorVendor)
	require.NoError(t, err)

	require.Len(t, out.Pattern.KeyFrames, 3)
	assert.Equal(t, "color", out.Pattern.Name)
	assert.Equal(t, 255, out.Pattern.KeyFrames[0].Weights[9])
	assert.Equal(t, 51, out.Pattern.KeyFrames[1].Weights[6])
	assert.Equal(t, 0, out.Pattern.KeyFrames[2].Weights[4])
	for _, kf := range out.Pattern.KeyFrames {
		assert.Equal(t, 90, kf.DurationMs)
		assert.Zero(t, kf.Timestamp)
	}
	assert.Empty(t, out.Commands)
}

func TestConvert_VendorStableOrder(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"w":[
		{"order":2,"duration":10,"frame_nodes":[{"node_index":[1,2],"intensity":10}]},
		{"order":1,"duration":20,"frame_nodes":{"node_index":3,"intensity":30}},
		{"order":2,"duration":30,"frame_nodes":{"node_index":4,"intensity":40}}
	]}`)

	out, err := c.Convert(s, FlavorVendor)
	require.NoError(t, err)

	kfs := out.Pattern.KeyFrames
	require.Len(t, kfs, 4)
	assert.Equal(t, []int{1, 2, 2, 2}, []int{kfs[0].Order, kfs[1].Order, kfs[2].Order, kfs[3].Order})
	assert.Equal(t, 30, kfs[0].Weights[3])
	assert.Equal(t, 10, kfs[1].Weights[1])
	assert.Equal(t, 10, kfs[2].Weights[2])
	assert.Equal(t, 40, kfs[3].Weights[4])
}

func TestConvert_VendorTraversalOrderWithoutExplicitOrder(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `{"a":[{"duration":5,"frame_nodes":[{"node_index":[7,8],"intensity":[1,2]}]}],"b":[{"duration":6,"frame_nodes":{"node_index":0,"intensity":3}}]}`)

	out, err := c.Convert(s, FlavorVendor)
	require.NoError(t, err)

	kfs := out.Pattern.KeyFrames
	require.Len(t, kfs, 3)
	assert.Equal(t, 1, kfs[0].Weights[7])
	assert.Equal(t, 2, kfs[1].Weights[8])
	assert.Equal(t, 3, kfs[2].Weights[0])
	assert.Equal(t, 6, kfs[2].DurationMs)
	assert.Contains(t, kfs[2].Annotation, "b[0] node=0")
}

func TestConvert_VendorOutOfRangeNodeOmitted(t *testing.T) {
	c := newTestConverter()
	s := parse(t, `[{"duration":5,"frame_nodes":[{"node_index":[-1,20,99,19],"intensity":[300,300,300,300]}]}]`)

	out, err := c.Convert(s, FlavorVendor)
	require.NoError(t, err)

	kfs := out.Pattern.KeyFrames
	require.Len(t, kfs, 4)
	for _, kf := range kfs[:3] {
		assert.Equal(t, [WeightSlots]int{}, kf.Weights)
	}
	assert.Equal(t, MaxIntensity, kfs[3].Weights[19], "intensity clamped")

	nonZero := 0
	for _, kf := range kfs {
		for _, w := range kf.Weights {
			if w != 0 {
				nonZero++
			}
		}
	}
	assert.Equal(t, 1, nonZero)
}

func TestConvert_VendorPausesOnlyProduceNoKeyFrames(t *testing.T) {
	c := newTestConverter()

	out, err := c.Convert(parse(t, `[{"duration":5},100]`), FlavorVendor)
	require.NoError(t, err)
	assert.Empty(t, out.Pattern.KeyFrames)
	assert.Equal(t, 0, out.Len())
}

func TestCommand_Encode(t *testing.T) {
	assert.Equal(t, "[L,3:200]", ActuateCommand(3, 200).Encode())
	assert.Equal(t, "", PauseCommand(10).Encode())
	assert.Equal(t, 0, PauseCommand(-5).DurationMs)
	assert.Equal(t, "serial", FlavorSerial.String())
	assert.Equal(t, "vendor", FlavorVendor.String())
}
