package channel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
)

func vendorOutput(weights ...map[int]int) convert.Output {
	p := convert.Pattern{Name: "contour"}
	for i, w := range weights {
		kf := convert.KeyFrame{Order: i, Annotation: "kf"}
		for node, v := range w {
			kf.Weights[node] = v
		}
		p.KeyFrames = append(p.KeyFrames, kf)
	}
	return convert.Output{Flavor: convert.FlavorVendor, Pattern: p}
}

func newTestVendor(t *testing.T) (*Vendor, *LoopbackSDK) {
	t.Helper()
	sdk := NewLoopbackSDK(nil)
	v, err := NewVendor(sdk)
	require.NoError(t, err)
	return v, sdk
}

func TestVendor_AvailableConnects(t *testing.T) {
	v, sdk := newTestVendor(t)
	assert.Equal(t, StateDisconnected, sdk.ConnectionState())

	assert.True(t, v.Available(context.Background()))
	assert.Equal(t, StateConnected, sdk.ConnectionState())
}

func TestVendor_AvailableStaysDisconnected(t *testing.T) {
	v, sdk := newTestVendor(t)
	sdk.SetConnectResult(StateConnecting)

	assert.False(t, v.Available(context.Background()))
}

func TestVendor_SendLoadsPlaysUnloads(t *testing.T) {
	v, sdk := newTestVendor(t)
	sdk.SetState(StateConnected)

	err := v.Send(context.Background(), vendorOutput(map[int]int{3: 200}, map[int]int{19: 5}))
	require.NoError(t, err)

	played := sdk.Played()
	require.Len(t, played, 1)
	assert.Equal(t, 0, sdk.Loaded(), "pattern must be unloaded after play")

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(played[0]), &doc))
	require.Len(t, doc.Tracks, 1)
	assert.Equal(t, "contour", doc.Tracks[0].Name)
	assert.Equal(t, 100, doc.Tracks[0].Volume)
	require.Len(t, doc.Tracks[0].Samples, 1)

	sample := doc.Tracks[0].Samples[0]
	assert.Equal(t, 1.0, sample.Speed)
	assert.Equal(t, 1, sample.RepeatCount)
	require.Len(t, sample.SpatKeyframes, 2)
	assert.Equal(t, 200, sample.SpatKeyframes[0].Weights[3])
	assert.Equal(t, 5, sample.SpatKeyframes[1].Weights[19])
	assert.Zero(t, sample.SpatKeyframes[1].Timestamp)
}

func TestVendor_DocumentWireFormat(t *testing.T) {
	v, _ := newTestVendor(t)

	data, err := v.Encode(vendorOutput(map[int]int{0: 1}).Pattern)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	sample := raw["tracks"].([]any)[0].(map[string]any)["samples"].([]any)[0].(map[string]any)
	for _, key := range []string{"annotation", "timestamp", "signalIndex", "speed", "repeatCount",
		"preDelay", "postDelay", "maxDuration", "repeatSpat", "spatKeyframes"} {
		assert.Contains(t, sample, key)
	}
	kf := sample["spatKeyframes"].([]any)[0].(map[string]any)
	assert.Len(t, kf["weights"], convert.WeightSlots)
}

func TestVendor_SendConnectsOnFirstUse(t *testing.T) {
	v, sdk := newTestVendor(t)
	require.Equal(t, StateDisconnected, v.State())

	require.NoError(t, v.Send(context.Background(), vendorOutput(map[int]int{1: 1})))
	assert.Equal(t, StateConnected, v.State())
	assert.Len(t, sdk.Played(), 1)
}

func TestVendor_SendDisconnectedIsUnavailable(t *testing.T) {
	v, sdk := newTestVendor(t)
	sdk.SetConnectResult(StateConnecting)

	err := v.Send(context.Background(), vendorOutput(map[int]int{1: 1}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChannelUnavailable))
	assert.Empty(t, sdk.Played())
}

func TestVendor_SDKErrorTranslation(t *testing.T) {
	notConnected := &SDKError{Code: CodeNotConnected, Op: "play_effect"}
	assert.True(t, errors.Is(notConnected, errors.ErrChannelUnavailable))

	other := &SDKError{Code: -6, Op: "play_effect"}
	assert.True(t, errors.Is(other, errors.ErrTransport))

	v, sdk := newTestVendor(t)
	sdk.SetState(StateConnected)
	sdk.FailPlay(notConnected)

	err := v.Send(context.Background(), vendorOutput(map[int]int{1: 1}))
	assert.True(t, errors.Is(err, errors.ErrChannelUnavailable))
	assert.Equal(t, 0, sdk.Loaded(), "unload still runs after a failed play")

	sdk.FailPlay(assert.AnError)
	err = v.Send(context.Background(), vendorOutput(map[int]int{1: 1}))
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.True(t, errors.IsTransient(err))
}

func TestVendor_EmptyPatternIsNoop(t *testing.T) {
	v, sdk := newTestVendor(t)
	sdk.SetState(StateConnected)

	require.NoError(t, v.Send(context.Background(), vendorOutput()))
	assert.Empty(t, sdk.Played())
}

func TestVendor_RejectsSerialOutput(t *testing.T) {
	v, _ := newTestVendor(t)
	err := v.Send(context.Background(), convert.Output{Flavor: convert.FlavorSerial})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))
}

func TestVendor_SchemaRejectsBadWeights(t *testing.T) {
	v, _ := newTestVendor(t)

	_, err := v.Encode(vendorOutput(map[int]int{2: 999}).Pattern)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewVendor_NilSDK(t *testing.T) {
	_, err := NewVendor(nil)
	assert.True(t, errors.Is(err, errors.ErrChannelNotConfigured))
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(42)", ConnectionState(42).String())
}

func TestVendor_StateDoesNotConnect(t *testing.T) {
	sdk := NewLoopbackSDK(nil)
	v, err := NewVendor(sdk)
	require.NoError(t, err)

	assert.Equal(t, StateDisconnected, v.State())
	assert.True(t, v.Available(context.Background()))
	assert.Equal(t, StateConnected, v.State())
}

func TestVendor_RegistryMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	sdk := NewLoopbackSDK(nil)
	v, err := NewVendor(sdk, WithVendorRegistry(registry))
	require.NoError(t, err)
	require.NotNil(t, v.connects)
	require.NotNil(t, v.keyframes)

	require.NoError(t, v.Send(context.Background(), vendorOutput(map[int]int{1: 1})))
	require.NoError(t, v.Send(context.Background(), vendorOutput(map[int]int{2: 2})))

	assert.Equal(t, 1.0, testutil.ToFloat64(v.connects), "connected once")
	assert.Equal(t, 1, testutil.CollectAndCount(v.keyframes))

	_, err = NewVendor(sdk, WithVendorRegistry(registry))
	require.NoError(t, err, "duplicate registration only logs")
}
