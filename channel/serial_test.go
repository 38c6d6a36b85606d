package channel

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/pkg/retry"
)

type fakeSink struct {
	mu        sync.Mutex
	packets   []string
	flushes   int
	closed    bool
	failWrite error
	times     []time.Time
}

func (f *fakeSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return 0, f.failWrite
	}
	f.packets = append(f.packets, string(p))
	f.times = append(f.times, time.Now())
	return len(p), nil
}

func (f *fakeSink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type sinkFactory struct {
	mu       sync.Mutex
	opened   []*fakeSink
	openErr  error
	attempts int
}

func (sf *sinkFactory) open(_ context.Context, port string, baud int) (Sink, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.attempts++
	if sf.openErr != nil {
		return nil, sf.openErr
	}
	s := &fakeSink{}
	sf.opened = append(sf.opened, s)
	return s, nil
}

func (sf *sinkFactory) last() *fakeSink {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.opened[len(sf.opened)-1]
}

func fastSerial(sf *sinkFactory, opts ...SerialOption) *Serial {
	cfg := SerialConfig{Port: "/dev/ttyTEST", ChunkDelay: 0, SettleDelay: 0}
	opts = append([]SerialOption{
		WithSinkOpener(sf.open),
		WithOpenRetry(retry.Config{MaxAttempts: 1}),
	}, opts...)
	return NewSerial(cfg, opts...)
}

func serialOutput(cmds ...convert.Command) convert.Output {
	return convert.Output{Flavor: convert.FlavorSerial, Commands: cmds}
}

func TestSerial_WritesCommandsAndStops(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	err := s.Send(context.Background(), serialOutput(
		convert.ActuateCommand(1, 50),
		convert.ActuateCommand(2, 50),
		convert.PauseCommand(5),
	))
	require.NoError(t, err)

	sink := sf.last()
	assert.Equal(t, []string{"[L,1:50]", "[L,2:50]", StopCommand}, sink.packets)
	assert.Equal(t, 3, sink.flushes)
}

func TestSerial_Terminator(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)
	s.cfg.Terminator = "\n"

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(3, 1), convert.PauseCommand(0))))
	assert.Equal(t, []string{"[L,3:1]\n", "[L,all:0]\n"}, sf.last().packets)
}

func TestSerial_ChunksLongCommands(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)
	s.cfg.ChunkSize = 4

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(12, 255))))

	packets := sf.last().packets
	assert.Equal(t, []string{"[L,1", "2:25", "5]"}, packets)
	for _, p := range packets {
		assert.LessOrEqual(t, len(p), 4)
	}
	assert.Equal(t, "[L,12:255]", strings.Join(packets, ""))
}

func TestSerial_PacesChunks(t *testing.T) {
	sf := &sinkFactory{}
	s := NewSerial(SerialConfig{
		Port:        "p",
		ChunkDelay:  20 * time.Millisecond,
		SettleDelay: 0,
	}, WithSinkOpener(sf.open))

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), serialOutput(
		convert.ActuateCommand(1, 1),
		convert.ActuateCommand(2, 2),
		convert.ActuateCommand(3, 3),
	)))

	// First packet goes out immediately, the next two wait for the limiter.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	times := sf.last().times
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 15*time.Millisecond)
}

func TestSerial_PauseWaitsDuration(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), serialOutput(convert.PauseCommand(40))))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, []string{StopCommand}, sf.last().packets)
}

func TestSerial_PauseInterruptedByCancel(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.Send(ctx, serialOutput(convert.PauseCommand(5000)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSerial_WriteFailureReopens(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	first := sf.last()
	first.failWrite = fmt.Errorf("device unplugged")

	err := s.Send(context.Background(), serialOutput(convert.ActuateCommand(2, 2)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.True(t, errors.IsTransient(err))
	assert.True(t, first.closed)

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(3, 3))))
	assert.Len(t, sf.opened, 2)
	assert.Equal(t, []string{"[L,3:3]"}, sf.last().packets)
}

func TestSerial_OpenFailure(t *testing.T) {
	sf := &sinkFactory{openErr: fmt.Errorf("no such file")}
	s := fastSerial(sf)

	err := s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Equal(t, "transport", errors.Kind(err))
}

func TestSerial_NotConfigured(t *testing.T) {
	s := NewSerial(SerialConfig{})

	assert.False(t, s.Available(context.Background()))
	err := s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1)))
	assert.True(t, errors.Is(err, errors.ErrChannelNotConfigured))
}

func TestSerial_RejectsVendorOutput(t *testing.T) {
	s := fastSerial(&sinkFactory{})
	err := s.Send(context.Background(), convert.Output{Flavor: convert.FlavorVendor})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedShape))
}

func TestSerial_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	sf := &sinkFactory{}
	s := fastSerial(sf, WithSerialRegistry(registry))

	require.NoError(t, s.Send(context.Background(), serialOutput(
		convert.ActuateCommand(1, 50),
		convert.PauseCommand(0),
	)))

	assert.Equal(t, float64(len("[L,1:50]")+len(StopCommand)),
		testutil.ToFloat64(registry.CoreMetrics().SerialBytesWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.chunks.WithLabelValues("/dev/ttyTEST")))
}

func TestSerial_Close(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	require.NoError(t, s.Close())
	assert.True(t, sf.last().closed)
	require.NoError(t, s.Close())
}

func TestSerial_StatusFollowsTransport(t *testing.T) {
	sf := &sinkFactory{}
	s := fastSerial(sf)

	open, lastErr := s.Status()
	assert.False(t, open)
	assert.NoError(t, lastErr)

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	open, lastErr = s.Status()
	assert.True(t, open)
	assert.NoError(t, lastErr)

	sf.last().failWrite = fmt.Errorf("device unplugged")
	require.Error(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(2, 2))))
	open, lastErr = s.Status()
	assert.False(t, open)
	require.Error(t, lastErr)
	assert.True(t, errors.Is(lastErr, errors.ErrTransport))

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(3, 3))))
	open, lastErr = s.Status()
	assert.True(t, open)
	assert.NoError(t, lastErr)
}

func TestSerial_StatusRecordsOpenFailure(t *testing.T) {
	s := fastSerial(&sinkFactory{openErr: fmt.Errorf("busy")})

	require.Error(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	open, lastErr := s.Status()
	assert.False(t, open)
	assert.True(t, errors.Is(lastErr, errors.ErrTransport))
}

func TestSerial_MissingPortNotRetried(t *testing.T) {
	sf := &sinkFactory{openErr: openError(&fs.PathError{Op: "open", Path: "/dev/ttyGONE", Err: fs.ErrNotExist})}
	s := fastSerial(sf, WithOpenRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	err := s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Equal(t, 1, sf.attempts)
}

func TestSerial_BusyPortRetried(t *testing.T) {
	sf := &sinkFactory{openErr: openError(&serial.PortError{})}
	s := fastSerial(sf, WithOpenRetry(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	require.Error(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	assert.Equal(t, 3, sf.attempts)
}

func TestOpenError(t *testing.T) {
	missing := &fs.PathError{Op: "open", Path: "/dev/ttyGONE", Err: fs.ErrNotExist}
	assert.True(t, retry.IsNonRetryable(openError(missing)))
	assert.True(t, errors.Is(openError(missing), fs.ErrNotExist))

	busy := &serial.PortError{}
	assert.Equal(t, serial.PortBusy, busy.Code())
	assert.False(t, retry.IsNonRetryable(openError(busy)))
	assert.False(t, retry.IsNonRetryable(openError(fmt.Errorf("timeout"))))
}

func TestSerial_CloseUnregistersMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	sf := &sinkFactory{}
	s := fastSerial(sf, WithSerialRegistry(registry))
	require.NotNil(t, s.portOpen)

	require.NoError(t, s.Send(context.Background(), serialOutput(convert.ActuateCommand(1, 1))))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.portOpen))

	require.NoError(t, s.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(s.portOpen))
	assert.False(t, registry.Unregister("serial-channel", "port_open"))
	assert.False(t, registry.Unregister("serial-channel", "chunks_written"))

	again := fastSerial(&sinkFactory{}, WithSerialRegistry(registry))
	assert.NotNil(t, again.chunks, "names are free after close")
	assert.NotNil(t, again.portOpen)
}
