package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/hapticbridge/channel"
	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/sentence"
)

// Control command names
const (
	CmdSetMode   = "set_mode"
	CmdGetMode   = "get_mode"
	CmdSetOutput = "set_output"
	CmdGetOutput = "get_output"
)

// configurer is implemented by channels that can exist without a backing device.
type configurer interface {
	Configured() bool
}

func configured(ch channel.DeviceChannel) bool {
	if ch == nil {
		return false
	}
	if c, ok := ch.(configurer); ok {
		return c.Configured()
	}
	return true
}

// Resolver holds the current output mode and turns it into a channel selection.
// It is safe for concurrent use.
type Resolver struct {
	serial  channel.DeviceChannel
	vendor  channel.DeviceChannel
	logger  *slog.Logger
	metrics *metric.Metrics

	mu   sync.RWMutex
	mode Mode
}

// NewResolver creates a Resolver starting in initial. Either channel may be nil.
// An invalid initial mode falls back to auto.
func NewResolver(initial Mode, serial, vendor channel.DeviceChannel, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mode-resolver")
	if !initial.Valid() {
		logger.Warn("Unknown initial mode, using auto", "mode", string(initial))
		initial = ModeAuto
	}
	return &Resolver{
		serial: serial,
		vendor: vendor,
		logger: logger,
		mode:   initial,
	}
}

// SetMetrics records mode changes in m.
func (r *Resolver) SetMetrics(m *metric.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Mode returns the configured mode, which may be auto.
func (r *Resolver) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetMode switches the mode for every following message.
func (r *Resolver) SetMode(m Mode) error {
	if !m.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown mode %q", errors.ErrUnknownCommand, string(m)),
			"ModeResolver", "SetMode", "validate mode")
	}

	r.mu.Lock()
	prev := r.mode
	r.mode = m
	metrics := r.metrics
	r.mu.Unlock()

	if prev != m {
		r.logger.Info("Output mode changed", "from", string(prev), "to", string(m))
		metrics.RecordModeChange(string(m))
	}
	return nil
}

// Resolve turns the current mode into a concrete one. Auto picks vendor when the
// engine is available, else serial when a port is configured, else none.
func (r *Resolver) Resolve(ctx context.Context) Mode {
	m := r.Mode()
	if m != ModeAuto {
		return m
	}

	switch {
	case r.vendor != nil && r.vendor.Available(ctx):
		return ModeVendor
	case configured(r.serial):
		return ModeSerial
	default:
		r.logger.Info("No output channel available, messages are processed but not sent")
		return ModeNone
	}
}

// Selected resolves the mode and returns the channels it maps to. Sides without a
// backing device are left out.
func (r *Resolver) Selected(ctx context.Context) (Mode, []channel.DeviceChannel) {
	m := r.Resolve(ctx)

	var chans []channel.DeviceChannel
	if (m == ModeSerial || m == ModeBoth) && configured(r.serial) {
		chans = append(chans, r.serial)
	}
	if (m == ModeVendor || m == ModeBoth) && configured(r.vendor) {
		chans = append(chans, r.vendor)
	}
	if len(chans) == 0 && m != ModeNone {
		r.logger.Debug("Mode has no configured channel", "mode", string(m))
	}
	return m, chans
}

type reply struct {
	OK    *bool  `json:"ok,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Error string `json:"error,omitempty"`
}

func ack(m Mode) reply {
	ok := true
	return reply{OK: &ok, Mode: string(m)}
}

func failure(msg string) reply {
	ok := false
	return reply{OK: &ok, Error: msg}
}

// Apply executes a control command and returns the reply to send back on the
// connection. Unknown commands and mode values still produce a reply alongside an
// invalid-class error.
func (r *Resolver) Apply(cmd sentence.ControlCommand) ([]byte, error) {
	var (
		out reply
		err error
	)

	switch cmd.Name {
	case CmdSetMode, CmdSetOutput:
		if !cmd.HasValue {
			out = failure("missing value")
			err = errors.WrapInvalid(
				fmt.Errorf("%w: %s without value", errors.ErrUnknownCommand, cmd.Name),
				"ModeResolver", "Apply", "read value")
			break
		}
		m, perr := ParseMode(cmd.Value)
		if perr != nil {
			out = failure("unknown mode: " + cmd.Value)
			err = perr
			break
		}
		if serr := r.SetMode(m); serr != nil {
			out = failure(serr.Error())
			err = serr
			break
		}
		out = ack(m)
	case CmdGetMode, CmdGetOutput:
		out = reply{Mode: string(r.Mode())}
	default:
		out = failure("unknown command: " + cmd.Name)
		err = errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownCommand, cmd.Name),
			"ModeResolver", "Apply", "match command")
	}

	data, merr := json.Marshal(out)
	if merr != nil {
		return nil, errors.WrapFatal(merr, "ModeResolver", "Apply", "marshal reply")
	}
	return data, err
}
