package channel

import (
	"context"
	"fmt"

	"github.com/c360/hapticbridge/convert"
	"github.com/c360/hapticbridge/errors"
)

// Channel names used in logs, metrics and dispatch results
const (
	NameSerial = "serial"
	NameVendor = "vendor"
)

// DeviceChannel is one haptic output backend. Implementations are not safe for
// concurrent Send calls; the dispatcher serializes them.
type DeviceChannel interface {
	// Name identifies the channel.
	Name() string
	// Flavor is the conversion flavor the channel consumes.
	Flavor() convert.Flavor
	// Available reports whether a Send could currently reach the device. It may try to
	// connect.
	Available(ctx context.Context) bool
	// Send drives the device with one converted message and blocks until pacing is done.
	Send(ctx context.Context, out convert.Output) error
	// Close releases the device. A later Send reopens it.
	Close() error
}

func checkFlavor(ch DeviceChannel, out convert.Output) error {
	if out.Flavor == ch.Flavor() {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s output sent to %s channel", errors.ErrUnsupportedShape, out.Flavor, ch.Name()),
		ch.Name(), "Send", "check flavor")
}
