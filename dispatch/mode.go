package dispatch

import (
	"fmt"
	"strings"

	"github.com/c360/hapticbridge/errors"
)

// Mode selects the device channels a message is sent to.
type Mode string

// Output modes
const (
	ModeSerial Mode = "serial"
	ModeVendor Mode = "vendor"
	ModeBoth   Mode = "both"
	ModeAuto   Mode = "auto"
	ModeNone   Mode = "none"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeSerial, ModeVendor, ModeBoth, ModeAuto, ModeNone}

func (m Mode) String() string { return string(m) }

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: unknown mode %q", errors.ErrUnknownCommand, s),
			"ModeResolver", "ParseMode", "parse mode")
	}
	return m, nil
}
