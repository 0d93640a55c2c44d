package codec

import "fmt"

// Modifier bitmask values as used by the HID boot keyboard report.
const (
	ModLeftCtrl   uint8 = 1 << 0
	ModLeftShift  uint8 = 1 << 1
	ModLeftAlt    uint8 = 1 << 2
	ModLeftGUI    uint8 = 1 << 3
	ModRightCtrl  uint8 = 1 << 4
	ModRightShift uint8 = 1 << 5
	ModRightAlt   uint8 = 1 << 6
	ModRightGUI   uint8 = 1 << 7
)

// HID usage codes of the standalone modifier keys. KeyLeftCtrl+n corresponds
// to modifier bit n.
const (
	KeyLeftCtrl   uint8 = 224
	KeyLeftShift  uint8 = 225
	KeyLeftAlt    uint8 = 226
	KeyLeftGUI    uint8 = 227
	KeyRightCtrl  uint8 = 228
	KeyRightShift uint8 = 229
	KeyRightAlt   uint8 = 230
	KeyRightGUI   uint8 = 231
)

// Firmware limits.
const (
	// MaxSequenceSteps is the number of compiled steps a key sequence macro can hold
	MaxSequenceSteps = 3

	// MaxShortcutSteps is the number of compiled steps of a script terminal shortcut
	MaxShortcutSteps = 5

	// MaxScriptSize is the maximum script body size in bytes (UTF-8 encoded)
	MaxScriptSize = 2048

	// DefaultStepDuration is the hold time in milliseconds sent for steps without one
	DefaultStepDuration = 50
)

// Platform identifies the operating system a script macro targets.
// The firmware uses it to pick the terminal and line endings.
type Platform uint8

// Script platforms as transmitted on the wire.
const (
	PlatformLinux   Platform = 0
	PlatformWindows Platform = 1
	PlatformMacOS   Platform = 2
)

var platformNames = map[Platform]string{
	PlatformLinux:   "linux",
	PlatformWindows: "windows",
	PlatformMacOS:   "macos",
}

// String returns the lower case platform name.
func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("platform(%d)", uint8(p))
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	_, ok := platformNames[p]
	return ok
}

// ParsePlatform converts a platform name (as returned by String) to a Platform.
func ParsePlatform(s string) (Platform, error) {
	for p, name := range platformNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid platform %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Platform) UnmarshalText(text []byte) error {
	v, err := ParsePlatform(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
