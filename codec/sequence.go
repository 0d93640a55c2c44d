package codec

// KeyPress is a single step of a key sequence: a HID keycode and the modifier
// bitmask held while it is pressed.
type KeyPress struct {
	// Keycode is the HID usage code (0 means no key)
	Keycode uint8 `yaml:"keycode" json:"keycode"`

	// Modifiers is the modifier bitmask (ModLeftCtrl ...)
	Modifiers uint8 `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`

	// Duration is the hold time in milliseconds, 0 selects DefaultStepDuration
	Duration uint16 `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// IsModifierKey reports whether keycode is one of the standalone modifier keys.
func IsModifierKey(keycode uint8) bool {
	return keycode >= KeyLeftCtrl && keycode <= KeyRightGUI
}

// ModifierBit returns the bitmask bit for a standalone modifier key, or 0.
func ModifierBit(keycode uint8) uint8 {
	if !IsModifierKey(keycode) {
		return 0
	}
	return 1 << (keycode - KeyLeftCtrl)
}

// Compile merges standalone modifier steps into the modifier bitmask of the
// next real key. Modifiers still pending when the sequence ends are emitted as
// a final step with keycode 0.
//
// Compile never fails; any keycode outside the modifier range is treated as a
// real key.
func Compile(steps []KeyPress) []KeyPress {
	compiled := make([]KeyPress, 0, len(steps))
	var pending uint8

	for _, step := range steps {
		if step.Keycode == 0 || IsModifierKey(step.Keycode) {
			pending |= step.Modifiers | ModifierBit(step.Keycode)
			continue
		}

		compiled = append(compiled, KeyPress{
			Keycode:   step.Keycode,
			Modifiers: step.Modifiers | pending,
			Duration:  step.Duration,
		})
		pending = 0
	}

	if pending != 0 {
		compiled = append(compiled, KeyPress{Modifiers: pending})
	}

	return compiled
}

// Decompile expands every modifier bit into its own zero-modifier step using the
// matching standalone modifier keycode, followed by the real key (if any).
// Bits are expanded from the lowest to the highest.
func Decompile(steps []KeyPress) []KeyPress {
	raw := make([]KeyPress, 0, len(steps)*2)

	for _, step := range steps {
		for bit := uint8(0); bit < 8; bit++ {
			if step.Modifiers&(1<<bit) != 0 {
				raw = append(raw, KeyPress{Keycode: KeyLeftCtrl + bit})
			}
		}
		if step.Keycode != 0 {
			raw = append(raw, KeyPress{Keycode: step.Keycode, Duration: step.Duration})
		}
	}

	return raw
}

// Truncate returns at most n steps of a sequence.
func Truncate(steps []KeyPress, n int) []KeyPress {
	if len(steps) > n {
		return steps[:n]
	}
	return steps
}
