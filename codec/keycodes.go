package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// keyNames maps HID usage codes to display names.
var keyNames = map[uint8]string{
	40: "Enter", 41: "Escape", 42: "Backspace", 43: "Tab", 44: "Space",
	45: "-", 46: "=", 47: "[", 48: "]", 49: "\\", 51: ";", 52: "'",
	53: "`", 54: ",", 55: ".", 56: "/", 57: "CapsLock",
	70: "PrintScreen", 71: "ScrollLock", 72: "Pause", 73: "Insert",
	74: "Home", 75: "PageUp", 76: "Delete", 77: "End", 78: "PageDown",
	79: "Right", 80: "Left", 81: "Down", 82: "Up",
	KeyLeftCtrl: "Ctrl", KeyLeftShift: "Shift", KeyLeftAlt: "Alt", KeyLeftGUI: "GUI",
	KeyRightCtrl: "RCtrl", KeyRightShift: "RShift", KeyRightAlt: "RAlt", KeyRightGUI: "RGUI",
}

// keyAliases are extra spellings accepted by LookupKey.
var keyAliases = map[string]uint8{
	"control": KeyLeftCtrl, "lctrl": KeyLeftCtrl, "win": KeyLeftGUI, "super": KeyLeftGUI,
	"cmd": KeyLeftGUI, "meta": KeyLeftGUI, "lshift": KeyLeftShift, "lalt": KeyLeftAlt,
	"option": KeyLeftAlt, "altgr": KeyRightAlt, "esc": 41, "return": 40, "del": 76,
	"bksp": 42, "pgup": 75, "pgdn": 78, "ins": 73,
}

// keyCodes is the reverse lookup of keyNames and keyAliases, built in init.
var keyCodes map[string]uint8

func init() {
	// Letters, digits and function keys follow a regular layout.
	for i := uint8(0); i < 26; i++ {
		keyNames[4+i] = string(rune('A' + i))
	}
	for i := uint8(0); i < 9; i++ {
		keyNames[30+i] = string(rune('1' + i))
	}
	keyNames[39] = "0"
	for i := uint8(0); i < 12; i++ {
		keyNames[58+i] = "F" + strconv.Itoa(int(i)+1)
	}
	keyCodes = buildKeyCodes()
}

func buildKeyCodes() map[string]uint8 {
	codes := make(map[string]uint8, len(keyNames)+len(keyAliases))
	for code, name := range keyNames {
		codes[strings.ToLower(name)] = code
	}
	for alias, code := range keyAliases {
		codes[alias] = code
	}
	return codes
}

// KeyName returns the display name of a HID keycode.
func KeyName(keycode uint8) string {
	if name, ok := keyNames[keycode]; ok {
		return name
	}
	return fmt.Sprintf("Key%d", keycode)
}

// LookupKey resolves a key name (case-insensitive), an alias, or a numeric
// keycode ("0x2c", "44") to its HID usage code.
func LookupKey(name string) (uint8, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := keyCodes[name]; ok {
		return code, true
	}
	if strings.HasPrefix(name, "key") {
		name = name[3:]
	}
	n, err := strconv.ParseUint(name, 0, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// ParseSequence parses a human written sequence such as "ctrl+alt+t" or
// "ctrl+c, ctrl+v" into decompiled steps. '+', ',' and whitespace all separate
// steps; use Compile to merge the modifiers.
func ParseSequence(s string) ([]KeyPress, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' ' || r == '\t'
	})

	steps := make([]KeyPress, 0, len(fields))
	for _, f := range fields {
		code, ok := LookupKey(f)
		if !ok {
			return nil, fmt.Errorf("unknown key %q", f)
		}
		steps = append(steps, KeyPress{Keycode: code})
	}
	return steps, nil
}

// FormatSequence renders compiled steps as "Ctrl+Shift+T Enter".
func FormatSequence(steps []KeyPress) string {
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		names := make([]string, 0, 4)
		for _, raw := range Decompile([]KeyPress{step}) {
			names = append(names, KeyName(raw.Keycode))
		}
		parts = append(parts, strings.Join(names, "+"))
	}
	return strings.Join(parts, " ")
}
