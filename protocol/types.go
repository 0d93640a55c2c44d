package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/talos-macropad/go-talos/codec"
)

// MacroType is the action bound to a button. The numeric values are the
// firmware's macro_type_t and travel on the wire as decimal integers.
type MacroType uint8

// Macro types.
const (
	MacroKeyPress    MacroType = 0
	MacroTextString  MacroType = 1
	MacroLayerToggle MacroType = 2
	MacroScript      MacroType = 3
	MacroKeySequence MacroType = 4
	MacroMouseButton MacroType = 5
	MacroMouseMove   MacroType = 6
	MacroMouseWheel  MacroType = 7
	MacroMidiNote    MacroType = 8
	MacroMidiCC      MacroType = 9
	MacroGame        MacroType = 10
)

var macroTypeNames = [...]string{
	MacroKeyPress:    "key_press",
	MacroTextString:  "text",
	MacroLayerToggle: "layer_toggle",
	MacroScript:      "script",
	MacroKeySequence: "key_sequence",
	MacroMouseButton: "mouse_button",
	MacroMouseMove:   "mouse_move",
	MacroMouseWheel:  "mouse_wheel",
	MacroMidiNote:    "midi_note",
	MacroMidiCC:      "midi_cc",
	MacroGame:        "game",
}

// Valid reports whether t is a known macro type.
func (t MacroType) Valid() bool {
	return int(t) < len(macroTypeNames)
}

func (t MacroType) String() string {
	if t.Valid() {
		return macroTypeNames[t]
	}
	return fmt.Sprintf("macro_type(%d)", uint8(t))
}

// ParseMacroType accepts a name as returned by String or a decimal type number.
func ParseMacroType(s string) (MacroType, error) {
	for i, name := range macroTypeNames {
		if name == s {
			return MacroType(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !MacroType(n).Valid() {
		return 0, fmt.Errorf("unknown macro type %q", s)
	}
	return MacroType(n), nil
}

// MarshalText implements encoding.TextMarshaler.
func (t MacroType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid macro type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MacroType) UnmarshalText(text []byte) error {
	v, err := ParseMacroType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MacroEntry is the action configured on one button.
//
// The meaning of Value, MoveX and MoveY depends on Type:
//
//	KeyPress      Value = HID keycode
//	LayerToggle   Value = target layer
//	MouseButton   Value = button mask
//	MouseMove     MoveX/MoveY = delta, RepeatCount 0 = continuous
//	MouseWheel    Value = scroll delta
//	MidiNote      Value = note, MoveX = velocity, MoveY = channel
//	MidiCC        Value = controller, MoveX = value, MoveY = channel
//
// Sequence holds up to codec.MaxSequenceSteps compiled steps and is only used
// by KeySequence. Script, Platform and TerminalShortcut are only used by Script.
type MacroEntry struct {
	Type             MacroType        `yaml:"type" json:"type"`
	Name             string           `yaml:"name" json:"name"`
	Symbol           string           `yaml:"symbol,omitempty" json:"symbol,omitempty"`
	Value            int              `yaml:"value" json:"value"`
	MacroString      string           `yaml:"text,omitempty" json:"text,omitempty"`
	RepeatCount      int              `yaml:"repeat_count" json:"repeat_count"`
	RepeatInterval   int              `yaml:"repeat_interval" json:"repeat_interval"`
	MoveX            int              `yaml:"move_x" json:"move_x"`
	MoveY            int              `yaml:"move_y" json:"move_y"`
	Sequence         []codec.KeyPress `yaml:"sequence,omitempty" json:"sequence,omitempty"`
	Script           string           `yaml:"script,omitempty" json:"script,omitempty"`
	Platform         codec.Platform   `yaml:"platform,omitempty" json:"platform,omitempty"`
	TerminalShortcut []codec.KeyPress `yaml:"terminal_shortcut,omitempty" json:"terminal_shortcut,omitempty"`
}

// EmptyMacro returns the placeholder stored in slots the device has not
// described.
func EmptyMacro() MacroEntry {
	return MacroEntry{
		Type:        MacroKeyPress,
		Name:        "Empty",
		RepeatCount: 1,
	}
}

// EmojiIndex returns the wire index of the entry's symbol.
func (m MacroEntry) EmojiIndex() int {
	return codec.EmojiIndex(m.Symbol)
}

// EditSequence returns the key sequence in decompiled form.
func (m MacroEntry) EditSequence() []codec.KeyPress {
	return codec.Decompile(m.Sequence)
}

// Clone returns a deep copy of the entry.
func (m MacroEntry) Clone() MacroEntry {
	c := m
	c.Sequence = cloneSteps(m.Sequence)
	c.TerminalShortcut = cloneSteps(m.TerminalShortcut)
	return c
}

// Equal reports whether two entries would produce the same device state.
// Sequences are compared in compiled form.
func (m MacroEntry) Equal(o MacroEntry) bool {
	if m.Type != o.Type || m.Name != o.Name || m.Symbol != o.Symbol ||
		m.Value != o.Value || m.MacroString != o.MacroString ||
		m.RepeatCount != o.RepeatCount || m.RepeatInterval != o.RepeatInterval ||
		m.MoveX != o.MoveX || m.MoveY != o.MoveY ||
		m.Script != o.Script || m.Platform != o.Platform {
		return false
	}
	return stepsEqual(codec.Compile(m.Sequence), codec.Compile(o.Sequence)) &&
		stepsEqual(codec.Compile(m.TerminalShortcut), codec.Compile(o.TerminalShortcut))
}

// Validate checks the entry against the firmware field limits.
func (m MacroEntry) Validate() error {
	var errs []error

	if !m.Type.Valid() {
		errs = append(errs, fmt.Errorf("invalid macro type %d", uint8(m.Type)))
	}
	if err := validateName(m.Name); err != nil {
		errs = append(errs, err)
	}
	if n := utf8.RuneCountInString(m.MacroString); n > MaxMacroStringLen {
		errs = append(errs, fmt.Errorf("text is %d characters, maximum is %d", n, MaxMacroStringLen))
	}
	if m.RepeatCount < 0 || m.RepeatCount > 0xFFFF {
		errs = append(errs, fmt.Errorf("repeat count %d out of range", m.RepeatCount))
	}
	if m.RepeatInterval < 0 || m.RepeatInterval > 0xFFFF {
		errs = append(errs, fmt.Errorf("repeat interval %d out of range", m.RepeatInterval))
	}
	if m.MoveX < -32768 || m.MoveX > 32767 || m.MoveY < -32768 || m.MoveY > 32767 {
		errs = append(errs, fmt.Errorf("move (%d,%d) out of range", m.MoveX, m.MoveY))
	}

	switch m.Type {
	case MacroKeyPress:
		if m.Value < 0 || m.Value > 255 {
			errs = append(errs, fmt.Errorf("keycode %d out of range", m.Value))
		}
	case MacroLayerToggle:
		if !ValidLayer(m.Value) {
			errs = append(errs, fmt.Errorf("target layer %d out of range", m.Value))
		}
	case MacroScript:
		if len(m.Script) > MaxScriptSize {
			errs = append(errs, &ScriptTooLargeError{Size: len(m.Script), Max: MaxScriptSize})
		}
		if !m.Platform.Valid() {
			errs = append(errs, fmt.Errorf("invalid script platform %d", uint8(m.Platform)))
		}
	default:
		if m.Value < -32768 || m.Value > 0xFFFF {
			errs = append(errs, fmt.Errorf("value %d out of range", m.Value))
		}
	}

	return errors.Join(errs...)
}

// Layer is one set of button assignments.
type Layer struct {
	Name   string                 `yaml:"name" json:"name"`
	Symbol string                 `yaml:"symbol" json:"symbol"`
	Macros [NumButtons]MacroEntry `yaml:"macros" json:"macros"`
}

// EmojiIndex returns the wire index of the layer symbol.
func (l Layer) EmojiIndex() int {
	return codec.EmojiIndex(l.Symbol)
}

// Configuration is the complete device configuration.
type Configuration struct {
	Version     string           `yaml:"version" json:"version"`
	OLEDTimeout int              `yaml:"oled_timeout" json:"oled_timeout"`
	Layers      [NumLayers]Layer `yaml:"layers" json:"layers"`
}

// NewConfiguration returns the tree a config read starts from: every slot
// holds EmptyMacro, layers are named "Layer N" with the default symbols.
func NewConfiguration() *Configuration {
	c := &Configuration{
		Version:     UnknownVersion,
		OLEDTimeout: DefaultOLEDTimeout,
	}
	for i := range c.Layers {
		c.Layers[i].Name = fmt.Sprintf("Layer %d", i+1)
		c.Layers[i].Symbol = codec.DefaultLayerEmojis[i]
		for b := range c.Layers[i].Macros {
			c.Layers[i].Macros[b] = EmptyMacro()
		}
	}
	return c
}

// DefaultConfiguration returns NewConfiguration with the layer key of every
// layer bound to cycle to the next layer.
func DefaultConfiguration() *Configuration {
	c := NewConfiguration()
	for i := range c.Layers {
		c.Layers[i].Macros[LayerButton] = MacroEntry{
			Type:        MacroLayerToggle,
			Name:        "LayerSwitch",
			Symbol:      codec.LayerSwitchEmoji,
			Value:       (i + 1) % NumLayers,
			RepeatCount: 1,
		}
	}
	return c
}

// Macro returns a pointer to the entry at layer/button.
func (c *Configuration) Macro(layer, button int) (*MacroEntry, error) {
	if !ValidLayer(layer) {
		return nil, fmt.Errorf("layer %d out of range", layer)
	}
	if !ValidButton(button) {
		return nil, fmt.Errorf("button %d out of range", button)
	}
	return &c.Layers[layer].Macros[button], nil
}

// Clone returns a deep copy of the configuration.
func (c *Configuration) Clone() *Configuration {
	out := *c
	for i := range out.Layers {
		for b := range out.Layers[i].Macros {
			out.Layers[i].Macros[b] = c.Layers[i].Macros[b].Clone()
		}
	}
	return &out
}

// Validate checks every field against the firmware limits.
func (c *Configuration) Validate() error {
	var errs []error

	if c.OLEDTimeout < 0 || c.OLEDTimeout > MaxOLEDTimeout {
		errs = append(errs, fmt.Errorf("oled timeout %d out of range 0-%d", c.OLEDTimeout, MaxOLEDTimeout))
	}
	for i, layer := range c.Layers {
		if err := validateName(layer.Name); err != nil {
			errs = append(errs, fmt.Errorf("layer %d: %w", i, err))
		}
		for b, m := range layer.Macros {
			if err := m.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("layer %d button %d: %w", i, b, err))
			}
		}
	}

	return errors.Join(errs...)
}

// ValidLayer reports whether layer is a layer index.
func ValidLayer(layer int) bool {
	return layer >= 0 && layer < NumLayers
}

// ValidButton reports whether button is a button index.
func ValidButton(button int) bool {
	return button >= 0 && button < NumButtons
}

func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n > MaxNameLen {
		return fmt.Errorf("name %q is %d characters, maximum is %d", name, n, MaxNameLen)
	}
	return nil
}

func cloneSteps(steps []codec.KeyPress) []codec.KeyPress {
	if steps == nil {
		return nil
	}
	return append([]codec.KeyPress(nil), steps...)
}

func stepsEqual(a, b []codec.KeyPress) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
