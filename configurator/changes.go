package configurator

import (
	"fmt"
	"sort"

	"github.com/talos-macropad/go-talos/protocol"
)

// ChangeKind identifies what part of the configuration a change touches.
type ChangeKind int

// Change kinds, in the order Apply writes them.
const (
	SettingChange ChangeKind = iota
	LayerChange
	MacroChange
)

func (k ChangeKind) String() string {
	switch k {
	case SettingChange:
		return "settings"
	case LayerChange:
		return "layer"
	case MacroChange:
		return "macro"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ChangeKey identifies a changed field. Use SettingKey, LayerKey and MacroKey
// to build keys so equal fields compare equal.
type ChangeKey struct {
	Kind   ChangeKind
	Layer  int
	Button int
}

// SettingKey is the key of the device-wide settings.
func SettingKey() ChangeKey {
	return ChangeKey{Kind: SettingChange, Layer: -1, Button: -1}
}

// LayerKey is the key of a layer's name and symbol.
func LayerKey(layer int) ChangeKey {
	return ChangeKey{Kind: LayerChange, Layer: layer, Button: -1}
}

// MacroKey is the key of one button's macro.
func MacroKey(layer, button int) ChangeKey {
	return ChangeKey{Kind: MacroChange, Layer: layer, Button: button}
}

func (k ChangeKey) String() string {
	switch k.Kind {
	case SettingChange:
		return "settings"
	case LayerChange:
		return fmt.Sprintf("layer %d", k.Layer)
	default:
		return fmt.Sprintf("macro L%dB%d", k.Layer, k.Button)
	}
}

func (k ChangeKey) less(o ChangeKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	if k.Layer != o.Layer {
		return k.Layer < o.Layer
	}
	return k.Button < o.Button
}

// Change is one pending write. Which fields are meaningful depends on Key.Kind:
// OLEDTimeout for SettingChange, Name and Symbol for LayerChange, Macro for
// MacroChange.
type Change struct {
	Key ChangeKey

	OLEDTimeout int

	Name   string
	Symbol string

	Macro protocol.MacroEntry
}

// SettingsChange returns a change of the OLED timeout.
func SettingsChange(oledTimeout int) Change {
	return Change{Key: SettingKey(), OLEDTimeout: oledTimeout}
}

// LayerNameChange returns a change of a layer's name and symbol.
func LayerNameChange(layer int, name, symbol string) Change {
	return Change{Key: LayerKey(layer), Name: name, Symbol: symbol}
}

// MacroEntryChange returns a change of one button.
func MacroEntryChange(layer, button int, m protocol.MacroEntry) Change {
	return Change{Key: MacroKey(layer, button), Macro: m.Clone()}
}

// Changeset is a set of pending changes keyed by the field they touch. A later
// Put for the same key replaces the earlier one.
type Changeset struct {
	changes map[ChangeKey]Change
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{changes: make(map[ChangeKey]Change)}
}

// Put adds or replaces a change.
func (s *Changeset) Put(c Change) {
	s.changes[c.Key] = c
}

// Remove drops the change for key, if any.
func (s *Changeset) Remove(key ChangeKey) {
	delete(s.changes, key)
}

// Has reports whether a change for key is pending.
func (s *Changeset) Has(key ChangeKey) bool {
	_, ok := s.changes[key]
	return ok
}

// Get returns the pending change for key.
func (s *Changeset) Get(key ChangeKey) (Change, bool) {
	c, ok := s.changes[key]
	return c, ok
}

// Len returns the number of pending changes.
func (s *Changeset) Len() int {
	return len(s.changes)
}

// Clear drops all changes.
func (s *Changeset) Clear() {
	s.changes = make(map[ChangeKey]Change)
}

// Changes returns the pending changes ordered settings first, then layers,
// then macros by layer and button.
func (s *Changeset) Changes() []Change {
	out := make([]Change, 0, len(s.changes))
	for _, c := range s.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out
}

// Diff returns the changes that turn original into edited.
func Diff(original, edited *protocol.Configuration) *Changeset {
	s := NewChangeset()

	if original.OLEDTimeout != edited.OLEDTimeout {
		s.Put(SettingsChange(edited.OLEDTimeout))
	}

	for l := range edited.Layers {
		ol, el := original.Layers[l], edited.Layers[l]
		if ol.Name != el.Name || ol.EmojiIndex() != el.EmojiIndex() {
			s.Put(LayerNameChange(l, el.Name, el.Symbol))
		}
		for b := range el.Macros {
			if !ol.Macros[b].Equal(el.Macros[b]) {
				s.Put(MacroEntryChange(l, b, el.Macros[b]))
			}
		}
	}

	return s
}
