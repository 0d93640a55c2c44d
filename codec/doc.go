// Package codec converts between the editable and the wire representation of
// key sequences for the Talos macro keyboard.
//
// # Key Sequences
//
// The firmware stores a key sequence in compiled form: every step is a real key
// carrying the modifier bitmask that is held while it is pressed. Editors work
// with the decompiled form where every physical key event, modifiers included,
// is its own step:
//
//	decompiled: [LeftCtrl] [LeftShift] [T]
//	compiled:   [T + CTRL|SHIFT]
//
// Use Compile before sending a sequence to the device and Decompile to turn a
// sequence read from the device back into editable steps:
//
//	wire := codec.Compile(steps)
//	steps = codec.Decompile(wire)
//
// Decompilation expands bits in a fixed order (CTRL, SHIFT, ALT, GUI, then the
// right-hand variants), so Decompile(Compile(s)) is stable for any sequence that
// already uses that ordering.
//
// # Symbols
//
// Layers and buttons carry an emoji symbol which travels on the wire as an
// index into a fixed table. EmojiIndex and EmojiString never fail: unknown
// symbols map to index 0 and out-of-range indices map to the first entry.
//
// # Key Names
//
// KeyName, LookupKey and ParseSequence map HID usage codes to human readable
// names, which is what the command line tool uses to accept input such as
// "ctrl+alt+t".
package codec
