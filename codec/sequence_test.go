package codec

import (
	"reflect"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		input []KeyPress
		want  []KeyPress
	}{
		{
			name:  "empty sequence",
			input: nil,
			want:  []KeyPress{},
		},
		{
			name:  "single real key",
			input: []KeyPress{{Keycode: 4}},
			want:  []KeyPress{{Keycode: 4}},
		},
		{
			name:  "ctrl+shift+t",
			input: []KeyPress{{Keycode: KeyLeftCtrl}, {Keycode: KeyLeftShift}, {Keycode: 23}},
			want:  []KeyPress{{Keycode: 23, Modifiers: ModLeftCtrl | ModLeftShift}},
		},
		{
			name:  "right modifiers use high bits",
			input: []KeyPress{{Keycode: KeyRightAlt}, {Keycode: KeyRightGUI}, {Keycode: 6}},
			want:  []KeyPress{{Keycode: 6, Modifiers: ModRightAlt | ModRightGUI}},
		},
		{
			name:  "trailing modifiers become a modifier-only step",
			input: []KeyPress{{Keycode: 6}, {Keycode: KeyLeftAlt}},
			want:  []KeyPress{{Keycode: 6}, {Modifiers: ModLeftAlt}},
		},
		{
			name:  "modifiers do not leak past the next real key",
			input: []KeyPress{{Keycode: KeyLeftCtrl}, {Keycode: 6}, {Keycode: 25}},
			want:  []KeyPress{{Keycode: 6, Modifiers: ModLeftCtrl}, {Keycode: 25}},
		},
		{
			name:  "existing bitmask is preserved and merged",
			input: []KeyPress{{Keycode: KeyLeftCtrl}, {Keycode: 6, Modifiers: ModLeftShift, Duration: 120}},
			want:  []KeyPress{{Keycode: 6, Modifiers: ModLeftCtrl | ModLeftShift, Duration: 120}},
		},
		{
			name:  "keycode zero with modifiers is absorbed",
			input: []KeyPress{{Keycode: 0, Modifiers: ModLeftGUI}, {Keycode: 21}},
			want:  []KeyPress{{Keycode: 21, Modifiers: ModLeftGUI}},
		},
		{
			name:  "unknown high keycodes are real keys",
			input: []KeyPress{{Keycode: KeyLeftCtrl}, {Keycode: 240}},
			want:  []KeyPress{{Keycode: 240, Modifiers: ModLeftCtrl}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compile(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compile() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecompile(t *testing.T) {
	tests := []struct {
		name  string
		input []KeyPress
		want  []KeyPress
	}{
		{
			name:  "plain key",
			input: []KeyPress{{Keycode: 4}},
			want:  []KeyPress{{Keycode: 4}},
		},
		{
			name:  "canonical modifier order",
			input: []KeyPress{{Keycode: 23, Modifiers: ModRightCtrl | ModLeftGUI | ModLeftCtrl}},
			want: []KeyPress{
				{Keycode: KeyLeftCtrl},
				{Keycode: KeyLeftGUI},
				{Keycode: KeyRightCtrl},
				{Keycode: 23},
			},
		},
		{
			name:  "modifier-only step has no real key",
			input: []KeyPress{{Modifiers: ModLeftShift}},
			want:  []KeyPress{{Keycode: KeyLeftShift}},
		},
		{
			name:  "duration stays on the real key",
			input: []KeyPress{{Keycode: 6, Modifiers: ModLeftCtrl, Duration: 80}},
			want:  []KeyPress{{Keycode: KeyLeftCtrl}, {Keycode: 6, Duration: 80}},
		},
		{
			name:  "all eight modifiers",
			input: []KeyPress{{Modifiers: 0xFF}},
			want: []KeyPress{
				{Keycode: 224}, {Keycode: 225}, {Keycode: 226}, {Keycode: 227},
				{Keycode: 228}, {Keycode: 229}, {Keycode: 230}, {Keycode: 231},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompile(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decompile() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCompileDecompileRoundTrip(t *testing.T) {
	keys := []uint8{0, 4, 23, 40, KeyLeftCtrl, KeyLeftShift, KeyRightAlt, KeyRightGUI}
	mods := []uint8{0, ModLeftCtrl, ModLeftShift | ModLeftAlt, ModRightCtrl | ModLeftGUI, 0xFF}

	var sequences [][]KeyPress
	for _, k1 := range keys {
		for _, m1 := range mods {
			sequences = append(sequences, []KeyPress{{Keycode: k1, Modifiers: m1}})
			for _, k2 := range keys {
				sequences = append(sequences,
					[]KeyPress{{Keycode: k1, Modifiers: m1}, {Keycode: k2}},
					[]KeyPress{{Keycode: k1}, {Keycode: k2, Modifiers: m1}, {Keycode: 4}},
				)
			}
		}
	}

	for _, seq := range sequences {
		compiled := Compile(seq)

		// compile is idempotent on compiled input
		if again := Compile(compiled); !reflect.DeepEqual(again, compiled) {
			t.Fatalf("Compile(Compile(%+v)) = %+v, want %+v", seq, again, compiled)
		}

		// decompile(compile(decompiled)) reproduces the canonical decompiled form
		raw := Decompile(compiled)
		if got := Decompile(Compile(raw)); !reflect.DeepEqual(got, raw) {
			t.Fatalf("Decompile(Compile(%+v)) = %+v, want %+v", raw, got, raw)
		}

		// the compiled form survives a decompile/compile cycle
		if got := Compile(raw); !reflect.DeepEqual(got, compiled) {
			t.Fatalf("Compile(Decompile(%+v)) = %+v, want %+v", compiled, got, compiled)
		}
	}
}

func TestDecompiledStepsHaveNoModifiers(t *testing.T) {
	raw := Decompile([]KeyPress{
		{Keycode: 4, Modifiers: 0x5A},
		{Modifiers: ModRightShift},
		{Keycode: 44, Modifiers: ModLeftCtrl},
	})
	for i, step := range raw {
		if step.Modifiers != 0 {
			t.Errorf("step %d has modifiers 0x%02X, want 0", i, step.Modifiers)
		}
	}
}

func TestTruncate(t *testing.T) {
	raw := []KeyPress{
		{Keycode: KeyLeftCtrl}, {Keycode: 6},
		{Keycode: KeyLeftCtrl}, {Keycode: 25},
		{Keycode: KeyLeftAlt}, {Keycode: 43},
		{Keycode: 40},
		{Keycode: KeyLeftShift}, {Keycode: KeyLeftGUI},
	}

	compiled := Truncate(Compile(raw), MaxSequenceSteps)
	if len(compiled) != MaxSequenceSteps {
		t.Fatalf("len = %d, want %d", len(compiled), MaxSequenceSteps)
	}
	if compiled[2].Keycode != 43 || compiled[2].Modifiers != ModLeftAlt {
		t.Errorf("third step = %+v, want Tab+Alt", compiled[2])
	}

	short := []KeyPress{{Keycode: 4}}
	if got := Truncate(short, MaxSequenceSteps); len(got) != 1 {
		t.Errorf("Truncate() shortened a short sequence to %d", len(got))
	}
}

func TestModifierBit(t *testing.T) {
	for i := uint8(0); i < 8; i++ {
		if got := ModifierBit(KeyLeftCtrl + i); got != 1<<i {
			t.Errorf("ModifierBit(%d) = 0x%02X, want 0x%02X", KeyLeftCtrl+i, got, 1<<i)
		}
	}
	if got := ModifierBit(4); got != 0 {
		t.Errorf("ModifierBit(4) = 0x%02X, want 0", got)
	}
}
