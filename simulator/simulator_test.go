package simulator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/talos-macropad/go-talos/codec"
	"github.com/talos-macropad/go-talos/protocol"
	"github.com/talos-macropad/go-talos/serial"
)

// HID usage codes used below.
const (
	keyC uint8 = 6
	keyT uint8 = 23
	keyZ uint8 = 29
)

func dial(t *testing.T, d *Device) *serial.Transport {
	t.Helper()
	tr := serial.NewTransport(NewPipe(d), nil)
	t.Cleanup(tr.Close)
	return tr
}

func exchange(t *testing.T, tr *serial.Transport, line string) string {
	t.Helper()
	if err := tr.WriteLine(line); err != nil {
		t.Fatalf("WriteLine(%q) error = %v", line, err)
	}
	resp, err := tr.ReadLine(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ReadLine after %q error = %v", line, err)
	}
	return resp
}

func sampleConfig() *protocol.Configuration {
	cfg := protocol.DefaultConfiguration()
	cfg.Version = "1.2.0"
	cfg.OLEDTimeout = 120
	cfg.Layers[1].Name = "Work"
	cfg.Layers[1].Symbol = "💻"

	cfg.Layers[0].Macros[0] = protocol.MacroEntry{
		Type:        protocol.MacroTextString,
		Name:        "Sig",
		Symbol:      "📝",
		MacroString: "Best regards",
		RepeatCount: 1,
	}
	cfg.Layers[0].Macros[1] = protocol.MacroEntry{
		Type:   protocol.MacroKeySequence,
		Name:   "Copy",
		Symbol: "💼",
		Sequence: []codec.KeyPress{
			{Keycode: keyC, Modifiers: codec.ModLeftCtrl, Duration: 50},
		},
		RepeatCount: 1,
	}
	cfg.Layers[2].Macros[3] = protocol.MacroEntry{
		Type:     protocol.MacroScript,
		Name:     "Deploy",
		Symbol:   "🔧",
		Script:   "echo a|b\nmake \\ deploy\r\n",
		Platform: codec.PlatformLinux,
		TerminalShortcut: []codec.KeyPress{
			{Keycode: keyT, Modifiers: codec.ModLeftCtrl | codec.ModLeftAlt},
		},
		RepeatCount: 1,
	}
	return cfg
}

func TestGetConfRoundTrip(t *testing.T) {
	want := sampleConfig()
	tr := dial(t, New(want))

	if err := tr.WriteLine(protocol.CmdGetConf); err != nil {
		t.Fatal(err)
	}
	r := protocol.NewConfigReader(nil)
	res, err := r.Read(context.Background(), tr)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !res.Complete {
		t.Fatal("Read() Complete = false")
	}
	if res.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", res.Skipped)
	}

	got := res.Config
	if got.Version != "1.2.0" {
		t.Errorf("Version = %q", got.Version)
	}
	if got.OLEDTimeout != 120 {
		t.Errorf("OLEDTimeout = %d", got.OLEDTimeout)
	}
	if got.Layers[1].Name != "Work" || got.Layers[1].Symbol != "💻" {
		t.Errorf("layer 1 = %q %q", got.Layers[1].Name, got.Layers[1].Symbol)
	}

	for _, slot := range [][2]int{{0, 0}, {0, 1}, {2, 3}, {3, protocol.LayerButton}} {
		g := got.Layers[slot[0]].Macros[slot[1]]
		w := want.Layers[slot[0]].Macros[slot[1]]
		if !g.Equal(w) {
			t.Errorf("macro %v = %+v, want %+v", slot, g, w)
		}
	}
}

func TestSetMacro(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"full", "SET_MACRO|1|2|1|0|hello|Greet|5|1|0|0|0", protocol.RespOK},
		{"without emoji", "SET_MACRO|1|2|1|0|hello|Greet", protocol.RespOK},
		{"missing name", "SET_MACRO|1|2|1|0|hello", errInvalidFormat},
		{"bad layer", "SET_MACRO|9|0|0|0|a|b|0", errInvalidParams},
		{"bad type", "SET_MACRO|0|0|42|0|a|b|0", errInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(nil)
			tr := dial(t, d)

			if got := exchange(t, tr, tt.line); got != tt.want {
				t.Fatalf("response = %q, want %q", got, tt.want)
			}
			if tt.want != protocol.RespOK {
				return
			}
			m := d.Config().Layers[1].Macros[2]
			if m.Type != protocol.MacroTextString || m.MacroString != "hello" || m.Name != "Greet" {
				t.Errorf("macro = %+v", m)
			}
			if m.RepeatCount != 1 {
				t.Errorf("RepeatCount = %d, want 1", m.RepeatCount)
			}
		})
	}
}

func TestSetMacroClipsFields(t *testing.T) {
	d := New(nil)
	tr := dial(t, d)

	long := strings.Repeat("x", 40)
	if got := exchange(t, tr, "SET_MACRO|0|0|1|0|"+long+"|"+long+"|0"); got != protocol.RespOK {
		t.Fatalf("response = %q", got)
	}
	m := d.Config().Layers[0].Macros[0]
	if len(m.MacroString) != protocol.MaxMacroStringLen-1 {
		t.Errorf("text length = %d", len(m.MacroString))
	}
	if len(m.Name) != protocol.MaxNameLen {
		t.Errorf("name length = %d", len(m.Name))
	}
}

func TestSetMacroSeq(t *testing.T) {
	d := New(nil)
	tr := dial(t, d)

	line, err := protocol.BuildSetMacroSeqCmd(0, 4, "Undo", "💼", []codec.KeyPress{
		{Keycode: codec.KeyLeftCtrl},
		{Keycode: keyZ},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := exchange(t, tr, line); got != protocol.RespOK {
		t.Fatalf("response = %q", got)
	}

	m := d.Config().Layers[0].Macros[4]
	want := []codec.KeyPress{{Keycode: keyZ, Modifiers: codec.ModLeftCtrl, Duration: codec.DefaultStepDuration}}
	if m.Type != protocol.MacroKeySequence || len(m.Sequence) != 1 || m.Sequence[0] != want[0] {
		t.Errorf("macro = %+v", m)
	}

	if got := exchange(t, tr, "SET_MACRO_SEQ|0|4|Undo"); got != errInvalidSeq {
		t.Errorf("short command response = %q", got)
	}
}

func TestScriptUpload(t *testing.T) {
	d := New(nil)
	tr := dial(t, d)

	script := "ls -la\n"
	header, err := protocol.BuildSetMacroScriptCmd(3, 0, codec.PlatformMacOS, script, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := exchange(t, tr, header); got != protocol.RespReady {
		t.Fatalf("header response = %q", got)
	}
	if err := tr.WriteRaw([]byte(script)); err != nil {
		t.Fatal(err)
	}
	resp, err := tr.ReadLine(context.Background(), time.Second)
	if err != nil || resp != protocol.RespOK {
		t.Fatalf("body response = %q, %v", resp, err)
	}

	m := d.Config().Layers[3].Macros[0]
	if m.Type != protocol.MacroScript || m.Script != script || m.Platform != codec.PlatformMacOS {
		t.Errorf("macro = %+v", m)
	}

	// the next command is parsed normally after the body
	if got := exchange(t, tr, "SET_CONFIG_MODE|1"); got != protocol.RespOK {
		t.Errorf("follow-up response = %q", got)
	}
}

func TestScriptSizeLimit(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{0, errInvalidParams},
		{1, protocol.RespReady},
		{protocol.MaxScriptSize, protocol.RespReady},
		{protocol.MaxScriptSize + 1, errInvalidParams},
	}

	for _, tt := range tests {
		d := New(nil)
		tr := dial(t, d)

		line := "SET_MACRO_SCRIPT|0|0|0|" + strconv.Itoa(tt.size) + "|0"
		if got := exchange(t, tr, line); got != tt.want {
			t.Errorf("size %d: response = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestScriptTimeout(t *testing.T) {
	d := New(nil)
	d.ScriptTimeout = 50 * time.Millisecond
	tr := dial(t, d)

	if got := exchange(t, tr, "SET_MACRO_SCRIPT|0|0|0|10|0"); got != protocol.RespReady {
		t.Fatalf("header response = %q", got)
	}
	if err := tr.WriteRaw([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	resp, err := tr.ReadLine(context.Background(), time.Second)
	if err != nil || resp != errTimeout {
		t.Fatalf("response = %q, %v; want %q", resp, err, errTimeout)
	}
	if m := d.Config().Layers[0].Macros[0]; m.Type == protocol.MacroScript {
		t.Error("partial script was stored")
	}
}

func TestSaveAndReload(t *testing.T) {
	d := New(nil)
	tr := dial(t, d)

	exchange(t, tr, "SET_CONFIG_MODE|1")
	exchange(t, tr, "SET_LAYER_NAME|0|Draft|3")
	if !d.ConfigMode() {
		t.Fatal("config mode not enabled")
	}

	// reload without save discards the edit
	exchange(t, tr, protocol.CmdReloadConfig)
	if got := d.Config().Layers[0].Name; got != "Layer 1" {
		t.Errorf("after reload name = %q, want Layer 1", got)
	}
	if d.ConfigMode() {
		t.Error("config mode still enabled after reload")
	}

	exchange(t, tr, "SET_LAYER_NAME|0|Final|3")
	exchange(t, tr, protocol.CmdSaveFlash)
	exchange(t, tr, protocol.CmdReloadConfig)
	if got := d.Flash().Layers[0]; got.Name != "Final" || got.Symbol != codec.Emojis[3] {
		t.Errorf("flash layer 0 = %q %q", got.Name, got.Symbol)
	}
}

func TestOLEDTimeout(t *testing.T) {
	d := New(nil)
	tr := dial(t, d)

	if got := exchange(t, tr, "SET_OLED_TIMEOUT|600"); got != protocol.RespOK {
		t.Fatalf("response = %q", got)
	}
	if got := d.Config().OLEDTimeout; got != 600 {
		t.Errorf("OLEDTimeout = %d", got)
	}
	if got := exchange(t, tr, "SET_OLED_TIMEOUT|1801"); got != errInvalidParams {
		t.Errorf("out of range response = %q", got)
	}
}

func TestBootselClosesStream(t *testing.T) {
	tr := dial(t, New(nil))

	if got := exchange(t, tr, protocol.CmdBootsel); got != protocol.RespOK {
		t.Fatalf("response = %q", got)
	}
	_, err := tr.ReadLine(context.Background(), time.Second)
	if !errors.Is(err, serial.ErrStreamClosed) {
		t.Errorf("ReadLine after BOOTSEL error = %v, want ErrStreamClosed", err)
	}
}

func TestRespondAndMute(t *testing.T) {
	d := New(nil)
	d.Respond(protocol.CmdSaveFlash, "ERROR|Flash write failed")
	d.Mute(protocol.CmdReloadConfig)
	tr := dial(t, d)

	if got := exchange(t, tr, protocol.CmdSaveFlash); got != "ERROR|Flash write failed" {
		t.Errorf("SAVE_FLASH response = %q", got)
	}

	if err := tr.WriteLine(protocol.CmdReloadConfig); err != nil {
		t.Fatal(err)
	}
	_, err := tr.ReadLine(context.Background(), 50*time.Millisecond)
	if !serial.IsTimeout(err) {
		t.Errorf("muted command error = %v, want timeout", err)
	}

	want := []string{protocol.CmdSaveFlash, protocol.CmdReloadConfig}
	got := d.Commands()
	if len(got) != len(want) {
		t.Fatalf("Commands() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Commands()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStallConfig(t *testing.T) {
	d := New(nil)
	d.StallConfig(2)
	tr := dial(t, d)

	if err := tr.WriteLine(protocol.CmdGetConf); err != nil {
		t.Fatal(err)
	}
	r := protocol.NewConfigReader(nil)
	r.LineTimeout = 50 * time.Millisecond
	res, err := r.Read(context.Background(), tr)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if res.Complete {
		t.Error("Complete = true for stalled stream")
	}
	if res.Records != 2 {
		t.Errorf("Records = %d, want 2", res.Records)
	}
}

func TestUnknownCommand(t *testing.T) {
	tr := dial(t, New(nil))
	if got := exchange(t, tr, "FLY_TO_MOON"); got != errUnknown {
		t.Errorf("response = %q", got)
	}
}

func TestAtoi(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"42", 42},
		{" 7", 7},
		{"-3", -3},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"+5", 5},
	}
	for _, tt := range tests {
		if got := atoi(tt.in); got != tt.want {
			t.Errorf("atoi(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
