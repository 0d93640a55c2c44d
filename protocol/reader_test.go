package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talos-macropad/go-talos/codec"
)

// timeoutErr mimics the transport's timeout error.
type timeoutErr struct{}

func (timeoutErr) Error() string { return "read timeout" }
func (timeoutErr) Timeout() bool  { return true }

// MockLineReader replays a fixed list of lines, then returns err (a timeout
// if err is nil).
type MockLineReader struct {
	lines    []string
	err      error
	timeouts []time.Duration
}

func (m *MockLineReader) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	m.timeouts = append(m.timeouts, timeout)
	if len(m.lines) == 0 {
		if m.err != nil {
			return "", m.err
		}
		return "", timeoutErr{}
	}
	line := m.lines[0]
	m.lines = m.lines[1:]
	return line, nil
}

// MockLogger records log calls.
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *MockLogger) log(level, msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) { l.log("DEBUG", msg, kv...) }
func (l *MockLogger) Info(msg string, kv ...interface{})  { l.log("INFO", msg, kv...) }
func (l *MockLogger) Warn(msg string, kv ...interface{})  { l.log("WARN", msg, kv...) }
func (l *MockLogger) Error(msg string, kv ...interface{}) { l.log("ERROR", msg, kv...) }

func (l *MockLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, level+":") {
			n++
		}
	}
	return n
}

func readLines(t *testing.T, logger Logger, lines ...string) *ReadResult {
	t.Helper()
	r := NewConfigReader(logger)
	res, err := r.Read(context.Background(), &MockLineReader{lines: lines})
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	return res
}

func TestConfigReaderSingleMacro(t *testing.T) {
	res := readLines(t, nil, "CONF_START", "MACRO|0|0|0|4|foo|Hi|0|1|0|0|0", "CONF_END")

	if !res.Complete {
		t.Error("expected complete read")
	}
	m := res.Config.Layers[0].Macros[0]
	if m.Type != MacroKeyPress {
		t.Errorf("Type = %v, want key_press", m.Type)
	}
	if m.Value != 4 {
		t.Errorf("Value = %d, want 4", m.Value)
	}
	if m.Name != "Hi" {
		t.Errorf("Name = %q, want Hi", m.Name)
	}
	if m.MacroString != "foo" {
		t.Errorf("MacroString = %q, want foo", m.MacroString)
	}
	if m.Symbol != codec.Emojis[0] {
		t.Errorf("Symbol = %q, want %q", m.Symbol, codec.Emojis[0])
	}
	if m.RepeatCount != 1 {
		t.Errorf("RepeatCount = %d, want 1", m.RepeatCount)
	}
	if res.Records != 1 || res.Skipped != 0 {
		t.Errorf("Records/Skipped = %d/%d, want 1/0", res.Records, res.Skipped)
	}
}

func TestConfigReaderDefaults(t *testing.T) {
	res := readLines(t, nil, "CONF_START", "CONF_END")

	c := res.Config
	if c.Version != UnknownVersion {
		t.Errorf("Version = %q", c.Version)
	}
	if c.OLEDTimeout != DefaultOLEDTimeout {
		t.Errorf("OLEDTimeout = %d", c.OLEDTimeout)
	}
	for i, layer := range c.Layers {
		if layer.Name != fmt.Sprintf("Layer %d", i+1) {
			t.Errorf("layer %d name = %q", i, layer.Name)
		}
		for b, m := range layer.Macros {
			if m.Type != MacroKeyPress || m.Value != 0 || m.Name != "Empty" {
				t.Errorf("layer %d button %d = %+v, want empty key press", i, b, m)
			}
		}
	}
}

func TestConfigReaderFullStream(t *testing.T) {
	res := readLines(t, nil,
		"CONF_START",
		"VERSION|1.4.2",
		"SETTINGS|600",
		"LAYER_NAME|0|Gaming|0",
		"LAYER_NAME|1|Work|1",
		"LAYER_NAME|2||2",
		"MACRO|0|1|1|0|hello|Greet|5|1|0|0|0",
		"MACRO|0|3|6|0||Jiggle|17|0|1000|-5|5",
		"MACRO|1|0|8|60||Note|7|1|0|100|1",
		"MACRO_SEQ|1|1|Copy|8|2",
		"SEQ_STEP|1|1|0|6|1|80",
		"SEQ_STEP|1|1|1|25|1|50",
		"MACRO|1|2|3|0||Deploy|6|0|1",
		"SCRIPT_SHORTCUT|1|2|0|23|5",
		`SCRIPT_DATA|1|2|0|cd /srv\nmake a\|b`,
		"CONF_END",
	)

	c := res.Config
	if c.Version != "1.4.2" {
		t.Errorf("Version = %q", c.Version)
	}
	if c.OLEDTimeout != 600 {
		t.Errorf("OLEDTimeout = %d", c.OLEDTimeout)
	}
	if c.Layers[0].Name != "Gaming" || c.Layers[1].Symbol != "💼" {
		t.Errorf("layers = %q %q", c.Layers[0].Name, c.Layers[1].Symbol)
	}
	if c.Layers[2].Name != "Layer 3" {
		t.Errorf("empty layer name = %q, want default", c.Layers[2].Name)
	}

	text := c.Layers[0].Macros[1]
	if text.Type != MacroTextString || text.MacroString != "hello" || text.Symbol != "📧" {
		t.Errorf("text macro = %+v", text)
	}

	jiggle := c.Layers[0].Macros[3]
	if jiggle.RepeatCount != 0 || jiggle.RepeatInterval != 1000 || jiggle.MoveX != -5 || jiggle.MoveY != 5 {
		t.Errorf("mouse move = %+v", jiggle)
	}

	note := c.Layers[1].Macros[0]
	if note.Type != MacroMidiNote || note.Value != 60 || note.MoveX != 100 || note.MoveY != 1 {
		t.Errorf("midi note = %+v", note)
	}

	seq := c.Layers[1].Macros[1]
	wantSeq := []codec.KeyPress{
		{Keycode: 6, Modifiers: codec.ModLeftCtrl, Duration: 80},
		{Keycode: 25, Modifiers: codec.ModLeftCtrl, Duration: 50},
	}
	if seq.Type != MacroKeySequence || seq.Name != "Copy" || !stepsEqual(seq.Sequence, wantSeq) {
		t.Errorf("sequence = %+v", seq)
	}

	script := c.Layers[1].Macros[2]
	if script.Type != MacroScript {
		t.Fatalf("script type = %v", script.Type)
	}
	if script.Script != "cd /srv\nmake a|b" {
		t.Errorf("script body = %q", script.Script)
	}
	if script.Platform != codec.PlatformLinux {
		t.Errorf("platform = %v", script.Platform)
	}
	if len(script.TerminalShortcut) != 1 || script.TerminalShortcut[0] != (codec.KeyPress{Keycode: 23, Modifiers: 5}) {
		t.Errorf("shortcut = %+v", script.TerminalShortcut)
	}

	if !res.Complete || res.Skipped != 0 {
		t.Errorf("Complete/Skipped = %v/%d", res.Complete, res.Skipped)
	}
}

func TestConfigReaderScriptWithTrailingPlatform(t *testing.T) {
	res := readLines(t, nil,
		"CONF_START",
		"MACRO|2|4|3|0||Build|3|1|0|0|0|1",
		"SCRIPT_SHORTCUT|2|4|0|21|8",
		"SCRIPT_DATA|2|4|1|dir",
		"CONF_END",
	)

	m := res.Config.Layers[2].Macros[4]
	if m.Platform != codec.PlatformWindows || m.Script != "dir" {
		t.Errorf("script = %+v", m)
	}
	if len(m.TerminalShortcut) != 1 || m.TerminalShortcut[0].Keycode != 21 {
		t.Errorf("shortcut = %+v", m.TerminalShortcut)
	}
}

func TestConfigReaderUnexpectedStart(t *testing.T) {
	r := NewConfigReader(nil)
	_, err := r.Read(context.Background(), &MockLineReader{lines: []string{"ERROR|busy"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError, got %T: %v", err, err)
	}
	var pe *ProtocolError
	errors.As(err, &pe)
	if pe.Response != "ERROR|busy" {
		t.Errorf("Response = %q", pe.Response)
	}
	if r.State() != AwaitingStart {
		t.Errorf("state = %v, want awaiting_start", r.State())
	}
}

func TestConfigReaderStartTimeoutIsFatal(t *testing.T) {
	r := NewConfigReader(nil)
	_, err := r.Read(context.Background(), &MockLineReader{})
	if !isTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !IsProtocolError(err) {
		t.Errorf("expected ProtocolError, got %T", err)
	}
}

func TestConfigReaderPartialOnTimeout(t *testing.T) {
	logger := &MockLogger{}
	r := NewConfigReader(logger)
	src := &MockLineReader{lines: []string{"CONF_START", "SETTINGS|120", "MACRO|3|3|0|9||Nine|0|1|0|0|0"}}

	res, err := r.Read(context.Background(), src)
	if err != nil {
		t.Fatalf("expected partial result, got error %v", err)
	}
	if res.Complete {
		t.Error("Complete = true, want false")
	}
	if res.Config.OLEDTimeout != 120 || res.Config.Layers[3].Macros[3].Value != 9 {
		t.Errorf("partial config not applied: %+v", res.Config.Layers[3].Macros[3])
	}
	if logger.count("WARN") == 0 {
		t.Error("expected a warning about the timeout")
	}

	wantTimeouts := []time.Duration{DefaultStartTimeout, DefaultLineTimeout, DefaultLineTimeout, DefaultLineTimeout}
	if len(src.timeouts) != len(wantTimeouts) {
		t.Fatalf("timeouts = %v", src.timeouts)
	}
	for i := range wantTimeouts {
		if src.timeouts[i] != wantTimeouts[i] {
			t.Errorf("read %d timeout = %v, want %v", i, src.timeouts[i], wantTimeouts[i])
		}
	}
}

func TestConfigReaderStreamClosedPropagates(t *testing.T) {
	closed := errors.New("stream closed")
	r := NewConfigReader(nil)
	_, err := r.Read(context.Background(), &MockLineReader{lines: []string{"CONF_START"}, err: closed})
	if !errors.Is(err, closed) {
		t.Fatalf("err = %v, want stream closed", err)
	}
}

func TestConfigReaderScriptDataWithoutPending(t *testing.T) {
	logger := &MockLogger{}
	res := readLines(t, logger,
		"CONF_START",
		"MACRO|0|0|0|4||Key|0|1|0|0|0",
		"SCRIPT_DATA|0|0|0|rm -rf /tmp/x",
		"CONF_END",
	)

	m := res.Config.Layers[0].Macros[0]
	if m.Script != "" || m.Type != MacroKeyPress || m.Value != 4 {
		t.Errorf("slot mutated: %+v", m)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if logger.count("WARN") != 1 {
		t.Errorf("warnings = %v", logger.messages)
	}
}

func TestConfigReaderScriptDataWrongSlot(t *testing.T) {
	r := NewConfigReader(nil)
	for _, line := range []string{"CONF_START", "MACRO|0|1|3|0||S|0|0|0", "SCRIPT_DATA|0|2|0|echo"} {
		if err := r.Feed(line); err != nil {
			t.Fatalf("Feed(%q): %v", line, err)
		}
	}

	if r.Config().Layers[0].Macros[2].Script != "" {
		t.Error("body applied to the wrong slot")
	}
	if l, b, ok := r.PendingScript(); !ok || l != 0 || b != 1 {
		t.Errorf("pending = %d,%d,%v; want 0,1,true", l, b, ok)
	}

	if err := r.Feed("SCRIPT_DATA|0|1|0|echo"); err != nil {
		t.Fatal(err)
	}
	if got := r.Config().Layers[0].Macros[1].Script; got != "echo" {
		t.Errorf("script = %q", got)
	}
	if _, _, ok := r.PendingScript(); ok {
		t.Error("pending marker not cleared")
	}
}

func TestConfigReaderSkipsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"non numeric layer", "MACRO|x|0|0|4||Bad|0|1|0|0|0"},
		{"layer out of range", "MACRO|4|0|0|4||Bad|0|1|0|0|0"},
		{"button out of range", "MACRO|0|7|0|4||Bad|0|1|0|0|0"},
		{"unknown macro type", "MACRO|0|0|42|4||Bad|0|1|0|0|0"},
		{"too few macro fields", "MACRO|0|0|0"},
		{"odd macro field count", "MACRO|0|0|0|4||Bad|0|1|0"},
		{"bad timeout", "SETTINGS|soon"},
		{"timeout out of range", "SETTINGS|99999"},
		{"layer name out of range", "LAYER_NAME|9|Nine|0"},
		{"step without header", "SEQ_STEP|0|0|0|4|0|50"},
		{"bad step keycode", "SEQ_STEP|0|0|0|400|0|50"},
		{"bad sequence count", "MACRO_SEQ|0|0|Seq|0|12"},
		{"shortcut for non script", "SCRIPT_SHORTCUT|0|0|0|4|0"},
		{"empty version", "VERSION|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := readLines(t, nil, "CONF_START", tt.line, "MACRO|3|6|0|5||Good|0|1|0|0|0", "CONF_END")
			if res.Skipped != 1 {
				t.Errorf("Skipped = %d, want 1", res.Skipped)
			}
			if res.Config.Layers[3].Macros[6].Value != 5 {
				t.Error("record after the malformed one was not applied")
			}
			if !res.Complete {
				t.Error("read did not complete")
			}
			if m := res.Config.Layers[0].Macros[0]; m.Name != "Empty" {
				t.Errorf("slot 0/0 modified: %+v", m)
			}
		})
	}
}

func TestConfigReaderIgnoresUnknownRecords(t *testing.T) {
	res := readLines(t, nil, "CONF_START", "BATTERY|87", "", "CONF_END")
	if res.Records != 0 || res.Skipped != 0 {
		t.Errorf("Records/Skipped = %d/%d, want 0/0", res.Records, res.Skipped)
	}
}

func TestConfigReaderUnknownEmojiIndex(t *testing.T) {
	res := readLines(t, nil, "CONF_START", "LAYER_NAME|0|Odd|99", "CONF_END")
	if got := res.Config.Layers[0].Symbol; got != codec.Emojis[0] {
		t.Errorf("Symbol = %q, want %q", got, codec.Emojis[0])
	}
}

func TestConfigReaderStepAppendsWithoutDeclaredLength(t *testing.T) {
	res := readLines(t, nil,
		"CONF_START",
		"MACRO|0|0|3|0||S|0|1|0|0|0",
		"SCRIPT_SHORTCUT|0|0|0|23|5",
		"SCRIPT_SHORTCUT|0|0|1|40|0",
		"SCRIPT_SHORTCUT|0|0|5|41|0",
		"SCRIPT_DATA|0|0|0|x",
		"CONF_END",
	)
	m := res.Config.Layers[0].Macros[0]
	if len(m.TerminalShortcut) != 2 {
		t.Errorf("shortcut = %+v", m.TerminalShortcut)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
}

func TestConfigReaderContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewConfigReader(nil)
	_, err := r.Read(ctx, &MockLineReader{err: context.Canceled})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestReaderStateString(t *testing.T) {
	if Streaming.String() != "streaming" || ReaderState(9).String() != "state(9)" {
		t.Error("unexpected state names")
	}
}
