package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talos-macropad/go-talos/codec"
)

// Default read timeouts.
const (
	DefaultStartTimeout = 5 * time.Second
	DefaultLineTimeout  = 10 * time.Second
)

// LineReader is the part of the transport the config reader consumes.
type LineReader interface {
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
}

// ReaderState is the state of a ConfigReader.
type ReaderState int

// Reader states.
const (
	AwaitingStart ReaderState = iota
	Streaming
	Done
)

func (s ReaderState) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReadResult is the outcome of a config read.
type ReadResult struct {
	// Config is the assembled configuration, always structurally complete
	Config *Configuration

	// Complete is false when the stream timed out before CONF_END
	Complete bool

	// Records is the number of records applied
	Records int

	// Skipped is the number of malformed or out of sequence records
	Skipped int
}

type slot struct {
	layer, button int
}

// ConfigReader assembles a Configuration from the GET_CONF record stream.
//
// Lines are fed either one at a time through Feed or pulled from a LineReader
// by Read. Malformed records are logged and skipped; only a missing
// CONF_START is fatal.
type ConfigReader struct {
	// StartTimeout bounds the wait for CONF_START
	StartTimeout time.Duration

	// LineTimeout bounds the wait for each following record
	LineTimeout time.Duration

	logger  Logger
	state   ReaderState
	config  *Configuration
	pending *slot
	records int
	skipped int
}

// NewConfigReader creates a reader in the AwaitingStart state. logger may be nil.
func NewConfigReader(logger Logger) *ConfigReader {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ConfigReader{
		StartTimeout: DefaultStartTimeout,
		LineTimeout:  DefaultLineTimeout,
		logger:       logger,
		state:        AwaitingStart,
		config:       NewConfiguration(),
	}
}

// State returns the current state.
func (r *ConfigReader) State() ReaderState {
	return r.state
}

// Config returns the configuration assembled so far.
func (r *ConfigReader) Config() *Configuration {
	return r.config
}

// PendingScript reports the slot whose script body is expected next.
func (r *ConfigReader) PendingScript() (layer, button int, ok bool) {
	if r.pending == nil {
		return 0, 0, false
	}
	return r.pending.layer, r.pending.button, true
}

// Read pulls lines from src until CONF_END. A timeout while streaming ends
// the read with a partial result and no error; a timeout before CONF_START is
// a *ProtocolError wrapping the transport error.
func (r *ConfigReader) Read(ctx context.Context, src LineReader) (*ReadResult, error) {
	for r.state != Done {
		timeout := r.LineTimeout
		if r.state == AwaitingStart {
			timeout = r.StartTimeout
		}

		line, err := src.ReadLine(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if r.state == Streaming && isTimeout(err) {
				r.logger.Warn("config stream timed out, using partial configuration",
					"records", r.records, "skipped", r.skipped)
				return r.result(false), nil
			}
			if r.state == AwaitingStart {
				return nil, &ProtocolError{Operation: CmdGetConf, Reason: "waiting for " + RecStart, Err: err}
			}
			return nil, err
		}

		if err := r.Feed(line); err != nil {
			return nil, err
		}
	}

	return r.result(true), nil
}

// Feed advances the state machine by one line. It returns a *ProtocolError if
// the first line is not CONF_START; record errors are logged, never returned.
func (r *ConfigReader) Feed(line string) error {
	switch r.state {
	case AwaitingStart:
		if line != RecStart {
			return &ProtocolError{Operation: CmdGetConf, Response: line, Reason: "expected " + RecStart}
		}
		r.state = Streaming

	case Streaming:
		if line == RecEnd {
			if r.pending != nil {
				r.logger.Warn("config ended before script body",
					"layer", r.pending.layer, "button", r.pending.button)
				r.pending = nil
			}
			r.state = Done
			return nil
		}
		if line == "" {
			return nil
		}

		known, err := r.apply(line)
		switch {
		case err != nil:
			r.skipped++
			r.logger.Warn("skipping config record", "line", line, "error", err)
		case known:
			r.records++
		default:
			r.logger.Debug("ignoring unknown config record", "line", line)
		}

	case Done:
		r.logger.Debug("ignoring line after CONF_END", "line", line)
	}

	return nil
}

func (r *ConfigReader) result(complete bool) *ReadResult {
	return &ReadResult{
		Config:   r.config,
		Complete: complete,
		Records:  r.records,
		Skipped:  r.skipped,
	}
}

// apply dispatches a record by prefix. known is false for unrecognised prefixes.
func (r *ConfigReader) apply(line string) (known bool, err error) {
	prefix, rest, _ := strings.Cut(line, FieldSep)

	switch prefix {
	case RecVersion:
		err = r.applyVersion(rest)
	case RecSetting:
		err = r.applySettings(rest)
	case RecLayer:
		err = r.applyLayer(rest)
	case RecMacro:
		err = r.applyMacro(rest)
	case RecSeq:
		err = r.applySeqHeader(rest)
	case RecStep:
		err = r.applyStep(rest, MacroKeySequence)
	case RecShortcut:
		err = r.applyStep(rest, MacroScript)
	case RecScript:
		err = r.applyScript(rest)
	default:
		return false, nil
	}

	if err != nil {
		return true, &RecordError{Line: line, Err: err}
	}
	return true, nil
}

func (r *ConfigReader) applyVersion(rest string) error {
	v := strings.TrimSpace(rest)
	if v == "" {
		return errors.New("empty version")
	}
	r.config.Version = v
	return nil
}

// SETTINGS|timeoutSeconds
func (r *ConfigReader) applySettings(rest string) error {
	f := strings.Split(rest, FieldSep)
	timeout, err := intField("timeout", f[0])
	if err != nil {
		return err
	}
	if timeout < 0 || timeout > MaxOLEDTimeout {
		return fmt.Errorf("oled timeout %d out of range", timeout)
	}
	r.config.OLEDTimeout = timeout
	return nil
}

// LAYER_NAME|layer|name|emoji
func (r *ConfigReader) applyLayer(rest string) error {
	f := strings.Split(rest, FieldSep)
	if len(f) < 2 {
		return fmt.Errorf("want at least 2 fields, got %d", len(f))
	}
	layer, err := layerField(f[0])
	if err != nil {
		return err
	}

	emoji := 0
	if len(f) > 2 {
		if emoji, err = intField("emoji", f[2]); err != nil {
			return err
		}
	}

	name := f[1]
	if name == "" {
		name = fmt.Sprintf("Layer %d", layer+1)
	}
	r.config.Layers[layer].Name = name
	r.config.Layers[layer].Symbol = codec.EmojiString(emoji)
	return nil
}

// MACRO|layer|button|type|value|text|name|emoji, followed by either
// |repeatCount|repeatInterval|moveX|moveY[|platform] or, for scripts,
// |platform|shortcutLen.
func (r *ConfigReader) applyMacro(rest string) error {
	f := strings.Split(rest, FieldSep)
	if len(f) < 7 {
		return fmt.Errorf("want at least 7 fields, got %d", len(f))
	}

	layer, button, err := slotFields(f[0], f[1])
	if err != nil {
		return err
	}
	typ, err := intField("type", f[2])
	if err != nil {
		return err
	}
	if !MacroType(typ).Valid() {
		return fmt.Errorf("unknown macro type %d", typ)
	}
	value, err := intField("value", f[3])
	if err != nil {
		return err
	}
	emoji, err := intField("emoji", f[6])
	if err != nil {
		return err
	}

	m := EmptyMacro()
	m.Type = MacroType(typ)
	m.Value = value
	m.MacroString = f[4]
	if f[5] != "" {
		m.Name = f[5]
	}
	m.Symbol = codec.EmojiString(emoji)

	extra := f[7:]
	switch {
	case m.Type == MacroScript && len(extra) == 2:
		platform, err := platformField(extra[0])
		if err != nil {
			return err
		}
		n, err := intField("shortcut length", extra[1])
		if err != nil {
			return err
		}
		if n < 0 || n > codec.MaxShortcutSteps {
			return fmt.Errorf("shortcut length %d out of range", n)
		}
		m.Platform = platform
		m.TerminalShortcut = make([]codec.KeyPress, n)

	case len(extra) >= 4:
		nums := make([]int, 4)
		for i, name := range []string{"repeat count", "repeat interval", "move x", "move y"} {
			if nums[i], err = intField(name, extra[i]); err != nil {
				return err
			}
		}
		m.RepeatCount, m.RepeatInterval, m.MoveX, m.MoveY = nums[0], nums[1], nums[2], nums[3]
		if m.Type == MacroScript && len(extra) > 4 {
			if m.Platform, err = platformField(extra[4]); err != nil {
				return err
			}
		}

	case len(extra) != 0:
		return fmt.Errorf("unexpected field count %d", len(f))
	}

	if m.Type == MacroScript {
		if r.pending != nil {
			r.logger.Warn("script body never arrived",
				"layer", r.pending.layer, "button", r.pending.button)
		}
		r.pending = &slot{layer: layer, button: button}
	} else {
		r.dropPending(layer, button)
	}

	r.config.Layers[layer].Macros[button] = m
	return nil
}

// MACRO_SEQ|layer|button|name|emoji|count
func (r *ConfigReader) applySeqHeader(rest string) error {
	f := strings.Split(rest, FieldSep)
	if len(f) < 5 {
		return fmt.Errorf("want 5 fields, got %d", len(f))
	}
	layer, button, err := slotFields(f[0], f[1])
	if err != nil {
		return err
	}
	emoji, err := intField("emoji", f[3])
	if err != nil {
		return err
	}
	count, err := intField("step count", f[4])
	if err != nil {
		return err
	}
	if count < 0 || count > codec.MaxShortcutSteps {
		return fmt.Errorf("step count %d out of range", count)
	}

	m := EmptyMacro()
	m.Type = MacroKeySequence
	if f[2] != "" {
		m.Name = f[2]
	}
	m.Symbol = codec.EmojiString(emoji)
	m.Sequence = make([]codec.KeyPress, count)

	r.dropPending(layer, button)
	r.config.Layers[layer].Macros[button] = m
	return nil
}

// dropPending forgets an awaited script body whose slot was redefined.
func (r *ConfigReader) dropPending(layer, button int) {
	if r.pending != nil && r.pending.layer == layer && r.pending.button == button {
		r.logger.Warn("script macro replaced before its body arrived", "layer", layer, "button", button)
		r.pending = nil
	}
}

// SEQ_STEP|layer|button|index|keycode|modifiers[|duration] and
// SCRIPT_SHORTCUT|layer|button|index|keycode|modifiers.
func (r *ConfigReader) applyStep(rest string, want MacroType) error {
	f := strings.Split(rest, FieldSep)
	if len(f) < 5 {
		return fmt.Errorf("want at least 5 fields, got %d", len(f))
	}
	layer, button, err := slotFields(f[0], f[1])
	if err != nil {
		return err
	}

	nums := make([]int, 3)
	for i, name := range []string{"step index", "keycode", "modifiers"} {
		if nums[i], err = intField(name, f[2+i]); err != nil {
			return err
		}
	}
	index, keycode, mods := nums[0], nums[1], nums[2]
	if keycode < 0 || keycode > 255 || mods < 0 || mods > 255 {
		return fmt.Errorf("key %d/%d out of range", keycode, mods)
	}

	step := codec.KeyPress{Keycode: uint8(keycode), Modifiers: uint8(mods)}
	if len(f) > 5 {
		d, err := intField("duration", f[5])
		if err != nil {
			return err
		}
		if d < 0 || d > 0xFFFF {
			return fmt.Errorf("duration %d out of range", d)
		}
		step.Duration = uint16(d)
	}

	m := &r.config.Layers[layer].Macros[button]
	if m.Type != want {
		return fmt.Errorf("step for %s macro at layer %d button %d", m.Type, layer, button)
	}

	steps := &m.Sequence
	if want == MacroScript {
		steps = &m.TerminalShortcut
	}
	switch {
	case index >= 0 && index < len(*steps):
		(*steps)[index] = step
	case index == len(*steps) && index < codec.MaxShortcutSteps:
		*steps = append(*steps, step)
	default:
		return fmt.Errorf("step index %d out of range", index)
	}
	return nil
}

// SCRIPT_DATA|layer|button|platform|escapedContent
func (r *ConfigReader) applyScript(rest string) error {
	f := strings.SplitN(rest, FieldSep, 4)
	if len(f) < 3 {
		return fmt.Errorf("want 4 fields, got %d", len(f))
	}
	layer, button, err := slotFields(f[0], f[1])
	if err != nil {
		return err
	}
	platform, err := platformField(f[2])
	if err != nil {
		return err
	}

	if r.pending == nil {
		return fmt.Errorf("script body for layer %d button %d without script macro", layer, button)
	}
	if r.pending.layer != layer || r.pending.button != button {
		return fmt.Errorf("script body for layer %d button %d, expected layer %d button %d",
			layer, button, r.pending.layer, r.pending.button)
	}

	content := ""
	if len(f) == 4 {
		content = f[3]
	}

	m := &r.config.Layers[layer].Macros[button]
	m.Script = UnescapeScript(content)
	m.Platform = platform
	r.pending = nil
	return nil
}

func intField(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func layerField(s string) (int, error) {
	layer, err := intField("layer", s)
	if err != nil {
		return 0, err
	}
	if !ValidLayer(layer) {
		return 0, fmt.Errorf("layer %d out of range", layer)
	}
	return layer, nil
}

func slotFields(ls, bs string) (int, int, error) {
	layer, err := layerField(ls)
	if err != nil {
		return 0, 0, err
	}
	button, err := intField("button", bs)
	if err != nil {
		return 0, 0, err
	}
	if !ValidButton(button) {
		return 0, 0, fmt.Errorf("button %d out of range", button)
	}
	return layer, button, nil
}

func platformField(s string) (codec.Platform, error) {
	n, err := intField("platform", s)
	if err != nil {
		return 0, err
	}
	p := codec.Platform(n)
	if n < 0 || n > 255 || !p.Valid() {
		return 0, fmt.Errorf("unknown platform %d", n)
	}
	return p, nil
}

// isTimeout reports whether err signals an elapsed read deadline.
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
