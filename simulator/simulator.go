package simulator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talos-macropad/go-talos/codec"
	"github.com/talos-macropad/go-talos/protocol"
)

// DefaultScriptTimeout bounds the wait for a script body after READY.
const DefaultScriptTimeout = 5 * time.Second

// Firmware error responses.
const (
	errInvalidFormat = "ERROR|Invalid format"
	errInvalidParams = "ERROR|Invalid parameters"
	errInvalidSeq    = "ERROR|Invalid SET_MACRO_SEQ format"
	errUnknown       = "ERROR|Unknown command"
	errTimeout       = "ERROR|Timeout"
)

// Device is a simulated keyboard. The zero value is not usable; call New.
type Device struct {
	// ScriptTimeout bounds the wait for a script body. It only applies when
	// the connection supports read deadlines.
	ScriptTimeout time.Duration

	logger protocol.Logger

	mu         sync.Mutex
	live       *protocol.Configuration
	flash      *protocol.Configuration
	configMode bool
	received   []string
	responses  map[string]string
	muted      map[string]bool
	stallAfter int
}

// Option configures a Device.
type Option func(*Device)

// WithLogger logs every command the device handles.
func WithLogger(logger protocol.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// New creates a device whose flash holds cfg. A nil cfg starts from the
// factory defaults.
func New(cfg *protocol.Configuration, opts ...Option) *Device {
	if cfg == nil {
		cfg = protocol.DefaultConfiguration()
	}
	d := &Device{
		ScriptTimeout: DefaultScriptTimeout,
		live:          cfg.Clone(),
		flash:         cfg.Clone(),
		responses:     make(map[string]string),
		muted:         make(map[string]bool),
		stallAfter:    -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewPipe starts serving d on one end of an in-memory pipe and returns the
// other end.
func NewPipe(d *Device) net.Conn {
	host, dev := net.Pipe()
	go func() {
		_ = d.Serve(dev)
	}()
	return host
}

// Respond makes the device answer cmd with resp instead of handling it.
func (d *Device) Respond(cmd, resp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[cmd] = resp
}

// Mute makes the device swallow cmd without answering.
func (d *Device) Mute(cmd string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted[cmd] = true
}

// StallConfig makes GET_CONF stop after n records following CONF_START, as
// if the device hung. A negative n restores normal behaviour.
func (d *Device) StallConfig(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stallAfter = n
}

// Received returns the command lines handled so far, script bodies excluded.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Commands returns the command names of Received.
func (d *Device) Commands() []string {
	lines := d.Received()
	names := make([]string, len(lines))
	for i, l := range lines {
		names[i], _, _ = strings.Cut(l, protocol.FieldSep)
	}
	return names
}

// Config returns a copy of the working configuration.
func (d *Device) Config() *protocol.Configuration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live.Clone()
}

// Flash returns a copy of the saved configuration.
func (d *Device) Flash() *protocol.Configuration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.Clone()
}

// ConfigMode reports whether the display is in configuration mode.
func (d *Device) ConfigMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configMode
}

// Serve handles commands from rw until it is closed or a BOOTSEL command
// resets the device. rw is closed on return.
func (d *Device) Serve(rw io.ReadWriteCloser) error {
	defer rw.Close()

	s := &session{dev: d, rw: rw, br: bufio.NewReader(rw)}
	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}

		reset, err := s.handle(cmd)
		if err != nil {
			return err
		}
		if reset {
			return nil
		}
	}
}

type session struct {
	dev *Device
	rw  io.ReadWriter
	br  *bufio.Reader
}

func (s *session) send(line string) error {
	_, err := io.WriteString(s.rw, line+"\r\n")
	return err
}

// handle runs one command. reset is true after BOOTSEL.
func (s *session) handle(line string) (reset bool, err error) {
	d := s.dev
	name, args, _ := strings.Cut(line, protocol.FieldSep)

	d.mu.Lock()
	d.received = append(d.received, line)
	resp, overridden := d.responses[name]
	muted := d.muted[name]
	d.mu.Unlock()

	d.logDebug("command", "line", line)

	switch {
	case muted:
		return false, nil
	case overridden:
		return false, s.send(resp)
	}

	switch name {
	case protocol.CmdGetConf:
		return false, s.sendConfig()
	case protocol.CmdSetMacro:
		return false, s.send(d.setMacro(args))
	case protocol.CmdSetMacroSeq:
		return false, s.send(d.setMacroSeq(args))
	case protocol.CmdSetMacroScript:
		return false, s.receiveScript(args)
	case protocol.CmdSetLayerName:
		return false, s.send(d.setLayerName(args))
	case protocol.CmdSetOLEDTimeout:
		return false, s.send(d.setOLEDTimeout(args))
	case protocol.CmdSetConfigMode:
		d.mu.Lock()
		d.configMode = atoi(args) != 0
		d.mu.Unlock()
		return false, s.send(protocol.RespOK)
	case protocol.CmdSaveFlash:
		d.mu.Lock()
		d.flash = d.live.Clone()
		d.mu.Unlock()
		return false, s.send(protocol.RespOK)
	case protocol.CmdReloadConfig:
		d.mu.Lock()
		d.live = d.flash.Clone()
		d.configMode = false
		d.mu.Unlock()
		return false, s.send(protocol.RespOK)
	case protocol.CmdBootsel:
		return true, s.send(protocol.RespOK)
	default:
		return false, s.send(errUnknown)
	}
}

// sendConfig streams the working configuration in GET_CONF record order.
func (s *session) sendConfig() error {
	d := s.dev
	d.mu.Lock()
	records := configRecords(d.live)
	stall := d.stallAfter
	d.mu.Unlock()

	if err := s.send(protocol.RecStart); err != nil {
		return err
	}
	for i, r := range records {
		if stall >= 0 && i >= stall {
			return nil
		}
		if err := s.send(r); err != nil {
			return err
		}
	}
	return s.send(protocol.RecEnd)
}

func configRecords(cfg *protocol.Configuration) []string {
	var out []string
	if cfg.Version != "" && cfg.Version != protocol.UnknownVersion {
		out = append(out, record(protocol.RecVersion, cfg.Version))
	}
	out = append(out, record(protocol.RecSetting, cfg.OLEDTimeout))

	for l, layer := range cfg.Layers {
		out = append(out, record(protocol.RecLayer, l, layer.Name, layer.EmojiIndex()))
	}

	for l := range cfg.Layers {
		for b, m := range cfg.Layers[l].Macros {
			switch {
			case m.Type == protocol.MacroScript:
				shortcut := codec.Truncate(m.TerminalShortcut, codec.MaxShortcutSteps)
				out = append(out, record(protocol.RecMacro, l, b, int(m.Type), m.Value,
					m.MacroString, m.Name, m.EmojiIndex(), int(m.Platform), len(shortcut)))
				for i, k := range shortcut {
					out = append(out, record(protocol.RecShortcut, l, b, i, k.Keycode, k.Modifiers))
				}
				out = append(out, record(protocol.RecScript, l, b, int(m.Platform), protocol.EscapeScript(m.Script)))

			case m.Type == protocol.MacroKeySequence && len(m.Sequence) > 0:
				seq := codec.Truncate(m.Sequence, codec.MaxShortcutSteps)
				out = append(out, record(protocol.RecSeq, l, b, m.Name, m.EmojiIndex(), len(seq)))
				for i, k := range seq {
					out = append(out, record(protocol.RecStep, l, b, i, k.Keycode, k.Modifiers, k.Duration))
				}

			default:
				out = append(out, record(protocol.RecMacro, l, b, int(m.Type), m.Value,
					m.MacroString, m.Name, m.EmojiIndex(),
					m.RepeatCount, m.RepeatInterval, m.MoveX, m.MoveY))
			}
		}
	}
	return out
}

func record(prefix string, fields ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, f := range fields {
		b.WriteString(protocol.FieldSep)
		fmt.Fprint(&b, f)
	}
	return b.String()
}

// SET_MACRO|layer|button|type|value|text|name[|emoji[|repeatCount|repeatInterval|moveX|moveY]]
func (d *Device) setMacro(args string) string {
	f := strings.Split(args, protocol.FieldSep)
	if len(f) < 6 {
		return errInvalidFormat
	}

	layer, button := atoi(f[0]), atoi(f[1])
	typ := protocol.MacroType(atoi(f[2]))
	if !protocol.ValidLayer(layer) || !protocol.ValidButton(button) || !typ.Valid() {
		return errInvalidParams
	}

	nums := []int{1, 0, 0, 0}
	for i := range nums {
		if len(f) > 7+i {
			nums[i] = atoi(f[7+i])
		}
	}
	emoji := 0
	if len(f) > 6 {
		emoji = atoi(f[6])
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// the firmware keeps script, platform and steps of the previous entry
	m := &d.live.Layers[layer].Macros[button]
	m.Type = typ
	m.Value = atoi(f[3])
	m.MacroString = clip(f[4], protocol.MaxMacroStringLen-1)
	m.Name = clip(f[5], protocol.MaxNameLen)
	m.Symbol = codec.EmojiString(emoji)
	m.RepeatCount = int(uint16(nums[0]))
	m.RepeatInterval = int(uint16(nums[1]))
	m.MoveX = int(int16(nums[2]))
	m.MoveY = int(int16(nums[3]))
	return protocol.RespOK
}

// SET_MACRO_SEQ|layer|button|name|emoji|count|k,m,d,...
func (d *Device) setMacroSeq(args string) string {
	f := strings.SplitN(args, protocol.FieldSep, 6)
	if len(f) < 6 {
		return errInvalidSeq
	}

	layer, button := atoi(f[0]), atoi(f[1])
	if !protocol.ValidLayer(layer) || !protocol.ValidButton(button) {
		return errInvalidParams
	}
	count := atoi(f[4])
	if count < 0 {
		count = 0
	}
	if count > codec.MaxShortcutSteps {
		count = codec.MaxShortcutSteps
	}

	var nums []int
	if f[5] != "" {
		for _, n := range strings.Split(f[5], ",") {
			nums = append(nums, atoi(n))
		}
	}
	steps := make([]codec.KeyPress, 0, count)
	for i := 0; i < count && 3*i+1 < len(nums); i++ {
		k := codec.KeyPress{Keycode: uint8(nums[3*i]), Modifiers: uint8(nums[3*i+1])}
		if 3*i+2 < len(nums) {
			k.Duration = uint16(nums[3*i+2])
		}
		steps = append(steps, k)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	m := &d.live.Layers[layer].Macros[button]
	m.Type = protocol.MacroKeySequence
	m.Name = clip(f[2], protocol.MaxNameLen)
	m.Symbol = codec.EmojiString(atoi(f[3]))
	m.Sequence = steps
	return protocol.RespOK
}

// SET_MACRO_SCRIPT|layer|button|platform|size|shortcutLen[|k,m,...], then
// READY and size raw bytes.
func (s *session) receiveScript(args string) error {
	d := s.dev
	f := strings.SplitN(args, protocol.FieldSep, 6)
	if len(f) < 5 {
		return s.send(errInvalidFormat)
	}

	layer, button := atoi(f[0]), atoi(f[1])
	platform := codec.Platform(atoi(f[2]))
	size := atoi(f[3])
	if !protocol.ValidLayer(layer) || !protocol.ValidButton(button) || !platform.Valid() ||
		size <= 0 || size > protocol.MaxScriptSize {
		return s.send(errInvalidParams)
	}

	n := atoi(f[4])
	if n < 0 {
		n = 0
	}
	if n > codec.MaxShortcutSteps {
		n = codec.MaxShortcutSteps
	}
	shortcut := make([]codec.KeyPress, n)
	if len(f) == 6 {
		pairs := strings.Split(f[5], ",")
		for i := 0; i < n && 2*i+1 < len(pairs); i++ {
			shortcut[i] = codec.KeyPress{Keycode: uint8(atoi(pairs[2*i])), Modifiers: uint8(atoi(pairs[2*i+1]))}
		}
	}

	d.mu.Lock()
	d.live.Layers[layer].Macros[button].TerminalShortcut = shortcut
	d.mu.Unlock()

	if err := s.send(protocol.RespReady); err != nil {
		return err
	}

	body := make([]byte, size)
	if err := s.readFull(body); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			d.logWarn("script receive timed out", "layer", layer, "button", button)
			return s.send(errTimeout)
		}
		return err
	}

	d.mu.Lock()
	m := &d.live.Layers[layer].Macros[button]
	m.Type = protocol.MacroScript
	m.Script = string(body)
	m.Platform = platform
	d.mu.Unlock()

	d.logDebug("script received", "layer", layer, "button", button, "bytes", size)
	return s.send(protocol.RespOK)
}

func (s *session) readFull(p []byte) error {
	dl, ok := s.rw.(interface{ SetReadDeadline(time.Time) error })
	if ok && s.dev.ScriptTimeout > 0 {
		if err := dl.SetReadDeadline(time.Now().Add(s.dev.ScriptTimeout)); err == nil {
			defer dl.SetReadDeadline(time.Time{})
		}
	}
	_, err := io.ReadFull(s.br, p)
	return err
}

// SET_LAYER_NAME|layer|name[|emoji]
func (d *Device) setLayerName(args string) string {
	f := strings.Split(args, protocol.FieldSep)
	if len(f) < 2 {
		return errInvalidFormat
	}
	layer := atoi(f[0])
	if !protocol.ValidLayer(layer) {
		return errInvalidParams
	}
	emoji := 0
	if len(f) > 2 {
		emoji = atoi(f[2])
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.live.Layers[layer].Name = clip(f[1], protocol.MaxNameLen)
	d.live.Layers[layer].Symbol = codec.EmojiString(emoji)
	return protocol.RespOK
}

func (d *Device) setOLEDTimeout(args string) string {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 0 || n > protocol.MaxOLEDTimeout {
		return errInvalidParams
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live.OLEDTimeout = n
	return protocol.RespOK
}

// atoi parses a leading decimal integer and ignores the rest, yielding 0 when
// there is none.
func atoi(s string) int {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (d *Device) logDebug(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
}

func (d *Device) logWarn(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Warn(msg, keysAndValues...)
	}
}
