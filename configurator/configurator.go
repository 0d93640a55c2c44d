package configurator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/talos-macropad/go-talos/codec"
	"github.com/talos-macropad/go-talos/protocol"
	"github.com/talos-macropad/go-talos/serial"
)

// Conn is the line transport used by the Configurator. *serial.Transport
// implements it.
type Conn interface {
	WriteLine(s string) error
	WriteRaw(p []byte) error
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
	Discard() error
	Close()
}

// Configurator runs request/response exchanges with the macro keyboard.
//
// Operations are serialized: a call blocks until the previous exchange has
// been answered or timed out. Disconnect may be called at any time and makes
// an in-flight read fail.
type Configurator struct {
	config Config

	opMu sync.Mutex // one exchange at a time

	connMu     sync.Mutex
	conn       Conn
	configMode bool
}

// New creates a Configurator. Nothing is opened until Connect.
//
// Example:
//
//	cfg := configurator.New(
//	    configurator.WithLogger(logger),
//	    configurator.WithAckTimeout(3*time.Second),
//	)
//	if err := cfg.Connect(ctx); err != nil {
//	    return err
//	}
//	defer cfg.Disconnect()
func New(opts ...Option) *Configurator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Configurator{config: cfg}
}

// Connect opens the connection, waits SettleDelay for the device to become
// ready and drops any stale input. Failures are *serial.ConnectionError.
func (c *Configurator) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.current() != nil {
		return ErrAlreadyConnected
	}

	dial := c.config.Dialer
	if dial == nil {
		if !serial.IsSupported() {
			return &serial.ConnectionError{Kind: serial.Unsupported, Device: "serial"}
		}
		dial = c.dialSerial
	}

	conn, err := dial(ctx)
	if err != nil {
		var ce *serial.ConnectionError
		if errors.As(err, &ce) {
			return err
		}
		return &serial.ConnectionError{Kind: serial.Other, Device: c.config.Serial.Device, Err: err}
	}

	if err := sleep(ctx, c.config.SettleDelay); err != nil {
		conn.Close()
		return err
	}
	if err := conn.Discard(); err != nil {
		c.logWarn("clearing stale input", "error", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.configMode = false
	c.connMu.Unlock()

	c.logInfo("connected")
	return nil
}

func (c *Configurator) dialSerial(ctx context.Context) (Conn, error) {
	var logger serial.Logger
	if c.config.Logger != nil {
		logger = c.config.Logger
	}
	t, err := serial.Dial(c.config.Serial, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Disconnect closes the connection. It is safe to call when not connected.
func (c *Configurator) Disconnect() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.configMode = false
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
		c.logInfo("disconnected")
	}
}

// Connected reports whether a connection is open.
func (c *Configurator) Connected() bool {
	return c.current() != nil
}

func (c *Configurator) current() Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// begin locks the operation mutex and returns the open connection. The caller
// must call c.opMu.Unlock.
func (c *Configurator) begin() (Conn, error) {
	c.opMu.Lock()
	conn := c.current()
	if conn == nil {
		c.opMu.Unlock()
		return nil, serial.ErrNotConnected
	}
	return conn, nil
}

// ReadConfig sends GET_CONF and assembles the device configuration. A stream
// that stops before CONF_END yields a result with Complete set to false.
func (c *Configurator) ReadConfig(ctx context.Context) (*protocol.ReadResult, error) {
	conn, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.opMu.Unlock()

	if err := conn.WriteLine(protocol.CmdGetConf); err != nil {
		return nil, fmt.Errorf("%s: %w", protocol.CmdGetConf, err)
	}

	var logger protocol.Logger
	if c.config.Logger != nil {
		logger = c.config.Logger
	}
	r := protocol.NewConfigReader(logger)
	r.StartTimeout = c.config.AckTimeout
	r.LineTimeout = c.config.ConfigTimeout

	res, err := r.Read(ctx, conn)
	if err != nil {
		return nil, err
	}

	c.logInfo("configuration read",
		"version", res.Config.Version,
		"records", res.Records,
		"skipped", res.Skipped,
		"complete", res.Complete,
	)
	return res, nil
}

// SetMacro writes one button. KeySequence macros use SET_MACRO_SEQ; Script
// macros with a body are written with SET_MACRO followed by a script upload.
func (c *Configurator) SetMacro(ctx context.Context, layer, button int, m protocol.MacroEntry) error {
	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.setMacro(ctx, conn, layer, button, m)
}

func (c *Configurator) setMacro(ctx context.Context, conn Conn, layer, button int, m protocol.MacroEntry) error {
	switch {
	case m.Type == protocol.MacroKeySequence:
		line, err := protocol.BuildSetMacroSeqCmd(layer, button, m.Name, m.Symbol, m.Sequence)
		if err != nil {
			return err
		}
		return c.exchange(ctx, conn, protocol.CmdSetMacroSeq, line)

	case m.Type == protocol.MacroScript && m.Script != "":
		// validate the body before anything is sent
		header, err := protocol.BuildSetMacroScriptCmd(layer, button, m.Platform, m.Script, m.TerminalShortcut)
		if err != nil {
			return err
		}
		line, err := protocol.BuildSetMacroCmd(layer, button, m)
		if err != nil {
			return err
		}
		if err := c.exchange(ctx, conn, protocol.CmdSetMacro, line); err != nil {
			return err
		}
		return c.upload(ctx, conn, header, m.Script)

	default:
		line, err := protocol.BuildSetMacroCmd(layer, button, m)
		if err != nil {
			return err
		}
		return c.exchange(ctx, conn, protocol.CmdSetMacro, line)
	}
}

// UploadScript stores a script body. The header is answered with READY, then
// the body is sent unframed and answered with OK. Oversized scripts fail with
// *protocol.ScriptTooLargeError before anything is written.
func (c *Configurator) UploadScript(ctx context.Context, layer, button int, platform codec.Platform, script string, shortcut []codec.KeyPress) error {
	header, err := protocol.BuildSetMacroScriptCmd(layer, button, platform, script, shortcut)
	if err != nil {
		return err
	}

	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.upload(ctx, conn, header, script)
}

func (c *Configurator) upload(ctx context.Context, conn Conn, header, script string) error {
	op := protocol.CmdSetMacroScript

	if err := conn.WriteLine(header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := conn.ReadLine(ctx, c.config.ReadyTimeout)
	if err != nil {
		return &protocol.ProtocolError{Operation: op, Reason: "waiting for " + protocol.RespReady, Err: err}
	}
	if !strings.HasPrefix(resp, protocol.RespReady) {
		return &protocol.ProtocolError{Operation: op, Response: resp, Reason: "expected " + protocol.RespReady}
	}

	if err := conn.WriteRaw([]byte(script)); err != nil {
		return fmt.Errorf("%s body: %w", op, err)
	}
	resp, err = conn.ReadLine(ctx, c.config.AckTimeout)
	if err != nil {
		return &protocol.ProtocolError{Operation: op, Reason: "waiting for " + protocol.RespOK, Err: err}
	}
	if !strings.HasPrefix(resp, protocol.RespOK) {
		return &protocol.ProtocolError{Operation: op, Response: resp, Reason: "expected " + protocol.RespOK}
	}

	c.logDebug("script uploaded", "bytes", len(script))
	return nil
}

// SetLayer writes a layer's name and symbol.
func (c *Configurator) SetLayer(ctx context.Context, layer int, name, symbol string) error {
	line, err := protocol.BuildSetLayerNameCmd(layer, name, symbol)
	if err != nil {
		return err
	}

	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.exchange(ctx, conn, protocol.CmdSetLayerName, line)
}

// SetOLEDTimeout writes the screen saver timeout in seconds.
func (c *Configurator) SetOLEDTimeout(ctx context.Context, seconds int) error {
	line, err := protocol.BuildSetOLEDTimeoutCmd(seconds)
	if err != nil {
		return err
	}

	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.exchange(ctx, conn, protocol.CmdSetOLEDTimeout, line)
}

// SetConfigMode switches the device display between configuration and
// normal mode.
func (c *Configurator) SetConfigMode(ctx context.Context, enabled bool) error {
	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.setConfigMode(ctx, conn, enabled)
}

func (c *Configurator) setConfigMode(ctx context.Context, conn Conn, enabled bool) error {
	if err := c.exchange(ctx, conn, protocol.CmdSetConfigMode, protocol.BuildSetConfigModeCmd(enabled)); err != nil {
		return err
	}
	c.connMu.Lock()
	c.configMode = enabled
	c.connMu.Unlock()
	return nil
}

// SyncConfigMode enables config mode when pending goes from zero to nonzero
// and disables it on the way back. Other calls send nothing.
func (c *Configurator) SyncConfigMode(ctx context.Context, pending int) error {
	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	want := pending > 0
	c.connMu.Lock()
	have := c.configMode
	c.connMu.Unlock()

	if want == have {
		return nil
	}
	return c.setConfigMode(ctx, conn, want)
}

// WriteChange writes a single change without saving it.
func (c *Configurator) WriteChange(ctx context.Context, ch Change) error {
	conn, err := c.begin()
	if err != nil {
		return err
	}
	defer c.opMu.Unlock()

	return c.writeChange(ctx, conn, ch)
}

func (c *Configurator) writeChange(ctx context.Context, conn Conn, ch Change) error {
	switch ch.Key.Kind {
	case SettingChange:
		line, err := protocol.BuildSetOLEDTimeoutCmd(ch.OLEDTimeout)
		if err != nil {
			return err
		}
		return c.exchange(ctx, conn, protocol.CmdSetOLEDTimeout, line)

	case LayerChange:
		line, err := protocol.BuildSetLayerNameCmd(ch.Key.Layer, ch.Name, ch.Symbol)
		if err != nil {
			return err
		}
		return c.exchange(ctx, conn, protocol.CmdSetLayerName, line)

	case MacroChange:
		return c.setMacro(ctx, conn, ch.Key.Layer, ch.Key.Button, ch.Macro)

	default:
		return fmt.Errorf("unknown change kind %d", int(ch.Key.Kind))
	}
}

// Save persists the device configuration with SAVE_FLASH, then asks the
// device to reload it. A failed reload yields SucceededWithWarning; a failed
// save is returned as an error and no reload is sent.
func (c *Configurator) Save(ctx context.Context) (Outcome, error) {
	conn, err := c.begin()
	if err != nil {
		return failed(err), err
	}
	defer c.opMu.Unlock()

	return c.save(ctx, conn)
}

func (c *Configurator) save(ctx context.Context, conn Conn) (Outcome, error) {
	if err := c.exchange(ctx, conn, protocol.CmdSaveFlash, protocol.CmdSaveFlash); err != nil {
		return failed(err), err
	}

	if err := c.exchange(ctx, conn, protocol.CmdReloadConfig, protocol.CmdReloadConfig); err != nil {
		c.logWarn("configuration saved but reload failed", "error", err)
		return warned("reload failed: " + err.Error()), nil
	}

	// the firmware leaves config mode on reload
	c.connMu.Lock()
	c.configMode = false
	c.connMu.Unlock()

	c.logInfo("configuration saved")
	return succeeded(), nil
}

// Apply writes changes in order with StepDelay between them, then saves.
// The first failing change aborts the batch with an *ApplyError.
func (c *Configurator) Apply(ctx context.Context, changes []Change) (Outcome, error) {
	conn, err := c.begin()
	if err != nil {
		return failed(err), err
	}
	defer c.opMu.Unlock()

	start := time.Now()
	total := len(changes)

	for i, ch := range changes {
		if i > 0 {
			if err := sleep(ctx, c.config.StepDelay); err != nil {
				return failed(err), err
			}
		}

		c.reportProgress(Progress{
			Phase:       PhaseWriting,
			Change:      ch.Key,
			Current:     i,
			Total:       total,
			Percentage:  percentage(i, total),
			ElapsedTime: time.Since(start),
		})

		if err := c.writeChange(ctx, conn, ch); err != nil {
			c.logError("change failed", "change", ch.Key.String(), "error", err)
			aerr := &ApplyError{Index: i, Change: ch.Key, Err: err}
			return failed(aerr), aerr
		}
		c.logDebug("change written", "change", ch.Key.String())
	}

	c.reportProgress(Progress{
		Phase:       PhaseSaving,
		Current:     total,
		Total:       total,
		Percentage:  percentage(total, total),
		ElapsedTime: time.Since(start),
	})

	outcome, err := c.save(ctx, conn)
	if err != nil {
		return outcome, err
	}

	c.reportProgress(Progress{
		Phase:       PhaseComplete,
		Current:     total,
		Total:       total,
		Percentage:  100,
		ElapsedTime: time.Since(start),
	})
	return outcome, nil
}

// EnterUpdateMode sends BOOTSEL. The device resets into its USB bootloader,
// so a missing acknowledgement is expected; the connection is closed in
// every case.
func (c *Configurator) EnterUpdateMode(ctx context.Context) (Outcome, error) {
	conn, err := c.begin()
	if err != nil {
		return failed(err), err
	}
	defer c.opMu.Unlock()
	defer c.Disconnect()

	if err := conn.WriteLine(protocol.CmdBootsel); err != nil {
		err = fmt.Errorf("%s: %w", protocol.CmdBootsel, err)
		return failed(err), err
	}

	resp, err := conn.ReadLine(ctx, c.config.AckTimeout)
	switch {
	case err == nil && isOK(resp):
		c.logInfo("device entering bootloader")
		return succeeded(), nil
	case err == nil:
		c.logWarn("unexpected BOOTSEL response", "response", resp)
		return warned(fmt.Sprintf("unexpected response %q", resp)), nil
	case ctx.Err() != nil:
		return failed(ctx.Err()), ctx.Err()
	default:
		c.logDebug("no BOOTSEL acknowledgement", "error", err)
		return warned("device reset without acknowledgement"), nil
	}
}

// exchange writes line and requires an OK acknowledgement.
func (c *Configurator) exchange(ctx context.Context, conn Conn, op, line string) error {
	c.logDebug("send", "command", line)

	if err := conn.WriteLine(line); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := conn.ReadLine(ctx, c.config.AckTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &protocol.ProtocolError{Operation: op, Reason: "no acknowledgement", Err: err}
	}
	if !isOK(resp) {
		return &protocol.ProtocolError{Operation: op, Response: resp}
	}
	return nil
}

// isOK accepts "OK" anywhere in the response unless the device reports an error.
func isOK(resp string) bool {
	if strings.HasPrefix(resp, protocol.RespError) {
		return false
	}
	return strings.Contains(resp, protocol.RespOK)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func percentage(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}

// reportProgress calls the progress callback if configured.
func (c *Configurator) reportProgress(p Progress) {
	if c.config.ProgressCallback != nil {
		c.config.ProgressCallback(p)
	}
}

// logDebug logs a debug message if a logger is configured.
func (c *Configurator) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Configurator) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is configured.
func (c *Configurator) logWarn(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Configurator) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
