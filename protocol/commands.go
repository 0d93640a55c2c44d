package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/talos-macropad/go-talos/codec"
)

// BuildSetMacroCmd constructs a SET_MACRO command for every macro type except
// KeySequence (see BuildSetMacroSeqCmd) and script bodies (see
// BuildSetMacroScriptCmd).
//
// Line structure:
//
//	SET_MACRO|layer|button|type|value|text|name|emoji|repeatCount|repeatInterval|moveX|moveY
func BuildSetMacroCmd(layer, button int, m MacroEntry) (string, error) {
	if err := checkSlot(layer, button); err != nil {
		return "", err
	}
	if !m.Type.Valid() {
		return "", fmt.Errorf("invalid macro type %d", uint8(m.Type))
	}
	if err := checkFields("text", m.MacroString, "name", m.Name); err != nil {
		return "", err
	}

	return joinFields(CmdSetMacro,
		strconv.Itoa(layer),
		strconv.Itoa(button),
		strconv.Itoa(int(m.Type)),
		strconv.Itoa(m.Value),
		m.MacroString,
		m.Name,
		strconv.Itoa(m.EmojiIndex()),
		strconv.Itoa(m.RepeatCount),
		strconv.Itoa(m.RepeatInterval),
		strconv.Itoa(m.MoveX),
		strconv.Itoa(m.MoveY),
	), nil
}

// BuildSetMacroSeqCmd constructs a SET_MACRO_SEQ command. steps may be given in
// compiled or decompiled form; they are compiled and truncated to
// codec.MaxSequenceSteps. Steps without a duration are sent with
// codec.DefaultStepDuration.
//
// Line structure:
//
//	SET_MACRO_SEQ|layer|button|name|emoji|count|k,m,d,k,m,d...
func BuildSetMacroSeqCmd(layer, button int, name, symbol string, steps []codec.KeyPress) (string, error) {
	if err := checkSlot(layer, button); err != nil {
		return "", err
	}
	if err := checkFields("name", name); err != nil {
		return "", err
	}

	compiled := codec.Truncate(codec.Compile(steps), codec.MaxSequenceSteps)
	encoded := make([]string, 0, len(compiled))
	for _, s := range compiled {
		d := s.Duration
		if d == 0 {
			d = codec.DefaultStepDuration
		}
		encoded = append(encoded, fmt.Sprintf("%d,%d,%d", s.Keycode, s.Modifiers, d))
	}

	return joinFields(CmdSetMacroSeq,
		strconv.Itoa(layer),
		strconv.Itoa(button),
		name,
		strconv.Itoa(codec.EmojiIndex(symbol)),
		strconv.Itoa(len(compiled)),
		strings.Join(encoded, ","),
	), nil
}

// BuildSetMacroScriptCmd constructs the SET_MACRO_SCRIPT header announcing a
// script upload. The size field is the UTF-8 byte length of script, which must
// be between 1 and MaxScriptSize bytes. The terminal shortcut is compiled and
// truncated to codec.MaxShortcutSteps.
//
// Line structure:
//
//	SET_MACRO_SCRIPT|layer|button|platform|size|shortcutLen[|k,m,k,m...]
//
// After the device answers READY the caller sends the script bytes unframed.
func BuildSetMacroScriptCmd(layer, button int, platform codec.Platform, script string, shortcut []codec.KeyPress) (string, error) {
	if len(script) > MaxScriptSize {
		return "", &ScriptTooLargeError{Size: len(script), Max: MaxScriptSize}
	}
	if len(script) == 0 {
		return "", fmt.Errorf("script body is empty")
	}
	if err := checkSlot(layer, button); err != nil {
		return "", err
	}
	if !platform.Valid() {
		return "", fmt.Errorf("invalid script platform %d", uint8(platform))
	}

	compiled := codec.Truncate(codec.Compile(shortcut), codec.MaxShortcutSteps)
	fields := []string{
		strconv.Itoa(layer),
		strconv.Itoa(button),
		strconv.Itoa(int(platform)),
		strconv.Itoa(len(script)),
		strconv.Itoa(len(compiled)),
	}
	if len(compiled) > 0 {
		pairs := make([]string, 0, len(compiled))
		for _, s := range compiled {
			pairs = append(pairs, fmt.Sprintf("%d,%d", s.Keycode, s.Modifiers))
		}
		fields = append(fields, strings.Join(pairs, ","))
	}

	return joinFields(CmdSetMacroScript, fields...), nil
}

// BuildSetLayerNameCmd constructs a SET_LAYER_NAME command.
//
// Line structure:
//
//	SET_LAYER_NAME|layer|name|emoji
func BuildSetLayerNameCmd(layer int, name, symbol string) (string, error) {
	if !ValidLayer(layer) {
		return "", fmt.Errorf("layer %d out of range 0-%d", layer, NumLayers-1)
	}
	if err := checkFields("name", name); err != nil {
		return "", err
	}
	return joinFields(CmdSetLayerName, strconv.Itoa(layer), name, strconv.Itoa(codec.EmojiIndex(symbol))), nil
}

// BuildSetOLEDTimeoutCmd constructs a SET_OLED_TIMEOUT command. 0 disables the
// screen saver.
func BuildSetOLEDTimeoutCmd(seconds int) (string, error) {
	if seconds < 0 || seconds > MaxOLEDTimeout {
		return "", fmt.Errorf("oled timeout %d out of range 0-%d", seconds, MaxOLEDTimeout)
	}
	return joinFields(CmdSetOLEDTimeout, strconv.Itoa(seconds)), nil
}

// BuildSetConfigModeCmd constructs a SET_CONFIG_MODE command.
func BuildSetConfigModeCmd(enabled bool) string {
	mode := "0"
	if enabled {
		mode = "1"
	}
	return joinFields(CmdSetConfigMode, mode)
}

func joinFields(cmd string, fields ...string) string {
	var b strings.Builder
	b.WriteString(cmd)
	for _, f := range fields {
		b.WriteString(FieldSep)
		b.WriteString(f)
	}
	return b.String()
}

func checkSlot(layer, button int) error {
	if !ValidLayer(layer) {
		return fmt.Errorf("layer %d out of range 0-%d", layer, NumLayers-1)
	}
	if !ValidButton(button) {
		return fmt.Errorf("button %d out of range 0-%d", button, NumButtons-1)
	}
	return nil
}

// checkFields takes name/value pairs and rejects values that would break the
// line framing.
func checkFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.ContainsAny(pairs[i+1], "|\r\n") {
			return fmt.Errorf("%s %q contains a reserved character", pairs[i], pairs[i+1])
		}
	}
	return nil
}
