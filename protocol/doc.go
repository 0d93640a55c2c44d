// Package protocol implements the line protocol spoken by the macro keyboard
// firmware over its CDC serial interface.
//
// # Wire Format
//
// Every message is a single line terminated by '\n' with fields separated by
// '|'. The only exception is a script upload, where the raw script bytes follow
// a READY handshake without any framing:
//
//	host:   SET_MACRO_SCRIPT|0|2|0|11|1|23,5
//	device: READY
//	host:   echo hello\n            (11 raw bytes)
//	device: OK
//
// # Command Builders
//
// The Build* functions return command lines ready to be written with a
// trailing newline:
//
//	line, err := protocol.BuildSetMacroCmd(0, 1, entry)
//	line, err := protocol.BuildSetMacroSeqCmd(0, 2, "Copy", "📝", steps)
//	line, err := protocol.BuildSetLayerNameCmd(1, "Work", "💼")
//
// # Reading the Configuration
//
// GET_CONF is answered by CONF_START, a stream of records and CONF_END:
//
//	CONF_START
//	SETTINGS|300
//	LAYER_NAME|0|Gaming|0
//	MACRO|0|0|0|4|||0|1|0|0|0
//	MACRO_SEQ|0|1|Copy|8|1
//	SEQ_STEP|0|1|0|6|1|50
//	MACRO|0|2|3|0||Deploy|6|0|1
//	SCRIPT_SHORTCUT|0|2|0|23|5
//	SCRIPT_DATA|0|2|0|make deploy\n
//	CONF_END
//
// ConfigReader consumes these lines and assembles a Configuration. Slots the
// device does not describe keep their defaults, malformed records are logged
// and skipped, and a stream that stops without CONF_END yields a partial
// result instead of an error.
//
// Emoji symbols travel as indices into codec.Emojis; the model keeps the
// symbol itself.
package protocol
