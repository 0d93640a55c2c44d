package protocol

import "github.com/talos-macropad/go-talos/codec"

// Device geometry.
const (
	// NumLayers is the number of layers held by the device
	NumLayers = 4

	// NumButtons is the number of macro slots per layer (button 6 is the layer key)
	NumButtons = 7

	// LayerButton is the slot conventionally bound to the layer cycle action
	LayerButton = 6
)

// Field limits enforced when encoding.
const (
	// MaxNameLen is the maximum length of a layer or macro name
	MaxNameLen = 15

	// MaxMacroStringLen is the maximum length of a macro text payload
	MaxMacroStringLen = 32

	// MaxOLEDTimeout is the largest accepted OLED sleep timeout in seconds
	MaxOLEDTimeout = 1800

	// DefaultOLEDTimeout is the firmware's factory OLED sleep timeout in seconds
	DefaultOLEDTimeout = 300

	// MaxScriptSize mirrors codec.MaxScriptSize
	MaxScriptSize = codec.MaxScriptSize
)

// Host to device commands.
const (
	CmdGetConf        = "GET_CONF"
	CmdSetMacro       = "SET_MACRO"
	CmdSetMacroSeq    = "SET_MACRO_SEQ"
	CmdSetMacroScript = "SET_MACRO_SCRIPT"
	CmdSetLayerName   = "SET_LAYER_NAME"
	CmdSetOLEDTimeout = "SET_OLED_TIMEOUT"
	CmdSetConfigMode  = "SET_CONFIG_MODE"
	CmdSaveFlash      = "SAVE_FLASH"
	CmdReloadConfig   = "RELOAD_CONFIG"
	CmdBootsel        = "BOOTSEL"
)

// Device to host responses and config stream records.
const (
	RespOK      = "OK"
	RespReady   = "READY"
	RespError   = "ERROR"
	RecStart    = "CONF_START"
	RecEnd      = "CONF_END"
	RecVersion  = "VERSION"
	RecSetting  = "SETTINGS"
	RecLayer    = "LAYER_NAME"
	RecMacro    = "MACRO"
	RecSeq      = "MACRO_SEQ"
	RecStep     = "SEQ_STEP"
	RecShortcut = "SCRIPT_SHORTCUT"
	RecScript   = "SCRIPT_DATA"
)

// FieldSep separates fields of a command or record line.
const FieldSep = "|"

// UnknownVersion is reported when the device did not send a VERSION record.
const UnknownVersion = "unknown"
