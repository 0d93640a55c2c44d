package codec

// Emojis is the symbol table shared with the firmware. The device only knows
// indices into this table; the order must never change.
var Emojis = [...]string{
	"🎮", "💼", "🏠", "🔧", "⚡", "📧", "💻", "🎵", "📝", "☕",
	"🗡️", "❤️", "🔔", "🧪", "🔒", "☂️", "🦕", "👻", "🔫", "⏳",
	"🌷",
}

// DefaultLayerEmojis are the symbols of freshly initialised layers.
var DefaultLayerEmojis = [...]string{"🎮", "💼", "🏠", "🔧"}

// LayerSwitchEmoji is the conventional symbol of the layer cycle button.
const LayerSwitchEmoji = "⚡"

// EmojiIndex returns the table index of symbol, or 0 if it is not in the table.
func EmojiIndex(symbol string) int {
	for i, e := range Emojis {
		if e == symbol {
			return i
		}
	}
	return 0
}

// EmojiString returns the symbol at index, or the first entry if out of range.
func EmojiString(index int) string {
	if index < 0 || index >= len(Emojis) {
		return Emojis[0]
	}
	return Emojis[index]
}

// IsKnownEmoji reports whether symbol is present in the table.
func IsKnownEmoji(symbol string) bool {
	for _, e := range Emojis {
		if e == symbol {
			return true
		}
	}
	return false
}
