package protocol

import "strings"

var scriptEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"|", `\|`,
)

// EscapeScript encodes a script body the way the device streams it inside a
// SCRIPT_DATA record.
func EscapeScript(s string) string {
	return scriptEscaper.Replace(s)
}

// UnescapeScript reverses EscapeScript. Unknown escapes are kept verbatim,
// a trailing lone backslash is kept as is.
func UnescapeScript(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '|':
			b.WriteByte('|')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
