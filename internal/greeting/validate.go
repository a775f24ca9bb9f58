package greeting

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

// MaxNameLength is the maximum name length in UTF-16 code units.
const MaxNameLength = 100

// ValidateName normalizes a raw name value.
//
// Only strings are accepted. The value is trimmed and must be non-empty;
// it is then silently truncated to MaxNameLength UTF-16 code units.
func ValidateName(raw any) (string, *Error) {
	s, ok := raw.(string)
	if !ok {
		return "", New(CodeMissingName)
	}
	trimmed := TrimName(s)
	if trimmed == "" {
		return "", New(CodeMissingName)
	}
	return truncateUTF16(trimmed, MaxNameLength), nil
}

// TrimName strips leading and trailing white space from a name.
func TrimName(s string) string {
	return strings.TrimFunc(s, isTrimmable)
}

// isTrimmable matches the characters stripped from both ends of a name:
// Unicode white space except NEL (U+0085), plus the byte-order mark.
func isTrimmable(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// truncateUTF16 cuts s to at most limit UTF-16 code units without splitting a
// surrogate pair.
func truncateUTF16(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
