package refinement

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Bounds of a refinement message, in characters.
const (
	MinMessageLength = 1
	MaxMessageLength = 5000
)

var (
	ErrMessageEmpty   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum allowed length")
	ErrInvalidUTF8    = errors.New("message contains invalid UTF-8 sequences")
)

// SanitizeMessage enforces the message bounds, validates UTF-8 and strips
// control characters other than newline, tab and carriage return.
// Surrounding whitespace is trimmed; the bounds apply to the returned text, in characters.
func SanitizeMessage(input string) (string, error) {
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := input
	if strings.IndexFunc(input, isUnsafeControl) >= 0 {
		var b strings.Builder
		b.Grow(len(input))
		for _, r := range input {
			if !isUnsafeControl(r) {
				b.WriteRune(r)
			}
		}
		clean = b.String()
	}

	clean = strings.TrimSpace(clean)
	n := utf8.RuneCountInString(clean)
	if n < MinMessageLength {
		return "", ErrMessageEmpty
	}
	if n > MaxMessageLength {
		return "", fmt.Errorf("%w: length=%d limit=%d", ErrMessageTooLong, n, MaxMessageLength)
	}
	return clean, nil
}

func isUnsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
