package rank

import "strings"

// Shape is the validation rule for a product identifier.
type Shape struct {
	// Length is the exact number of characters. Default: 10.
	Length int

	// ForbiddenPrefix rejects unresolved template placeholders. Default: "{".
	ForbiddenPrefix string
}

// DefaultShape matches a 10-character uppercase alphanumeric code.
var DefaultShape = Shape{Length: 10, ForbiddenPrefix: "{"}

// Valid reports whether v (already trimmed) is identifier-shaped.
func (s Shape) Valid(v string) bool {
	if v == "" || len(v) != s.Length {
		return false
	}
	if s.ForbiddenPrefix != "" && strings.HasPrefix(v, s.ForbiddenPrefix) {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
