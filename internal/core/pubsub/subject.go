package pubsub

import "strings"

// SubjectToken makes s safe to use as a single subject token. Separators,
// wildcards and whitespace become "_"; an empty string becomes "_".
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
