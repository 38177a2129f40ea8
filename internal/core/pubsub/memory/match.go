package memory

import "strings"

// matchSubject applies NATS wildcard rules: "*" is exactly one token and a
// trailing ">" is one or more tokens.
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}
	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		if p == ">" {
			return !pMore
		}
		s, sRest, sMore := strings.Cut(subject, ".")
		if p != "*" && p != s {
			return false
		}
		if !pMore || !sMore {
			return pMore == sMore
		}
		pattern, subject = pRest, sRest
	}
}
