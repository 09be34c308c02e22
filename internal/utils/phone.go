package utils

import (
	"regexp"
	"strings"
)

var kenyanMSISDN = regexp.MustCompile(`^254[1-9]\d{8}$`)

// NormalizePhone converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and
// 2547XXXXXXXX into the 2547XXXXXXXX form. ok is false for anything else.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	default:
		return "", false
	}

	if !kenyanMSISDN.MatchString(digits) {
		return "", false
	}
	return digits, true
}
