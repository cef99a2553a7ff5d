package utils

import "strings"

// MaskShort keeps the first and last four characters of an address or signature for logs.
func MaskShort(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
