package utils

import "strings"

const maskLen = 8

// MaskSecret hides a token for logs. Long secrets keep a short prefix so two
// tokens can still be told apart.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 2*maskLen:
		return strings.Repeat("*", maskLen)
	}
	return s[:4] + strings.Repeat("*", maskLen)
}
