package util

import (
	"golang.org/x/text/unicode/norm"
)

// NormalizePassphrase returns the NFKD form of s so that visually identical
// passphrases typed on different keyboards derive the same key.
func NormalizePassphrase(s string) []byte {
	return []byte(norm.NFKD.String(s))
}
