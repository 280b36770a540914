// Package hex is the lower case hex codec used for ids, keys and signatures.
package hex

import (
	"encoding/hex"
	"fmt"
)

var Enc = hex.EncodeToString
var Dec = hex.DecodeString

// DecLen decodes s and requires the result to be exactly n bytes.
func DecLen(s string, n int) (b []byte, err error) {
	if len(s) != n*2 {
		return nil, fmt.Errorf("hex string of %d chars, want %d: %w",
			len(s), n*2, hex.ErrLength)
	}
	return hex.DecodeString(s)
}

// Is returns true if s is n bytes of lower case hex.
func Is(s string, n int) bool {
	if len(s) != n*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
