package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// ParseHex decodes a hex string written for humans: whitespace and ':'
// separators are ignored, so "A0 00 00 01 51" and "a0:00:00:01:51" are both
// accepted.
func ParseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ':' {
			return -1
		}
		return r
	}, s)

	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return data, nil
}

// Hex constructs a byte slice from a series of hex strings, as ParseHex does.
// It panics on invalid input and is meant for fixtures and constants.
func Hex(parts ...string) []byte {
	data, err := ParseHex(strings.Join(parts, ""))
	if err != nil {
		panic(err.Error())
	}
	return data
}
