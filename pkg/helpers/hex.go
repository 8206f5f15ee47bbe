package helpers

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeHex decodes a hex string, tolerating a 0x prefix and surrounding
// whitespace.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}

// DecodeHexLen decodes a hex string and requires exactly n bytes.
func DecodeHexLen(s string, n int) ([]byte, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
