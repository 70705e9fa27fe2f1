package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Hash returns the lowercase hex SHA-256 digest of value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// FormatPassword renders a numeric candidate left-padded with zeros to width.
func FormatPassword(value int64, width int) string {
	s := strconv.FormatInt(value, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// DigitWidth is the number of decimal digits needed to print max.
func DigitWidth(max int64) int {
	if max <= 0 {
		return 1
	}
	return len(strconv.FormatInt(max, 10))
}
