package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const base62Chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const tokenLen = 40

// GenerateToken returns prefix followed by random base62 characters drawn
// from crypto/rand.
func GenerateToken(prefix string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(prefix) + tokenLen)
	sb.WriteString(prefix)

	base := big.NewInt(int64(len(base62Chars)))
	for range tokenLen {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base62Chars[n.Int64()])
	}
	return sb.String(), nil
}
