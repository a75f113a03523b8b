package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// codeLength is the length of a generated reference code.
const codeLength = 8

// codeAlphabet excludes lowercase letters so codes survive case-insensitive
// downstream consumers unchanged.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCollisionAttempts bounds regeneration before falling back to a
// timestamp-suffixed code.
const maxCollisionAttempts = 5

// generateCode returns a random fixed-length alphanumeric reference code.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// timestampCode returns a collision-proof fallback code: a short random
// prefix followed by the current unix millisecond timestamp.
func timestampCode() (string, error) {
	prefix, err := generateCode()
	if err != nil {
		return "", err
	}
	return prefix[:4] + strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}
