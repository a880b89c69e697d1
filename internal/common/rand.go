package common

import (
	"crypto/rand"
	"encoding/base64"
)

// TokenBytes is the amount of entropy in every issued token (256 bits).
const TokenBytes = 32

// MakeRandToken returns TokenBytes random bytes encoded with unpadded
// base64url, suitable for use as an opaque bearer token. The random buffer
// is wiped once encoded.
func MakeRandToken() (string, error) {
	b := make([]byte, TokenBytes)
	defer WipeByteArray(b)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
