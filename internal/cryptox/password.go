// Package cryptox holds the credential and token hashing primitives: bcrypt for
// new password hashes, verification of the legacy PBKDF2 "salt:hash" format,
// and SHA-256 digests for persisted bearer tokens.
package cryptox

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultPasswordCost is the bcrypt cost used for new hashes when none is configured.
const DefaultPasswordCost = 12

// Legacy PBKDF2 parameters. Only ever used for verification.
const (
	legacyIterations = 10000
	legacyKeyLen     = 64
	legacySeparator  = ":"
)

// HashFormat identifies how a stored password hash was produced.
type HashFormat int

const (
	FormatUnknown HashFormat = iota
	FormatBcrypt
	FormatLegacyPBKDF2
)

func (f HashFormat) String() string {
	switch f {
	case FormatBcrypt:
		return "bcrypt"
	case FormatLegacyPBKDF2:
		return "pbkdf2-sha512"
	default:
		return "unknown"
	}
}

// DetectFormat classifies storedHash by its shape. Bcrypt hashes carry a
// "$2a$", "$2b$" or "$2y$" marker; legacy hashes are "<hex salt>:<128 hex chars>".
func DetectFormat(storedHash string) HashFormat {
	if len(storedHash) == 60 && (strings.HasPrefix(storedHash, "$2a$") ||
		strings.HasPrefix(storedHash, "$2b$") ||
		strings.HasPrefix(storedHash, "$2y$")) {
		return FormatBcrypt
	}

	salt, digest, ok := strings.Cut(storedHash, legacySeparator)
	if !ok || salt == "" || len(digest) != legacyKeyLen*2 {
		return FormatUnknown
	}
	if !isHex(salt) || !isHex(digest) {
		return FormatUnknown
	}
	return FormatLegacyPBKDF2
}

// Hasher hashes new passwords with bcrypt and verifies both bcrypt and legacy
// PBKDF2 hashes. It is safe for concurrent use.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher producing bcrypt hashes at cost. A cost outside
// bcrypt's accepted range falls back to DefaultPasswordCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt cost used for new hashes.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the canonical bcrypt hash of plaintext.
// An empty plaintext fails with common.ErrWeakInput.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("empty password: %w", common.ErrWeakInput)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if err == bcrypt.ErrPasswordTooLong {
			return "", fmt.Errorf("password too long: %w", common.ErrWeakInput)
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches storedHash. Malformed or unknown
// hashes yield false.
func (h *Hasher) Verify(plaintext, storedHash string) bool {
	switch DetectFormat(storedHash) {
	case FormatBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
	case FormatLegacyPBKDF2:
		return verifyLegacy(plaintext, storedHash)
	default:
		return false
	}
}

// VerifyDummy burns roughly the same time as a real bcrypt comparison. It is
// used when the account does not exist so response timing stays uniform.
func (h *Hasher) VerifyDummy(plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("fieldauth-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}

// NeedsRehash reports whether storedHash should be replaced by a fresh
// canonical hash: legacy hashes always, bcrypt hashes below the configured cost.
func (h *Hasher) NeedsRehash(storedHash string) bool {
	switch DetectFormat(storedHash) {
	case FormatLegacyPBKDF2:
		return true
	case FormatBcrypt:
		cost, err := bcrypt.Cost([]byte(storedHash))
		return err != nil || cost < h.cost
	default:
		return false
	}
}

// LegacyHash produces a "salt:hash" value in the deprecated PBKDF2 format.
// The salt is used as its literal text, matching how the old records were made.
func LegacyHash(plaintext, salt string) string {
	dk := pbkdf2.Key([]byte(plaintext), []byte(salt), legacyIterations, legacyKeyLen, sha512.New)
	return salt + legacySeparator + hex.EncodeToString(dk)
}

func verifyLegacy(plaintext, storedHash string) bool {
	salt, digest, _ := strings.Cut(storedHash, legacySeparator)
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(plaintext), []byte(salt), legacyIterations, legacyKeyLen, sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
