package cryptox

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHash_ProducesBcryptAtConfiguredCost(t *testing.T) {
	h := NewHasher(DefaultPasswordCost)

	hash, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$12$"), hash)
	assert.Equal(t, FormatBcrypt, DetectFormat(hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 12, cost)
}

func TestHash_EmptyIsWeakInput(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash("")
	assert.ErrorIs(t, err, common.ErrWeakInput)
}

func TestHash_TooLongIsWeakInput(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, common.ErrWeakInput)
}

func TestNewHasher_OutOfRangeCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultPasswordCost, NewHasher(0).Cost())
	assert.Equal(t, DefaultPasswordCost, NewHasher(99).Cost())
	assert.Equal(t, bcrypt.MinCost, NewHasher(bcrypt.MinCost).Cost())
}

func TestVerify_AcceptsBothFormatsForSamePassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	const password = "correct horse battery staple"

	canonical, err := h.Hash(password)
	require.NoError(t, err)
	legacy := LegacyHash(password, "9b1f0c2a7d3e4f5a6b7c8d9e0f1a2b3c")

	assert.Equal(t, FormatLegacyPBKDF2, DetectFormat(legacy))
	assert.True(t, h.Verify(password, canonical))
	assert.True(t, h.Verify(password, legacy))

	assert.False(t, h.Verify("wrong", canonical))
	assert.False(t, h.Verify("wrong", legacy))
}

func TestVerify_MalformedHashesReturnFalse(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	tests := []struct {
		name   string
		stored string
	}{
		{"empty", ""},
		{"plaintext", "password"},
		{"bcrypt marker but truncated", "$2a$12$abc"},
		{"separator without salt", ":" + strings.Repeat("a", 128)},
		{"short digest", "abcd:" + strings.Repeat("a", 127)},
		{"non hex digest", "abcd:" + strings.Repeat("z", 128)},
		{"non hex salt", "salt!:" + strings.Repeat("a", 128)},
		{"two separators", "ab:cd:" + strings.Repeat("a", 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify("password", tt.stored))
			})
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	low := NewHasher(bcrypt.MinCost)
	high := NewHasher(bcrypt.MinCost + 1)

	lowHash, err := low.Hash("pw")
	require.NoError(t, err)

	assert.False(t, low.NeedsRehash(lowHash))
	assert.True(t, high.NeedsRehash(lowHash))
	assert.True(t, low.NeedsRehash(LegacyHash("pw", "00ff")))
	assert.False(t, low.NeedsRehash("garbage"))
}

func TestVerifyDummy_DoesNotPanic(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.NotPanics(t, func() {
		h.VerifyDummy("anything")
		h.VerifyDummy("")
	})
}

func TestHashToken_IsStableHexDigest(t *testing.T) {
	a := HashToken("raw-token")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("raw-token"))
	assert.NotEqual(t, a, HashToken("raw-token2"))
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashToken("abc"))
}
