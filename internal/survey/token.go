package survey

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenLength is the character length of a verification token.
const TokenLength = 64

// tokenFunc generates verification tokens. The store rejects token
// collisions, so the generator itself carries no uniqueness guarantee.
type tokenFunc func() string

// NewToken returns a fresh verification token: 32 random bytes, hex
// encoded.
func NewToken() string {
	b := make([]byte, TokenLength/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// ValidToken reports whether s is a well-formed verification token.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
