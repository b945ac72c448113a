package budget

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

const tokenBytes = 32

// NewToken returns an unguessable approval token: 256 random bits, base58 encoded.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate approval token: %w", err)
	}
	return base58.Encode(b), nil
}

// wellFormedToken rejects strings that could never have been issued by NewToken.
func wellFormedToken(token string) bool {
	if token == "" || len(token) > 64 {
		return false
	}
	b, err := base58.Decode(token)
	return err == nil && len(b) == tokenBytes
}
