package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager handles CSRF token generation and comparison.
// Tokens are cryptographically random; the storefront keeps the issued
// token in a cookie and expects it echoed back in the form or a header.
type TokenManager struct{}

// NewTokenManager creates a new CSRF token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate creates a cryptographically secure random CSRF token (256 bits).
// The token is returned as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares an issued token with a submitted one in constant time
func (tm *TokenManager) Verify(issued, submitted string) error {
	if issued == "" || submitted == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(issued), []byte(submitted)) {
		return ErrInvalidToken
	}
	return nil
}
