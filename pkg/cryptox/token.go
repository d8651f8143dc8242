// Package cryptox holds the small cryptographic helpers the SDK needs:
// random tokens for PKCE and OAuth2 state, fingerprints for logging token
// identity without the token itself, and an AEAD cipher for values kept
// at rest.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token sizes in bytes before encoding.
const (
	// TokenSize128 is used for OAuth2 state (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 gives 43 chars base64url.
	TokenSize256 = 32
	// TokenSize512 is used for PKCE verifiers (86 chars base64url, inside
	// the 43..128 range RFC 7636 allows).
	TokenSize512 = 64
)

// GenerateToken returns size random bytes encoded as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns a short, stable identifier for a token that is
// safe to log. Only the first 12 base64url chars of the SHA-256 are kept.
func FingerprintToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:12]
}
