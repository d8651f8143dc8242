package authsdk

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
)

// PKCE holds the code verifier and challenge for one authorization round
// trip. Never reuse a PKCE value.
type PKCE struct {
	// CodeChallenge is BASE64URL(SHA256(CodeVerifier)), sent to authorize.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string

	// CodeVerifier is kept secret until the code is exchanged.
	CodeVerifier string
}

// GeneratePKCE creates a fresh verifier from 64 random bytes and its S256
// challenge per RFC 7636.
func GeneratePKCE() (*PKCE, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize512)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	hash := sha256.Sum256([]byte(verifier))
	return &PKCE{
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(hash[:]),
		CodeChallengeMethod: "S256",
		CodeVerifier:        verifier,
	}, nil
}
