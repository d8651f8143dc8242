package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the OpenID Connect id_token claims AM issues. Unknown claims
// are ignored.
type Claims struct {
	jwt.RegisteredClaims

	// Authorized party, the client the token was issued to.
	AZP string `json:"azp,omitempty"`

	// Session identifier linking the id_token to the AM session.
	SID string `json:"sid,omitempty"`

	AuthTime  *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce     string           `json:"nonce,omitempty"`
	Realm     string           `json:"realm,omitempty"`
	TokenType string           `json:"tokenType,omitempty"`

	// Profile claims, present when the profile/email scopes were granted.
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiryAt checks exp and nbf against now with leeway for clock skew.
func (c *Claims) ValidateExpiryAt(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// ParseUnverified decodes the claims of token without checking its
// signature. Only use the result for display, never for trust decisions.
func ParseUnverified(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, ErrMalformed
	}
	return &claims, nil
}
