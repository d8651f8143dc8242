package jwtx

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// VerifyOptions captures what a token must satisfy.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values the token must contain (claims.aud). Empty means "don't care".
	Audience []string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// SignatureVerifier checks RS256, ES256 and EdDSA signatures against keys
// from a KeyProvider, then applies VerifyOptions.
type SignatureVerifier struct {
	keys KeyProvider
	opts VerifyOptions
}

// NewVerifier returns a SignatureVerifier.
func NewVerifier(keys KeyProvider, opts VerifyOptions) *SignatureVerifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SignatureVerifier{keys: keys, opts: opts}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *SignatureVerifier) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	// Expiry is checked below with our own clock and leeway.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256", "EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}

		pub, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrUnknownKID, kid, err)
		}

		if !keyMatchesMethod(pub, t.Method) {
			return nil, ErrAlgMismatch
		}
		return pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrMalformed
		}
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(v.opts.Now(), v.opts.Leeway); err != nil {
		return nil, err
	}

	return claims, nil
}

func keyMatchesMethod(key any, m jwt.SigningMethod) bool {
	switch key.(type) {
	case *rsa.PublicKey:
		return m.Alg() == "RS256"
	case *ecdsa.PublicKey:
		return m.Alg() == "ES256"
	case ed25519.PublicKey:
		return m.Alg() == "EdDSA"
	default:
		return false
	}
}
