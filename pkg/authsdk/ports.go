package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/treeauth/pkg/httpx"
	"github.com/aussiebroadwan/treeauth/pkg/jwtx"
)

// TokenManager owns the access token of the current session.
type TokenManager interface {
	// Exchange obtains an access token for an SSO token.
	Exchange(ctx context.Context, sso *SSOToken, params map[string]string) (*AccessToken, error)

	// Persist stores token, replacing any previous one.
	Persist(ctx context.Context, token *AccessToken) error

	// AccessToken returns a usable token, refreshing it when it is within
	// the expiry threshold. ErrAuthenticationRequired means none can be had.
	AccessToken(ctx context.Context) (*AccessToken, error)

	// Refresh exchanges the stored refresh token for a new access token.
	Refresh(ctx context.Context) (*AccessToken, error)

	// Revoke clears the token locally and revokes it on the server.
	Revoke(ctx context.Context) error

	// Clear forgets the token without contacting the server.
	Clear(ctx context.Context) error

	HasToken(ctx context.Context) bool
}

// SingleSignOnManager owns the SSO token of the current session.
type SingleSignOnManager interface {
	Persist(ctx context.Context, token *SSOToken) error

	// Token returns the stored SSO token or ErrNoValue.
	Token(ctx context.Context) (*SSOToken, error)

	Clear(ctx context.Context) error
	HasToken(ctx context.Context) bool

	// Revoke clears the token locally and ends the server session.
	Revoke(ctx context.Context) error
}

// DataRepository is the key/value storage managers persist tokens in.
// Get returns ErrNoValue for missing keys.
type DataRepository interface {
	Save(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}

// AccessTokenVerifier decides whether a stored token may still be used.
// A rejected token is revoked and the caller has to authenticate again.
type AccessTokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token *AccessToken) error
}

// IDTokenVerifier checks the signature, issuer and audience of a token's
// id_token. An expired id_token is accepted: expiry is the token manager's
// concern and leads to a refresh. Tokens without an id_token are accepted.
type IDTokenVerifier struct {
	verifier jwtx.Verifier
}

// NewIDTokenVerifier adapts v to AccessTokenVerifier.
func NewIDTokenVerifier(v jwtx.Verifier) *IDTokenVerifier {
	return &IDTokenVerifier{verifier: v}
}

// newJWKSVerifier verifies id_tokens issued to the client against the
// realm's published keys. An empty issuer skips the iss check.
func newJWKSVerifier(cfg Config, client *http.Client, issuer string) *IDTokenVerifier {
	keys := jwtx.NewRemoteKeySet(cfg.JWKSURL(), client)
	return NewIDTokenVerifier(jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Issuer:   issuer,
		Audience: []string{cfg.ClientID},
		Leeway:   time.Minute,
	}))
}

func (v *IDTokenVerifier) VerifyAccessToken(ctx context.Context, token *AccessToken) error {
	if token.IDToken == "" {
		return nil
	}
	_, err := v.verifier.Verify(httpx.WithAction(ctx, httpx.ActionJWKS), token.IDToken)
	switch {
	case err == nil, errors.Is(err, jwtx.ErrExpired):
		return nil
	default:
		return fmt.Errorf("id token rejected: %w", err)
	}
}
