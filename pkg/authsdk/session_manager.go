package authsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
)

// SessionManager combines the SSO and access token managers into the
// current session. AccessToken runs a chain that reuses a stored token
// when it belongs to the stored SSO session and otherwise mints a new one
// from the SSO token.
type SessionManager struct {
	tokens TokenManager
	sso    SingleSignOnManager
	chain  Chain
}

// NewSessionManager returns a SessionManager over tokens and sso.
func NewSessionManager(tokens TokenManager, sso SingleSignOnManager) *SessionManager {
	return &SessionManager{
		tokens: tokens,
		sso:    sso,
		chain: chain.New(
			retrieveSSOTokenInterceptor(sso),
			retrieveAccessTokenInterceptor(sso, tokens),
			oauthInterceptor(tokens),
			accessTokenStoreInterceptor(tokens),
		),
	}
}

func (m *SessionManager) TokenManager() TokenManager               { return m.tokens }
func (m *SessionManager) SingleSignOnManager() SingleSignOnManager { return m.sso }

// AccessToken returns a usable access token for the current session.
// ErrAuthenticationRequired means the caller has to walk a tree.
func (m *SessionManager) AccessToken(ctx context.Context) (*AccessToken, error) {
	result, err := m.chain.Run(ctx, nil)
	if err != nil {
		return nil, err
	}
	token, ok := result.(*AccessToken)
	if !ok || token == nil {
		return nil, fmt.Errorf("%w: no session", ErrAuthenticationRequired)
	}
	return token, nil
}

// Refresh forces a refresh of the current session's access token.
func (m *SessionManager) Refresh(ctx context.Context) (*AccessToken, error) {
	if _, err := m.AccessToken(ctx); err != nil {
		return nil, err
	}
	return m.tokens.Refresh(ctx)
}

// HasSession reports whether an SSO or access token is held.
func (m *SessionManager) HasSession(ctx context.Context) bool {
	return m.sso.HasToken(ctx) || m.tokens.HasToken(ctx)
}

// RevokeAccessToken revokes the access token but keeps the SSO session.
func (m *SessionManager) RevokeAccessToken(ctx context.Context) error {
	return m.tokens.Revoke(ctx)
}

// Close revokes the access token and then the SSO session. Both are
// attempted; tokens that were never held are not an error.
func (m *SessionManager) Close(ctx context.Context) error {
	var errs []error
	if err := m.tokens.Revoke(ctx); err != nil && !errors.Is(err, ErrTokenNotFound) {
		errs = append(errs, err)
	}
	if err := m.sso.Revoke(ctx); err != nil && !errors.Is(err, ErrTokenNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SingleSignOnInterceptor persists the SSO token a tree yields. A stored
// access token minted from a different SSO session is revoked.
func (m *SessionManager) SingleSignOnInterceptor() Interceptor {
	return singleSignOnInterceptor(m.sso, m.tokens)
}

// OAuthInterceptor exchanges an SSO token for an access token.
func (m *SessionManager) OAuthInterceptor() Interceptor { return oauthInterceptor(m.tokens) }

// AccessTokenStoreInterceptor persists access tokens passing through.
func (m *SessionManager) AccessTokenStoreInterceptor() Interceptor {
	return accessTokenStoreInterceptor(m.tokens)
}
