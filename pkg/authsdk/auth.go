package authsdk

import (
	"context"
	"errors"
)

// Auth walks one tree on behalf of the current session. Next reuses the
// session when it still has a usable access token and Start always walks
// the tree from scratch.
type Auth struct {
	client *SDKClient
	cfg    AuthServiceConfig
}

// NewAuth returns an Auth for cfg. The tree's SSO token is persisted and
// exchanged for an access token before cfg.Interceptors run.
func (c *SDKClient) NewAuth(cfg AuthServiceConfig) (*Auth, error) {
	if _, err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Auth{client: c, cfg: cfg}, nil
}

// Next returns the current session's access token, run through the
// caller's interceptors, without contacting the tree. When no token can be
// had the tree is started.
func (a *Auth) Next(ctx context.Context) (*Step, error) {
	token, err := a.client.sessions.AccessToken(ctx)
	switch {
	case err == nil:
		s, err := a.service()
		if err != nil {
			return nil, err
		}
		defer s.done()
		return s.NextWithToken(ctx, token)
	case errors.Is(err, ErrAuthenticationRequired), errors.Is(err, ErrInvalidGrant):
		return a.walk(ctx)
	default:
		return nil, err
	}
}

// Start closes the current session, if any, and walks the tree.
func (a *Auth) Start(ctx context.Context) (*Step, error) {
	if err := a.client.sessions.Close(ctx); err != nil {
		a.client.Logger.WarnContext(ctx, "failed to close previous session", "error", err)
	}
	return a.walk(ctx)
}

func (a *Auth) walk(ctx context.Context) (*Step, error) {
	s, err := a.service()
	if err != nil {
		return nil, err
	}
	return s.Next(ctx)
}

func (a *Auth) service() (*AuthService, error) {
	return a.client.newAuthService(a.cfg,
		a.client.sessions.SingleSignOnInterceptor(),
		a.client.sessions.OAuthInterceptor(),
		a.client.sessions.AccessTokenStoreInterceptor(),
	)
}
