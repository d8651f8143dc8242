package authsdk

import (
	"context"
	"errors"
)

// Session is an authenticated AM session held by the caller.
type Session struct {
	client *SDKClient
	token  *SSOToken
}

func (*Session) Kind() Kind { return KindSession }

// Token returns the session's SSO token.
func (s *Session) Token() *SSOToken { return s.token }

// Logout revokes the session's tokens locally and on the server.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.sessions.Close(ctx)
}

// Authenticate starts cfg's tree. When it completes the step's Result is
// a *Session, unless one of cfg.Interceptors turns it into something else.
func (c *SDKClient) Authenticate(ctx context.Context, cfg AuthServiceConfig) (*Step, error) {
	s, err := c.newAuthService(cfg, c.sessions.SingleSignOnInterceptor(), sessionInterceptor(c))
	if err != nil {
		return nil, err
	}
	return s.Next(ctx)
}

// CurrentSession loads the stored SSO session.
func (c *SDKClient) CurrentSession(ctx context.Context) (*Session, error) {
	token, err := c.sessions.sso.Token(ctx)
	if errors.Is(err, ErrNoValue) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{client: c, token: token}, nil
}

// Session returns the Result as a *Session, or nil.
func (s *Step) Session() *Session {
	session, _ := s.Result.(*Session)
	return session
}
