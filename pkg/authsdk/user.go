package authsdk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/treeauth/pkg/jwtx"
)

// User is the identity behind the current session, seen through its
// OAuth2 access token.
type User struct {
	client *SDKClient
	token  *AccessToken
}

func (*User) Kind() Kind { return KindUser }

// AccessToken returns a usable access token, refreshing or re-exchanging
// it as needed.
func (u *User) AccessToken(ctx context.Context) (*AccessToken, error) {
	token, err := u.client.sessions.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	u.token = token
	return token, nil
}

// RevokeAccessToken revokes the access token and keeps the SSO session.
func (u *User) RevokeAccessToken(ctx context.Context) error {
	return u.client.sessions.RevokeAccessToken(ctx)
}

// Logout revokes the access token and the SSO session.
func (u *User) Logout(ctx context.Context) error {
	return u.client.sessions.Close(ctx)
}

// UserInfo fetches the OIDC userinfo document.
func (u *User) UserInfo(ctx context.Context) (*UserInfo, error) {
	token, err := u.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return u.client.oauth.UserInfo(ctx, token)
}

// Claims decodes the id_token of the last known access token without
// verifying it. Use WithJWKSVerification to have tokens verified when they
// are loaded.
func (u *User) Claims(ctx context.Context) (*jwtx.Claims, error) {
	token := u.token
	if token == nil {
		var err error
		if token, err = u.AccessToken(ctx); err != nil {
			return nil, err
		}
	}
	if token.IDToken == "" {
		return nil, fmt.Errorf("%w: no id token", ErrTokenNotFound)
	}
	return jwtx.ParseUnverified(token.IDToken)
}

// Login walks the configured login tree. When it completes the step's
// Result is a *User.
func (c *SDKClient) Login(ctx context.Context, interceptors ...Interceptor) (*Step, error) {
	return c.userTree(ctx, c.Config.AuthServiceName, interceptors)
}

// Register walks the configured registration tree. When it completes the
// step's Result is a *User.
func (c *SDKClient) Register(ctx context.Context, interceptors ...Interceptor) (*Step, error) {
	return c.userTree(ctx, c.Config.RegistrationServiceName, interceptors)
}

func (c *SDKClient) userTree(ctx context.Context, tree string, interceptors []Interceptor) (*Step, error) {
	if c.sessions.HasSession(ctx) {
		return nil, ErrAlreadyAuthenticated
	}

	s, err := c.newAuthService(AuthServiceConfig{Name: tree, Interceptors: interceptors}, c.userInterceptors()...)
	if err != nil {
		return nil, err
	}
	return s.Next(ctx)
}

// userInterceptors turn a tree's SSO token into a persisted User.
func (c *SDKClient) userInterceptors() []Interceptor {
	return []Interceptor{
		c.sessions.SingleSignOnInterceptor(),
		c.sessions.OAuthInterceptor(),
		c.sessions.AccessTokenStoreInterceptor(),
		userInterceptor(c),
	}
}

// CurrentUser returns the user of the stored session without contacting
// the server.
func (c *SDKClient) CurrentUser(ctx context.Context) (*User, error) {
	if !c.sessions.HasSession(ctx) {
		return nil, ErrSessionNotFound
	}
	return &User{client: c}, nil
}

// User returns the Result as a *User, or nil.
func (s *Step) User() *User {
	user, _ := s.Result.(*User)
	return user
}

// UserInfo is the OIDC userinfo document. Claims holds every member,
// including those without a field.
type UserInfo struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	Locale            string `json:"locale,omitempty"`
	ZoneInfo          string `json:"zoneinfo,omitempty"`
	UpdatedAt         int64  `json:"updated_at,omitempty"`

	Claims map[string]any `json:"-"`
}

func (u *UserInfo) UnmarshalJSON(data []byte) error {
	type plain UserInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &p.Claims); err != nil {
		return err
	}
	*u = UserInfo(p)
	return nil
}
