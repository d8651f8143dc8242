package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
	"github.com/aussiebroadwan/treeauth/pkg/httpx"
)

// OAuth2Client turns SSO tokens into OAuth2 tokens against AM's realm
// endpoints and manages their lifecycle.
type OAuth2Client struct {
	config     Config
	httpClient *http.Client
	noRedirect *http.Client
	oauth      *oauth2.Config
}

// NewOAuth2Client returns a client for cfg's realm. cfg must already have
// defaults applied.
func NewOAuth2Client(cfg Config, client *http.Client) *OAuth2Client {
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &OAuth2Client{
		config:     cfg,
		httpClient: client,
		noRedirect: &noRedirect,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.authorizeURL(),
				TokenURL:  cfg.tokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// ExchangeToken obtains an authorization code with the SSO token as
// credential and exchanges it, with PKCE, for an access token. params are
// added to the authorize request.
func (o *OAuth2Client) ExchangeToken(ctx context.Context, sso *SSOToken, params map[string]string) (*AccessToken, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	code, err := o.authorize(ctx, sso, pkce, state, params)
	if err != nil {
		return nil, err
	}

	tok, err := o.oauth.Exchange(o.context(ctx, httpx.ActionExchangeToken), code,
		oauth2.VerifierOption(pkce.CodeVerifier))
	if err != nil {
		return nil, fromRetrieveError(err)
	}

	at := accessTokenFrom(tok)
	at.SessionToken = sso
	return at, nil
}

// authorize requests a code and returns it from the redirect Location.
func (o *OAuth2Client) authorize(
	ctx context.Context,
	sso *SSOToken,
	pkce *PKCE,
	state string,
	params map[string]string,
) (string, error) {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	}
	for k, v := range params {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	resp, err := doRequest(ctx, o.noRedirect, httpx.ActionAuthorize, http.MethodGet,
		o.oauth.AuthCodeURL(state, opts...), http.NoBody, map[string]string{
			headerAcceptAPIVersion: authenticateAPIVersion,
			o.config.CookieName:    sso.Value,
		})
	if err != nil {
		return "", err
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %w", ErrAuthorize, newAPIError(resp, body))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%w: redirect response missing Location header", ErrAuthorize)
	}
	redirect, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse redirect url: %w", ErrAuthorize, err)
	}

	// AM returns the code in the query, or in the fragment for some
	// response modes.
	query := redirect.Query()
	if query.Get("code") == "" && query.Get("error") == "" && redirect.Fragment != "" {
		if fq, err := url.ParseQuery(redirect.Fragment); err == nil {
			query = fq
		}
	}

	if errCode := query.Get("error"); errCode != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrAuthorize, errCode, query.Get("error_description"))
	}
	if query.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: redirect missing authorization code", ErrAuthorize)
	}
	return code, nil
}

// Refresh uses token's refresh token to obtain a new access token. The
// refresh token, id token and session token carry over when the server
// does not issue new ones.
func (o *OAuth2Client) Refresh(ctx context.Context, token *AccessToken) (*AccessToken, error) {
	if token.RefreshToken == "" {
		return nil, ErrAuthenticationRequired
	}

	src := o.oauth.TokenSource(o.context(ctx, httpx.ActionRefreshToken), &oauth2.Token{
		RefreshToken: token.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		return nil, fromRetrieveError(err)
	}

	refreshed := accessTokenFrom(tok)
	if refreshed.IDToken == "" {
		refreshed.IDToken = token.IDToken
	}
	if len(refreshed.Scope) == 0 {
		refreshed.Scope = token.Scope
	}
	refreshed.SessionToken = token.SessionToken
	return refreshed, nil
}

// Revoke revokes token on the server, preferring its refresh token so
// that every access token minted from it dies too.
func (o *OAuth2Client) Revoke(ctx context.Context, token *AccessToken) error {
	value := token.RefreshToken
	if value == "" {
		value = token.Value
	}

	form := url.Values{
		"client_id": {o.config.ClientID},
		"token":     {value},
	}
	resp, err := doRequest(ctx, o.httpClient, httpx.ActionRevokeToken, http.MethodPost,
		o.config.revokeURL(), formBody(form), map[string]string{
			headerAcceptAPIVersion: authenticateAPIVersion,
			"Content-Type":         "application/x-www-form-urlencoded",
		})
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// EndSession ends the OIDC session the id token belongs to.
func (o *OAuth2Client) EndSession(ctx context.Context, idToken string) error {
	u, err := url.Parse(o.config.endSessionURL())
	if err != nil {
		return fmt.Errorf("invalid end session url: %w", err)
	}
	q := u.Query()
	q.Set("id_token_hint", idToken)
	q.Set("client_id", o.config.ClientID)
	if o.config.SignOutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", o.config.SignOutRedirectURI)
	}
	u.RawQuery = q.Encode()

	resp, err := doRequest(ctx, o.noRedirect, httpx.ActionEndSession, http.MethodGet, u.String(), http.NoBody, nil)
	if err != nil {
		return err
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return newAPIError(resp, body)
	}
	return nil
}

// UserInfo fetches the OIDC userinfo document for token.
func (o *OAuth2Client) UserInfo(ctx context.Context, token *AccessToken) (*UserInfo, error) {
	resp, err := doRequest(ctx, o.httpClient, httpx.ActionUserInfo, http.MethodGet,
		o.config.userInfoURL(), http.NoBody, map[string]string{
			"Authorization": token.Authorization(),
			"Accept":        "application/json",
		})
	if err != nil {
		return nil, err
	}

	var info UserInfo
	if err := decodeJSON(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// context returns ctx carrying the client's HTTP client for x/oauth2 and
// tagged with action.
func (o *OAuth2Client) context(ctx context.Context, action httpx.Action) context.Context {
	ctx = httpx.WithAction(ctx, action)
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func accessTokenFrom(tok *oauth2.Token) *AccessToken {
	at := AccessToken{
		Token:        Token{Value: tok.AccessToken},
		ExpiresIn:    tok.ExpiresIn,
		Expiration:   tok.Expiry,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		at.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		at.Scope = ParseScope(scope)
	}
	if at.ExpiresIn == 0 && !at.Expiration.IsZero() {
		at.ExpiresIn = int64(time.Until(at.Expiration).Round(time.Second) / time.Second)
	}
	return NewAccessToken(at)
}

// fromRetrieveError maps token endpoint failures onto the package errors.
func fromRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("token request failed: %w", err)
	}
	if re.ErrorCode == oauthErrorInvalidGrant {
		return fmt.Errorf("%w: %s", ErrInvalidGrant, re.ErrorDescription)
	}

	apiErr := &APIError{Message: re.ErrorCode, Body: strings.TrimSpace(string(re.Body))}
	if re.ErrorDescription != "" {
		apiErr.Message = re.ErrorDescription
	}
	if re.Response != nil {
		apiErr.StatusCode = re.Response.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(re.Response.StatusCode)
		}
	}
	return apiErr
}
