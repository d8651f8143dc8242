package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
)

// singleSignOnInterceptor persists the tree's SSO token. When the stored
// access token was minted from another session it is revoked so the next
// AccessToken call exchanges the new SSO token.
func singleSignOnInterceptor(sso SingleSignOnManager, tokens TokenManager) Interceptor {
	return chain.Typed(func(ctx context.Context, next Chain, token *SSOToken) (Outcome, error) {
		if previous, err := sso.Token(ctx); err == nil && !previous.Equal(token) && tokens.HasToken(ctx) {
			if err := tokens.Revoke(ctx); err != nil && !errors.Is(err, ErrTokenNotFound) {
				slog.DebugContext(ctx, "failed to revoke access token of previous session", "error", err)
			}
		}

		if err := sso.Persist(ctx, token); err != nil {
			return nil, err
		}
		return next.Proceed(ctx, token)
	})
}

// retrieveSSOTokenInterceptor seeds an empty chain with the stored SSO
// token, if any.
func retrieveSSOTokenInterceptor(sso SingleSignOnManager) Interceptor {
	return InterceptorFunc(KindNone, func(ctx context.Context, next Chain, _ Outcome) (Outcome, error) {
		token, err := sso.Token(ctx)
		switch {
		case errors.Is(err, ErrNoValue):
			return next.Proceed(ctx, nil)
		case err != nil:
			return nil, err
		}
		return next.Proceed(ctx, token)
	})
}

// retrieveAccessTokenInterceptor finishes the chain with the stored access
// token when it belongs to the current SSO session. Otherwise the SSO token
// continues down the chain to be exchanged.
func retrieveAccessTokenInterceptor(sso SingleSignOnManager, tokens TokenManager) Interceptor {
	return chain.Func[Outcome]{
		AcceptsFn: func(p Outcome) bool {
			k := KindOf(p)
			return k == KindNone || k == KindSSOToken
		},
		InterceptFn: func(ctx context.Context, next Chain, payload Outcome) (Outcome, error) {
			ssoToken, _ := payload.(*SSOToken)

			if !tokens.HasToken(ctx) {
				if ssoToken == nil {
					return nil, fmt.Errorf("%w: no session", ErrAuthenticationRequired)
				}
				return next.Proceed(ctx, ssoToken)
			}

			at, err := tokens.AccessToken(ctx)
			if err != nil {
				if ssoToken != nil && (errors.Is(err, ErrAuthenticationRequired) || errors.Is(err, ErrInvalidGrant)) {
					return next.Proceed(ctx, ssoToken)
				}
				return nil, err
			}

			if ssoToken != nil && at.SessionToken != nil && !at.SessionToken.Equal(ssoToken) {
				if err := tokens.Revoke(ctx); err != nil && !errors.Is(err, ErrTokenNotFound) {
					slog.DebugContext(ctx, "failed to revoke access token of previous session", "error", err)
				}
				return next.Proceed(ctx, ssoToken)
			}
			return at, nil
		},
	}
}

// oauthInterceptor exchanges an SSO token for an access token.
func oauthInterceptor(tokens TokenManager) Interceptor {
	return chain.Typed(func(ctx context.Context, next Chain, token *SSOToken) (Outcome, error) {
		at, err := tokens.Exchange(ctx, token, nil)
		if err != nil {
			return nil, err
		}
		return next.Proceed(ctx, at)
	})
}

// accessTokenStoreInterceptor persists the access token and passes it on.
func accessTokenStoreInterceptor(tokens TokenManager) Interceptor {
	return chain.Typed(func(ctx context.Context, next Chain, token *AccessToken) (Outcome, error) {
		if err := tokens.Persist(ctx, token); err != nil {
			return nil, err
		}
		return next.Proceed(ctx, token)
	})
}

// sessionInterceptor turns an SSO token into a Session.
func sessionInterceptor(c *SDKClient) Interceptor {
	return chain.Typed(func(ctx context.Context, next Chain, token *SSOToken) (Outcome, error) {
		return next.Proceed(ctx, &Session{client: c, token: token})
	})
}

// userInterceptor turns an access token into a User.
func userInterceptor(c *SDKClient) Interceptor {
	return chain.Typed(func(ctx context.Context, next Chain, token *AccessToken) (Outcome, error) {
		return next.Proceed(ctx, &User{client: c, token: token})
	})
}
