package authsdk

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/treeauth/pkg/jwtx"
	"github.com/aussiebroadwan/treeauth/pkg/slogx"
)

type verifierFunc func(ctx context.Context, token *AccessToken) error

func (f verifierFunc) VerifyAccessToken(ctx context.Context, token *AccessToken) error {
	return f(ctx, token)
}

func newTestTokenManager(t *testing.T, am *fakeAM, repo DataRepository, verifier AccessTokenVerifier, ttl time.Duration) *DefaultTokenManager {
	t.Helper()
	cfg := am.config().withDefaults()
	tm, err := NewDefaultTokenManager(TokenManagerConfig{
		OAuth2:     NewOAuth2Client(cfg, http.DefaultClient),
		Repository: repo,
		Verifier:   verifier,
		CacheTTL:   ttl,
		Logger:     slogx.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(tm.Close)
	return tm
}

func storedToken(t *testing.T, repo DataRepository) *AccessToken {
	t.Helper()
	data, err := repo.Get(t.Context(), accessTokenKey)
	if errors.Is(err, ErrNoValue) {
		return nil
	}
	require.NoError(t, err)
	var token AccessToken
	require.NoError(t, json.Unmarshal(data, &token))
	return &token
}

func TestTokenManagerRequiresRepository(t *testing.T) {
	t.Parallel()

	_, err := NewDefaultTokenManager(TokenManagerConfig{})
	require.Error(t, err)
}

func TestTokenManagerPersistAndLoad(t *testing.T) {
	t.Parallel()

	am := newFakeAM(t)
	repo := NewMemoryRepository()
	tm := newTestTokenManager(t, am, repo, nil, time.Minute)
	ctx := t.Context()

	require.False(t, tm.HasToken(ctx))
	_, err := tm.AccessToken(ctx)
	require.ErrorIs(t, err, ErrAuthenticationRequired)

	token := NewAccessToken(AccessToken{Token: Token{Value: "at-1"}, ExpiresIn: 3600, RefreshToken: "rt-1"})
	require.NoError(t, tm.Persist(ctx, token))
	require.True(t, token.Persisted())
	require.True(t, tm.HasToken(ctx))

	got, err := tm.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "at-1", got.Value)
	require.True(t, storedToken(t, repo).Equal(token))

	t.Run("storage is read when nothing is cached", func(t *testing.T) {
		t.Parallel()
		fresh := newTestTokenManager(t, am, repo, nil, 0)
		got, err := fresh.AccessToken(t.Context())
		require.NoError(t, err)
		require.True(t, got.Persisted())
		require.Equal(t, "at-1", got.Value)
	})
}

func TestTokenManagerDiscardsUnreadableToken(t *testing.T) {
	t.Parallel()

	am := newFakeAM(t)
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(t.Context(), accessTokenKey, []byte("not json")))

	tm := newTestTokenManager(t, am, repo, nil, 0)
	_, err := tm.AccessToken(t.Context())
	require.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = repo.Get(t.Context(), accessTokenKey)
	require.ErrorIs(t, err, ErrNoValue)
}

func TestTokenManagerRefresh(t *testing.T) {
	t.Parallel()

	t.Run("expired token is refreshed", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, nil, 0)

		sso := NewSSOToken("sso-1")
		expired := NewAccessToken(AccessToken{
			Token:        Token{Value: "at-old"},
			Expiration:   time.Now().Add(-time.Minute),
			RefreshToken: "rt-1",
			IDToken:      "id-1",
			SessionToken: sso,
		})
		require.NoError(t, tm.Persist(t.Context(), expired))

		got, err := tm.AccessToken(t.Context())
		require.NoError(t, err)
		require.Equal(t, "at-refreshed", got.Value)
		require.Equal(t, "rt-2", got.RefreshToken)
		require.Equal(t, "id-1", got.IDToken)
		require.True(t, got.SessionToken.Equal(sso))
		require.Equal(t, "rt-1", am.form("refresh_token").Get("refresh_token"))
		require.Equal(t, "at-refreshed", storedToken(t, repo).Value)
	})

	t.Run("no refresh token clears", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, nil, 0)

		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token:      Token{Value: "at-old"},
			Expiration: time.Now().Add(-time.Minute),
		})))

		_, err := tm.AccessToken(t.Context())
		require.ErrorIs(t, err, ErrAuthenticationRequired)
		require.Nil(t, storedToken(t, repo))
		require.Zero(t, am.count("refresh_token"))
	})

	t.Run("invalid grant clears", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		am.update(func(s *amSettings) {
			s.refresh = func(w http.ResponseWriter, _ url.Values) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": "invalid_grant", "error_description": "grant is invalid",
				})
			}
		})
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, nil, time.Minute)

		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token: Token{Value: "at-1"}, ExpiresIn: 3600, RefreshToken: "rt-1",
		})))

		_, err := tm.Refresh(t.Context())
		require.ErrorIs(t, err, ErrInvalidGrant)
		require.Nil(t, storedToken(t, repo))
		require.False(t, tm.HasToken(t.Context()))
	})

	t.Run("other token errors keep the token", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		am.update(func(s *amSettings) {
			s.refresh = func(w http.ResponseWriter, _ url.Values) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"})
			}
		})
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, nil, 0)

		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token: Token{Value: "at-1"}, ExpiresIn: 3600, RefreshToken: "rt-1",
		})))

		_, err := tm.Refresh(t.Context())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		require.NotNil(t, storedToken(t, repo))
	})
}

func TestTokenManagerVerifierRejection(t *testing.T) {
	t.Parallel()

	am := newFakeAM(t)
	repo := NewMemoryRepository()
	rejected := errors.New("signature invalid")
	tm := newTestTokenManager(t, am, repo, verifierFunc(func(context.Context, *AccessToken) error {
		return rejected
	}), 0)

	require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
		Token: Token{Value: "at-1"}, ExpiresIn: 3600, RefreshToken: "rt-1", SessionToken: NewSSOToken("sso-1"),
	})))

	_, err := tm.AccessToken(t.Context())
	require.ErrorIs(t, err, ErrAuthenticationRequired)
	require.Nil(t, storedToken(t, repo))
	require.Equal(t, 1, am.count("revoke"))
	require.Equal(t, "rt-1", am.form("revoke").Get("token"))
}

func signedIDToken(t *testing.T, key ed25519.PrivateKey, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	tok.Header["kid"] = "realm-key"
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestTokenManagerIDTokenVerifier(t *testing.T) {
	t.Parallel()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(jwtx.NewEd25519JWK("realm-key", pub)))
	verifier := NewIDTokenVerifier(jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Audience: []string{testClientID},
	}))

	t.Run("expired id token still refreshes", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, verifier, 0)

		expiredAt := time.Now().Add(-5 * time.Minute)
		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token:        Token{Value: "at-1"},
			Expiration:   expiredAt,
			RefreshToken: "rt-1",
			IDToken:      signedIDToken(t, priv, expiredAt),
		})))

		got, err := tm.AccessToken(t.Context())
		require.NoError(t, err)
		require.Equal(t, "at-refreshed", got.Value)
		require.Equal(t, 1, am.count("refresh_token"))
		require.Zero(t, am.count("revoke"))
		require.Equal(t, "at-refreshed", storedToken(t, repo).Value)
	})

	t.Run("foreign signature is revoked", func(t *testing.T) {
		t.Parallel()
		_, other, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		am := newFakeAM(t)
		repo := NewMemoryRepository()
		tm := newTestTokenManager(t, am, repo, verifier, 0)

		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token:        Token{Value: "at-1"},
			ExpiresIn:    3600,
			RefreshToken: "rt-1",
			IDToken:      signedIDToken(t, other, time.Now().Add(time.Hour)),
		})))

		_, err = tm.AccessToken(t.Context())
		require.ErrorIs(t, err, ErrAuthenticationRequired)
		require.Zero(t, am.count("refresh_token"))
		require.Equal(t, 1, am.count("revoke"))
		require.Nil(t, storedToken(t, repo))
	})
}

func TestTokenManagerRevoke(t *testing.T) {
	t.Parallel()

	t.Run("nothing stored", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		tm := newTestTokenManager(t, am, NewMemoryRepository(), nil, 0)
		require.ErrorIs(t, tm.Revoke(t.Context()), ErrTokenNotFound)
		require.Zero(t, am.count("revoke"))
	})

	t.Run("token with a session only revokes", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		tm := newTestTokenManager(t, am, NewMemoryRepository(), nil, 0)
		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token: Token{Value: "at-1"}, ExpiresIn: 3600, IDToken: "id-1", SessionToken: NewSSOToken("sso-1"),
		})))

		require.NoError(t, tm.Revoke(t.Context()))
		require.Equal(t, "at-1", am.form("revoke").Get("token"))
		require.Equal(t, testClientID, am.form("revoke").Get("client_id"))
		require.Zero(t, am.count("endSession"))
	})

	t.Run("token without a session ends the oidc session", func(t *testing.T) {
		t.Parallel()
		am := newFakeAM(t)
		tm := newTestTokenManager(t, am, NewMemoryRepository(), nil, 0)
		require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{
			Token: Token{Value: "at-1"}, ExpiresIn: 3600, RefreshToken: "rt-1", IDToken: "id-1",
		})))

		require.NoError(t, tm.Revoke(t.Context()))
		require.Equal(t, 1, am.count("revoke"))
		require.Equal(t, 1, am.count("endSession"))
		require.Equal(t, "id-1", am.form("endSession").Get("id_token_hint"))
		require.False(t, tm.HasToken(t.Context()))
	})
}

func TestTokenManagerCacheExpires(t *testing.T) {
	t.Parallel()

	am := newFakeAM(t)
	repo := NewMemoryRepository()
	tm := newTestTokenManager(t, am, repo, nil, 50*time.Millisecond)

	require.NoError(t, tm.Persist(t.Context(), NewAccessToken(AccessToken{Token: Token{Value: "at-1"}, ExpiresIn: 3600})))

	// Storage changes behind the cache are only seen once it expires.
	require.NoError(t, repo.Delete(t.Context(), accessTokenKey))
	require.True(t, tm.HasToken(t.Context()))

	require.Eventually(t, func() bool {
		return !tm.HasToken(t.Context())
	}, 2*time.Second, 20*time.Millisecond)
}
