package authsdk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenExpiration(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := newAccessTokenAt(AccessToken{Token: Token{Value: "at"}, ExpiresIn: 60}, now)

	require.Equal(t, now.Add(time.Minute), token.Expiration)
	require.False(t, token.IsExpiredAt(now, 0))
	require.False(t, token.IsExpiredAt(now.Add(59*time.Second), 0))
	require.True(t, token.IsExpiredAt(now.Add(61*time.Second), 0))

	// A threshold moves expiry earlier.
	require.True(t, token.IsExpiredAt(now.Add(31*time.Second), 30*time.Second))
	require.False(t, token.IsExpiredAt(now.Add(29*time.Second), 30*time.Second))

	t.Run("explicit expiration wins", func(t *testing.T) {
		t.Parallel()
		exp := now.Add(time.Hour)
		token := newAccessTokenAt(AccessToken{ExpiresIn: 60, Expiration: exp}, now)
		require.Equal(t, exp, token.Expiration)
	})
}

func TestAccessTokenJSONRoundTrip(t *testing.T) {
	t.Parallel()

	original := NewAccessToken(AccessToken{
		Token:        Token{Value: "at-1"},
		ExpiresIn:    3600,
		RefreshToken: "rt-1",
		IDToken:      "id-1",
		TokenType:    "Bearer",
		Scope:        ParseScope("openid profile email"),
		SessionToken: NewSSOToken("sso-1"),
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded AccessToken
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, original.Equal(&decoded))
	require.Equal(t, original.Expiration.UnixMilli(), decoded.Expiration.UnixMilli())
	require.Equal(t, "sso-1", decoded.SessionToken.Value)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "sso-1", raw["sessionToken"])
	require.ElementsMatch(t, []any{"email", "openid", "profile"}, raw["scope"])
}

func TestAccessTokenDecodeWithoutExpiration(t *testing.T) {
	t.Parallel()

	before := time.Now()
	var token AccessToken
	require.NoError(t, json.Unmarshal([]byte(`{"value":"at","expiresIn":120,"scope":"openid profile"}`), &token))

	require.False(t, token.Expiration.Before(before.Add(120*time.Second)))
	require.True(t, token.Scope.Has("profile"))
	require.Nil(t, token.SessionToken)
}

func TestScope(t *testing.T) {
	t.Parallel()

	s := ParseScope("  profile openid\temail openid ")
	require.Equal(t, []string{"email", "openid", "profile"}, s.Values())
	require.Equal(t, "email openid profile", s.String())
	require.True(t, s.Has("openid"))
	require.False(t, s.Has("admin"))
	require.Empty(t, ParseScope("").Values())
}

func TestAccessTokenAuthorization(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Bearer abc", (&AccessToken{Token: Token{Value: "abc"}}).Authorization())
	require.Equal(t, "Bearer abc", (&AccessToken{Token: Token{Value: "abc"}, TokenType: "bearer"}).Authorization())
	require.Equal(t, "DPoP abc", (&AccessToken{Token: Token{Value: "abc"}, TokenType: "DPoP"}).Authorization())
}

func TestSSOTokenEqual(t *testing.T) {
	t.Parallel()

	a := &SSOToken{Token: Token{Value: "x"}, SuccessURL: "/a"}
	b := &SSOToken{Token: Token{Value: "x"}, SuccessURL: "/b"}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(NewSSOToken("y")))
	require.False(t, a.Equal(nil))

	var none *SSOToken
	require.True(t, none.Equal(nil))
}

func TestGeneratePKCE(t *testing.T) {
	t.Parallel()

	a, err := GeneratePKCE()
	require.NoError(t, err)
	b, err := GeneratePKCE()
	require.NoError(t, err)

	require.Equal(t, "S256", a.CodeChallengeMethod)
	require.Len(t, a.CodeVerifier, 86)
	require.NotEqual(t, a.CodeVerifier, b.CodeVerifier)
	require.NotEqual(t, a.CodeChallenge, a.CodeVerifier)
}
