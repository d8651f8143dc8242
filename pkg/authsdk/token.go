package authsdk

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"time"
)

// Token is the common part of every credential: an opaque value.
type Token struct {
	Value string `json:"value"`
}

// SSOToken is the AM session token issued when a tree completes.
type SSOToken struct {
	Token

	// SuccessURL is the goto URL AM returned with the token, if any.
	SuccessURL string `json:"successUrl,omitempty"`

	// Realm the session belongs to.
	Realm string `json:"realm,omitempty"`
}

// NewSSOToken returns an SSOToken with the given value.
func NewSSOToken(value string) *SSOToken {
	return &SSOToken{Token: Token{Value: value}}
}

// Equal reports whether t and other carry the same session. A nil token is
// only equal to another nil token.
func (t *SSOToken) Equal(other *SSOToken) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Value == other.Value
}

// ============================================================================
// Scope
// ============================================================================

// Scope is a set of OAuth2 scope values.
type Scope map[string]bool

// ParseScope splits a space delimited scope string.
func ParseScope(s string) Scope {
	scope := make(Scope)
	for _, v := range strings.Fields(s) {
		scope[v] = true
	}
	return scope
}

// Has reports whether v is in the set.
func (s Scope) Has(v string) bool { return s[v] }

// Values returns the scope values sorted.
func (s Scope) Values() []string {
	out := make([]string, 0, len(s))
	for v, ok := range s {
		if ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// String returns the scope in its space delimited wire form.
func (s Scope) String() string { return strings.Join(s.Values(), " ") }

// MarshalJSON encodes the scope as a JSON array.
func (s Scope) MarshalJSON() ([]byte, error) { return json.Marshal(s.Values()) }

// UnmarshalJSON accepts either a JSON array or a space delimited string.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		var str string
		if err2 := json.Unmarshal(data, &str); err2 != nil {
			return err
		}
		list = strings.Fields(str)
	}
	out := make(Scope, len(list))
	for _, v := range list {
		out[v] = true
	}
	*s = out
	return nil
}

// ============================================================================
// AccessToken
// ============================================================================

// AccessToken is an OAuth2 bearer credential obtained by exchanging an
// SSOToken. It is owned by the TokenManager that stored it.
type AccessToken struct {
	Token

	// ExpiresIn is the lifetime in seconds as issued by the server.
	ExpiresIn int64

	// Expiration is always set; NewAccessToken derives it from ExpiresIn.
	Expiration time.Time

	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        Scope

	// SessionToken is the SSO session the token was minted from, nil for
	// tokens that outlive their session.
	SessionToken *SSOToken

	persisted bool
}

// NewAccessToken returns a copy of t with Expiration derived from
// ExpiresIn when it is not already set.
func NewAccessToken(t AccessToken) *AccessToken {
	return newAccessTokenAt(t, time.Now())
}

func newAccessTokenAt(t AccessToken, now time.Time) *AccessToken {
	if t.Expiration.IsZero() {
		t.Expiration = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.Scope == nil {
		t.Scope = make(Scope)
	}
	return &t
}

// IsExpired reports whether the token expires within threshold from now.
func (t *AccessToken) IsExpired(threshold time.Duration) bool {
	return t.IsExpiredAt(time.Now(), threshold)
}

// IsExpiredAt is IsExpired against a given clock reading.
func (t *AccessToken) IsExpiredAt(now time.Time, threshold time.Duration) bool {
	return t.Expiration.Before(now.Add(threshold))
}

// Persisted reports whether the token has been written to storage.
func (t *AccessToken) Persisted() bool { return t.persisted }

// Authorization returns the value for an Authorization header.
func (t *AccessToken) Authorization() string {
	typ := t.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + t.Value
}

// Equal compares every field that survives a JSON round trip.
func (t *AccessToken) Equal(o *AccessToken) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Value == o.Value &&
		t.ExpiresIn == o.ExpiresIn &&
		t.Expiration.UnixMilli() == o.Expiration.UnixMilli() &&
		t.RefreshToken == o.RefreshToken &&
		t.IDToken == o.IDToken &&
		t.TokenType == o.TokenType &&
		slices.Equal(t.Scope.Values(), o.Scope.Values()) &&
		t.SessionToken.Equal(o.SessionToken)
}

// accessTokenJSON is the storage form. Expiration is unix milliseconds and
// the session token is flattened to its value.
type accessTokenJSON struct {
	Value        string `json:"value"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	Scope        Scope  `json:"scope"`
	Expiration   *int64 `json:"expiration,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

func (t *AccessToken) MarshalJSON() ([]byte, error) {
	exp := t.Expiration.UnixMilli()
	out := accessTokenJSON{
		Value:        t.Value,
		ExpiresIn:    t.ExpiresIn,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
		Expiration:   &exp,
	}
	if out.Scope == nil {
		out.Scope = Scope{}
	}
	if t.SessionToken != nil {
		out.SessionToken = t.SessionToken.Value
	}
	return json.Marshal(out)
}

func (t *AccessToken) UnmarshalJSON(data []byte) error {
	var in accessTokenJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	decoded := AccessToken{
		Token:        Token{Value: in.Value},
		ExpiresIn:    in.ExpiresIn,
		RefreshToken: in.RefreshToken,
		IDToken:      in.IDToken,
		TokenType:    in.TokenType,
		Scope:        in.Scope,
	}
	if in.Expiration != nil {
		decoded.Expiration = time.UnixMilli(*in.Expiration)
	}
	if in.SessionToken != "" {
		decoded.SessionToken = NewSSOToken(in.SessionToken)
	}

	*t = *newAccessTokenAt(decoded, time.Now())
	return nil
}
