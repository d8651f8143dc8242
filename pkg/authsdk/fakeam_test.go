package authsdk

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/treeauth/pkg/slogx"
)

const (
	testRealm       = "alpha"
	testClientID    = "sdk-client"
	testRedirectURI = "https://app.example.com/callback"
)

// fakeAM serves the AM endpoints the SDK talks to. The default tree asks
// for a username, then a password, then issues ssoToken.
type fakeAM struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	forms    map[string]url.Values
	settings amSettings
}

// amSettings are read by the handlers under fakeAM.mu; change them with
// fakeAM.update.
type amSettings struct {
	// tree overrides the authenticate endpoint.
	tree func(w http.ResponseWriter, r *http.Request, body []byte)

	// refresh overrides the refresh_token grant.
	refresh func(w http.ResponseWriter, form url.Values)

	// stateEcho rewrites the state returned by authorize.
	stateEcho func(state string) string

	ssoToken    string
	accessToken string
	idToken     string
	expiresIn   int
}

func newFakeAM(t *testing.T) *fakeAM {
	t.Helper()

	am := &fakeAM{
		t:     t,
		hits:  make(map[string]int),
		forms: make(map[string]url.Values),
		settings: amSettings{
			ssoToken:    "sso-1",
			accessToken: "at-1",
			expiresIn:   3600,
		},
	}

	base := "/am/json/realms/" + testRealm
	oauth := "/am/oauth2/realms/" + testRealm

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+base+"/authenticate", am.authenticate)
	mux.HandleFunc("POST "+base+"/sessions", am.logout)
	mux.HandleFunc("GET "+oauth+"/authorize", am.authorize)
	mux.HandleFunc("POST "+oauth+"/access_token", am.token)
	mux.HandleFunc("POST "+oauth+"/token/revoke", am.revoke)
	mux.HandleFunc("GET "+oauth+"/connect/endSession", am.endSession)
	mux.HandleFunc("GET "+oauth+"/userinfo", am.userInfo)

	am.srv = httptest.NewServer(mux)
	t.Cleanup(am.srv.Close)
	return am
}

func (am *fakeAM) config() Config {
	return Config{
		URL:         am.srv.URL + "/am",
		Realm:       testRealm,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		Scope:       "openid profile",
	}
}

func (am *fakeAM) client(opts ...Option) *SDKClient {
	am.t.Helper()
	c, err := NewSDKClient(am.config(), append([]Option{WithLogger(slogx.Discard())}, opts...)...)
	require.NoError(am.t, err)
	am.t.Cleanup(c.Close)
	return c
}

func (am *fakeAM) update(fn func(s *amSettings)) {
	am.mu.Lock()
	defer am.mu.Unlock()
	fn(&am.settings)
}

func (am *fakeAM) current() amSettings {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.settings
}

func (am *fakeAM) record(name string, form url.Values) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.hits[name]++
	if form != nil {
		am.forms[name] = form
	}
}

func (am *fakeAM) count(name string) int {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.hits[name]
}

func (am *fakeAM) form(name string) url.Values {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.forms[name]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (am *fakeAM) authenticate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	am.record("authenticate", r.URL.Query())
	assert.Equal(am.t, authenticateAPIVersion, r.Header.Get(headerAcceptAPIVersion))

	if tree := am.current().tree; tree != nil {
		tree(w, r, body)
		return
	}
	am.twoStepTree(w, r, body)
}

func nameCallbackJSON() map[string]any {
	return map[string]any{
		"type":   "NameCallback",
		"output": []map[string]any{{"name": "prompt", "value": "User Name"}},
		"input":  []map[string]any{{"name": "IDToken1", "value": ""}},
		"_id":    0,
	}
}

func passwordCallbackJSON() map[string]any {
	return map[string]any{
		"type":   "PasswordCallback",
		"output": []map[string]any{{"name": "prompt", "value": "Password"}},
		"input":  []map[string]any{{"name": "IDToken1", "value": ""}},
		"_id":    1,
	}
}

type submittedNode struct {
	AuthID    string `json:"authId"`
	Callbacks []struct {
		Type  string  `json:"type"`
		Input []Field `json:"input"`
	} `json:"callbacks"`
}

func (am *fakeAM) twoStepTree(w http.ResponseWriter, _ *http.Request, body []byte) {
	if len(body) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"authId":    "auth-1",
			"callbacks": []any{nameCallbackJSON()},
		})
		return
	}

	var node submittedNode
	if err := json.Unmarshal(body, &node); err != nil || len(node.Callbacks) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": "bad node"})
		return
	}
	answer := node.Callbacks[0].Input[0].Value

	switch node.AuthID {
	case "auth-1":
		if answer != "alice" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "reason": "Unauthorized", "message": "Login failure"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authId":    "auth-2",
			"callbacks": []any{passwordCallbackJSON()},
		})
	case "auth-2":
		if answer != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "reason": "Unauthorized", "message": "Login failure"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tokenId":    am.current().ssoToken,
			"successUrl": "/am/console",
			"realm":      "/" + testRealm,
		})
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"code": 401, "reason": "Unauthorized", "message": "Session has timed out",
			"detail": map[string]any{"errorCode": errorCodeTimeout},
		})
	}
}

func (am *fakeAM) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	am.record("authorize", q)
	cfg := am.current()

	if r.Header.Get(DefaultCookieName) != cfg.ssoToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "message": "bad sso token"})
		return
	}

	state := q.Get("state")
	if cfg.stateEcho != nil {
		state = cfg.stateEcho(state)
	}
	redirect := q.Get("redirect_uri") + "?" + url.Values{"code": {"code-1"}, "state": {state}}.Encode()
	w.Header().Set("Location", redirect)
	w.WriteHeader(http.StatusFound)
}

func (am *fakeAM) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := r.PostForm
	am.record(form.Get("grant_type"), form)
	cfg := am.current()

	switch form.Get("grant_type") {
	case "authorization_code":
		if form.Get("code") != "code-1" || form.Get("code_verifier") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		writeJSON(w, http.StatusOK, cfg.tokenResponse(cfg.accessToken, "rt-1"))
	case "refresh_token":
		if cfg.refresh != nil {
			cfg.refresh(w, form)
			return
		}
		writeJSON(w, http.StatusOK, cfg.tokenResponse("at-refreshed", "rt-2"))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (s amSettings) tokenResponse(access, refresh string) map[string]any {
	resp := map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    s.expiresIn,
		"scope":         "openid profile",
	}
	if s.idToken != "" {
		resp["id_token"] = s.idToken
	}
	return resp
}

func (am *fakeAM) revoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	am.record("revoke", r.PostForm)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (am *fakeAM) endSession(w http.ResponseWriter, r *http.Request) {
	am.record("endSession", r.URL.Query())
	w.WriteHeader(http.StatusNoContent)
}

func (am *fakeAM) logout(w http.ResponseWriter, r *http.Request) {
	form := r.URL.Query()
	form.Set(DefaultCookieName, r.Header.Get(DefaultCookieName))
	form.Set(headerAcceptAPIVersion, r.Header.Get(headerAcceptAPIVersion))
	am.record("logout", form)
	writeJSON(w, http.StatusOK, map[string]any{"result": "Successfully logged out"})
}

func (am *fakeAM) userInfo(w http.ResponseWriter, r *http.Request) {
	am.record("userinfo", nil)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                "alice",
		"name":               "Alice Example",
		"email":              "alice@example.com",
		"preferred_username": "alice",
		"department":         "engineering",
	})
}

// answer sets the first callback of node and submits it.
func answer(t *testing.T, node *Node, value string) (*Step, error) {
	t.Helper()
	require.NotNil(t, node)
	require.NoError(t, node.Callbacks()[0].SetValue(value))
	return node.Next(t.Context())
}
