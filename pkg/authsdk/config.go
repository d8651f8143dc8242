package authsdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied by NewSDKClient to zero Config fields.
const (
	DefaultRealm                   = "root"
	DefaultCookieName              = "iPlanetDirectoryPro"
	DefaultTimeout                 = 30 * time.Second
	DefaultThreshold               = 30 * time.Second
	DefaultAuthServiceName         = "Login"
	DefaultRegistrationServiceName = "Registration"
)

// Config describes the AM deployment and the OAuth2 client the SDK acts as.
type Config struct {
	// URL is the AM base URL, e.g. https://openam.example.com/openam.
	URL string `validate:"required,http_url"`

	// Realm defaults to "root".
	Realm string

	// CookieName is the AM session cookie carrying the SSO token.
	CookieName string

	// Timeout applies to each HTTP request.
	Timeout time.Duration `validate:"gte=0"`

	// Endpoint overrides. Relative values are appended to URL, absolute
	// URLs are used as is. Empty means the standard AM path for Realm.
	AuthenticateEndpoint string
	AuthorizeEndpoint    string
	TokenEndpoint        string
	RevokeEndpoint       string
	UserInfoEndpoint     string
	SessionEndpoint      string
	EndSessionEndpoint   string
	JWKSEndpoint         string

	ClientID    string `validate:"required"`
	RedirectURI string `validate:"required,uri"`
	Scope       string `validate:"required"`

	// SignOutRedirectURI is sent as post_logout_redirect_uri on end session.
	SignOutRedirectURI string `validate:"omitempty,uri"`

	// Threshold refreshes access tokens this long before they expire.
	Threshold time.Duration `validate:"gte=0"`

	// CacheTTL keeps access tokens in memory for this long after they are
	// read from storage. Zero disables the cache.
	CacheTTL time.Duration `validate:"gte=0"`

	// AuthServiceName is the tree Login walks.
	AuthServiceName string

	// RegistrationServiceName is the tree Register walks.
	RegistrationServiceName string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.AuthServiceName == "" {
		c.AuthServiceName = DefaultAuthServiceName
	}
	if c.RegistrationServiceName == "" {
		c.RegistrationServiceName = DefaultRegistrationServiceName
	}
	return c
}

// endpoint resolves an override, or the default path for the realm.
func (c Config) endpoint(override, format string) string {
	switch {
	case strings.HasPrefix(override, "http://"), strings.HasPrefix(override, "https://"):
		return override
	case override != "":
		return c.URL + "/" + strings.TrimPrefix(override, "/")
	default:
		return c.URL + fmt.Sprintf(format, c.Realm)
	}
}

func (c Config) authenticateURL() string {
	return c.endpoint(c.AuthenticateEndpoint, "/json/realms/%s/authenticate")
}

func (c Config) authorizeURL() string {
	return c.endpoint(c.AuthorizeEndpoint, "/oauth2/realms/%s/authorize")
}

func (c Config) tokenURL() string {
	return c.endpoint(c.TokenEndpoint, "/oauth2/realms/%s/access_token")
}

func (c Config) revokeURL() string {
	return c.endpoint(c.RevokeEndpoint, "/oauth2/realms/%s/token/revoke")
}

func (c Config) userInfoURL() string {
	return c.endpoint(c.UserInfoEndpoint, "/oauth2/realms/%s/userinfo")
}

func (c Config) sessionURL() string {
	return c.endpoint(c.SessionEndpoint, "/json/realms/%s/sessions")
}

func (c Config) endSessionURL() string {
	return c.endpoint(c.EndSessionEndpoint, "/oauth2/realms/%s/connect/endSession")
}

// JWKSURL returns the realm's signing key set location.
func (c Config) JWKSURL() string {
	return c.endpoint(c.JWKSEndpoint, "/oauth2/realms/%s/connect/jwk_uri")
}
