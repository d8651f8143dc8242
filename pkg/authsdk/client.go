package authsdk

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aussiebroadwan/treeauth/pkg/httpx"
)

// SDKClient drives AM trees and manages the resulting session and tokens.
// It is safe for concurrent use; each tree is a separate AuthService.
type SDKClient struct {
	Config     Config
	HTTPClient *http.Client
	Logger     *slog.Logger

	registry  *Registry
	callbacks *CallbackRegistry
	oauth     *OAuth2Client
	sessions  *SessionManager

	// ownedTokens is the token manager NewSDKClient built, closed by Close.
	ownedTokens *DefaultTokenManager
	closeOnce   sync.Once
}

// Option customises an SDKClient.
type Option func(*options)

type options struct {
	httpClient   *http.Client
	repository   DataRepository
	registry     *Registry
	callbacks    *CallbackRegistry
	logger       *slog.Logger
	verifier     AccessTokenVerifier
	jwks         bool
	jwksIssuer   string
	tokenManager TokenManager
	ssoManager   SingleSignOnManager
	interceptors []httpx.RequestInterceptor
	rateLimit    httpx.RateLimitConfig
}

// WithHTTPClient sets the base client. Its Transport is wrapped, the
// client itself is not modified.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithRepository stores tokens in r instead of process memory.
func WithRepository(r DataRepository) Option { return func(o *options) { o.repository = r } }

// WithRegistry shares or resizes the in-flight tree registry.
func WithRegistry(r *Registry) Option { return func(o *options) { o.registry = r } }

// WithCallbackRegistry sets the callback kinds nodes may contain.
func WithCallbackRegistry(r *CallbackRegistry) Option { return func(o *options) { o.callbacks = r } }

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithVerifier rejects stored access tokens the verifier does not accept.
func WithVerifier(v AccessTokenVerifier) Option { return func(o *options) { o.verifier = v } }

// WithJWKSVerification verifies stored id_tokens against the realm's JWKS
// endpoint. An empty issuer skips the iss check. WithVerifier takes
// precedence.
func WithJWKSVerification(issuer string) Option {
	return func(o *options) {
		o.jwks = true
		o.jwksIssuer = issuer
	}
}

// WithTokenManager replaces the default access token manager.
func WithTokenManager(m TokenManager) Option { return func(o *options) { o.tokenManager = m } }

// WithSingleSignOnManager replaces the default SSO token manager.
func WithSingleSignOnManager(m SingleSignOnManager) Option {
	return func(o *options) { o.ssoManager = m }
}

// WithRequestInterceptor customises outbound requests per action.
func WithRequestInterceptor(i ...httpx.RequestInterceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, i...) }
}

// WithRateLimit throttles outbound requests per host.
func WithRateLimit(cfg httpx.RateLimitConfig) Option { return func(o *options) { o.rateLimit = cfg } }

// NewSDKClient validates cfg and wires the default collaborators: an
// in-memory repository, an LRU registry of DefaultRegistrySize trees and
// the default token and SSO managers.
func NewSDKClient(cfg Config, opts ...Option) (*SDKClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = mustNewRegistry(DefaultRegistrySize)
	}
	if o.callbacks == nil {
		o.callbacks = NewCallbackRegistry()
	}
	if o.repository == nil {
		o.repository = NewMemoryRepository()
	}

	c := &SDKClient{
		Config:     cfg,
		HTTPClient: buildHTTPClient(cfg, o),
		Logger:     o.logger,
		registry:   o.registry,
		callbacks:  o.callbacks,
	}
	c.oauth = NewOAuth2Client(cfg, c.HTTPClient)

	if o.verifier == nil && o.jwks {
		o.verifier = newJWKSVerifier(cfg, c.HTTPClient, o.jwksIssuer)
	}

	tm := o.tokenManager
	if tm == nil {
		dtm, err := NewDefaultTokenManager(TokenManagerConfig{
			OAuth2:     c.oauth,
			Repository: o.repository,
			Verifier:   o.verifier,
			Threshold:  cfg.Threshold,
			CacheTTL:   cfg.CacheTTL,
			Logger:     o.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create token manager: %w", err)
		}
		tm = dtm
		c.ownedTokens = dtm
	}

	sso := o.ssoManager
	if sso == nil {
		sso = NewDefaultSingleSignOnManager(cfg, c.HTTPClient, o.repository, o.logger)
	}

	c.sessions = NewSessionManager(tm, sso)
	return c, nil
}

func buildHTTPClient(cfg Config, o options) *http.Client {
	hc := &http.Client{Timeout: cfg.Timeout}
	if o.httpClient != nil {
		copied := *o.httpClient
		hc = &copied
		if hc.Timeout == 0 {
			hc.Timeout = cfg.Timeout
		}
	}

	hc.Transport = httpx.Chain(hc.Transport,
		httpx.RequestID(),
		httpx.Logging(o.logger),
		httpx.Intercept(o.interceptors...),
		httpx.RateLimit(o.rateLimit, httpx.HostKeyExtractor),
	)
	return hc
}

// Close releases resources held by collaborators the client created
// itself. Managers supplied through options are left to the caller. It is
// safe to call more than once.
func (c *SDKClient) Close() {
	c.closeOnce.Do(func() {
		if c.ownedTokens != nil {
			c.ownedTokens.Close()
		}
	})
}

// OAuth2 returns the client's OAuth2 endpoint client.
func (c *SDKClient) OAuth2() *OAuth2Client { return c.oauth }

// Sessions returns the client's session manager.
func (c *SDKClient) Sessions() *SessionManager { return c.sessions }

// Registry returns the in-flight tree registry.
func (c *SDKClient) Registry() *Registry { return c.registry }

// Callbacks returns the callback kinds nodes may contain.
func (c *SDKClient) Callbacks() *CallbackRegistry { return c.callbacks }
