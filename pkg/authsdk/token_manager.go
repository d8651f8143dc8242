package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
)

const accessTokenKey = "access_token"

// TokenManagerConfig configures a DefaultTokenManager.
type TokenManagerConfig struct {
	OAuth2     *OAuth2Client
	Repository DataRepository

	// Verifier, when set, must accept a stored token before it is handed
	// out. Rejected tokens are revoked.
	Verifier AccessTokenVerifier

	// Threshold refreshes tokens this long before they expire.
	Threshold time.Duration

	// CacheTTL keeps the token in memory after it is read or stored. Zero
	// reads storage on every call.
	CacheTTL time.Duration

	Logger *slog.Logger
}

// DefaultTokenManager keeps the access token in a DataRepository, fronted
// by a short lived in-memory cache.
type DefaultTokenManager struct {
	oauth     *OAuth2Client
	repo      DataRepository
	verifier  AccessTokenVerifier
	threshold time.Duration
	cacheTTL  time.Duration
	cache     *ristretto.Cache[string, *AccessToken]
	logger    *slog.Logger

	// mu serialises reads that may refresh, so a single refresh token is
	// never spent twice.
	mu sync.Mutex
}

// NewDefaultTokenManager returns a manager for cfg.
func NewDefaultTokenManager(cfg TokenManagerConfig) (*DefaultTokenManager, error) {
	if cfg.Repository == nil {
		return nil, errors.New("token manager requires a repository")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *AccessToken]{
		NumCounters:        100,
		MaxCost:            10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cache: %w", err)
	}

	return &DefaultTokenManager{
		oauth:     cfg.OAuth2,
		repo:      cfg.Repository,
		verifier:  cfg.Verifier,
		threshold: cfg.Threshold,
		cacheTTL:  cfg.CacheTTL,
		cache:     cache,
		logger:    cfg.Logger,
	}, nil
}

func (m *DefaultTokenManager) Exchange(ctx context.Context, sso *SSOToken, params map[string]string) (*AccessToken, error) {
	return m.oauth.ExchangeToken(ctx, sso, params)
}

func (m *DefaultTokenManager) Persist(ctx context.Context, token *AccessToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode access token: %w", err)
	}
	if err := m.repo.Save(ctx, accessTokenKey, data); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	token.persisted = true
	m.cacheToken(token)
	return nil
}

func (m *DefaultTokenManager) AccessToken(ctx context.Context) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: no access token", ErrAuthenticationRequired)
	}

	if m.verifier != nil {
		if err := m.verifier.VerifyAccessToken(ctx, token); err != nil {
			m.logger.InfoContext(ctx, "stored access token rejected",
				"fingerprint", cryptox.FingerprintToken(token.Value),
				"error", err,
			)
			if rerr := m.revoke(ctx, token); rerr != nil {
				m.logger.WarnContext(ctx, "failed to revoke rejected access token", "error", rerr)
			}
			return nil, fmt.Errorf("%w: access token is not valid", ErrAuthenticationRequired)
		}
	}

	if token.IsExpired(m.threshold) {
		m.logger.DebugContext(ctx, "access token expired, refreshing",
			"fingerprint", cryptox.FingerprintToken(token.Value))
		return m.refresh(ctx, token)
	}
	return token, nil
}

func (m *DefaultTokenManager) Refresh(ctx context.Context) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: no access token", ErrAuthenticationRequired)
	}
	return m.refresh(ctx, token)
}

func (m *DefaultTokenManager) refresh(ctx context.Context, token *AccessToken) (*AccessToken, error) {
	if token.RefreshToken == "" {
		if err := m.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no refresh token", ErrAuthenticationRequired)
	}

	refreshed, err := m.oauth.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			if cerr := m.Clear(ctx); cerr != nil {
				return nil, errors.Join(err, cerr)
			}
		}
		return nil, err
	}

	if err := m.Persist(ctx, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Revoke clears the token locally whatever the server says, then revokes
// it. Tokens that outlived their SSO session also end the OIDC session.
func (m *DefaultTokenManager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.load(ctx)
	if err != nil {
		return err
	}
	return m.revoke(ctx, token)
}

func (m *DefaultTokenManager) revoke(ctx context.Context, token *AccessToken) error {
	if err := m.Clear(ctx); err != nil {
		return err
	}
	if token == nil {
		return ErrTokenNotFound
	}

	endSession := token.SessionToken == nil && token.IDToken != ""

	if err := m.oauth.Revoke(ctx, token); err != nil {
		if endSession {
			if eerr := m.oauth.EndSession(ctx, token.IDToken); eerr != nil {
				m.logger.DebugContext(ctx, "end session after failed revoke", "error", eerr)
			}
		}
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	if endSession {
		if err := m.oauth.EndSession(ctx, token.IDToken); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
	}
	return nil
}

func (m *DefaultTokenManager) Clear(ctx context.Context) error {
	m.cache.Del(accessTokenKey)
	m.cache.Wait()
	if err := m.repo.Delete(ctx, accessTokenKey); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	return nil
}

func (m *DefaultTokenManager) HasToken(ctx context.Context) bool {
	if _, ok := m.cache.Get(accessTokenKey); ok {
		return true
	}
	_, err := m.repo.Get(ctx, accessTokenKey)
	return err == nil
}

// Close releases the cache's goroutines.
func (m *DefaultTokenManager) Close() {
	m.cache.Close()
}

// load returns the cached token, else the stored one. A nil token with a
// nil error means nothing is stored.
func (m *DefaultTokenManager) load(ctx context.Context) (*AccessToken, error) {
	if token, ok := m.cache.Get(accessTokenKey); ok {
		return token, nil
	}

	data, err := m.repo.Get(ctx, accessTokenKey)
	if errors.Is(err, ErrNoValue) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}

	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		m.logger.WarnContext(ctx, "discarding unreadable access token", "error", err)
		if derr := m.repo.Delete(ctx, accessTokenKey); derr != nil {
			return nil, fmt.Errorf("failed to discard access token: %w", derr)
		}
		return nil, nil
	}
	token.persisted = true
	m.cacheToken(&token)
	return &token, nil
}

func (m *DefaultTokenManager) cacheToken(token *AccessToken) {
	if m.cacheTTL <= 0 {
		return
	}
	m.cache.SetWithTTL(accessTokenKey, token, 1, m.cacheTTL)
	m.cache.Wait()
}
