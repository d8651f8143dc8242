package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/treeauth/pkg/httpx"
)

const ssoTokenKey = "sso_token"

// DefaultSingleSignOnManager keeps the SSO token in a DataRepository and
// logs the session out of AM on Revoke.
type DefaultSingleSignOnManager struct {
	config     Config
	httpClient *http.Client
	repo       DataRepository
	logger     *slog.Logger
}

// NewDefaultSingleSignOnManager returns a manager for cfg's realm. cfg
// must already have defaults applied.
func NewDefaultSingleSignOnManager(cfg Config, client *http.Client, repo DataRepository, logger *slog.Logger) *DefaultSingleSignOnManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultSingleSignOnManager{
		config:     cfg,
		httpClient: client,
		repo:       repo,
		logger:     logger,
	}
}

func (m *DefaultSingleSignOnManager) Persist(ctx context.Context, token *SSOToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode sso token: %w", err)
	}
	if err := m.repo.Save(ctx, ssoTokenKey, data); err != nil {
		return fmt.Errorf("failed to persist sso token: %w", err)
	}
	return nil
}

func (m *DefaultSingleSignOnManager) Token(ctx context.Context) (*SSOToken, error) {
	data, err := m.repo.Get(ctx, ssoTokenKey)
	if err != nil {
		if errors.Is(err, ErrNoValue) {
			return nil, ErrNoValue
		}
		return nil, fmt.Errorf("failed to load sso token: %w", err)
	}

	var stored SSOToken
	if err := json.Unmarshal(data, &stored); err != nil || stored.Value == "" {
		m.logger.WarnContext(ctx, "discarding unreadable sso token")
		if derr := m.repo.Delete(ctx, ssoTokenKey); derr != nil {
			return nil, fmt.Errorf("failed to discard sso token: %w", derr)
		}
		return nil, ErrNoValue
	}

	return &stored, nil
}

func (m *DefaultSingleSignOnManager) Clear(ctx context.Context) error {
	if err := m.repo.Delete(ctx, ssoTokenKey); err != nil {
		return fmt.Errorf("failed to clear sso token: %w", err)
	}
	return nil
}

func (m *DefaultSingleSignOnManager) HasToken(ctx context.Context) bool {
	_, err := m.Token(ctx)
	return err == nil
}

// Revoke clears the token locally whatever the server says, then logs
// the session out.
func (m *DefaultSingleSignOnManager) Revoke(ctx context.Context) error {
	token, err := m.Token(ctx)
	if errors.Is(err, ErrNoValue) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}

	if err := m.Clear(ctx); err != nil {
		return err
	}

	u, err := url.Parse(m.config.sessionURL())
	if err != nil {
		return fmt.Errorf("invalid session url: %w", err)
	}
	q := u.Query()
	q.Set("_action", "logout")
	u.RawQuery = q.Encode()

	m.logger.DebugContext(ctx, "logging out session")
	resp, err := doRequest(ctx, m.httpClient, httpx.ActionLogout, http.MethodPost, u.String(), http.NoBody, map[string]string{
		headerAcceptAPIVersion: sessionAPIVersion,
		m.config.CookieName:    token.Value,
		"Content-Type":         "application/json",
	})
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("failed to logout session: %w", err)
	}
	return nil
}
