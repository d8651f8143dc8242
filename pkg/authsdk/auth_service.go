package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
	"github.com/aussiebroadwan/treeauth/pkg/httpx"
)

const (
	authIndexTypeService         = "service"
	authIndexTypeCompositeAdvice = "composite_advice"

	queryAuthIndexType  = "authIndexType"
	queryAuthIndexValue = "authIndexValue"
	querySuspendedID    = "suspendedId"
)

// AuthServiceConfig selects the tree to walk. Exactly one of Name, Advice
// and ResumeURI must be set.
type AuthServiceConfig struct {
	// Name is the tree name, sent as authIndexType=service.
	Name string

	// Advice starts a composite advice tree, e.g. a step-up login
	// requested by a policy decision.
	Advice *PolicyAdvice

	// ResumeURI resumes a suspended tree. It must carry a suspendedId
	// query parameter, as found in AM's resume email links.
	ResumeURI string

	// Interceptors run, in order, on the tree's result once it completes.
	Interceptors []Interceptor
}

func (c AuthServiceConfig) validate() (*url.URL, error) {
	set := 0
	if c.Name != "" {
		set++
	}
	if c.Advice != nil {
		set++
	}
	if c.ResumeURI != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of name, advice or resume uri is required", ErrInvalidAuthService)
	}

	if c.ResumeURI == "" {
		return nil, nil
	}
	u, err := url.Parse(c.ResumeURI)
	if err != nil {
		return nil, fmt.Errorf("%w: resume uri: %w", ErrInvalidAuthService, err)
	}
	if u.Query().Get(querySuspendedID) == "" {
		return nil, fmt.Errorf("%w: suspended id is missing from the resume uri", ErrInvalidAuthService)
	}
	return u, nil
}

// AuthService is one walk through a tree. It is registered with its
// client's Registry when built and removed once the tree completes or
// the server expires it.
//
// A tree is a single threaded walk: submit one node at a time.
type AuthService struct {
	id          string
	name        string
	advice      *PolicyAdvice
	suspendedID string

	// chain runs when the tree yields an SSO token. callerChain holds only
	// the caller's interceptors and serves NextWithToken.
	chain       Chain
	callerChain Chain

	client *SDKClient
}

// NewAuthService builds and registers a tree walk. The SSO token the tree
// yields is persisted before cfg.Interceptors run.
func (c *SDKClient) NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	return c.newAuthService(cfg, c.sessions.SingleSignOnInterceptor())
}

// newAuthService registers a tree walk whose chain is internal followed by
// the caller's interceptors.
func (c *SDKClient) newAuthService(cfg AuthServiceConfig, internal ...Interceptor) (*AuthService, error) {
	resume, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	s := &AuthService{
		id:          uuid.NewString(),
		name:        cfg.Name,
		advice:      cfg.Advice,
		chain:       chain.New(internal...).With(cfg.Interceptors...),
		callerChain: chain.New(cfg.Interceptors...),
		client:      c,
	}
	if resume != nil {
		s.suspendedID = resume.Query().Get(querySuspendedID)
	}

	c.registry.Add(s)
	return s, nil
}

// ID returns the id nodes of this tree refer back to.
func (s *AuthService) ID() string { return s.id }

// Name returns the tree name, empty for advice and resumed trees.
func (s *AuthService) Name() string { return s.name }

// Advice returns the policy advice the tree was started with, if any.
func (s *AuthService) Advice() *PolicyAdvice { return s.advice }

// IsResume reports whether the tree resumes a suspended walk.
func (s *AuthService) IsResume() bool { return s.suspendedID != "" }

func (s *AuthService) authIndex() (typ, value string) {
	if s.name != "" {
		return authIndexTypeService, s.name
	}
	return authIndexTypeCompositeAdvice, s.advice.String()
}

// startURL returns the authenticate URL for the first request of the walk.
func (s *AuthService) startURL() (string, error) {
	u, err := url.Parse(s.client.Config.authenticateURL())
	if err != nil {
		return "", fmt.Errorf("invalid authenticate url: %w", err)
	}

	q := u.Query()
	if s.IsResume() {
		q.Set(querySuspendedID, s.suspendedID)
	} else {
		typ, value := s.authIndex()
		q.Set(queryAuthIndexType, typ)
		q.Set(queryAuthIndexValue, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Next starts the tree. The returned step holds either the first node or,
// for trees that need no input, the chain's result.
func (s *AuthService) Next(ctx context.Context) (*Step, error) {
	rawURL, err := s.startURL()
	if err != nil {
		return nil, err
	}

	action := httpx.ActionStartAuthenticate
	if s.IsResume() {
		action = httpx.ActionResumeAuthenticate
	}

	s.client.Logger.DebugContext(ctx, "journey start",
		"auth_service_id", s.id,
		"tree", s.name,
		"resume", s.IsResume(),
	)

	resp, err := s.client.doRequest(ctx, action, http.MethodPost, rawURL, http.NoBody, map[string]string{
		headerAcceptAPIVersion: authenticateAPIVersion,
	})
	if err != nil {
		return nil, err
	}
	return s.handle(ctx, resp)
}

// NextWithToken skips the server round trip and runs the caller's
// interceptors on token directly. It is how an existing session satisfies
// a request without walking the tree.
func (s *AuthService) NextWithToken(ctx context.Context, token Outcome) (*Step, error) {
	result, err := s.callerChain.Run(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Step{Result: result}, nil
}

// next submits node to the authenticate endpoint.
func (s *AuthService) next(ctx context.Context, node *Node) (*Step, error) {
	body, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node: %w", err)
	}

	resp, err := s.client.doRequest(ctx, httpx.ActionAuthenticate, http.MethodPost,
		s.client.Config.authenticateURL(), bytes.NewReader(body), map[string]string{
			headerAcceptAPIVersion: authenticateAPIVersion,
			"Content-Type":         "application/json",
		})
	if err != nil {
		return nil, err
	}
	return s.handle(ctx, resp)
}

// handle turns an authenticate response into a step.
func (s *AuthService) handle(ctx context.Context, resp *http.Response) (*Step, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if !isSuccess(resp.StatusCode) {
		apiErr, evict := parseAuthenticateError(resp, body)
		if evict {
			s.done()
		}
		return nil, apiErr
	}

	var parsed authenticateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode authenticate response: %w", err)
	}

	switch {
	case parsed.TokenID != "":
		s.done()
		token := &SSOToken{
			Token:      Token{Value: parsed.TokenID},
			SuccessURL: parsed.SuccessURL,
			Realm:      parsed.Realm,
		}
		result, err := s.chain.Run(ctx, token)
		if err != nil {
			return nil, err
		}
		return &Step{Result: result}, nil

	case parsed.AuthID != "":
		node, err := parseNode(&parsed, s.id, s.client.callbacks)
		if err != nil {
			return nil, err
		}
		node.client = s.client
		return &Step{Node: node}, nil

	default:
		return nil, ErrUnknownResponse
	}
}

// done removes the tree from the registry. Nodes still held by the caller
// fail with ErrAuthServiceNotFound afterwards.
func (s *AuthService) done() {
	s.client.Logger.Debug("journey finished", "auth_service_id", s.id)
	s.client.registry.Remove(s.id)
}

// goToNext continues the tree node belongs to.
func (c *SDKClient) goToNext(ctx context.Context, node *Node) (*Step, error) {
	s, ok := c.registry.Get(node.authServiceID)
	if !ok {
		c.Logger.WarnContext(ctx, "auth service not found", "auth_service_id", node.authServiceID)
		return nil, ErrAuthServiceNotFound
	}
	return s.next(ctx, node)
}
