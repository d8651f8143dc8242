package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Sentinel Errors
// ============================================================================

var (
	// ErrAuthenticationRequired means no usable credential is held locally
	// and the caller has to walk a tree again.
	ErrAuthenticationRequired = errors.New("authsdk: authentication required")

	// ErrAlreadyAuthenticated is returned by Login and Register when a
	// session already exists.
	ErrAlreadyAuthenticated = errors.New("authsdk: user is already authenticated")

	// ErrAuthServiceNotFound means the tree a node belongs to is no longer
	// registered, either because it finished or because it was evicted.
	ErrAuthServiceNotFound = errors.New("authsdk: auth service not found")

	// ErrInvalidAuthService reports an AuthServiceConfig that does not name
	// exactly one of tree name, advice or resume URI.
	ErrInvalidAuthService = errors.New("authsdk: invalid auth service config")

	// ErrUnknownResponse is returned when an authenticate response carries
	// neither authId nor tokenId.
	ErrUnknownResponse = errors.New("authsdk: unknown response content")

	// ErrInvalidGrant is returned when the server rejects a refresh token.
	// Local tokens have been cleared by the time it is returned.
	ErrInvalidGrant = errors.New("authsdk: invalid grant")

	// ErrStateMismatch means the authorize redirect echoed a different state.
	ErrStateMismatch = errors.New("authsdk: oauth2 state mismatch")

	// ErrAuthorize is returned when an SSO token could not be exchanged for
	// an authorization code.
	ErrAuthorize = errors.New("authsdk: failed to exchange sso token for authorization code")

	// ErrNoValue is returned by a DataRepository when nothing is stored
	// under a key.
	ErrNoValue = errors.New("authsdk: no value stored")

	// ErrTokenNotFound is returned when revoking a token that is not held.
	ErrTokenNotFound = errors.New("authsdk: token not found")

	// ErrSessionNotFound is returned by CurrentSession and CurrentUser when
	// nothing is persisted.
	ErrSessionNotFound = errors.New("authsdk: no session found")
)

// ============================================================================
// HTTP Errors
// ============================================================================

// APIError is any non-2xx response that has no more specific type.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("authsdk: api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authsdk: api error %d: %s: %s", e.StatusCode, e.Message, e.Body)
}

// AuthenticationError is a 401 from the authenticate endpoint: the
// submitted callbacks were rejected. The tree stays registered so the same
// node may be submitted again.
type AuthenticationError struct {
	APIError
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authsdk: authentication failed: %s", e.Message)
}

// AuthenticationTimeoutError means the server expired the tree session
// (error code 110). The tree has been removed from the registry.
type AuthenticationTimeoutError struct {
	APIError
}

func (e *AuthenticationTimeoutError) Error() string {
	return fmt.Sprintf("authsdk: authentication timed out: %s", e.Message)
}

// SuspendedAuthSessionError means a suspended tree could not be resumed,
// usually because the resume link expired. The tree has been removed from
// the registry.
type SuspendedAuthSessionError struct {
	APIError
}

func (e *SuspendedAuthSessionError) Error() string {
	return fmt.Sprintf("authsdk: suspended auth session: %s", e.Message)
}

// UnsupportedCallbackError is returned when a node holds a callback type
// that is not registered. The whole node is rejected.
type UnsupportedCallbackError struct {
	Type string
}

func (e *UnsupportedCallbackError) Error() string {
	return "authsdk: callback type not supported: " + e.Type
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

const (
	errorCodeTimeout       = "110"
	suspendedSessionMarker = "org.forgerock.openam.auth.nodes.framework.token.SuspendedAuthSessionException"
	oauthErrorInvalidGrant = "invalid_grant"
)

// amErrorBody is the JSON error body AM returns from json/ endpoints.
type amErrorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Detail  struct {
		ErrorCode string `json:"errorCode"`
	} `json:"detail"`

	// OAuth2 endpoints use RFC 6749 fields instead.
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// newAPIError builds an APIError from a response and its already read body.
func newAPIError(resp *http.Response, body []byte) *APIError {
	msg := http.StatusText(resp.StatusCode)
	var parsed amErrorBody
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			msg = parsed.Message
		case parsed.ErrorDescription != "":
			msg = parsed.ErrorDescription
		case parsed.Error != "":
			msg = parsed.Error
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Body:       strings.TrimSpace(string(body)),
	}
}

// parseAuthenticateError classifies an error response from the
// authenticate endpoint. The bool reports whether the tree must be evicted.
func parseAuthenticateError(resp *http.Response, body []byte) (error, bool) {
	apiErr := newAPIError(resp, body)
	if resp.StatusCode != http.StatusUnauthorized {
		return apiErr, false
	}

	var parsed amErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &AuthenticationError{APIError: *apiErr}, false
	}

	switch {
	case parsed.Detail.ErrorCode == errorCodeTimeout:
		return &AuthenticationTimeoutError{APIError: *apiErr}, true
	case strings.Contains(parsed.Message, suspendedSessionMarker):
		return &SuspendedAuthSessionError{APIError: *apiErr}, true
	default:
		return &AuthenticationError{APIError: *apiErr}, false
	}
}
