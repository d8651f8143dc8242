package httpx

import "context"

// Action names the SDK operation an outbound request belongs to, so
// interceptors and log lines can tell an authorize call from a refresh.
type Action string

const (
	ActionStartAuthenticate  Action = "START_AUTHENTICATE"
	ActionResumeAuthenticate Action = "RESUME_AUTHENTICATE"
	ActionAuthenticate       Action = "AUTHENTICATE"
	ActionAuthorize          Action = "AUTHORIZE"
	ActionExchangeToken      Action = "EXCHANGE_TOKEN"
	ActionRefreshToken       Action = "REFRESH_TOKEN"
	ActionRevokeToken        Action = "REVOKE_TOKEN"
	ActionEndSession         Action = "END_SESSION"
	ActionLogout             Action = "LOGOUT"
	ActionUserInfo           Action = "USER_INFO"
	ActionJWKS               Action = "JWKS"
)

type ctxKey string

const (
	ctxKeyAction    ctxKey = "action"
	ctxKeyRequestID ctxKey = "request_id"
)

// WithAction tags ctx with the operation that is about to send requests.
func WithAction(ctx context.Context, a Action) context.Context {
	return context.WithValue(ctx, ctxKeyAction, a)
}

// ActionFrom returns the action stored in ctx, or "" when none is set.
func ActionFrom(ctx context.Context) Action {
	a, _ := ctx.Value(ctxKeyAction).(Action)
	return a
}

// RequestIDFrom returns the request id assigned by the RequestID middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
