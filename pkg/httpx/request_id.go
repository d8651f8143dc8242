package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/treeauth/pkg/idx"
)

// RequestIDHeader carries the correlation id on outbound requests.
const RequestIDHeader = "X-Request-ID"

// RequestID stamps each request with a ULID unless the caller already set
// one, and records it in the request context for later middleware.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = idx.New().String()
			}

			ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
			r = r.Clone(ctx)
			r.Header.Set(RequestIDHeader, id)
			return next.RoundTrip(r)
		})
	}
}
