package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/treeauth/pkg/slogx"
)

// Logging records one debug line per round trip. The query string is left
// out because authorize and end-session URLs carry tokens.
func Logging(base *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			log := slogx.FromContext(r.Context(), base).With(
				"req_id", RequestIDFrom(r.Context()),
				"action", string(ActionFrom(r.Context())),
				"method", r.Method,
				"url", r.URL.Scheme+"://"+r.URL.Host+r.URL.Path,
			)

			resp, err := next.RoundTrip(r)
			duration := time.Since(start).Milliseconds()
			if err != nil {
				log.Warn("http_request_failed", "duration_ms", duration, "err", err)
				return nil, err
			}

			log.Debug("http_request", "status", resp.StatusCode, "duration_ms", duration)
			return resp, nil
		})
	}
}
