// Package httpx provides outbound HTTP plumbing for SDK clients: composable
// http.RoundTripper middleware for request ids, logging, request
// interception and client-side rate limiting.
package httpx

import "net/http"

// Middleware decorates a RoundTripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base with mws. The first middleware is the outermost, so it
// sees the request first and the response last. A nil base means
// http.DefaultTransport.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			rt = mws[i](rt)
		}
	}
	return rt
}

// Header sets a request header when the request does not already carry it.
func Header(key, value string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get(key) != "" {
				return next.RoundTrip(r)
			}
			r = r.Clone(r.Context())
			r.Header.Set(key, value)
			return next.RoundTrip(r)
		})
	}
}
