package httpx

import "net/http"

// RequestInterceptor customises outbound requests, for example to add
// headers or query parameters for one particular action. It receives a
// clone of the request and returns the request to send.
type RequestInterceptor interface {
	Intercept(r *http.Request, action Action) *http.Request
}

// RequestInterceptorFunc adapts a function to RequestInterceptor.
type RequestInterceptorFunc func(r *http.Request, action Action) *http.Request

func (f RequestInterceptorFunc) Intercept(r *http.Request, action Action) *http.Request {
	return f(r, action)
}

// Intercept applies interceptors in order before the request is sent.
func Intercept(interceptors ...RequestInterceptor) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if len(interceptors) == 0 {
			return next
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			action := ActionFrom(r.Context())
			r = r.Clone(r.Context())
			for _, ic := range interceptors {
				if out := ic.Intercept(r, action); out != nil {
					r = out
				}
			}
			return next.RoundTrip(r)
		})
	}
}
