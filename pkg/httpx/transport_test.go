package httpx_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/treeauth/pkg/httpx"
	"github.com/aussiebroadwan/treeauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestChainOrderAndHeaders(t *testing.T) {
	t.Parallel()

	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return httpx.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}

	client := &http.Client{Transport: httpx.Chain(nil,
		mark("outer"),
		httpx.RequestID(),
		httpx.Header("Accept-API-Version", "resource=2.1, protocol=1.0"),
		nil,
		mark("inner"),
	)}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, []string{"outer", "inner"}, order)
	require.Equal(t, "resource=2.1, protocol=1.0", seen.Get("Accept-API-Version"))

	_, err = idx.Parse(seen.Get(httpx.RequestIDHeader))
	require.NoError(t, err)
}

func TestHeaderKeepsExistingValue(t *testing.T) {
	t.Parallel()

	var got string
	rt := httpx.Chain(httpx.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header.Get("Accept-API-Version")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}), httpx.Header("Accept-API-Version", "resource=2.1"))

	req := httptest.NewRequest(http.MethodPost, "http://am/logout", nil)
	req.Header.Set("Accept-API-Version", "resource=3.1, protocol=1.0")
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "resource=3.1, protocol=1.0", got)
}

func TestInterceptSeesAction(t *testing.T) {
	t.Parallel()

	var gotQuery string
	base := httpx.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		gotQuery = r.URL.RawQuery
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	forceAuth := httpx.RequestInterceptorFunc(func(r *http.Request, action httpx.Action) *http.Request {
		if action != httpx.ActionStartAuthenticate {
			return r
		}
		q := r.URL.Query()
		q.Set("ForceAuth", "true")
		r.URL.RawQuery = q.Encode()
		return r
	})
	rt := httpx.Chain(base, httpx.Intercept(forceAuth))

	req := httptest.NewRequest(http.MethodPost, "http://am/json/authenticate", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Empty(t, gotQuery)

	req = req.WithContext(httpx.WithAction(req.Context(), httpx.ActionStartAuthenticate))
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "ForceAuth=true", gotQuery)
}

func TestLoggingOmitsQuery(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rt := httpx.Chain(httpx.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusFound, Body: http.NoBody}, nil
	}), httpx.RequestID(), httpx.Logging(logger))

	req := httptest.NewRequest(http.MethodGet, "http://am/oauth2/authorize?code_challenge=secret", nil)
	req = req.WithContext(httpx.WithAction(req.Context(), httpx.ActionAuthorize))
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "action=AUTHORIZE")
	require.Contains(t, out, "status=302")
	require.NotContains(t, out, "secret")
}
