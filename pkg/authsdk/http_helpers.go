package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/treeauth/pkg/httpx"
)

const (
	headerAcceptAPIVersion = "Accept-API-Version"

	authenticateAPIVersion = "resource=2.1, protocol=1.0"
	sessionAPIVersion      = "resource=3.1, protocol=1.0"
)

// maxResponseBody bounds how much of a response is read into memory.
const maxResponseBody = 1 << 20

// doRequest performs an HTTP request tagged with action.
func (c *SDKClient) doRequest(
	ctx context.Context,
	action httpx.Action,
	method, rawURL string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	return doRequest(ctx, c.HTTPClient, action, method, rawURL, body, headers)
}

func doRequest(
	ctx context.Context,
	client *http.Client,
	action httpx.Action,
	method, rawURL string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(httpx.WithAction(ctx, action), method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// readBody drains and closes the response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// decodeJSON decodes a 2xx JSON response into target. Any other status
// is returned as an *APIError.
func decodeJSON(resp *http.Response, target any) error {
	body, err := readBody(resp)
	if err != nil {
		return err
	}

	if !isSuccess(resp.StatusCode) {
		return newAPIError(resp, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// checkStatus returns an *APIError unless the response is 2xx.
func checkStatus(resp *http.Response) error {
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return newAPIError(resp, body)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func formBody(values url.Values) io.Reader {
	return strings.NewReader(values.Encode())
}
