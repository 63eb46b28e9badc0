// Package apiclient issues authenticated JSON requests against the check-in
// API and normalizes every failure into one APIError shape, so callers branch
// on Status instead of inspecting error types.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIError is the uniform failure shape for every request.
// Status 0 means the transport failed and no response reached the client;
// any other value is the HTTP status the server answered with.
type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: %s", e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsTransport reports whether err is a status-0 transport failure.
func IsTransport(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Status == 0
}

// IsAuth reports whether err is a 401 from the server.
func IsAuth(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Status == http.StatusNotFound
}

// TokenSource yields the current bearer token, if any. The client reads it
// once per request and never caches it.
type TokenSource interface {
	Token() (string, bool)
}

// HTTPClient is the outbound transport seam.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the authenticated request client.
type Client struct {
	baseURL   string
	hc        HTTPClient
	tokens    TokenSource
	requestID func() string
}

// New builds a Client for baseURL. A nil hc falls back to a default
// http.Client; a nil tokens source means requests go out unauthenticated.
func New(baseURL string, hc HTTPClient, tokens TokenSource) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		hc:        hc,
		tokens:    tokens,
		requestID: uuid.NewString,
	}
}

// Do sends one request and returns the raw JSON body on 2xx. A nil body sends
// no payload. Every failure comes back as *APIError.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("encode request body: %v", err), Status: 0}
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, payload)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Status: 0}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.requestID())
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Status: 0}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Status: 0}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Message: errorMessage(raw, resp.StatusCode), Status: resp.StatusCode}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// errorMessage pulls the server's message field out of an error body. A body
// that is not JSON (or has no message) yields the generic "HTTP <code>".
func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}
