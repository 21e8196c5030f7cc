// Package api implements the HTTP client for the QuantumTrust artifact
// service: the per-kind list/create/verify/revoke/delete/share endpoints,
// bearer authentication, and the error taxonomy shared with the signer
// session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quantumtrust/go-trust-client/artifact"
)

// TokenSource supplies the bearer credential attached to every request. The
// credential is managed by an authentication layer outside this client; it is
// treated here as an opaque string.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource holding a fixed credential.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the remote artifact service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// ClientOpt configures a Client.
type ClientOpt func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the artifact service at baseURL. The
// default HTTP client carries an OpenTelemetry transport and a 15 second
// timeout.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOpt) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMine fetches all artifacts of the given kind owned by the caller.
func (c *Client) ListMine(ctx context.Context, kind artifact.Kind) ([]artifact.Artifact, error) {
	var out []artifact.Artifact
	path := fmt.Sprintf("/%s/mine", kind.Path())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create submits a creation payload and returns the created artifact.
func (c *Client) Create(ctx context.Context, kind artifact.Kind, payload json.RawMessage) (*artifact.Artifact, error) {
	var out artifact.Artifact
	path := fmt.Sprintf("/%s", kind.Path())
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the service to verify an artifact and returns the updated
// representation. Options that do not apply to the kind are dropped before
// the call.
func (c *Client) Verify(ctx context.Context, kind artifact.Kind, id string, opts artifact.VerifyOptions) (*artifact.Artifact, error) {
	var out artifact.Artifact
	path := fmt.Sprintf("/%s/%s/verify", kind.Path(), url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, opts.Normalize(kind), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke revokes an artifact with a reason and returns the updated
// representation.
func (c *Client) Revoke(ctx context.Context, kind artifact.Kind, id, reason string) (*artifact.Artifact, error) {
	var out artifact.Artifact
	path := fmt.Sprintf("/%s/%s/revoke", kind.Path(), url.PathEscape(id))
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Share grants a recipient access to an artifact and returns the updated
// representation.
func (c *Client) Share(ctx context.Context, kind artifact.Kind, id, recipient string, permissions []string) (*artifact.Artifact, error) {
	var out artifact.Artifact
	path := fmt.Sprintf("/%s/%s/share", kind.Path(), url.PathEscape(id))
	body := map[string]any{"recipient": recipient, "permissions": permissions}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an artifact. The endpoint returns no body; success is the
// whole result.
func (c *Client) Delete(ctx context.Context, kind artifact.Kind, id string, flags artifact.DeleteFlags) error {
	path := fmt.Sprintf("/%s/%s", kind.Path(), url.PathEscape(id))
	if flags.Unpin || flags.UpdateAnchor {
		q := url.Values{}
		if flags.Unpin {
			q.Set("unpin", "true")
		}
		if flags.UpdateAnchor {
			q.Set("updateAnchor", "true")
		}
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one authenticated request and normalizes the outcome: the
// response body is decoded into out when out is non-nil, and every failure
// comes back as a categorized *Error.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return NewApplicationError(fmt.Sprintf("failed to encode request body: %v", err))
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return NewNetworkError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return NewNotAuthorizedError(fmt.Sprintf("failed to obtain credential: %v", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewNetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewNotAuthorizedError(serverDetail(respBody, resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return NewApplicationError(serverDetail(respBody, resp.Status))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return NewApplicationError(fmt.Sprintf("failed to unmarshal response JSON: %v", err))
	}
	return nil
}

// serverDetail extracts the human-readable message from an error response.
// The service reports failures as {"detail": "..."}; anything else falls
// back to the HTTP status line.
func serverDetail(body []byte, status string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("artifact service returned %s", status)
}
