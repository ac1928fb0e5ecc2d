// Package remote implements the HTTP client for the authoritative rule
// store. Responses use a JSON envelope with a success flag and typed error
// codes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/c360studio/rulesync/rule"
)

// Envelope is the standard response wrapper of the remote store.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// APIError is the typed error payload inside a failed envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// BatchStatus is the per-item outcome of a batch upsert.
type BatchStatus string

const (
	BatchOK       BatchStatus = "ok"
	BatchConflict BatchStatus = "conflict"
	BatchError    BatchStatus = "error"
)

// BatchResult is the server's per-item report for one rule in a batch.
// Conflict results (HTTP 409-style) carry the server's current version of
// the rule so the resolver can diff against it.
type BatchResult struct {
	RuleID  string      `json:"rule_id"`
	Status  BatchStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Remote  *rule.Rule  `json:"remote,omitempty"`
}

// Client talks to the remote rule store over HTTP. All collaborators are
// injected, so tests run against httptest servers with fake tokens.
type Client struct {
	baseURL string
	team    string
	tokens  TokenProvider
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a remote store client. timeout bounds each call.
func NewClient(baseURL, team string, tokens TokenProvider, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		team:    team,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// List fetches the team's rules, optionally filtered to those changed
// since the given timestamp (delta sync).
func (c *Client) List(ctx context.Context, since *time.Time) ([]*rule.Rule, error) {
	endpoint := fmt.Sprintf("%s/teams/%s/rules", c.baseURL, url.PathEscape(c.team))
	if since != nil && !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	var rules []*rule.Rule
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// BatchUpsert creates or updates a group of rules in one call and returns
// the per-item results. Server-side conflicts are reported per item, not as
// a call failure.
func (c *Client) BatchUpsert(ctx context.Context, rules []*rule.Rule) ([]BatchResult, error) {
	endpoint := fmt.Sprintf("%s/teams/%s/rules/batch", c.baseURL, url.PathEscape(c.team))

	var results []BatchResult
	if err := c.do(ctx, http.MethodPost, endpoint, rules, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes one rule from the remote store.
func (c *Client) Delete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/teams/%s/rules/%s", c.baseURL, url.PathEscape(c.team), url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Health performs the lightweight connectivity check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, nil)
}

// do runs one authenticated request and decodes the envelope into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return &AuthError{Code: AuthCodeUnauthorized, Message: "no valid access token"}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{
			Op:      method,
			URL:     endpoint,
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Code: AuthCodeTokenExpired, Message: "remote rejected the access token"}
	}

	var envelope Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &NetworkError{Op: method, URL: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return envelope.Error
		}
		return &NetworkError{Op: method, URL: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
