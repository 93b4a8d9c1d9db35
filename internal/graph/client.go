package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mstodo/mstodo/internal/logging"
)

// DefaultBaseURL is the Graph To Do endpoint for the signed-in user.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0/me/todo"

// TokenSource supplies bearer tokens for Graph requests. Token returns a
// currently valid token; ForceRefresh discards it and obtains a new one.
// Implemented by *auth.Manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client issues authenticated requests against the Graph To Do API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger

	// onOperation is invoked after every Graph operation with its name,
	// a success/error status and the elapsed time. Used for metrics.
	onOperation func(operation, status string, elapsed time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the Graph endpoint (tests).
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithOperationHook sets a callback observed after every Graph operation.
func WithOperationHook(fn func(operation, status string, elapsed time.Duration)) ClientOption {
	return func(c *Client) { c.onOperation = fn }
}

// NewClient creates a Graph client over the given token source.
func NewClient(tokens TokenSource, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one authenticated request and returns the response body. On a
// 401 it forces a token refresh and retries exactly once, and only when the
// refresh actually produced a different token: retrying with the same
// credential would just repeat the rejection.
func (c *Client) do(ctx context.Context, operation, method, path string, body any) ([]byte, error) {
	start := time.Now()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.record(operation, logging.StatusError, start)
		return nil, err
	}

	respBody, status, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		c.record(operation, logging.StatusError, start)
		return nil, err
	}

	if status == http.StatusUnauthorized {
		fresh, refreshErr := c.tokens.ForceRefresh(ctx)
		if refreshErr != nil || fresh == token {
			c.record(operation, logging.StatusError, start)
			return nil, c.statusError(status, respBody)
		}
		c.logger.Debug("retrying request with refreshed token",
			logging.Operation(operation))
		respBody, status, err = c.send(ctx, method, path, payload, fresh)
		if err != nil {
			c.record(operation, logging.StatusError, start)
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		c.record(operation, logging.StatusError, start)
		return nil, c.statusError(status, respBody)
	}

	c.record(operation, logging.StatusSuccess, start)
	return respBody, nil
}

// send performs one HTTP round trip. A transport failure is an error; any
// HTTP status is returned to the caller for interpretation.
func (c *Client) send(ctx context.Context, method, url string, payload []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) statusError(status int, body []byte) error {
	if isMailboxNotEnabled(string(body)) {
		return &AccountCapabilityError{Body: string(body)}
	}
	return &HTTPError{StatusCode: status, Body: string(body)}
}

func (c *Client) record(operation, status string, start time.Time) {
	if c.onOperation != nil {
		c.onOperation(operation, status, time.Since(start))
	}
}

// getJSON issues a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, operation, url string, out any) error {
	body, err := c.do(ctx, operation, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// writeJSON issues a POST or PATCH with a JSON body and decodes the response.
func (c *Client) writeJSON(ctx context.Context, operation, method, url string, in, out any) error {
	body, err := c.do(ctx, operation, method, url, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// delete issues a DELETE with no body; Graph answers 204 on success.
func (c *Client) delete(ctx context.Context, operation, url string) error {
	_, err := c.do(ctx, operation, http.MethodDelete, url, nil)
	return err
}

// listPages follows @odata.nextLink pagination, decoding each page of raw
// items and appending them via the accumulate callback.
func (c *Client) listPages(ctx context.Context, operation, url string, accumulate func([]json.RawMessage) error) error {
	for url != "" {
		var pg page
		if err := c.getJSON(ctx, operation, url, &pg); err != nil {
			return err
		}
		if err := accumulate(pg.Value); err != nil {
			return err
		}
		url = pg.NextLink
	}
	return nil
}

// page is one chunk of a paginated Graph collection.
type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}
