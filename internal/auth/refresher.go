package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mstodo/mstodo/internal/logging"
)

// Scopes is the fixed delegated-permission set requested on every token
// exchange. offline_access is required for the provider to return refresh
// tokens at all.
const Scopes = "offline_access Tasks.ReadWrite Tasks.Read User.Read openid profile"

// DefaultLoginBase is the Microsoft identity platform authority.
const DefaultLoginBase = "https://login.microsoftonline.com"

// Refresher exchanges a refresh token for a new access/refresh token pair
// at the identity provider's v2.0 token endpoint. It performs no storage;
// the Manager owns persistence of the result.
type Refresher struct {
	httpClient *http.Client
	loginBase  string
	logger     *slog.Logger
	now        func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLoginBase overrides the identity provider authority (tests).
func WithLoginBase(base string) RefresherOption {
	return func(r *Refresher) { r.loginBase = base }
}

// WithHTTPClient overrides the HTTP client used for the token endpoint.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) { r.httpClient = c }
}

// NewRefresher creates a Refresher. A nil logger falls back to slog.Default.
func NewRefresher(logger *slog.Logger, opts ...RefresherOption) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loginBase:  DefaultLoginBase,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tokenResponse is the subset of the provider's token payload we consume.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh performs a refresh_token grant and returns the resulting record.
// The client identity is embedded in the returned record so it stays
// refreshable once persisted. When the provider omits a rotated refresh
// token, the previous one is retained: the provider does not rotate it on
// every exchange.
func (r *Refresher) Refresh(ctx context.Context, refreshToken, clientID, clientSecret, tenantID string) (*Record, error) {
	if tenantID == "" {
		tenantID = "common"
	}
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", r.loginBase, url.PathEscape(tenantID))

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("scope", Scopes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("token refresh rejected by identity provider",
			logging.Status(fmt.Sprintf("%d", resp.StatusCode)))
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	rec := &Record{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    ExpiresAtFrom(r.now(), time.Duration(tr.ExpiresIn)*time.Second),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TenantID:     tenantID,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = refreshToken
	}

	r.logger.Info("access token refreshed",
		slog.Int64("expires_in_seconds", tr.ExpiresIn),
		slog.String("access_token", logging.SanitizeToken(rec.AccessToken)))
	return rec, nil
}
