package auth

import "time"

// ExpiryMargin is subtracted from the provider-reported token lifetime so
// tokens are treated as expired slightly before the provider rejects them.
const ExpiryMargin = 5 * time.Minute

// EnvTokenLifetime is the assumed lifetime of an access token supplied via
// environment variables. The environment carries no expiry information, so
// the standard one-hour lifetime of Microsoft identity platform access
// tokens is assumed from the moment the pair is resolved.
const EnvTokenLifetime = time.Hour

// Record is the persisted unit of credential state: a bearer access token,
// the refresh token to renew it, and the application identity needed to
// perform that renewal. ClientID, ClientSecret and TenantID are absent when
// the record came from a source that does not carry them (e.g. ambient
// environment variables); such a record can be used until expiry but not
// refreshed.
type Record struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is an absolute instant in milliseconds since the Unix
	// epoch, never a duration. It already includes the safety margin.
	ExpiresAt    int64  `json:"expiresAt"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
}

// Expired reports whether the record's access token should no longer be
// used at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// CanRefresh reports whether the record carries everything a refresh-token
// exchange needs.
func (r *Record) CanRefresh() bool {
	return r.RefreshToken != "" && r.ClientID != "" && r.ClientSecret != ""
}

// ExpiresAtFrom computes the absolute expiry for a token issued at now with
// the provider-reported lifetime, applying the safety margin.
func ExpiresAtFrom(now time.Time, lifetime time.Duration) int64 {
	return now.Add(lifetime - ExpiryMargin).UnixMilli()
}
