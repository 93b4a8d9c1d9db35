package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mstodo/mstodo/internal/logging"
)

// Environment variable names for an ambient token pair. A pair supplied this
// way takes priority over any stored record.
const (
	EnvAccessToken  = "MSTODO_ACCESS_TOKEN"
	EnvRefreshToken = "MSTODO_REFRESH_TOKEN"
)

// Source identifies where a resolved credential record came from.
type Source string

const (
	SourceEnv    Source = "env"
	SourceStore  Source = "store"
	SourceLegacy Source = "legacy"
)

// Credentials is the application identity configured for this process. It
// backfills records that lack their own client identity (environment pairs,
// older stored records).
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Notifier receives the new record after every successful refresh. Failures
// inside a notifier must not affect the token lifecycle, so implementations
// are called best-effort and their errors are logged, never returned.
type Notifier interface {
	TokensUpdated(rec *Record) error
}

// Manager resolves a usable access token for the single identity this
// process serves. Resolution order is fixed: environment pair, canonical
// store, legacy store. Expired refreshable records are renewed through the
// Refresher; concurrent callers share one in-flight refresh.
type Manager struct {
	store     *Store
	refresher *Refresher
	creds     Credentials
	notifier  Notifier
	logger    *slog.Logger

	// onRefresh is invoked after every refresh attempt with a
	// success/error status. Used for metrics.
	onRefresh func(status string)

	now       func() time.Time
	lookupEnv func(string) (string, bool)

	group singleflight.Group

	mu     sync.Mutex
	cached *Record
	source Source
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier sets the post-refresh notifier.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithRefreshHook sets a callback observed after every refresh attempt.
func WithRefreshHook(fn func(status string)) ManagerOption {
	return func(m *Manager) { m.onRefresh = fn }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithEnvLookup overrides environment variable lookup (tests).
func WithEnvLookup(fn func(string) (string, bool)) ManagerOption {
	return func(m *Manager) { m.lookupEnv = fn }
}

// NewManager creates a Manager over the given store and refresher.
func NewManager(store *Store, refresher *Refresher, creds Credentials, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:     store,
		refresher: refresher,
		creds:     creds,
		logger:    logger,
		now:       time.Now,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve locates a credential record without checking validity or
// refreshing. The environment pair wins over both file locations; a record
// found only at the legacy path is migrated to the canonical path before it
// is returned. Corrupt files degrade to "not found" for that source and the
// search continues.
func (m *Manager) Resolve() (*Record, Source, error) {
	if rec := m.envRecord(); rec != nil {
		return rec, SourceEnv, nil
	}

	rec, err := m.store.Load()
	if err == nil {
		return rec, SourceStore, nil
	}
	if !m.ignorable(err) {
		return nil, "", err
	}

	rec, err = m.store.LoadLegacy()
	if err == nil {
		if migErr := m.store.Migrate(rec); migErr != nil {
			m.logger.Warn("failed to migrate legacy credentials",
				logging.Err(migErr))
		} else {
			m.logger.Info("migrated legacy credentials to canonical path",
				slog.String("path", m.store.Path()))
		}
		return rec, SourceLegacy, nil
	}
	if !m.ignorable(err) {
		return nil, "", err
	}

	return nil, "", ErrNotFound
}

// Token returns a currently valid access token, refreshing and persisting
// first when the resolved record has expired. Every failure mode degrades to
// ErrNotAuthenticated; callers never see storage or provider detail.
func (m *Manager) Token(ctx context.Context) (string, error) {
	rec, err := m.current(ctx, false)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// ForceRefresh discards the current access token and performs a refresh
// regardless of expiry, returning the new access token. Used by the request
// client after a 401. Like Token, failures degrade to ErrNotAuthenticated.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	rec, err := m.current(ctx, true)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

func (m *Manager) current(ctx context.Context, force bool) (*Record, error) {
	m.mu.Lock()
	rec, source := m.cached, m.source
	m.mu.Unlock()

	if rec == nil {
		var err error
		rec, source, err = m.Resolve()
		if err != nil {
			m.promptReauth(err)
			return nil, ErrNotAuthenticated
		}
		m.setCached(rec, source)
	}

	// A record discovered at the legacy path is returned as-is exactly
	// once: the previous layout carried no expiry adjustment, so an
	// immediate check would reject records it accepted. The migration has
	// already run by this point, so from the next call on the record is
	// canonical and expiry-checked like any other.
	if !force && source == SourceLegacy {
		m.setCached(rec, SourceStore)
		return rec, nil
	}

	if !force && !rec.Expired(m.now()) {
		return rec, nil
	}

	if source == SourceEnv && !force && !m.fillCredentials(rec).CanRefresh() {
		// The pair cannot be refreshed; re-resolving re-stamps the assumed
		// lifetime from now, which is all this source can do.
		if fresh := m.envRecord(); fresh != nil {
			m.setCached(fresh, SourceEnv)
			return fresh, nil
		}
	}

	refreshed, err := m.refresh(ctx, rec)
	if err != nil {
		m.logger.Error("token refresh failed",
			logging.Operation("refresh"), logging.Err(err))
		m.promptReauth(err)
		return nil, ErrNotAuthenticated
	}
	return refreshed, nil
}

// refresh performs a shared refresh-token exchange, persists the result and
// notifies the configured notifier. Concurrent callers coalesce on a single
// provider round trip.
func (m *Manager) refresh(ctx context.Context, rec *Record) (*Record, error) {
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		withCreds := m.fillCredentials(rec)
		if !withCreds.CanRefresh() {
			if withCreds.RefreshToken == "" {
				return nil, ErrNotFound
			}
			return nil, ErrMissingClientCredentials
		}

		fresh, err := m.refresher.Refresh(ctx,
			withCreds.RefreshToken, withCreds.ClientID,
			withCreds.ClientSecret, withCreds.TenantID)
		if m.onRefresh != nil {
			if err != nil {
				m.onRefresh(logging.StatusError)
			} else {
				m.onRefresh(logging.StatusSuccess)
			}
		}
		if err != nil {
			return nil, err
		}

		if saveErr := m.store.Save(fresh); saveErr != nil {
			m.logger.Warn("failed to persist refreshed credentials",
				logging.Err(saveErr))
		}
		if m.notifier != nil {
			if notifyErr := m.notifier.TokensUpdated(fresh); notifyErr != nil {
				m.logger.Warn("token update notification failed",
					logging.Err(notifyErr))
			}
		}

		m.setCached(fresh, SourceStore)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// fillCredentials backfills the process-level client identity onto records
// from sources that do not carry their own.
func (m *Manager) fillCredentials(rec *Record) *Record {
	out := *rec
	if out.ClientID == "" {
		out.ClientID = m.creds.ClientID
	}
	if out.ClientSecret == "" {
		out.ClientSecret = m.creds.ClientSecret
	}
	if out.TenantID == "" {
		out.TenantID = m.creds.TenantID
	}
	return &out
}

// envRecord builds a record from the ambient environment pair, if present.
// The access token alone is enough: the pair is considered found even when
// it can never be refreshed.
func (m *Manager) envRecord() *Record {
	access, ok := m.lookupEnv(EnvAccessToken)
	if !ok || access == "" {
		return nil
	}
	refresh, _ := m.lookupEnv(EnvRefreshToken)
	return &Record{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    ExpiresAtFrom(m.now(), EnvTokenLifetime),
	}
}

func (m *Manager) setCached(rec *Record, source Source) {
	m.mu.Lock()
	m.cached = rec
	m.source = source
	m.mu.Unlock()
}

// ignorable reports whether a load error means "try the next source" rather
// than a real fault. Corrupt files are logged and then treated as absent.
func (m *Manager) ignorable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var corrupt *CorruptError
	if errors.As(err, &corrupt) {
		m.logger.Warn("ignoring corrupt credential file",
			slog.String("path", corrupt.Path), logging.Err(corrupt.Err))
		return true
	}
	return false
}

func (m *Manager) promptReauth(cause error) {
	path := "<unknown>"
	if m.store != nil {
		path = m.store.Path()
	}
	m.logger.Warn(fmt.Sprintf(
		"no usable credentials (run 'mstodo auth' to sign in again, tokens are stored at %s)", path),
		logging.Err(cause))
}
