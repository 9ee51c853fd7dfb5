package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

// RefreshSkew is how long before expiry a credential is refreshed
// proactively.
const RefreshSkew = 5 * time.Minute

var (
	// ErrNoIntegration means the tenant never connected the provider.
	// Callers surface this as a configuration problem the tenant can fix,
	// not a generic failure.
	ErrNoIntegration = errors.New("integration not configured")

	// ErrRefreshFailed means a token refresh did not produce a valid
	// credential. Recoverable once per request; fatal on repeat.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// Refresher exchanges a refresh token for a fresh access token. One
// implementation per OAuth provider lives in internal/oauth.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// credentialSource is the slice of Store the lifecycle manager needs.
type credentialSource interface {
	Get(ctx context.Context, businessID uuid.UUID, provider Provider) (*Credential, error)
	Upsert(ctx context.Context, c *Credential) error
}

// Lifecycle hands out currently-valid credentials, refreshing proactively
// when a token is inside the expiry skew. Refresh-and-persist for one
// (business, provider) pair is serialized in-process; cross-process
// last-writer-wins is acceptable because provider refresh responses are
// idempotent within the skew window.
type Lifecycle struct {
	store      credentialSource
	refreshers map[Provider]Refresher
	retryCfg   retry.RetryConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(store credentialSource, refreshers map[Provider]Refresher) *Lifecycle {
	return &Lifecycle{
		store:      store,
		refreshers: refreshers,
		retryCfg:   retry.DefaultRetryConfig(),
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetRetryConfig overrides the refresh retry policy (tests use fast delays).
func (l *Lifecycle) SetRetryConfig(cfg retry.RetryConfig) {
	l.retryCfg = cfg
}

func (l *Lifecycle) pairLock(businessID uuid.UUID, provider Provider) *sync.Mutex {
	key := businessID.String() + "/" + string(provider)
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// GetValidCredential returns a credential whose access token is usable
// right now. For OAuth providers nearing expiry it performs at most one
// refresh (internally retried on transient errors) and persists the result
// before returning.
func (l *Lifecycle) GetValidCredential(ctx context.Context, businessID uuid.UUID, provider Provider) (*Credential, error) {
	lock := l.pairLock(businessID, provider)
	lock.Lock()
	defer lock.Unlock()

	cred, err := l.store.Get(ctx, businessID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoIntegration
	}

	if !provider.RequiresOAuth() {
		return cred, nil
	}

	if !cred.ExpiresWithin(RefreshSkew) {
		return cred, nil
	}

	return l.refreshLocked(ctx, cred)
}

// ForceRefresh refreshes a credential regardless of expiry. The dispatcher
// calls it once when a provider rejects a token mid-request; a second
// failure within the same dispatch is fatal for that request.
func (l *Lifecycle) ForceRefresh(ctx context.Context, businessID uuid.UUID, provider Provider) (*Credential, error) {
	lock := l.pairLock(businessID, provider)
	lock.Lock()
	defer lock.Unlock()

	cred, err := l.store.Get(ctx, businessID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoIntegration
	}
	if !provider.RequiresOAuth() {
		return cred, nil
	}

	return l.refreshLocked(ctx, cred)
}

func (l *Lifecycle) refreshLocked(ctx context.Context, cred *Credential) (*Credential, error) {
	refresher, ok := l.refreshers[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: no refresher for provider %s", ErrRefreshFailed, cred.Provider)
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored for %s", ErrRefreshFailed, cred.Provider)
	}

	log.Debug().
		Str("business_id", cred.BusinessID.String()).
		Str("provider", string(cred.Provider)).
		Time("expires_at", cred.ExpiresAt).
		Msg("Refreshing credential")

	var refreshed *Credential
	result := retry.RetryWithBackoff(ctx, l.retryCfg, func() error {
		var err error
		refreshed, err = refresher.Refresh(ctx, cred)
		return err
	})
	if !result.Success {
		log.Warn().
			Err(result.LastError).
			Str("business_id", cred.BusinessID.String()).
			Str("provider", string(cred.Provider)).
			Int("attempts", result.Attempts).
			Msg("Credential refresh failed")
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, result.LastError)
	}

	// Providers may rotate the refresh token; keep the old one when the
	// response omits it.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	refreshed.BusinessID = cred.BusinessID
	refreshed.Provider = cred.Provider
	if refreshed.AccountEmail == "" {
		refreshed.AccountEmail = cred.AccountEmail
	}
	if refreshed.Endpoint == "" {
		refreshed.Endpoint = cred.Endpoint
	}
	if refreshed.AccountID == "" {
		refreshed.AccountID = cred.AccountID
	}

	if err := l.store.Upsert(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("%w: failed to persist refreshed credential: %v", ErrRefreshFailed, err)
	}

	return refreshed, nil
}
