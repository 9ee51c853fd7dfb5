package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]*Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: make(map[string]*Credential)}
}

func key(id uuid.UUID, p Provider) string { return id.String() + "/" + string(p) }

func (f *fakeStore) Get(_ context.Context, businessID uuid.UUID, provider Provider) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[key(businessID, provider)]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) Upsert(_ context.Context, c *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *c
	f.creds[key(c.BusinessID, c.Provider)] = &copied
	return nil
}

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	err    error
	result *Credential
}

func (f *fakeRefresher) Refresh(_ context.Context, cred *Credential) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		copied := *f.result
		return &copied, nil
	}
	return &Credential{
		AccessToken:  "refreshed-access",
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry() retry.RetryConfig {
	return retry.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
}

func TestNoIntegrationWhenCredentialMissing(t *testing.T) {
	lc := NewLifecycle(newFakeStore(), map[Provider]Refresher{})
	_, err := lc.GetValidCredential(context.Background(), uuid.New(), ProviderGoogle)
	assert.ErrorIs(t, err, ErrNoIntegration)
}

func TestFreshCredentialReturnedWithoutRefresh(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:   bizID,
		Provider:     ProviderGoogle,
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}))

	refresher := &fakeRefresher{}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderGoogle: refresher})

	cred, err := lc.GetValidCredential(context.Background(), bizID, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "live-token", cred.AccessToken)
	assert.Equal(t, 0, refresher.callCount())
}

func TestExpiringCredentialRefreshedAndPersisted(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:   bizID,
		Provider:     ProviderGoogle,
		AccessToken:  "stale-token",
		RefreshToken: "refresh",
		AccountEmail: "owner@example.com",
		ExpiresAt:    time.Now().Add(1 * time.Minute), // inside the 5m skew
	}))

	refresher := &fakeRefresher{}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderGoogle: refresher})
	lc.SetRetryConfig(fastRetry())

	cred, err := lc.GetValidCredential(context.Background(), bizID, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", cred.AccessToken)
	assert.Equal(t, 1, refresher.callCount())
	assert.Equal(t, "owner@example.com", cred.AccountEmail, "metadata survives refresh")

	stored, err := store.Get(context.Background(), bizID, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", stored.AccessToken, "refreshed credential is persisted")
}

func TestRefreshTokenKeptWhenResponseOmitsIt(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:   bizID,
		Provider:     ProviderHubspot,
		AccessToken:  "stale",
		RefreshToken: "original-refresh",
		ExpiresAt:    time.Now().Add(-1 * time.Minute),
	}))

	refresher := &fakeRefresher{result: &Credential{
		AccessToken: "new-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderHubspot: refresher})
	lc.SetRetryConfig(fastRetry())

	cred, err := lc.GetValidCredential(context.Background(), bizID, ProviderHubspot)
	require.NoError(t, err)
	assert.Equal(t, "original-refresh", cred.RefreshToken)
}

func TestRefreshFailureSurfacedAsRefreshFailed(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:   bizID,
		Provider:     ProviderZoho,
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-1 * time.Minute),
	}))

	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderZoho: refresher})
	lc.SetRetryConfig(fastRetry())

	_, err := lc.GetValidCredential(context.Background(), bizID, ProviderZoho)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 1, refresher.callCount(), "invalid_grant is not transient, no retry")
}

func TestOdooNeverRefreshes(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:  bizID,
		Provider:    ProviderOdoo,
		AccessToken: "api-key",
		Endpoint:    "https://erp.example.com",
		AccountID:   "proddb",
		ExpiresAt:   time.Now().Add(-24 * time.Hour), // would be long expired if it were OAuth
	}))

	refresher := &fakeRefresher{}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderOdoo: refresher})

	cred, err := lc.GetValidCredential(context.Background(), bizID, ProviderOdoo)
	require.NoError(t, err)
	assert.Equal(t, "api-key", cred.AccessToken)
	assert.Equal(t, 0, refresher.callCount())
}

func TestConcurrentRefreshForSamePairIsSerialized(t *testing.T) {
	store := newFakeStore()
	bizID := uuid.New()
	require.NoError(t, store.Upsert(context.Background(), &Credential{
		BusinessID:   bizID,
		Provider:     ProviderGoogle,
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(1 * time.Minute),
	}))

	refresher := &fakeRefresher{}
	lc := NewLifecycle(store, map[Provider]Refresher{ProviderGoogle: refresher})
	lc.SetRetryConfig(fastRetry())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := lc.GetValidCredential(context.Background(), bizID, ProviderGoogle)
			assert.NoError(t, err)
			assert.Equal(t, "refreshed-access", cred.AccessToken)
		}()
	}
	wg.Wait()

	// First caller refreshes and pushes expiry an hour out; the rest see a
	// fresh credential and skip refresh.
	assert.Equal(t, 1, refresher.callCount())
}
