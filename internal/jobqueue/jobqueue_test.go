package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

type fakeLister struct {
	creds map[string]*credentials.Credential
	err   error
}

func key(businessID uuid.UUID, provider credentials.Provider) string {
	return businessID.String() + "/" + string(provider)
}

func (f *fakeLister) ListExpiring(_ context.Context, _ time.Time) ([]*credentials.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*credentials.Credential
	for _, c := range f.creds {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeLister) Get(_ context.Context, businessID uuid.UUID, provider credentials.Provider) (*credentials.Credential, error) {
	return f.creds[key(businessID, provider)], nil
}

func (f *fakeLister) Upsert(_ context.Context, c *credentials.Credential) error {
	f.creds[key(c.BusinessID, c.Provider)] = c
	return nil
}

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(_ context.Context, cred *credentials.Credential) (*credentials.Credential, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	fresh := *cred
	fresh.AccessToken = "fresh"
	fresh.ExpiresAt = time.Now().Add(time.Hour)
	return &fresh, nil
}

func fastRetry() retry.RetryConfig {
	return retry.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func expiringCred(provider credentials.Provider) *credentials.Credential {
	return &credentials.Credential{
		BusinessID:   uuid.New(),
		Provider:     provider,
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}
}

func TestSweepRefreshesExpiringCredentials(t *testing.T) {
	google := expiringCred(credentials.ProviderGoogle)
	store := &fakeLister{creds: map[string]*credentials.Credential{
		key(google.BusinessID, google.Provider): google,
	}}
	refresher := &countingRefresher{}
	lc := credentials.NewLifecycle(store, map[credentials.Provider]credentials.Refresher{
		credentials.ProviderGoogle: refresher,
	})
	lc.SetRetryConfig(fastRetry())
	worker := &RefreshSweepWorker{store: store, lifecycle: lc}

	require.NoError(t, worker.Work(context.Background(), nil))
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "fresh", store.creds[key(google.BusinessID, credentials.ProviderGoogle)].AccessToken)
}

func TestSweepSkipsAPIKeyProviders(t *testing.T) {
	odoo := expiringCred(credentials.ProviderOdoo)
	store := &fakeLister{creds: map[string]*credentials.Credential{
		key(odoo.BusinessID, odoo.Provider): odoo,
	}}
	refresher := &countingRefresher{}
	lc := credentials.NewLifecycle(store, map[credentials.Provider]credentials.Refresher{
		credentials.ProviderGoogle: refresher,
	})
	worker := &RefreshSweepWorker{store: store, lifecycle: lc}

	require.NoError(t, worker.Work(context.Background(), nil))
	assert.Zero(t, refresher.calls)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	broken := expiringCred(credentials.ProviderGoogle)
	healthy := expiringCred(credentials.ProviderHubspot)
	store := &fakeLister{creds: map[string]*credentials.Credential{
		key(broken.BusinessID, broken.Provider):   broken,
		key(healthy.BusinessID, healthy.Provider): healthy,
	}}
	googleRefresher := &countingRefresher{err: errors.New("invalid_grant")}
	hubspotRefresher := &countingRefresher{}
	lc := credentials.NewLifecycle(store, map[credentials.Provider]credentials.Refresher{
		credentials.ProviderGoogle:  googleRefresher,
		credentials.ProviderHubspot: hubspotRefresher,
	})
	lc.SetRetryConfig(fastRetry())
	worker := &RefreshSweepWorker{store: store, lifecycle: lc}

	// A failed tenant refresh is logged, not returned.
	require.NoError(t, worker.Work(context.Background(), nil))
	assert.Equal(t, 1, googleRefresher.calls)
	assert.Equal(t, 1, hubspotRefresher.calls)
}

func TestSweepListFailureIsReturned(t *testing.T) {
	store := &fakeLister{err: errors.New("db down")}
	lc := credentials.NewLifecycle(&fakeLister{creds: map[string]*credentials.Credential{}}, nil)
	worker := &RefreshSweepWorker{store: store, lifecycle: lc}

	assert.Error(t, worker.Work(context.Background(), nil))
}
