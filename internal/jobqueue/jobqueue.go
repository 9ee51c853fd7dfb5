/*
Package jobqueue runs the background credential refresh sweep on a
River-based job queue.

The sweep keeps OAuth access tokens warm so inbound messages rarely pay
refresh latency: every interval it lists credentials expiring inside the
sweep window and refreshes them ahead of time. A sweep failure is never
fatal; the request path still refreshes on demand.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
)

const (
	// SweepWindow is how far ahead of expiry the sweep refreshes.
	SweepWindow = 30 * time.Minute

	// DefaultSweepInterval is how often the sweep runs.
	DefaultSweepInterval = 10 * time.Minute

	maxWorkers = 4
)

// expiringLister is the slice of credentials.Store the sweep reads from.
type expiringLister interface {
	ListExpiring(ctx context.Context, deadline time.Time) ([]*credentials.Credential, error)
}

// RefreshSweepArgs is the periodic sweep job. It carries no payload; each
// run re-reads the expiring set.
type RefreshSweepArgs struct{}

// Kind returns the job kind for River
func (RefreshSweepArgs) Kind() string { return "credential_refresh_sweep" }

// RefreshSweepWorker refreshes every credential expiring inside the
// window. Individual refresh failures are logged and skipped; the tenant
// may have revoked access, which only they can fix.
type RefreshSweepWorker struct {
	river.WorkerDefaults[RefreshSweepArgs]
	store     expiringLister
	lifecycle *credentials.Lifecycle
}

// Work performs one sweep.
func (w *RefreshSweepWorker) Work(ctx context.Context, _ *river.Job[RefreshSweepArgs]) error {
	deadline := time.Now().Add(SweepWindow)
	expiring, err := w.store.ListExpiring(ctx, deadline)
	if err != nil {
		return fmt.Errorf("failed to list expiring credentials: %w", err)
	}

	refreshed, failed := 0, 0
	for _, cred := range expiring {
		if !cred.Provider.RequiresOAuth() {
			continue
		}
		if _, err := w.lifecycle.ForceRefresh(ctx, cred.BusinessID, cred.Provider); err != nil {
			failed++
			log.Warn().
				Err(err).
				Str("business_id", cred.BusinessID.String()).
				Str("provider", string(cred.Provider)).
				Msg("sweep refresh failed")
			continue
		}
		refreshed++
	}

	log.Info().
		Int("expiring", len(expiring)).
		Int("refreshed", refreshed).
		Int("failed", failed).
		Msg("credential refresh sweep completed")
	return nil
}

// JobQueue manages the River client running the sweep.
type JobQueue struct {
	client *river.Client[pgx.Tx]
}

// NewJobQueue creates the queue with the sweep scheduled periodically.
// interval <= 0 uses the default.
func NewJobQueue(pool *pgxpool.Pool, store *credentials.Store, lifecycle *credentials.Lifecycle, interval time.Duration) (*JobQueue, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &RefreshSweepWorker{store: store, lifecycle: lifecycle})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(interval),
				func() (river.JobArgs, *river.InsertOpts) {
					return RefreshSweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}
