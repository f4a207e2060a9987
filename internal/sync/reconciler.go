package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nupkan/permhub/internal/manifest"
)

const (
	maxAttempts  = 3
	attemptDelay = 2 * time.Second
)

// Observer receives reconciliation outcomes, typically for metrics.
type Observer interface {
	ObserveSync(outcome string)
}

// Outcomes reported to the Observer.
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Result is the local view of one reconciliation run.
type Result struct {
	Summary Summary
	Removed []RemovedFunction
	// Skipped is true when the manifest hash matched the last successful
	// run and no network call was made.
	Skipped bool
}

// Reconciler diffs the local manifest against the registry and converges
// them. It remembers the hash of the last successfully synced manifest and
// skips the network entirely while the file is unchanged.
type Reconciler struct {
	client       *Client
	manifestPath string
	logger       *slog.Logger
	observer     Observer

	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastHash string
}

// NewReconciler constructs a Reconciler. observer may be nil.
func NewReconciler(client *Client, manifestPath string, logger *slog.Logger, observer Observer) *Reconciler {
	return &Reconciler{
		client:       client,
		manifestPath: manifestPath,
		logger:       logger,
		observer:     observer,
		attempts:     maxAttempts,
		delay:        attemptDelay,
		sleep:        sleepCtx,
	}
}

// Reconcile loads the manifest and pushes it to the registry. A missing or
// malformed manifest fails immediately without touching the network.
// Transient registry failures retry with a fixed delay; after the attempts
// are exhausted the last error is returned and the stored hash stays put, so
// the next run retries the same payload.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	m, err := manifest.Load(r.manifestPath)
	if err != nil {
		r.observe(OutcomeFailed)
		return Result{}, err
	}
	hash, err := m.Hash()
	if err != nil {
		r.observe(OutcomeFailed)
		return Result{}, err
	}

	r.mu.Lock()
	unchanged := hash != "" && hash == r.lastHash
	r.mu.Unlock()
	if unchanged {
		if r.logger != nil {
			r.logger.Debug("manifest unchanged, skipping sync", slog.String("hash", hash))
		}
		r.observe(OutcomeSkipped)
		return Result{Skipped: true}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		summary, removed, err := r.client.SyncFunctions(ctx, m)
		if err == nil {
			r.mu.Lock()
			r.lastHash = hash
			r.mu.Unlock()
			if r.logger != nil {
				r.logger.Info("manifest synced",
					slog.String("system", m.System.ID),
					slog.Int("total", summary.Total),
					slog.Int("created", summary.Created),
					slog.Int("updated", summary.Updated),
					slog.Int("unchanged", summary.Unchanged),
					slog.Int("removed", summary.Removed))
			}
			for _, fn := range removed {
				if r.logger != nil {
					r.logger.Warn("capability missing from manifest, retained in registry",
						slog.String("key", fn.Key), slog.String("name", fn.Name))
				}
			}
			r.observe(OutcomeSynced)
			return Result{Summary: summary, Removed: removed}, nil
		}
		lastErr = err
		if r.logger != nil {
			r.logger.Warn("manifest sync attempt failed",
				slog.Int("attempt", attempt), slog.Any("error", err))
		}
		if attempt < r.attempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				r.observe(OutcomeFailed)
				return Result{}, err
			}
		}
	}
	r.observe(OutcomeFailed)
	return Result{}, lastErr
}

// LastHash returns the hash of the last successfully synced manifest.
func (r *Reconciler) LastHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHash
}

func (r *Reconciler) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveSync(outcome)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
