// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	apperrors "portfolio-sync/internal/errors"
	"portfolio-sync/internal/model"
	"portfolio-sync/internal/reconcile"
	"portfolio-sync/internal/syncgate"
)

// scheduledPassTimeout bounds one scheduled pass. The ticker context has no
// deadline of its own, and a pass stuck on a stalled provider would otherwise
// hold the sync lock until shutdown.
const scheduledPassTimeout = 2 * time.Minute

// Fetcher lists the account's repositories from the provider.
type Fetcher interface {
	FetchRepositories(ctx context.Context) ([]model.RawRepo, error)
}

// Store is the persistence surface the syncer needs.
type Store interface {
	AllProjects(ctx context.Context) ([]model.Project, error)
	UpsertBatch(ctx context.Context, upserts []model.Project, hide []int64, syncedAt time.Time) error
	GetSyncState(ctx context.Context) (model.SyncState, error)
	RecordSync(ctx context.Context, at time.Time) error
	WithSyncLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

// Syncer orchestrates one reconciliation pass: gate check, fetch, reconcile,
// persist, record. Passes for the same account are serialized with an
// advisory lock so concurrent triggers cannot double-append or double-hide.
type Syncer struct {
	store    Store
	fetcher  Fetcher
	logger   *slog.Logger
	account  string
	interval time.Duration
	now      func() time.Time
}

// New creates a Syncer. interval is the scheduler period for Start; the
// cache gate inside Sync is what actually limits how often work happens.
func New(store Store, fetcher Fetcher, logger *slog.Logger, account string, interval time.Duration) *Syncer {
	return &Syncer{
		store:    store,
		fetcher:  fetcher,
		logger:   logger,
		account:  account,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the scheduler loop until ctx is cancelled. The schedule owns the
// decision to sync; read requests never trigger one.
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler", "account", s.account, "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runScheduled(ctx) // Initial pass.

	for {
		select {
		case <-ticker.C:
			s.runScheduled(ctx)
		case <-ctx.Done():
			s.logger.Info("Sync scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Syncer) runScheduled(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, scheduledPassTimeout)
	defer cancel()

	result, err := s.Sync(ctx, false)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Scheduled sync failed", "error", err, "can_retry", result.CanRetry)
		return
	}
	if result.Synced {
		s.logger.Info("Scheduled sync finished", "count", result.Count)
	}
}

// Sync performs one gated reconciliation pass. force bypasses the cache gate
// but still records the sync time, resetting the window. The returned result
// is populated even when err is non-nil so callers can surface it.
func (s *Syncer) Sync(ctx context.Context, force bool) (model.SyncResult, error) {
	var result model.SyncResult
	err := s.store.WithSyncLock(ctx, s.lockKey(), func(ctx context.Context) error {
		var err error
		result, err = s.sync(ctx, force)
		return err
	})
	return result, err
}

func (s *Syncer) sync(ctx context.Context, force bool) (model.SyncResult, error) {
	logger := s.logger.With("account", s.account, "force", force)

	state, err := s.store.GetSyncState(ctx)
	if err != nil {
		return model.SyncResult{Message: "failed to read sync state"}, err
	}

	now := s.now()
	if !force && !syncgate.ShouldSync(state.LastSyncAt, state.CacheDurationMinutes, now) {
		wait := syncgate.MinutesUntilNextSync(state.LastSyncAt, state.CacheDurationMinutes, now)
		logger.Info("Sync declined by cache gate", "minutes_until_next", wait)
		return model.SyncResult{
			Synced:            false,
			Message:           fmt.Sprintf("cache window has not elapsed; next sync in %d minute(s)", wait),
			NextSyncInMinutes: wait,
			LastSyncAt:        state.LastSyncAt,
		}, nil
	}

	logger.Info("Starting sync pass")
	repos, err := s.fetcher.FetchRepositories(ctx)
	if err != nil {
		result := model.SyncResult{
			Synced:     false,
			Message:    "failed to fetch repositories",
			CanRetry:   true,
			LastSyncAt: state.LastSyncAt,
		}
		var fetchErr *apperrors.FetchError
		if errors.As(err, &fetchErr) {
			result.Message = fetchErr.Message
			if fetchErr.RateLimited {
				result.Message = "provider rate limit hit; wait before retrying"
			}
		}
		return result, err
	}

	existing, err := s.store.AllProjects(ctx)
	if err != nil {
		return model.SyncResult{Message: "failed to load existing projects", CanRetry: true}, err
	}

	out := reconcile.Reconcile(existing, repos, now)
	if out.DuplicatesDropped > 0 {
		logger.Warn("Dropped duplicate source ids from fetch", "count", out.DuplicatesDropped)
	}

	if err := s.store.UpsertBatch(ctx, out.Upserts, out.HiddenIDs, now); err != nil {
		// lastSyncAt stays put so the next attempt is not blocked by a
		// failed pass.
		return model.SyncResult{Message: "failed to persist reconciled projects", CanRetry: true}, err
	}

	syncedAt := s.now()
	if err := s.store.RecordSync(ctx, syncedAt); err != nil {
		return model.SyncResult{Message: "sync persisted but recording the sync time failed", CanRetry: true}, err
	}

	logger.Info("Sync pass finished",
		"created", out.Created, "updated", out.Updated, "hidden", out.Hidden)

	return model.SyncResult{
		Synced:     true,
		Count:      out.Touched(),
		Message:    fmt.Sprintf("synced %d project(s): %d created, %d updated, %d hidden", out.Touched(), out.Created, out.Updated, out.Hidden),
		LastSyncAt: &syncedAt,
	}, nil
}

// Status reports the gate's view without running a sync.
func (s *Syncer) Status(ctx context.Context) (model.CacheStatus, error) {
	state, err := s.store.GetSyncState(ctx)
	if err != nil {
		return model.CacheStatus{}, err
	}

	now := s.now()
	wait := syncgate.MinutesUntilNextSync(state.LastSyncAt, state.CacheDurationMinutes, now)
	return model.CacheStatus{
		LastSyncAt:           state.LastSyncAt,
		CacheDurationMinutes: state.CacheDurationMinutes,
		MinutesUntilNextSync: wait,
		CanSyncNow:           wait == 0,
	}, nil
}

// lockKey derives a stable advisory-lock key from the account name.
func (s *Syncer) lockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte("portfolio-sync/" + s.account))
	return int64(h.Sum64())
}
