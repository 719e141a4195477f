// Package stats is the Statistics Aggregator: daily-bucketed counters for
// blocked attempts and challenge completions, persisted in the local
// namespace of the key-value store, with legacy flat counters maintained in
// lockstep and a rolling 14-day retention sweep.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
)

// Repository performs full read-modify-write cycles against the store. The
// daemon handles messages concurrently, so every cycle runs under the repo
// mutex to keep the increment invariants.
type Repository struct {
	mu     sync.Mutex
	store  kvstore.Store
	logger log.Logger
	clk    clock.Clock
}

// New constructs the repository, seeding an empty record on first run and
// migrating a pre-daily record when one is found.
func New(store kvstore.Store, logger log.Logger, clk clock.Clock) (*Repository, error) {
	r := &Repository{store: store, logger: logger, clk: clk}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, found, err := r.load()
	if err != nil {
		return nil, err
	}
	switch {
	case !found:
		if err := r.save(domain.NewStatistics()); err != nil {
			return nil, err
		}
	case current.NeedsMigration():
		today := domain.DateKey(clk.Now())
		if err := r.save(domain.MigrateLegacy(current, today)); err != nil {
			return nil, err
		}
		r.logger.Info(map[string]any{"into": today}, "migrated legacy statistics")
	}
	return r, nil
}

// RecordBlock counts one blocked attempt for host in the bucket for date.
func (r *Repository) RecordBlock(host, date string) error {
	return r.mutate(func(s *domain.Statistics) {
		s.RecordBlock(host, date)
	})
}

// RecordCompletion counts one completed challenge for host in the bucket for
// date, stamping the legacy lastCompleted field with the current time.
func (r *Repository) RecordCompletion(host, date string) error {
	now := r.clk.Now()
	return r.mutate(func(s *domain.Statistics) {
		s.RecordCompletion(host, date, now)
	})
}

// Statistics returns a deep-copied snapshot of the current record.
func (r *Repository) Statistics() (domain.Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, found, err := r.load()
	if err != nil {
		return domain.Statistics{}, err
	}
	if !found {
		return domain.NewStatistics(), nil
	}
	return current.Clone(), nil
}

// Reset clears all daily and legacy counters. Irreversible; confirmation is
// the caller's concern.
func (r *Repository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(domain.NewStatistics())
}

// Prune drops buckets older than today minus the retention window and
// reports how many were removed. Idempotent; skips the write when nothing
// was pruned.
func (r *Repository) Prune(today time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, found, err := r.load()
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	removed := current.Prune(domain.CutoffDate(today))
	if removed == 0 {
		return 0, nil
	}
	if err := r.save(current); err != nil {
		return 0, err
	}
	r.logger.Info(map[string]any{"removed": removed}, "pruned statistics buckets")
	return removed, nil
}

// mutate runs one locked read-modify-write cycle.
func (r *Repository) mutate(apply func(*domain.Statistics)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, found, err := r.load()
	if err != nil {
		return err
	}
	if !found {
		current = domain.NewStatistics()
	}
	apply(&current)
	return r.save(current)
}

func (r *Repository) load() (domain.Statistics, bool, error) {
	var s domain.Statistics
	found, err := r.store.Get(kvstore.NamespaceLocal, kvstore.KeyStatistics, &s)
	if err != nil {
		return domain.Statistics{}, false, fmt.Errorf("loading statistics: %w", err)
	}
	return s, found, nil
}

func (r *Repository) save(s domain.Statistics) error {
	if err := r.store.Put(kvstore.NamespaceLocal, kvstore.KeyStatistics, s); err != nil {
		r.logger.Error(map[string]any{"error": err}, "failed to persist statistics")
		return fmt.Errorf("persisting statistics: %w", err)
	}
	return nil
}
