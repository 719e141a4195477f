// Package rules is the Domain Rule Store: the ordered list of blocking rules,
// persisted through the synced namespace of the key-value store, with a bloom
// pre-filter so hosts that cannot match any rule are early-allowed without
// scanning the list.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
)

var (
	// ErrDuplicateDomain is returned when adding a domain already present.
	ErrDuplicateDomain = errors.New("domain already in block list")
	// ErrUnknownDomain is returned when removing or updating an absent rule.
	ErrUnknownDomain = errors.New("domain not in block list")
)

// Repository holds the in-memory rule snapshot and keeps it in sync with the
// store. All mutations persist first and commit to memory only on success, so
// a failed write never leaves phantom rules.
type Repository struct {
	mu     sync.RWMutex
	store  kvstore.Store
	logger log.Logger
	fpRate float64
	rules  []domain.Rule
	bloom  *bloom.BloomFilter
}

// New constructs the repository and performs the initial load, including the
// one-way migration from the legacy flat domain list.
func New(store kvstore.Store, logger log.Logger, fpRate float64) (*Repository, error) {
	r := &Repository{store: store, logger: logger, fpRate: fpRate}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the rule list from the store, migrating legacy state when
// the V2 key is absent. Safe to call on every change notification.
func (r *Repository) Reload() error {
	var loaded []domain.Rule
	found, err := r.store.Get(kvstore.NamespaceSynced, kvstore.KeyRules, &loaded)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if !found {
		loaded, err = r.migrate()
		if err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.rules = loaded
	r.bloom = buildBloom(loaded, r.fpRate)
	r.mu.Unlock()
	return nil
}

// migrate folds the legacy flat string list into V2 rules exactly once and
// persists the result. The legacy key is left untouched afterwards.
func (r *Repository) migrate() ([]domain.Rule, error) {
	var legacy []string
	found, err := r.store.Get(kvstore.NamespaceSynced, kvstore.KeyLegacyRules, &legacy)
	if err != nil {
		return nil, fmt.Errorf("loading legacy rules: %w", err)
	}
	migrated := make([]domain.Rule, 0, len(legacy))
	if found {
		for _, name := range legacy {
			migrated = append(migrated, domain.Rule{
				Domain:      name,
				TimeSlots:   []domain.TimeSlot{},
				AlwaysBlock: true,
				BlockType:   domain.BlockSoft,
			})
		}
		r.logger.Info(map[string]any{"count": len(migrated)}, "migrated legacy domain list")
	}
	if err := r.store.Put(kvstore.NamespaceSynced, kvstore.KeyRules, migrated); err != nil {
		return nil, fmt.Errorf("persisting migrated rules: %w", err)
	}
	return migrated, nil
}

// Snapshot returns a copy of the ordered rule list.
func (r *Repository) Snapshot() []domain.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Matching returns the rules whose domain matches host, preserving list
// order. The bloom filter early-allows hosts with no possible match.
func (r *Repository) Matching(host string) []domain.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.rules) == 0 || !r.mightMatch(host) {
		return nil
	}
	var out []domain.Rule
	for _, rule := range r.rules {
		if rule.Matches(host) {
			out = append(out, rule)
		}
	}
	return out
}

// mightMatch tests host and each parent suffix against the bloom filter.
// Must be called with the read lock held.
func (r *Repository) mightMatch(host string) bool {
	if r.bloom == nil {
		return true
	}
	for name := host; name != ""; {
		if r.bloom.Test([]byte(name)) {
			return true
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[i+1:]
	}
	return false
}

// Add normalizes raw, validates it, and appends a rule with the default
// shape. Duplicate domains are rejected with no state written.
func (r *Repository) Add(raw string) (domain.Rule, error) {
	rule, err := domain.NewRule(raw)
	if err != nil {
		return domain.Rule{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.Domain == rule.Domain {
			return domain.Rule{}, fmt.Errorf("%w: %q", ErrDuplicateDomain, rule.Domain)
		}
	}
	next := append(append([]domain.Rule{}, r.rules...), rule)
	if err := r.commit(next); err != nil {
		return domain.Rule{}, err
	}
	return rule, nil
}

// Remove deletes the rule for name from the list.
func (r *Repository) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Rule, 0, len(r.rules))
	removed := false
	for _, rule := range r.rules {
		if rule.Domain == name {
			removed = true
			continue
		}
		next = append(next, rule)
	}
	if !removed {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
	return r.commit(next)
}

// Update replaces the rule with the same domain in place, after validating
// the replacement (including its time slots).
func (r *Repository) Update(rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Rule, len(r.rules))
	copy(next, r.rules)
	for i, existing := range next {
		if existing.Domain == rule.Domain {
			next[i] = rule
			return r.commit(next)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownDomain, rule.Domain)
}

// ReplaceAll swaps the entire list, validating every rule first. Used by the
// domainsUpdated message, whose payload is the full list.
func (r *Repository) ReplaceAll(incoming []domain.Rule) error {
	seen := make(map[string]bool, len(incoming))
	for i, rule := range incoming {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[rule.Domain] {
			return fmt.Errorf("%w: %q", ErrDuplicateDomain, rule.Domain)
		}
		seen[rule.Domain] = true
	}
	next := make([]domain.Rule, len(incoming))
	copy(next, incoming)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit(next)
}

// Len returns the number of rules.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// commit persists next and, only on success, swaps the snapshot and rebuilds
// the bloom filter. Must be called with the write lock held.
func (r *Repository) commit(next []domain.Rule) error {
	if err := r.store.Put(kvstore.NamespaceSynced, kvstore.KeyRules, next); err != nil {
		r.logger.Error(map[string]any{"error": err}, "failed to persist rule list")
		return fmt.Errorf("persisting rules: %w", err)
	}
	r.rules = next
	r.bloom = buildBloom(next, r.fpRate)
	return nil
}

// buildBloom sizes a fresh filter for the rule set. Nil when the list is
// empty; Matching short-circuits on length anyway.
func buildBloom(set []domain.Rule, fpRate float64) *bloom.BloomFilter {
	if len(set) == 0 {
		return nil
	}
	bf := bloom.NewWithEstimates(uint(len(set)), fpRate)
	for _, rule := range set {
		bf.Add([]byte(rule.Domain))
	}
	return bf
}
