// Package coordinator is the background hub: it initializes first-run state,
// services the action-tagged messages from the popup and page surfaces,
// records blocked navigations, and runs the hourly statistics sweep.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
	"github.com/focusgate/focusgate/internal/guard/repos/rules"
	"github.com/focusgate/focusgate/internal/guard/repos/stats"
)

// pruneInterval is how often the retention sweep runs.
const pruneInterval = time.Hour

// ErrInvalidSettings is returned when a settingsUpdated payload fails
// validation; nothing is written.
var ErrInvalidSettings = errors.New("invalid settings")

// Service wires the repositories behind the messaging surface.
type Service struct {
	store    kvstore.Store
	rules    *rules.Repository
	stats    *stats.Repository
	clk      clock.Clock
	logger   log.Logger
	validate *validator.Validate
}

// Options carries the Service collaborators.
type Options struct {
	Store  kvstore.Store
	Rules  *rules.Repository
	Stats  *stats.Repository
	Clock  clock.Clock
	Logger log.Logger
}

// New constructs the Service and performs install-time initialization:
// default settings are written when absent. Rule and statistics migrations
// already ran inside their repositories.
func New(opts Options) (*Service, error) {
	s := &Service{
		store:    opts.Store,
		rules:    opts.Rules,
		stats:    opts.Stats,
		clk:      opts.Clock,
		logger:   opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	var existing domain.Settings
	found, err := s.store.Get(kvstore.NamespaceSynced, kvstore.KeySettings, &existing)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if !found {
		if err := s.store.Put(kvstore.NamespaceSynced, kvstore.KeySettings, domain.DefaultSettings()); err != nil {
			return nil, fmt.Errorf("seeding default settings: %w", err)
		}
		s.logger.Info(nil, "seeded default settings")
	}
	return s, nil
}

// DomainsUpdated replaces the whole rule list (the domainsUpdated message).
func (s *Service) DomainsUpdated(ctx context.Context, incoming []domain.Rule) error {
	if err := s.rules.ReplaceAll(incoming); err != nil {
		return err
	}
	s.logger.Info(map[string]any{"count": len(incoming)}, "blocked domains updated")
	return nil
}

// AddDomain normalizes and appends one domain (popup add box).
func (s *Service) AddDomain(ctx context.Context, raw string) (domain.Rule, error) {
	return s.rules.Add(raw)
}

// RemoveDomain deletes one rule by its normalized domain.
func (s *Service) RemoveDomain(ctx context.Context, name string) error {
	return s.rules.Remove(name)
}

// UpdateDomain replaces one rule in place (time-slot editor save).
func (s *Service) UpdateDomain(ctx context.Context, rule domain.Rule) error {
	return s.rules.Update(rule)
}

// Rules returns the ordered rule list for the popup.
func (s *Service) Rules(ctx context.Context) []domain.Rule {
	return s.rules.Snapshot()
}

// SettingsUpdated validates and persists a full settings record (the
// settingsUpdated message). Invalid records are rejected with nothing
// written.
func (s *Service) SettingsUpdated(ctx context.Context, settings domain.Settings) error {
	if err := s.validate.Struct(&settings); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.store.Put(kvstore.NamespaceSynced, kvstore.KeySettings, settings); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	s.logger.Info(map[string]any{
		"enabled":   settings.Enabled,
		"challenge": string(settings.ChallengeType),
	}, "settings updated")
	return nil
}

// Settings returns the persisted settings, falling back to defaults when the
// record is somehow absent.
func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	found, err := s.store.Get(kvstore.NamespaceSynced, kvstore.KeySettings, &settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if !found {
		return domain.DefaultSettings(), nil
	}
	return settings, nil
}

// ChallengeCompleted records a completion for host in today's bucket (the
// challengeCompleted message).
func (s *Service) ChallengeCompleted(ctx context.Context, host string) error {
	return s.stats.RecordCompletion(host, domain.DateKey(s.clk.Now()))
}

// RecordBlockedVisit counts one blocked navigation for host in today's
// bucket.
func (s *Service) RecordBlockedVisit(ctx context.Context, host string) error {
	return s.stats.RecordBlock(host, domain.DateKey(s.clk.Now()))
}

// Statistics returns a snapshot of the statistics record (the getStatistics
// message).
func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	return s.stats.Statistics()
}

// topDomainCount is how many domains the popup's busiest-domains list shows.
const topDomainCount = 5

// Overview is the derived statistics view the popup renders: today's
// headline numbers, the busiest domains, and the retention-window timeline.
type Overview struct {
	Today      domain.DaySummary    `json:"today"`
	TopDomains []domain.DomainTotal `json:"topDomains"`
	Timeline   []domain.DaySummary  `json:"timeline"`
}

// StatisticsOverview computes the popup's derived views from the current
// record.
func (s *Service) StatisticsOverview(ctx context.Context) (Overview, error) {
	record, err := s.stats.Statistics()
	if err != nil {
		return Overview{}, err
	}
	now := s.clk.Now()
	return Overview{
		Today:      record.Summary(domain.DateKey(now)),
		TopDomains: record.TopDomains(topDomainCount),
		Timeline:   record.Timeline(now, domain.RetentionDays),
	}, nil
}

// ResetStatistics clears all counters (the resetStatistics message).
// Irreversible; the surface asks for confirmation before sending it.
func (s *Service) ResetStatistics(ctx context.Context) error {
	if err := s.stats.Reset(); err != nil {
		return err
	}
	s.logger.Info(nil, "statistics reset")
	return nil
}

// Run performs one retention sweep immediately and then hourly until ctx is
// cancelled. The sweep is idempotent, so overlap with other writers is
// harmless.
func (s *Service) Run(ctx context.Context) {
	s.sweep()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	if _, err := s.stats.Prune(s.clk.Now()); err != nil {
		s.logger.Error(map[string]any{"error": err}, "statistics sweep failed")
	}
}
