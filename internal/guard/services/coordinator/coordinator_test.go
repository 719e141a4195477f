package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
	"github.com/focusgate/focusgate/internal/guard/repos/rules"
	"github.com/focusgate/focusgate/internal/guard/repos/stats"
)

var coordNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, kvstore.Store, *clock.MockClock) {
	t.Helper()
	store := kvstore.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	clk := &clock.MockClock{CurrentTime: coordNow}
	logger := log.NewNoopLogger()

	ruleRepo, err := rules.New(store, logger, 0.01)
	require.NoError(t, err)
	statRepo, err := stats.New(store, logger, clk)
	require.NoError(t, err)

	svc, err := New(Options{
		Store:  store,
		Rules:  ruleRepo,
		Stats:  statRepo,
		Clock:  clk,
		Logger: logger,
	})
	require.NoError(t, err)
	return svc, store, clk
}

func TestNew_SeedsDefaultSettings(t *testing.T) {
	svc, store, _ := newTestService(t)

	var seeded domain.Settings
	found, err := store.Get(kvstore.NamespaceSynced, kvstore.KeySettings, &seeded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.DefaultSettings(), seeded)

	got, err := svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)
}

func TestNew_PreservesExistingSettings(t *testing.T) {
	store := kvstore.NewMemStore()
	defer store.Close()
	custom := domain.DefaultSettings()
	custom.Enabled = false
	require.NoError(t, store.Put(kvstore.NamespaceSynced, kvstore.KeySettings, custom))

	clk := &clock.MockClock{CurrentTime: coordNow}
	logger := log.NewNoopLogger()
	ruleRepo, err := rules.New(store, logger, 0.01)
	require.NoError(t, err)
	statRepo, err := stats.New(store, logger, clk)
	require.NoError(t, err)
	svc, err := New(Options{Store: store, Rules: ruleRepo, Stats: statRepo, Clock: clk, Logger: logger})
	require.NoError(t, err)

	got, err := svc.Settings(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestService_DomainLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	rule, err := svc.AddDomain(ctx, "https://www.Example.com/")
	require.NoError(t, err)
	assert.Equal(t, "example.com", rule.Domain)

	rule.AlwaysBlock = false
	rule.TimeSlots = []domain.TimeSlot{
		{StartTime: "09:00", EndTime: "17:00", Days: []domain.Weekday{domain.Mon}},
	}
	require.NoError(t, svc.UpdateDomain(ctx, rule))

	got := svc.Rules(ctx)
	require.Len(t, got, 1)
	assert.False(t, got[0].AlwaysBlock)

	require.NoError(t, svc.RemoveDomain(ctx, "example.com"))
	assert.Empty(t, svc.Rules(ctx))
	assert.ErrorIs(t, svc.RemoveDomain(ctx, "example.com"), rules.ErrUnknownDomain)
}

func TestService_DomainsUpdated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	incoming := []domain.Rule{
		{Domain: "a.com", AlwaysBlock: true, BlockType: domain.BlockSoft},
		{Domain: "b.com", AlwaysBlock: true, BlockType: domain.BlockHard},
	}
	require.NoError(t, svc.DomainsUpdated(ctx, incoming))
	assert.Len(t, svc.Rules(ctx), 2)

	bad := []domain.Rule{{Domain: "UPPER.COM", AlwaysBlock: true, BlockType: domain.BlockSoft}}
	require.Error(t, svc.DomainsUpdated(ctx, bad))
	assert.Len(t, svc.Rules(ctx), 2, "rejected payload must not replace the list")
}

func TestService_SettingsUpdated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	next := domain.DefaultSettings()
	next.ChallengeType = domain.ChallengeCountdown
	next.WaitDuration = 60
	require.NoError(t, svc.SettingsUpdated(ctx, next))

	got, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	bad := domain.DefaultSettings()
	bad.ChallengeType = "puzzle"
	err = svc.SettingsUpdated(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	bad = domain.DefaultSettings()
	bad.BypassDuration = 0
	assert.ErrorIs(t, svc.SettingsUpdated(ctx, bad), ErrInvalidSettings)

	// last good record is untouched
	got, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestService_StatisticsFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordBlockedVisit(ctx, "x.com"))
	require.NoError(t, svc.RecordBlockedVisit(ctx, "x.com"))
	require.NoError(t, svc.ChallengeCompleted(ctx, "x.com"))

	s, err := svc.Statistics(ctx)
	require.NoError(t, err)
	day := s.DailyStats["2024-01-15"]
	assert.Equal(t, 2, day.BlockedAttempts)
	assert.Equal(t, 1, day.ChallengesCompleted)

	require.NoError(t, svc.ResetStatistics(ctx))
	s, err = svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.BlockedVisits)
	assert.Empty(t, s.DailyStats)
}

func TestService_StatisticsOverview(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RecordBlockedVisit(ctx, "busy.com"))
	}
	require.NoError(t, svc.RecordBlockedVisit(ctx, "quiet.com"))
	require.NoError(t, svc.ChallengeCompleted(ctx, "busy.com"))

	overview, err := svc.StatisticsOverview(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", overview.Today.Date)
	assert.Equal(t, 4, overview.Today.BlockedAttempts)
	assert.Equal(t, 1, overview.Today.ChallengesCompleted)
	assert.Equal(t, 75, overview.Today.SuccessRate)

	require.Len(t, overview.TopDomains, 2)
	assert.Equal(t, "busy.com", overview.TopDomains[0].Domain)
	assert.Equal(t, 3, overview.TopDomains[0].Attempts)

	require.Len(t, overview.Timeline, domain.RetentionDays)
	assert.Equal(t, "2024-01-15", overview.Timeline[domain.RetentionDays-1].Date)
	assert.Zero(t, overview.Timeline[0].BlockedAttempts)
}

func TestService_SweepPrunesOldBuckets(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordBlockedVisit(ctx, "x.com"))

	// a month later the bucket falls outside retention
	clk.Advance(31 * 24 * time.Hour)
	svc.sweep()

	s, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.DailyStats)
	assert.Equal(t, 1, s.BlockedVisits)
}
