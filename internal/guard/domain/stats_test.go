package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics_RecordBlockAndCompletion(t *testing.T) {
	s := NewStatistics()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	date := DateKey(now)

	s.RecordBlock("x.com", date)
	s.RecordBlock("x.com", date)
	s.RecordCompletion("x.com", date, now)

	day := s.DailyStats[date]
	assert.Equal(t, 2, day.BlockedAttempts)
	assert.Equal(t, 1, day.ChallengesCompleted)
	assert.Equal(t, DomainDayStats{Attempts: 2, Completed: 1}, day.Domains["x.com"])

	// legacy counters move in lockstep
	assert.Equal(t, 2, s.BlockedVisits)
	assert.Equal(t, 2, s.TotalChallenges)
	assert.Equal(t, 1, s.CompletedChallenges)
	ld := s.DomainStats["x.com"]
	assert.Equal(t, 2, ld.Challenges)
	assert.Equal(t, 1, ld.Completed)
	assert.Equal(t, "2024-01-01T10:00:00Z", ld.LastCompleted)
}

func TestDateKey_UTC(t *testing.T) {
	// Local-time instants bucket by their UTC date.
	loc := time.FixedZone("UTC+10", 10*3600)
	late := time.Date(2024, 3, 5, 8, 0, 0, 0, loc) // 2024-03-04 22:00 UTC
	assert.Equal(t, "2024-03-04", DateKey(late))
}

func TestStatistics_Prune(t *testing.T) {
	s := NewStatistics()
	today := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

	s.RecordBlock("old.com", "2024-06-01")  // beyond retention
	s.RecordBlock("edge.com", "2024-06-06") // exactly at cutoff, kept
	s.RecordBlock("new.com", DateKey(today))

	cutoff := CutoffDate(today)
	require.Equal(t, "2024-06-06", cutoff)

	removed := s.Prune(cutoff)
	assert.Equal(t, 1, removed)
	assert.NotContains(t, s.DailyStats, "2024-06-01")
	assert.Contains(t, s.DailyStats, "2024-06-06")
	assert.Contains(t, s.DailyStats, "2024-06-20")

	// legacy totals are never pruned
	assert.Equal(t, 3, s.BlockedVisits)

	// idempotent
	assert.Zero(t, s.Prune(cutoff))
}

func TestMigrateLegacy(t *testing.T) {
	legacy := Statistics{
		TotalChallenges:     5,
		CompletedChallenges: 3,
		BlockedVisits:       5,
		DomainStats: map[string]LegacyDomainStats{
			"x.com": {Challenges: 5, Completed: 3},
		},
	}
	require.True(t, legacy.NeedsMigration())

	migrated := MigrateLegacy(legacy, "2024-01-01")
	require.False(t, migrated.NeedsMigration())

	day := migrated.DailyStats["2024-01-01"]
	assert.Equal(t, 5, day.BlockedAttempts)
	assert.Equal(t, 3, day.ChallengesCompleted)
	assert.Equal(t, DomainDayStats{Attempts: 5, Completed: 3}, day.Domains["x.com"])

	// legacy fields survive unchanged
	assert.Equal(t, 5, migrated.TotalChallenges)
	assert.Equal(t, LegacyDomainStats{Challenges: 5, Completed: 3}, migrated.DomainStats["x.com"])

	// one-way: already-migrated records pass through untouched
	again := MigrateLegacy(migrated, "2024-02-02")
	assert.NotContains(t, again.DailyStats, "2024-02-02")
}

func TestStatistics_Summary(t *testing.T) {
	s := NewStatistics()
	date := "2024-01-01"
	for i := 0; i < 4; i++ {
		s.RecordBlock("x.com", date)
	}
	s.RecordCompletion("x.com", date, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	sum := s.Summary(date)
	assert.Equal(t, 4, sum.BlockedAttempts)
	assert.Equal(t, 1, sum.ChallengesCompleted)
	assert.Equal(t, 75, sum.SuccessRate)

	// day with no activity
	empty := s.Summary("2024-01-02")
	assert.Zero(t, empty.BlockedAttempts)
	assert.Zero(t, empty.SuccessRate)
}

func TestStatistics_Summary_NegativeRate(t *testing.T) {
	// Completions can outrun attempts across a midnight boundary; the rate
	// goes negative and is reported as-is.
	s := NewStatistics()
	date := "2024-01-01"
	s.RecordBlock("x.com", date)
	now := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	s.RecordCompletion("x.com", date, now)
	s.RecordCompletion("x.com", date, now)

	sum := s.Summary(date)
	assert.Equal(t, -100, sum.SuccessRate)
}

func TestStatistics_TopDomains(t *testing.T) {
	s := NewStatistics()
	s.RecordBlock("b.com", "2024-01-01")
	s.RecordBlock("b.com", "2024-01-02")
	s.RecordBlock("a.com", "2024-01-01")
	s.RecordBlock("c.com", "2024-01-01")

	top := s.TopDomains(2)
	require.Len(t, top, 2)
	assert.Equal(t, DomainTotal{Domain: "b.com", Attempts: 2}, top[0])
	// tie between a.com and c.com breaks on name
	assert.Equal(t, "a.com", top[1].Domain)

	assert.Len(t, s.TopDomains(10), 3)
	assert.Empty(t, NewStatistics().TopDomains(5))
}

func TestStatistics_Timeline(t *testing.T) {
	s := NewStatistics()
	today := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	s.RecordBlock("x.com", "2024-01-01")
	s.RecordBlock("x.com", "2024-01-03")

	line := s.Timeline(today, 3)
	require.Len(t, line, 3)
	assert.Equal(t, "2024-01-01", line[0].Date)
	assert.Equal(t, 1, line[0].BlockedAttempts)
	assert.Equal(t, "2024-01-02", line[1].Date)
	assert.Zero(t, line[1].BlockedAttempts)
	assert.Equal(t, "2024-01-03", line[2].Date)
	assert.Equal(t, 1, line[2].BlockedAttempts)
}

func TestStatistics_Clone(t *testing.T) {
	s := NewStatistics()
	s.RecordBlock("x.com", "2024-01-01")

	cp := s.Clone()
	cp.RecordBlock("x.com", "2024-01-01")
	cp.DailyStats["2024-01-01"].Domains["y.com"] = DomainDayStats{Attempts: 9}

	assert.Equal(t, 1, s.DailyStats["2024-01-01"].BlockedAttempts)
	assert.NotContains(t, s.DailyStats["2024-01-01"].Domains, "y.com")
	assert.Equal(t, 1, s.BlockedVisits)
}
