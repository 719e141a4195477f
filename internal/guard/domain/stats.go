package domain

import (
	"sort"
	"time"
)

// RetentionDays is the rolling window of daily buckets kept by the pruner.
const RetentionDays = 14

// DomainDayStats is a single domain's counters within one daily bucket.
type DomainDayStats struct {
	Attempts  int `json:"attempts"`
	Completed int `json:"completed"`
}

// DayStats is one daily bucket of counters keyed by "YYYY-MM-DD".
type DayStats struct {
	BlockedAttempts     int                       `json:"blockedAttempts"`
	ChallengesCompleted int                       `json:"challengesCompleted"`
	Domains             map[string]DomainDayStats `json:"domains"`
}

// LegacyDomainStats is the pre-daily per-domain counter shape, retained for
// backward compatibility and updated in lockstep with the daily buckets.
type LegacyDomainStats struct {
	Challenges    int    `json:"challenges"`
	Completed     int    `json:"completed"`
	LastCompleted string `json:"lastCompleted,omitempty"` // RFC 3339, empty until first completion
}

// Statistics is the full persisted statistics record: daily buckets plus the
// legacy flat counters the original format used.
type Statistics struct {
	DailyStats          map[string]DayStats          `json:"dailyStats"`
	TotalChallenges     int                          `json:"totalChallenges"`
	CompletedChallenges int                          `json:"completedChallenges"`
	BlockedVisits       int                          `json:"blockedVisits"`
	DomainStats         map[string]LegacyDomainStats `json:"domainStats"`
}

// NewStatistics returns an empty, fully initialized record.
func NewStatistics() Statistics {
	return Statistics{
		DailyStats:  map[string]DayStats{},
		DomainStats: map[string]LegacyDomainStats{},
	}
}

// DateKey renders an instant as the fixed-width bucket key "YYYY-MM-DD" (UTC).
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CutoffDate returns the oldest retained date key for the given "today":
// buckets strictly older than this are prunable.
func CutoffDate(today time.Time) string {
	return DateKey(today.Add(-RetentionDays * 24 * time.Hour))
}

// ensureDay lazily creates the zero-initialized bucket for date.
func (s *Statistics) ensureDay(date string) DayStats {
	if s.DailyStats == nil {
		s.DailyStats = map[string]DayStats{}
	}
	day, ok := s.DailyStats[date]
	if !ok {
		day = DayStats{Domains: map[string]DomainDayStats{}}
		s.DailyStats[date] = day
	}
	if day.Domains == nil {
		day.Domains = map[string]DomainDayStats{}
		s.DailyStats[date] = day
	}
	return day
}

// RecordBlock counts one blocked attempt for host on the given date, in both
// the daily bucket and the legacy counters.
func (s *Statistics) RecordBlock(host, date string) {
	day := s.ensureDay(date)
	day.BlockedAttempts++
	dd := day.Domains[host]
	dd.Attempts++
	day.Domains[host] = dd
	s.DailyStats[date] = day

	s.BlockedVisits++
	s.TotalChallenges++
	if s.DomainStats == nil {
		s.DomainStats = map[string]LegacyDomainStats{}
	}
	ld := s.DomainStats[host]
	ld.Challenges++
	s.DomainStats[host] = ld
}

// RecordCompletion counts one completed challenge for host on the given date,
// stamping the legacy lastCompleted field with now.
func (s *Statistics) RecordCompletion(host, date string, now time.Time) {
	day := s.ensureDay(date)
	day.ChallengesCompleted++
	dd := day.Domains[host]
	dd.Completed++
	day.Domains[host] = dd
	s.DailyStats[date] = day

	s.CompletedChallenges++
	if s.DomainStats == nil {
		s.DomainStats = map[string]LegacyDomainStats{}
	}
	ld := s.DomainStats[host]
	ld.Completed++
	ld.LastCompleted = now.UTC().Format(time.RFC3339)
	s.DomainStats[host] = ld
}

// Prune deletes every daily bucket strictly older than cutoff. Lexical
// comparison is safe because keys are fixed-width and zero-padded. Returns
// the number of buckets removed; re-running with nothing to prune is a no-op.
func (s *Statistics) Prune(cutoff string) int {
	removed := 0
	for date := range s.DailyStats {
		if date < cutoff {
			delete(s.DailyStats, date)
			removed++
		}
	}
	return removed
}

// NeedsMigration reports whether the record is still in the pre-daily shape.
func (s Statistics) NeedsMigration() bool {
	return s.DailyStats == nil
}

// MigrateLegacy folds the pre-daily totals into today's bucket, preserving
// the legacy fields unchanged alongside. One-way: records that already carry
// dailyStats are returned as-is.
func MigrateLegacy(s Statistics, today string) Statistics {
	if !s.NeedsMigration() {
		return s
	}
	day := DayStats{
		BlockedAttempts:     s.TotalChallenges,
		ChallengesCompleted: s.CompletedChallenges,
		Domains:             map[string]DomainDayStats{},
	}
	for host, ld := range s.DomainStats {
		day.Domains[host] = DomainDayStats{Attempts: ld.Challenges, Completed: ld.Completed}
	}
	s.DailyStats = map[string]DayStats{today: day}
	if s.DomainStats == nil {
		s.DomainStats = map[string]LegacyDomainStats{}
	}
	return s
}

// Clone returns a deep copy so snapshots handed to surfaces cannot alias the
// stored maps.
func (s Statistics) Clone() Statistics {
	out := Statistics{
		TotalChallenges:     s.TotalChallenges,
		CompletedChallenges: s.CompletedChallenges,
		BlockedVisits:       s.BlockedVisits,
		DailyStats:          make(map[string]DayStats, len(s.DailyStats)),
		DomainStats:         make(map[string]LegacyDomainStats, len(s.DomainStats)),
	}
	for date, day := range s.DailyStats {
		cp := DayStats{
			BlockedAttempts:     day.BlockedAttempts,
			ChallengesCompleted: day.ChallengesCompleted,
			Domains:             make(map[string]DomainDayStats, len(day.Domains)),
		}
		for host, dd := range day.Domains {
			cp.Domains[host] = dd
		}
		out.DailyStats[date] = cp
	}
	for host, ld := range s.DomainStats {
		out.DomainStats[host] = ld
	}
	return out
}

// DaySummary is the popup's headline view of a single day.
type DaySummary struct {
	Date                string `json:"date"`
	BlockedAttempts     int    `json:"blockedAttempts"`
	ChallengesCompleted int    `json:"challengesCompleted"`
	SuccessRate         int    `json:"successRate"` // percent of attempts not bypassed
}

// Summary computes the headline numbers for one date. The rate divides
// (attempts - completed) by attempts and can go negative when completions
// outrun attempts across a midnight boundary; it is reported as-is.
func (s Statistics) Summary(date string) DaySummary {
	day := s.DailyStats[date]
	sum := DaySummary{
		Date:                date,
		BlockedAttempts:     day.BlockedAttempts,
		ChallengesCompleted: day.ChallengesCompleted,
	}
	if day.BlockedAttempts > 0 {
		ratio := float64(day.BlockedAttempts-day.ChallengesCompleted) / float64(day.BlockedAttempts)
		sum.SuccessRate = int(ratio*100 + 0.5)
		if ratio < 0 {
			sum.SuccessRate = int(ratio*100 - 0.5)
		}
	}
	return sum
}

// DomainTotal is a domain's counters aggregated across all retained days.
type DomainTotal struct {
	Domain    string `json:"domain"`
	Attempts  int    `json:"attempts"`
	Completed int    `json:"completed"`
}

// TopDomains aggregates per-domain counters over every retained day and
// returns the n busiest domains by attempts, descending. Ties break on the
// domain name to keep output stable.
func (s Statistics) TopDomains(n int) []DomainTotal {
	totals := map[string]DomainTotal{}
	for _, day := range s.DailyStats {
		for host, dd := range day.Domains {
			t := totals[host]
			t.Domain = host
			t.Attempts += dd.Attempts
			t.Completed += dd.Completed
			totals[host] = t
		}
	}
	out := make([]DomainTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return out[i].Domain < out[j].Domain
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Timeline returns the last `days` calendar days ending at today,
// oldest-first, with zero-filled gaps for days without activity.
func (s Statistics) Timeline(today time.Time, days int) []DaySummary {
	out := make([]DaySummary, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := DateKey(today.Add(-time.Duration(i) * 24 * time.Hour))
		out = append(out, s.Summary(date))
	}
	return out
}
