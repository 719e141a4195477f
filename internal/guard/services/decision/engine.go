// Package decision holds the blocking-decision core: a pure verdict function
// over (rules, settings, bypass state, host, instant), and an Evaluator that
// wraps it with live sources and a per-host verdict cache.
package decision

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
)

// Decide produces the verdict for host at the given instant. It is a pure
// function of its inputs: identical arguments always yield identical
// verdicts. The rule order is the tie-break; the first rule that blocks wins.
//
// Hard blocks never consult the bypass cache. Soft blocks are lifted while
// host holds a bypass younger than settings.BypassDuration. A nil bypass
// reader behaves as "no bypasses".
func Decide(rules []domain.Rule, settings domain.Settings, bypass BypassReader, host string, now time.Time) domain.Verdict {
	if !settings.Enabled {
		return domain.AllowVerdict()
	}

	verdict := domain.AllowVerdict()
	day := domain.WeekdayOf(now.Weekday())
	minutes := now.Hour()*60 + now.Minute()

	for _, rule := range rules {
		if !rule.Matches(host) {
			continue
		}
		if rule.AlwaysBlock {
			verdict = domain.AlwaysBlockedVerdict(rule.BlockType)
			break
		}
		if slot, ok := domain.FirstMatchingSlot(rule.TimeSlots, day, minutes); ok {
			verdict = domain.ScheduledVerdict(rule.BlockType, slot)
			break
		}
	}

	if verdict.Blocked && verdict.BlockType == domain.BlockSoft && bypass != nil &&
		bypass.IsLive(host, now, settings.BypassDuration) {
		return domain.AllowVerdict()
	}
	return verdict
}

// NormalizeHost lowers a page hostname and strips a leading "www." so it
// lines up with stored rule domains.
func NormalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Evaluator binds the pure Decide function to live collaborators and caches
// verdicts per host. Cached verdicts are time-sensitive, so callers must
// invalidate on every input change (rule update, settings update, bypass
// grant) and on the periodic re-check tick that catches time-slot boundary
// crossings; the cache never outlives one tick interval of staleness.
type Evaluator struct {
	rules    RuleSource
	bypass   BypassReader
	settings SettingsSource
	clk      clock.Clock
	logger   log.Logger
	cache    *lru.Cache[string, domain.Verdict]
}

// EvaluatorOptions carries the Evaluator collaborators.
type EvaluatorOptions struct {
	Rules     RuleSource
	Bypass    BypassReader
	Settings  SettingsSource
	Clock     clock.Clock
	Logger    log.Logger
	CacheSize int // 0 disables verdict caching
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(opts EvaluatorOptions) (*Evaluator, error) {
	e := &Evaluator{
		rules:    opts.Rules,
		bypass:   opts.Bypass,
		settings: opts.Settings,
		clk:      opts.Clock,
		logger:   opts.Logger,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, domain.Verdict](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// Evaluate returns the verdict for a page hostname, serving a cached verdict
// when one is present.
func (e *Evaluator) Evaluate(host string) domain.Verdict {
	host = NormalizeHost(host)
	if e.cache != nil {
		if v, ok := e.cache.Get(host); ok {
			return v
		}
	}
	v := Decide(e.rules.Matching(host), e.settings.Current(), e.bypass, host, e.clk.Now())
	if v.Blocked {
		e.logger.Debug(map[string]any{
			"host":   host,
			"type":   string(v.BlockType),
			"reason": v.Reason,
		}, "host blocked")
	}
	if e.cache != nil {
		e.cache.Add(host, v)
	}
	return v
}

// Invalidate drops the cached verdict for one host.
func (e *Evaluator) Invalidate(host string) {
	if e.cache != nil {
		e.cache.Remove(NormalizeHost(host))
	}
}

// InvalidateAll purges every cached verdict.
func (e *Evaluator) InvalidateAll() {
	if e.cache != nil {
		e.cache.Purge()
	}
}
