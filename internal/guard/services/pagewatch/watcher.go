// Package pagewatch is the per-page evaluator: it keeps in-memory
// settings/rule snapshots subscribed to store changes, re-evaluates the
// current host on navigation, on change events, and on a periodic tick, and
// drives the challenge manager while a block verdict stands.
package pagewatch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
	"github.com/focusgate/focusgate/internal/guard/repos/bypass"
	"github.com/focusgate/focusgate/internal/guard/repos/rules"
	"github.com/focusgate/focusgate/internal/guard/services/challenge"
	"github.com/focusgate/focusgate/internal/guard/services/decision"
)

// recheckInterval catches time-slot boundary crossings, which produce no
// storage change event.
const recheckInterval = 60 * time.Second

// Coordinator is the slice of the background hub the watcher reports to.
type Coordinator interface {
	ChallengeCompleted(ctx context.Context, host string) error
	RecordBlockedVisit(ctx context.Context, host string) error
}

// PageState is what a front end needs after evaluating a page: the verdict
// and, for a soft block, the live challenge to render.
type PageState struct {
	Host      string          `json:"host"`
	Verdict   domain.Verdict  `json:"verdict"`
	Challenge *challenge.View `json:"challenge,omitempty"`
}

// Watcher tracks one current page. It implements the settings source for the
// decision and challenge services and the completion sink for the manager.
type Watcher struct {
	store       kvstore.Store
	rules       *rules.Repository
	bypassCache *bypass.Cache
	coord       Coordinator
	clk         clock.Clock
	logger      log.Logger

	evaluator *decision.Evaluator
	manager   *challenge.Manager

	mu       sync.RWMutex
	settings domain.Settings
	host     string
}

// Options carries the Watcher collaborators.
type Options struct {
	Store            kvstore.Store
	Rules            *rules.Repository
	Bypass           *bypass.Cache
	Coordinator      Coordinator
	Clock            clock.Clock
	Logger           log.Logger
	VerdictCacheSize int
}

// New constructs the Watcher along with its evaluator and challenge manager,
// loading the initial settings snapshot.
func New(opts Options) (*Watcher, error) {
	w := &Watcher{
		store:       opts.Store,
		rules:       opts.Rules,
		bypassCache: opts.Bypass,
		coord:       opts.Coordinator,
		clk:         opts.Clock,
		logger:      opts.Logger,
	}
	evaluator, err := decision.NewEvaluator(decision.EvaluatorOptions{
		Rules:     opts.Rules,
		Bypass:    opts.Bypass,
		Settings:  w,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		CacheSize: opts.VerdictCacheSize,
	})
	if err != nil {
		return nil, err
	}
	w.evaluator = evaluator
	w.manager = challenge.NewManager(challenge.ManagerOptions{
		Settings: w,
		Sink:     w,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	})
	if err := w.refreshSettings(); err != nil {
		return nil, err
	}
	return w, nil
}

// Current returns the cached settings snapshot.
func (w *Watcher) Current() domain.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

// Manager exposes the challenge manager for the messaging surface.
func (w *Watcher) Manager() *challenge.Manager { return w.manager }

// HandleNavigation evaluates a navigated URL, records a blocked visit, and
// shows the challenge for a soft block. Hard blocks present no challenge;
// the overlay simply stands.
func (w *Watcher) HandleNavigation(ctx context.Context, rawURL string) (PageState, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return PageState{}, fmt.Errorf("unparseable navigation target %q", rawURL)
	}
	host := decision.NormalizeHost(u.Hostname())

	w.mu.Lock()
	w.host = host
	w.mu.Unlock()

	verdict := w.evaluator.Evaluate(host)
	state := PageState{Host: host, Verdict: verdict}
	if !verdict.Blocked {
		w.manager.Dismiss(host)
		return state, nil
	}

	if err := w.coord.RecordBlockedVisit(ctx, host); err != nil {
		// The block stands even when the counter write fails.
		w.logger.Error(map[string]any{"host": host, "error": err}, "failed to record blocked visit")
	}
	if !verdict.IsHard() {
		view := w.manager.Show(host).View()
		state.Challenge = &view
	}
	return state, nil
}

// State re-evaluates the current page without counting a new visit.
func (w *Watcher) State(host string) PageState {
	host = decision.NormalizeHost(host)
	verdict := w.evaluator.Evaluate(host)
	state := PageState{Host: host, Verdict: verdict}
	if verdict.Blocked && !verdict.IsHard() {
		if s, ok := w.manager.Active(host); ok {
			view := s.View()
			state.Challenge = &view
		}
	}
	return state
}

// ChallengeCompleted implements the manager's completion sink: grant the
// bypass, drop the stale verdict, and report the completion upstream.
func (w *Watcher) ChallengeCompleted(host string) {
	w.bypassCache.Grant(host, w.clk.Now())
	w.evaluator.Invalidate(host)
	if err := w.coord.ChallengeCompleted(context.Background(), host); err != nil {
		w.logger.Error(map[string]any{"host": host, "error": err}, "failed to record challenge completion")
	}
}

// Run processes store change events and the periodic re-check until ctx is
// cancelled. Every change event resubscribes the in-memory snapshots; the
// tick only needs to flush verdicts, since time is the input that changed.
func (w *Watcher) Run(ctx context.Context) {
	changes, cancel := w.store.Subscribe()
	defer cancel()

	ticker := time.NewTicker(recheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			w.handleChange(change)
		case <-ticker.C:
			w.evaluator.InvalidateAll()
			w.recheck()
		}
	}
}

func (w *Watcher) handleChange(change kvstore.Change) {
	switch {
	case change.Namespace == kvstore.NamespaceSynced && change.Key == kvstore.KeySettings:
		if err := w.refreshSettings(); err != nil {
			w.logger.Error(map[string]any{"error": err}, "failed to refresh settings")
			return
		}
	case change.Namespace == kvstore.NamespaceSynced && change.Key == kvstore.KeyRules:
		if err := w.rules.Reload(); err != nil {
			w.logger.Error(map[string]any{"error": err}, "failed to reload rules")
			return
		}
	default:
		return
	}
	w.evaluator.InvalidateAll()
	w.recheck()
}

// recheck re-evaluates the current page and clears the challenge when the
// verdict no longer blocks, including the settings.enabled=false case.
func (w *Watcher) recheck() {
	w.mu.RLock()
	host := w.host
	w.mu.RUnlock()
	if host == "" {
		return
	}
	verdict := w.evaluator.Evaluate(host)
	if !verdict.Blocked {
		w.manager.Dismiss(host)
		return
	}
	if !verdict.IsHard() {
		w.manager.Show(host)
	}
}

func (w *Watcher) refreshSettings() error {
	var settings domain.Settings
	found, err := w.store.Get(kvstore.NamespaceSynced, kvstore.KeySettings, &settings)
	if err != nil {
		return err
	}
	if !found {
		settings = domain.DefaultSettings()
	}
	w.mu.Lock()
	w.settings = settings
	w.mu.Unlock()
	return nil
}

var _ decision.SettingsSource = (*Watcher)(nil)
var _ challenge.SettingsSource = (*Watcher)(nil)
var _ challenge.CompletionSink = (*Watcher)(nil)
