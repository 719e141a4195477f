package challenge

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
)

// SettingsSource supplies the settings snapshot a new session is built from.
type SettingsSource interface {
	Current() domain.Settings
}

// CompletionSink receives the side effects of a finished challenge: the
// bypass grant and the statistics completion event.
type CompletionSink interface {
	ChallengeCompleted(host string)
}

// Manager owns at most one live session per host, so showing the overlay is
// idempotent, and drives countdown ticks.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	settings SettingsSource
	sink     CompletionSink
	clk      clock.Clock
	logger   log.Logger
	rng      *rand.Rand
}

// ManagerOptions carries the Manager collaborators. Rand may be nil, in
// which case a time-seeded source is used.
type ManagerOptions struct {
	Settings SettingsSource
	Sink     CompletionSink
	Clock    clock.Clock
	Logger   log.Logger
	Rand     *rand.Rand
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) *Manager {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Clock.Now().UnixNano()))
	}
	return &Manager{
		sessions: make(map[string]*Session),
		settings: opts.Settings,
		sink:     opts.Sink,
		clk:      opts.Clock,
		logger:   opts.Logger,
		rng:      rng,
	}
}

// Show returns the live session for host, creating and starting one when
// none exists. A second Show for the same host never spawns a second
// session.
func (m *Manager) Show(host string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[host]; ok {
		return s
	}
	s := NewSession(host, m.settings.Current(), m.clk, m.rng)
	s.Start()
	m.sessions[host] = s
	m.logger.Debug(map[string]any{
		"session": s.ID(),
		"host":    host,
		"variant": string(s.Variant()),
	}, "challenge shown")
	return s
}

// Active returns the live session for host, if any.
func (m *Manager) Active(host string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[host]
	return s, ok
}

// Dismiss drops the session for host without completing it. Used when the
// verdict lifts (blocking disabled, rule removed, slot ended).
func (m *Manager) Dismiss(host string) {
	m.mu.Lock()
	delete(m.sessions, host)
	m.mu.Unlock()
}

// SubmitAnswer routes a math answer to the host's session and finishes it on
// a correct submission. Returns whether the answer completed the challenge.
func (m *Manager) SubmitAnswer(host, raw string) bool {
	return m.drive(host, func(s *Session) { s.SubmitAnswer(raw) })
}

// SkipToMath switches the host's countdown session to the math variant.
func (m *Manager) SkipToMath(host string) {
	m.drive(host, func(s *Session) { s.SkipToMath() })
}

// WidgetSucceeded completes the host's turnstile session.
func (m *Manager) WidgetSucceeded(host string) bool {
	return m.drive(host, func(s *Session) { s.WidgetSucceeded() })
}

// WidgetFailed falls the host's turnstile session back to math.
func (m *Manager) WidgetFailed(host string) {
	m.drive(host, func(s *Session) { s.WidgetFailed() })
}

// drive applies fn to the host's session under the lock and performs
// completion side effects when the session reaches its terminal state.
// Reports whether the session completed.
func (m *Manager) drive(host string, fn func(*Session)) bool {
	m.mu.Lock()
	s, ok := m.sessions[host]
	if !ok {
		m.mu.Unlock()
		return false
	}
	fn(s)
	done := s.State() == Completed
	if done {
		delete(m.sessions, host)
	}
	m.mu.Unlock()

	if done {
		m.finish(s)
	}
	return done
}

// finish emits the completion side effects outside the lock.
func (m *Manager) finish(s *Session) {
	m.logger.Info(map[string]any{
		"session": s.ID(),
		"host":    s.Host(),
		"variant": string(s.Variant()),
	}, "challenge completed")
	m.sink.ChallengeCompleted(s.Host())
}

// Run decrements countdown sessions once per second until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TickAll()
		}
	}
}

// TickAll advances every countdown session by one second, finishing those
// that reach zero. Exposed for deterministic tests.
func (m *Manager) TickAll() {
	m.mu.Lock()
	var finished []*Session
	for host, s := range m.sessions {
		s.Tick()
		if s.State() == Completed {
			delete(m.sessions, host)
			finished = append(finished, s)
		}
	}
	m.mu.Unlock()

	for _, s := range finished {
		m.finish(s)
	}
}
