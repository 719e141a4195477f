// Package challenge drives the friction step shown before a soft-blocked
// host can be visited: a state machine over three variants (arithmetic,
// countdown, third-party Turnstile widget) whose completion grants a bypass.
package challenge

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/domain"
)

// State is the session lifecycle. Completed is terminal.
type State uint8

const (
	NotStarted State = iota
	InProgress
	Completed
)

// String returns a stable representation of the state.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// errorDisplay is how long a wrong-answer message stays visible.
const errorDisplay = 3 * time.Second

// defaultWait is the countdown length used when settings carry none.
const defaultWait = 30

// Session is one challenge attempt for one host. Not safe for concurrent
// use; the Manager serializes access.
type Session struct {
	id      string
	host    string
	state   State
	variant domain.ChallengeType

	clk clock.Clock
	rng *rand.Rand

	// math
	num1, num2 int
	answer     int
	errUntil   time.Time

	// countdown
	remaining int

	// turnstile
	siteKey string
}

// NewSession prepares a session for host from the current settings. The
// variant is fixed at start: turnstile without a site key degrades to math
// immediately. The session begins in NotStarted; call Start.
func NewSession(host string, settings domain.Settings, clk clock.Clock, rng *rand.Rand) *Session {
	s := &Session{
		id:      uuid.NewString(),
		host:    host,
		state:   NotStarted,
		variant: settings.ChallengeType,
		clk:     clk,
		rng:     rng,
		siteKey: settings.TurnstileKey,
	}
	if s.variant == domain.ChallengeTurnstile && s.siteKey == "" {
		s.variant = domain.ChallengeMath
	}
	if !s.variant.IsValid() {
		s.variant = domain.ChallengeMath
	}
	s.remaining = settings.WaitDuration
	if s.remaining <= 0 {
		s.remaining = defaultWait
	}
	return s
}

// ID returns the session identifier, used for log correlation.
func (s *Session) ID() string { return s.id }

// Host returns the host this session gates.
func (s *Session) Host() string { return s.host }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Variant returns the active challenge variant.
func (s *Session) Variant() domain.ChallengeType { return s.variant }

// Start moves NotStarted into InProgress, generating variant material.
func (s *Session) Start() {
	if s.state != NotStarted {
		return
	}
	s.state = InProgress
	if s.variant == domain.ChallengeMath {
		s.generateProblem()
	}
}

// generateProblem draws two integers in [1,10]; the answer is their sum.
func (s *Session) generateProblem() {
	s.num1 = s.rng.Intn(10) + 1
	s.num2 = s.rng.Intn(10) + 1
	s.answer = s.num1 + s.num2
}

// SubmitAnswer checks a math answer. An exact match completes the session;
// anything else shows a transient error and leaves the session in progress
// with no attempt limit. Raw input that is not an integer counts as wrong.
func (s *Session) SubmitAnswer(raw string) bool {
	if s.state != InProgress || s.variant != domain.ChallengeMath {
		return false
	}
	n, err := strconv.Atoi(raw)
	if err == nil && n == s.answer {
		s.state = Completed
		return true
	}
	s.errUntil = s.clk.Now().Add(errorDisplay)
	return false
}

// ErrorMessage returns the transient wrong-answer message, empty once it has
// auto-cleared.
func (s *Session) ErrorMessage() string {
	if s.clk.Now().Before(s.errUntil) {
		return "Incorrect answer. Try again!"
	}
	return ""
}

// Tick advances a countdown session by one second, completing it at zero.
func (s *Session) Tick() {
	if s.state != InProgress || s.variant != domain.ChallengeCountdown {
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		s.state = Completed
	}
}

// Remaining returns the countdown seconds left.
func (s *Session) Remaining() int { return s.remaining }

// SkipToMath lets the user opt out of the countdown into the math variant.
// The elapsed wait is discarded; this is a variant switch, not a completion.
func (s *Session) SkipToMath() {
	if s.state != InProgress || s.variant != domain.ChallengeCountdown {
		return
	}
	s.variant = domain.ChallengeMath
	s.generateProblem()
}

// WidgetSucceeded completes a turnstile session on the widget's success
// callback. The token itself is not re-verified; the widget is trusted the
// same way the extension trusted its callback.
func (s *Session) WidgetSucceeded() {
	if s.state != InProgress || s.variant != domain.ChallengeTurnstile {
		return
	}
	s.state = Completed
}

// WidgetFailed falls a turnstile session back to the math variant on a
// widget-reported error. Never a hard failure.
func (s *Session) WidgetFailed() {
	if s.state != InProgress || s.variant != domain.ChallengeTurnstile {
		return
	}
	s.variant = domain.ChallengeMath
	s.generateProblem()
}

// View is the render model a front end needs to draw the overlay. The
// correct answer is deliberately absent.
type View struct {
	ID        string               `json:"id"`
	Host      string               `json:"host"`
	State     string               `json:"state"`
	Variant   domain.ChallengeType `json:"variant"`
	Question  string               `json:"question,omitempty"`
	Remaining int                  `json:"remaining,omitempty"`
	SiteKey   string               `json:"siteKey,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// View snapshots the session for rendering.
func (s *Session) View() View {
	v := View{
		ID:      s.id,
		Host:    s.host,
		State:   s.state.String(),
		Variant: s.variant,
	}
	switch s.variant {
	case domain.ChallengeMath:
		v.Question = fmt.Sprintf("What is %d + %d?", s.num1, s.num2)
		v.Error = s.ErrorMessage()
	case domain.ChallengeCountdown:
		v.Remaining = s.remaining
	case domain.ChallengeTurnstile:
		v.SiteKey = s.siteKey
	}
	return v
}
