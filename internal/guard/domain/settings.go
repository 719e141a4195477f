package domain

import "fmt"

// ChallengeType selects the friction variant shown before granting a bypass.
type ChallengeType string

const (
	ChallengeMath      ChallengeType = "math"
	ChallengeCountdown ChallengeType = "countdown"
	ChallengeTurnstile ChallengeType = "turnstile"
)

// IsValid returns true for a known challenge type.
func (c ChallengeType) IsValid() bool {
	switch c {
	case ChallengeMath, ChallengeCountdown, ChallengeTurnstile:
		return true
	default:
		return false
	}
}

// Settings is the global, singleton configuration record. Field names on the
// wire match the legacy extension export format.
type Settings struct {
	// Enabled gates all blocking; false clears every verdict.
	Enabled bool `json:"enabled"`

	// ChallengeType picks the variant; turnstile silently degrades to math
	// when TurnstileKey is empty.
	ChallengeType ChallengeType `json:"challengeType" validate:"oneof=math countdown turnstile"`

	// TurnstileKey is the third-party widget site key.
	TurnstileKey string `json:"turnstileKey"`

	// WaitDuration is the countdown length in seconds.
	WaitDuration int `json:"waitDuration" validate:"gte=0,lte=3600"`

	// BypassDuration is the grace period in minutes after a completed challenge.
	BypassDuration int `json:"bypassDuration" validate:"gte=1,lte=1440"`
}

// DefaultSettings returns the record written on first run.
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		ChallengeType:  ChallengeMath,
		TurnstileKey:   "",
		WaitDuration:   30,
		BypassDuration: 10,
	}
}

// Validate checks value ranges without a validator instance, for callers
// inside the domain layer. Surfaces additionally run struct-tag validation.
func (s Settings) Validate() error {
	if !s.ChallengeType.IsValid() {
		return fmt.Errorf("unsupported ChallengeType: %q", s.ChallengeType)
	}
	if s.WaitDuration < 0 {
		return fmt.Errorf("waitDuration must not be negative: %d", s.WaitDuration)
	}
	if s.BypassDuration < 1 {
		return fmt.Errorf("bypassDuration must be at least one minute: %d", s.BypassDuration)
	}
	return nil
}
