package decision

import (
	"time"

	"github.com/focusgate/focusgate/internal/guard/domain"
)

// RuleSource supplies the rules that could apply to a host, in list order.
type RuleSource interface {
	Matching(host string) []domain.Rule
}

// BypassReader answers whether a host currently holds a live bypass.
type BypassReader interface {
	IsLive(host string, now time.Time, durationMinutes int) bool
}

// SettingsSource supplies the current global settings snapshot.
type SettingsSource interface {
	Current() domain.Settings
}
