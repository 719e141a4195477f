package domain

import "fmt"

// Verdict is the outcome of evaluating a host against the rule list.
// Pure value type, no external dependencies.
type Verdict struct {
	Blocked   bool      // true if any rule currently blocks the host
	BlockType BlockType // severity when blocked
	Reason    string    // human-readable explanation shown on the overlay
}

// AllowVerdict returns a not-blocked verdict.
func AllowVerdict() Verdict { return Verdict{Blocked: false} }

// AlwaysBlockedVerdict returns the verdict for a rule with AlwaysBlock set.
func AlwaysBlockedVerdict(t BlockType) Verdict {
	return Verdict{Blocked: true, BlockType: t, Reason: "Always blocked"}
}

// ScheduledVerdict returns the verdict for a matched time slot, with the
// slot's window rendered in 12-hour clock form.
func ScheduledVerdict(t BlockType, slot TimeSlot) Verdict {
	return Verdict{
		Blocked:   true,
		BlockType: t,
		Reason: fmt.Sprintf("Blocked during scheduled time (%s - %s)",
			Format12Hour(slot.StartTime), Format12Hour(slot.EndTime)),
	}
}

// IsHard reports whether the verdict is an unconditional hard block.
func (v Verdict) IsHard() bool { return v.Blocked && v.BlockType == BlockHard }
