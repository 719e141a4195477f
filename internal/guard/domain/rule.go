package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidDomain is returned when a raw domain input cannot be normalized
// into a registrable host of label-dot-tld shape.
var ErrInvalidDomain = errors.New("invalid domain")

// domainPattern is the accepted shape after normalization: one or more
// hyphen-safe labels followed by an alphabetic TLD of at least two characters.
var domainPattern = regexp.MustCompile(`^([a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)

// BlockType describes how strictly a rule is enforced.
//
// soft - a completed challenge grants a temporary bypass
// hard - unconditional while the rule is active, no bypass consulted
type BlockType string

const (
	BlockSoft BlockType = "soft"
	BlockHard BlockType = "hard"
)

// IsValid returns true for a known block type.
func (b BlockType) IsValid() bool {
	return b == BlockSoft || b == BlockHard
}

// Rule represents a single blocking rule for a registrable domain.
//
// Notes:
// - Domain is stored normalized: lower-cased, no scheme, no leading www.,
//   no trailing slash (see NormalizeDomain).
// - TimeSlots only apply when AlwaysBlock is false.
// - Field names on the wire match the legacy extension export format.
type Rule struct {
	Domain      string     `json:"domain"`
	TimeSlots   []TimeSlot `json:"timeSlots"`
	AlwaysBlock bool       `json:"alwaysBlock"`
	BlockType   BlockType  `json:"blockType"`
}

// NewRule constructs a Rule with the default shape given to freshly added
// domains: always blocked, soft, no schedule.
func NewRule(raw string) (Rule, error) {
	name, err := NormalizeDomain(raw)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Domain:      name,
		TimeSlots:   []TimeSlot{},
		AlwaysBlock: true,
		BlockType:   BlockSoft,
	}, nil
}

// NormalizeDomain lowers the input and strips scheme, leading "www." and any
// trailing path before validating the remainder. Inputs that are bare public
// suffixes ("com", "co.uk") are rejected: they would match essentially the
// whole internet via the subdomain rule.
func NormalizeDomain(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "www.")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	if !domainPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
	}
	if suffix, _ := publicsuffix.PublicSuffix(name); suffix == name {
		return "", fmt.Errorf("%w: %q is a public suffix", ErrInvalidDomain, raw)
	}
	return name, nil
}

// Matches reports whether host falls under this rule: either the rule domain
// itself or a strict subdomain of it.
func (r Rule) Matches(host string) bool {
	return host == r.Domain || strings.HasSuffix(host, "."+r.Domain)
}

// Validate checks the Rule for structural consistency. Scheduled rules must
// carry at least one valid time slot; every slot must itself validate.
func (r Rule) Validate() error {
	if !domainPattern.MatchString(r.Domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, r.Domain)
	}
	if !r.BlockType.IsValid() {
		return fmt.Errorf("unsupported BlockType: %q", r.BlockType)
	}
	if r.AlwaysBlock {
		return nil
	}
	for i, slot := range r.TimeSlots {
		if err := slot.Validate(); err != nil {
			return fmt.Errorf("time slot %d: %w", i, err)
		}
	}
	return nil
}
