package models

import (
	"strings"
	"time"
)

// Severity is the vulnerability severity reported by the scanner
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// FailOnLevels are the severities accepted as an audit threshold, highest first
var FailOnLevels = []Severity{SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow}

// Rank orders severities: critical(4) > high(3) > moderate(2) > low(1) > info/unknown(0)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityModerate:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a scanner severity string, unknown values map to info
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow:
		return sev
	case "medium":
		return SeverityModerate
	default:
		return SeverityInfo
	}
}

// IsFailOnLevel reports whether s can be used as an audit threshold
func (s Severity) IsFailOnLevel() bool {
	for _, lvl := range FailOnLevels {
		if s == lvl {
			return true
		}
	}
	return false
}

// PolicyConfig is the resolved dependency policy for one invocation.
// It is built once from the policy document plus fallbacks and never mutated afterwards.
type PolicyConfig struct {
	// CorePackages keeps declaration order
	CorePackages        []string
	AuditFailOn         Severity
	AuditProductionOnly bool
	// Allowlist maps advisory id to its waiver
	Allowlist map[string]AllowlistEntry
	// RulesPath is an optional Rego module evaluated after classification
	RulesPath string
	// SourcePath is the policy document the config was read from, empty when fallbacks were used
	SourcePath string
}

// AllowlistEntry waives a single advisory, optionally until Expires (inclusive)
type AllowlistEntry struct {
	ID      string     `json:"id"`
	Reason  string     `json:"reason"`
	Expires *time.Time `json:"expires,omitempty"`
}

// ActiveOn reports whether the waiver still applies on the given day
func (e AllowlistEntry) ActiveOn(today time.Time) bool {
	if e.Expires == nil {
		return true
	}
	return !truncateDay(*e.Expires).Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
