package models

import "time"

// FixAvailable describes whether npm can resolve an advisory.
// The zero value means no fix; Available without Name means "yes" with no target package.
type FixAvailable struct {
	Available     bool   `json:"available"`
	Name          string `json:"name,omitempty"`
	Version       string `json:"version,omitempty"`
	IsSemVerMajor bool   `json:"isSemVerMajor,omitempty"`
}

func (f FixAvailable) String() string {
	switch {
	case !f.Available:
		return "no"
	case f.Name == "":
		return "yes"
	case f.Version == "":
		return f.Name
	default:
		return f.Name + "@" + f.Version
	}
}

// Advisory is one reported vulnerability affecting a dependency
type Advisory struct {
	ID           string       `json:"id"`
	Severity     Severity     `json:"severity"`
	Package      string       `json:"package"`
	Title        string       `json:"title"`
	FixAvailable FixAvailable `json:"fixAvailable"`
	URL          string       `json:"url,omitempty"`
}

// WaivedAdvisory is an advisory suppressed by an active allowlist entry
type WaivedAdvisory struct {
	Advisory
	Reason       string     `json:"reason"`
	Expires      *time.Time `json:"expires,omitempty"`
	ExpiringSoon bool       `json:"expiringSoon"`
}

const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusWarn = "warn"
)

// ClassifiedReport partitions the deduplicated advisories of one audit
type ClassifiedReport struct {
	Threshold      Severity         `json:"threshold"`
	Failing        []Advisory       `json:"failing"`
	Waived         []WaivedAdvisory `json:"waived"`
	BelowThreshold []Advisory       `json:"belowThreshold"`

	// RuleViolations are deny messages from the optional Rego rules
	RuleViolations []string `json:"ruleViolations,omitempty"`
}

// Total is the number of distinct advisories in the report
func (r *ClassifiedReport) Total() int {
	return len(r.Failing) + len(r.Waived) + len(r.BelowThreshold)
}

// Status is pass iff nothing fails the threshold and no rule denied the run
func (r *ClassifiedReport) Status() string {
	if len(r.Failing) == 0 && len(r.RuleViolations) == 0 {
		return StatusPass
	}
	return StatusFail
}

// CountBySeverity counts all advisories of the report, waived included
func (r *ClassifiedReport) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, a := range r.Failing {
		counts[a.Severity]++
	}
	for _, a := range r.Waived {
		counts[a.Severity]++
	}
	for _, a := range r.BelowThreshold {
		counts[a.Severity]++
	}
	return counts
}
