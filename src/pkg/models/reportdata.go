package models

import "time"

// RenderedReport is the human and machine readable output of a check
type RenderedReport struct {
	Markdown string `json:"markdown"`
	Status   string `json:"status"`
}

// ReportData is exported as report.json when enabled
type ReportData struct {
	Check     string    `json:"check"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`

	PolicySource string   `json:"policySource,omitempty"`
	Threshold    Severity `json:"threshold,omitempty"`

	Audit   *ClassifiedReport `json:"audit,omitempty"`
	Deps    *DepCheckResult   `json:"deps,omitempty"`
	Release *ReleasePreview   `json:"release,omitempty"`
}

// ReleasePreview is the outcome of a semantic-release dry run for a PR branch
type ReleasePreview struct {
	Branch    string `json:"branch"`
	Version   string `json:"version,omitempty"`
	// Published is set once the preview is written to the PR description
	Published bool `json:"published"`
}
