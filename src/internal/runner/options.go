package runner

import (
	"github.com/gh-nvat/ci-guard/src/pkg/policy"
	"github.com/gh-nvat/ci-guard/src/pkg/section"
)

const (
	RUN_MODE_GITHUB = "github"
	RUN_MODE_LOCAL  = "local"
)

type Options struct {
	// Run mode
	RunMode string // "github" publishes to the PR, "local" only exports files
	Debug   bool   // Debug mode

	// Common options
	WorkDir                       string
	PolicyFile                    string
	TemplatesPath                 string
	OutputDir                     string
	EnableExportReport            bool
	EnableExportPerformanceReport bool
	GitHubOutput                  string // $GITHUB_OUTPUT step output file

	// Policy fallbacks, used for anything the policy file leaves out
	CorePackages        []string
	AuditFailOn         string
	AuditProductionOnly bool

	// Captured tool output, read instead of running npm
	AuditReportPath    string
	OutdatedReportPath string

	// GitHub mode options
	GhRepo      string
	GhPrNumber  int
	GhApiUrl    string
	GhServerUrl string
	GhRunId     int // links reports to the workflow run and its artifacts

	// Release preview options
	Branch          string
	ReleaseConfig   string
	StrippedPlugins []string

	// Generic publishing (comment / section commands)
	Marker      string
	StartMarker string
	EndMarker   string
	BodyFile    string
}

// Target is the PR the run reports to. It is invalid in local mode.
func (o *Options) Target() section.Target {
	if o.RunMode != RUN_MODE_GITHUB {
		return section.Target{}
	}
	return section.Target{Repo: o.GhRepo, Number: o.GhPrNumber}
}

func (o *Options) PolicyFallbacks() policy.Fallbacks {
	return policy.Fallbacks{
		CorePackages:        o.CorePackages,
		AuditFailOn:         o.AuditFailOn,
		AuditProductionOnly: o.AuditProductionOnly,
	}
}
