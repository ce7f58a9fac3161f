package runner

import (
	"fmt"

	"github.com/gh-nvat/ci-guard/src/pkg/depcheck"
	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/gh-nvat/ci-guard/src/pkg/policy"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"
)

// DepsRunner reports major-version drift of the policy core packages.
// Its verdict is pass or warn, it never fails the step.
type DepsRunner struct {
	RunnerBase

	Source depcheck.Source
	Policy *models.PolicyConfig
}

var _ RunnerInterface = (*DepsRunner)(nil)

func NewDepsRunner(base *RunnerBase, source depcheck.Source) (*DepsRunner, error) {
	if base == nil || source == nil {
		return nil, fmt.Errorf("runner base and outdated source are required")
	}
	return &DepsRunner{RunnerBase: *base, Source: source}, nil
}

func (r *DepsRunner) Initialize() error {
	cfg, err := policy.Load(r.Options.PolicyFile, r.Options.PolicyFallbacks())
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}
	r.Policy = cfg
	logger.WithField("corePackages", cfg.CorePackages).Info("Initializing runner: done.")
	return nil
}

func (r *DepsRunner) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	result := &models.DepCheckResult{Updates: []models.PackageUpdate{}, UpToDate: []string{}}
	if len(r.Policy.CorePackages) == 0 {
		logger.Warn("No core packages configured, nothing to check")
	} else {
		outdatedCtx, outdatedSpan := trace.StartSpan(ctx, "Outdated")
		raw, err := r.Source.Outdated(outdatedCtx)
		outdatedSpan.End()
		if err != nil {
			return fmt.Errorf("failed to list outdated packages: %w", err)
		}
		result, err = depcheck.Check(raw, r.Policy.CorePackages)
		if err != nil {
			return err
		}
	}

	rendered, err := r.Renderer.RenderDeps(result)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	data := &models.ReportData{
		Check:        "deps",
		Timestamp:    r.Now(),
		Status:       rendered.Status,
		PolicySource: r.Policy.SourcePath,
		Deps:         result,
	}
	if err := r.Output(data, rendered); err != nil {
		return err
	}

	outcome := r.Publisher.Comment(ctx, template.DepsCommentMarker, rendered.Markdown)
	logger.WithField("action", outcome.Action).Debug("Published dependency report")

	for _, u := range result.Updates {
		if u.IsMajor() {
			logger.WithField("current", u.Current).WithField("latest", u.Latest).
				Warnf("Core package %s is behind by a major version", u.Name)
		}
	}
	logger.WithField("status", rendered.Status).Info("Process: done.")
	return nil
}
