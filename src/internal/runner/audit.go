package runner

import (
	"context"
	"fmt"

	"github.com/gh-nvat/ci-guard/src/pkg/audit"
	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/gh-nvat/ci-guard/src/pkg/policy"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"
)

// AuditRunner evaluates scanner advisories against the dependency policy
type AuditRunner struct {
	RunnerBase

	Scanner audit.Scanner
	Policy  *models.PolicyConfig
	Rules   *policy.RuleEvaluator
}

var _ RunnerInterface = (*AuditRunner)(nil)

func NewAuditRunner(base *RunnerBase, scanner audit.Scanner) (*AuditRunner, error) {
	if base == nil || scanner == nil {
		return nil, fmt.Errorf("runner base and scanner are required")
	}
	return &AuditRunner{RunnerBase: *base, Scanner: scanner}, nil
}

func (r *AuditRunner) Initialize() error {
	_, span := trace.StartSpan(r.Context, "Initialize")
	defer span.End()
	lg := logger.WithField("func", "AuditRunner.Initialize()")
	lg.Info("Initializing runner: starting...")

	cfg, err := policy.Load(r.Options.PolicyFile, r.Options.PolicyFallbacks())
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}
	r.Policy = cfg

	if cfg.RulesPath != "" {
		lg.WithField("rules", cfg.RulesPath).Info("Loading policy rules")
		rules, err := policy.NewRuleEvaluator(r.Context, cfg.RulesPath)
		if err != nil {
			return fmt.Errorf("failed to load policy rules: %w", err)
		}
		r.Rules = rules
	}

	lg.WithField("failOn", cfg.AuditFailOn).WithField("productionOnly", cfg.AuditProductionOnly).
		WithField("allowlist", len(cfg.Allowlist)).Info("Initializing runner: done.")
	return nil
}

func (r *AuditRunner) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	report, err := r.evaluate(ctx)
	if err != nil {
		return err
	}

	_, renderSpan := trace.StartSpan(ctx, "Render")
	rendered, err := r.Renderer.Render(report, r.Policy)
	renderSpan.End()
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	data := &models.ReportData{
		Check:        "audit",
		Timestamp:    r.Now(),
		Status:       rendered.Status,
		PolicySource: r.Policy.SourcePath,
		Threshold:    report.Threshold,
		Audit:        report,
	}
	if err := r.Output(data, rendered); err != nil {
		return err
	}

	outcome := r.Publisher.Comment(ctx, template.AuditCommentMarker, rendered.Markdown)
	logger.WithField("action", outcome.Action).Debug("Published audit report")

	return r.verdict(report)
}

func (r *AuditRunner) evaluate(ctx context.Context) (*models.ClassifiedReport, error) {
	scanCtx, scanSpan := trace.StartSpan(ctx, "Scan")
	advisories, err := r.Scanner.Scan(scanCtx, r.Policy.AuditProductionOnly)
	scanSpan.End()
	if err != nil {
		return nil, fmt.Errorf("failed to scan dependencies: %w", err)
	}
	logger.WithField("advisories", len(advisories)).Info("Scanned dependencies")

	_, classifySpan := trace.StartSpan(ctx, "Classify")
	report := audit.Classify(advisories, r.Policy, r.Now())
	classifySpan.End()

	if r.Rules != nil {
		rulesCtx, rulesSpan := trace.StartSpan(ctx, "EvaluateRules")
		violations, err := r.Rules.Evaluate(rulesCtx, report)
		rulesSpan.End()
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate policy rules: %w", err)
		}
		report.RuleViolations = violations
	}
	return report, nil
}

func (r *AuditRunner) verdict(report *models.ClassifiedReport) error {
	lg := logger.WithField("threshold", report.Threshold).
		WithField("failing", len(report.Failing)).
		WithField("waived", len(report.Waived)).
		WithField("belowThreshold", len(report.BelowThreshold))

	if report.Status() == models.StatusPass {
		lg.Infof("Security audit passed: no advisories at or above %s", report.Threshold)
		return nil
	}
	if len(report.Failing) > 0 {
		lg.Errorf("Security audit failed: %d advisories at or above %s", len(report.Failing), report.Threshold)
	}
	for _, v := range report.RuleViolations {
		lg.WithField("violation", v).Error("Security audit failed: policy rule denied the run")
	}
	return fmt.Errorf("%w: %d failing advisories, %d rule violations",
		ErrCheckFailed, len(report.Failing), len(report.RuleViolations))
}
