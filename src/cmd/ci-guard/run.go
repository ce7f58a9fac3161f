package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gh-nvat/ci-guard/src/internal/runner"
	"github.com/gh-nvat/ci-guard/src/pkg/audit"
	"github.com/gh-nvat/ci-guard/src/pkg/depcheck"
	"github.com/gh-nvat/ci-guard/src/pkg/github"
	"github.com/gh-nvat/ci-guard/src/pkg/release"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "run")

type runnerFactory func(base *runner.RunnerBase) (runner.RunnerInterface, error)

func createAuditRunner(base *runner.RunnerBase) (runner.RunnerInterface, error) {
	scanner := audit.NewNpmScanner(base.Options.WorkDir, base.Options.AuditReportPath)
	return runner.NewAuditRunner(base, scanner)
}

func createDepsRunner(base *runner.RunnerBase) (runner.RunnerInterface, error) {
	source := depcheck.NewNpmSource(base.Options.WorkDir, base.Options.OutdatedReportPath)
	return runner.NewDepsRunner(base, source)
}

func createReleaseRunner(keepRewritten bool) runnerFactory {
	return func(base *runner.RunnerBase) (runner.RunnerInterface, error) {
		var previewer release.Previewer
		if !keepRewritten {
			previewer = release.NewSemanticRelease(base.Options.WorkDir)
		}
		r, err := runner.NewReleaseRunner(base, previewer)
		if err != nil {
			return nil, err
		}
		r.KeepRewritten = keepRewritten
		return r, nil
	}
}

func createPublishRunner(mode string, stdin io.Reader) runnerFactory {
	return func(base *runner.RunnerBase) (runner.RunnerInterface, error) {
		return runner.NewPublishRunner(base, mode, stdin)
	}
}

// createPublisher never fails: without a token or PR context publishing is skipped
func createPublisher(opts *runner.Options) *runner.Publisher {
	target := opts.Target()
	if !target.Valid() {
		if opts.RunMode == runner.RUN_MODE_GITHUB {
			logger.Warn("No PR context (--gh-repo / --gh-pr-number), results will not be published")
		}
		return runner.NewPublisher(nil, target)
	}

	ghClient, err := github.NewClient(opts.GhApiUrl)
	if err != nil {
		logger.WithField("error", err).Warn("GitHub client unavailable, results will not be published")
		return runner.NewPublisher(nil, target)
	}
	return runner.NewPublisher(ghClient, target)
}

// workflowRunUrl returns the run page linked from reports, empty outside GitHub Actions
func workflowRunUrl(opts *runner.Options) string {
	if opts.RunMode != runner.RUN_MODE_GITHUB {
		return ""
	}
	if opts.GhRunId == 0 {
		logger.Warn("GITHUB_RUN_ID was not set. Reports will not link to the workflow run.")
		return ""
	}
	runUrl, err := github.GetWorkflowRunUrl(opts.GhServerUrl, opts.GhRepo, opts.GhRunId)
	if err != nil {
		logger.WithField("error", err).Warn("Failed to get workflow run URL, reports will not link to it")
		return ""
	}
	return runUrl
}

func createRenderer(opts *runner.Options) *template.Renderer {
	renderer := template.NewRenderer(opts.TemplatesPath)
	renderer.RunURL = workflowRunUrl(opts)
	return renderer
}

func initialize(ctx context.Context, opts *runner.Options, factory runnerFactory) (runner.RunnerInterface, error) {
	logger.WithField("opts", opts).Debug("Creating runner..")

	base, err := runner.NewRunnerBase(ctx, opts, createRenderer(opts), createPublisher(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	r, err := factory(base)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	if err := r.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}
	return r, nil
}

func run(ctx context.Context, opts *runner.Options, factory runnerFactory) error {
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger.WithField("opts", opts).Info("Running..")

	// Initialize tracer
	shutdown, err := trace.InitTracer("ci-guard", opts.EnableExportPerformanceReport, opts.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown()

	// Validate options
	if err := validateOptions(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	appRunner, err := initialize(ctx, opts, factory)
	if err != nil {
		return err
	}
	return appRunner.Process()
}

func validateOptions(opts *runner.Options) error {
	if opts.RunMode != runner.RUN_MODE_GITHUB && opts.RunMode != runner.RUN_MODE_LOCAL {
		return fmt.Errorf("run-mode must be 'github' or 'local', got: %s", opts.RunMode)
	}
	if opts.GhRepo != "" {
		if _, _, err := github.ParseOwnerRepo(opts.GhRepo); err != nil {
			return err
		}
	}
	if opts.GhPrNumber < 0 {
		return fmt.Errorf("gh-pr-number must be positive, got: %d", opts.GhPrNumber)
	}
	return nil
}
