package runner

import (
	"fmt"
	"os"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/gh-nvat/ci-guard/src/pkg/release"
	"github.com/gh-nvat/ci-guard/src/pkg/releaseconfig"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"
)

// ReleaseRunner previews the version a merge would release and records it in the PR body.
// The release config is rewritten for the dry run and restored afterwards.
type ReleaseRunner struct {
	RunnerBase

	Rewriter   *releaseconfig.Rewriter
	Previewer  release.Previewer
	ConfigPath string

	// KeepRewritten leaves the rewritten config in place and skips the dry run
	KeepRewritten bool
}

var _ RunnerInterface = (*ReleaseRunner)(nil)

func NewReleaseRunner(base *RunnerBase, previewer release.Previewer) (*ReleaseRunner, error) {
	if base == nil {
		return nil, fmt.Errorf("runner base is required")
	}
	return &ReleaseRunner{
		RunnerBase: *base,
		Rewriter:   releaseconfig.NewRewriter(base.Options.StrippedPlugins),
		Previewer:  previewer,
	}, nil
}

func (r *ReleaseRunner) Initialize() error {
	if r.Options.Branch == "" {
		return fmt.Errorf("branch is required, set --branch or GITHUB_HEAD_REF")
	}
	if !r.KeepRewritten && r.Previewer == nil {
		return fmt.Errorf("release previewer is required")
	}

	r.ConfigPath = r.Options.ReleaseConfig
	if r.ConfigPath == "" {
		path, err := releaseconfig.FindConfig(r.Options.WorkDir)
		if err != nil {
			return err
		}
		r.ConfigPath = path
	}
	logger.WithField("config", r.ConfigPath).WithField("branch", r.Options.Branch).Info("Initializing runner: done.")
	return nil
}

func (r *ReleaseRunner) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	info, err := os.Stat(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read release config: %w", err)
	}
	original, err := os.ReadFile(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read release config: %w", err)
	}

	_, rewriteSpan := trace.StartSpan(ctx, "RewriteConfig")
	_, err = r.Rewriter.RewriteFile(r.ConfigPath, r.Options.Branch)
	rewriteSpan.End()
	if err != nil {
		return err
	}
	if r.KeepRewritten {
		logger.Info("Process: release config rewritten, done.")
		return nil
	}
	defer r.restoreConfig(original, info.Mode().Perm())

	previewCtx, previewSpan := trace.StartSpan(ctx, "Preview")
	preview, err := r.Previewer.Preview(previewCtx, r.Options.Branch)
	previewSpan.End()
	if err != nil {
		return fmt.Errorf("failed to preview release: %w", err)
	}

	md, err := r.Renderer.RenderRelease(preview)
	if err != nil {
		return fmt.Errorf("failed to render release preview: %w", err)
	}

	outcome := r.Publisher.Section(ctx, template.ReleaseSectionStart, template.ReleaseSectionEnd, md)
	logger.WithField("action", outcome.Action).Debug("Published release preview")
	preview.Published = outcome.Applied()

	data := &models.ReportData{
		Check:     "release-preview",
		Timestamp: r.Now(),
		Status:    models.StatusPass,
		Release:   preview,
	}
	if err := r.Output(data, &models.RenderedReport{Markdown: md, Status: data.Status}); err != nil {
		return err
	}
	if err := r.writeStepOutput("version", preview.Version); err != nil {
		return err
	}

	if preview.Version == "" {
		logger.Info("Release preview: merging would not trigger a release")
	} else {
		logger.WithField("version", preview.Version).Info("Release preview: next version computed")
	}
	return nil
}

func (r *ReleaseRunner) restoreConfig(original []byte, mode os.FileMode) {
	if err := os.WriteFile(r.ConfigPath, original, mode); err != nil {
		logger.WithField("config", r.ConfigPath).WithField("error", err).Warn("Failed to restore release config")
		return
	}
	// WriteFile leaves the mode of an existing file untouched
	if err := os.Chmod(r.ConfigPath, mode); err != nil {
		logger.WithField("config", r.ConfigPath).WithField("error", err).Warn("Failed to restore release config")
	}
}
