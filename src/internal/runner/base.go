package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "runner")

// ErrCheckFailed is returned when a check ran to completion and its verdict is fail
var ErrCheckFailed = errors.New("check failed")

const (
	REPORT_JSON_FILENAME = "report.json"
	REPORT_MD_FILENAME   = "report.md"
)

// RunnerBase carries what every check shares: options, rendering, publishing and export
type RunnerBase struct {
	Context context.Context
	Options *Options

	Renderer  *template.Renderer
	Publisher *Publisher

	// Now is injectable so waiver expiry is deterministic in tests
	Now func() time.Time
}

func NewRunnerBase(
	ctx context.Context,
	options *Options,
	renderer *template.Renderer,
	publisher *Publisher,
) (*RunnerBase, error) {
	if options == nil || renderer == nil {
		return nil, fmt.Errorf("options and renderer are required")
	}
	return &RunnerBase{
		Context:   ctx,
		Options:   options,
		Renderer:  renderer,
		Publisher: publisher,
		Now:       time.Now,
	}, nil
}

func (r *RunnerBase) Output(data *models.ReportData, rendered *models.RenderedReport) error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.outputReportJson(data); err != nil {
		return err
	}
	if err := r.outputReportMarkdown(rendered); err != nil {
		return err
	}
	if err := r.writeStepOutput("status", data.Status); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

// Exporting report json file to output directory if enabled
func (r *RunnerBase) outputReportJson(data *models.ReportData) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	logger.Info("OutputJson: starting...")

	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	resultsJson, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	filePath := filepath.Join(r.Options.OutputDir, REPORT_JSON_FILENAME)
	if err := os.WriteFile(filePath, resultsJson, 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write report data to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written report data to file")
	return nil
}

// Exporting the rendered markdown next to report.json, used as a job summary or artifact
func (r *RunnerBase) outputReportMarkdown(rendered *models.RenderedReport) error {
	if !r.Options.EnableExportReport || rendered == nil {
		return nil
	}
	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filePath := filepath.Join(r.Options.OutputDir, REPORT_MD_FILENAME)
	if err := os.WriteFile(filePath, []byte(rendered.Markdown+"\n"), 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write markdown report to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written markdown report to file")
	return nil
}

// writeStepOutput appends key=value to the $GITHUB_OUTPUT file when one is configured
func (r *RunnerBase) writeStepOutput(key, value string) error {
	if r.Options.GitHubOutput == "" {
		return nil
	}
	f, err := os.OpenFile(r.Options.GitHubOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open step output file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
		return fmt.Errorf("failed to write step output: %w", err)
	}
	logger.WithField(key, value).Debug("Written step output")
	return nil
}
