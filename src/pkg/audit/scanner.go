package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
)

// Scanner produces advisories for the dependency tree of a project
type Scanner interface {
	Scan(ctx context.Context, productionOnly bool) ([]models.Advisory, error)
}

// NpmScanner shells out to `npm audit --json`
type NpmScanner struct {
	Dir string
	// ReportPath reads a previously captured audit report instead of running npm
	ReportPath string
}

var _ Scanner = (*NpmScanner)(nil)

func NewNpmScanner(dir, reportPath string) *NpmScanner {
	return &NpmScanner{Dir: dir, ReportPath: reportPath}
}

func (s *NpmScanner) Scan(ctx context.Context, productionOnly bool) ([]models.Advisory, error) {
	if s.ReportPath != "" {
		logger.WithField("path", s.ReportPath).Info("Scan: reading captured npm audit report")
		data, err := os.ReadFile(s.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit report: %w", err)
		}
		return ParseNpmAudit(data)
	}

	args := []string{"audit", "--json"}
	if productionOnly {
		args = append(args, "--omit=dev")
	}
	cmd := exec.CommandContext(ctx, "npm", args...)
	cmd.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	logger.WithField("cmd", cmd.String()).Info("Scan: running npm audit...")

	// npm audit exits non-zero whenever vulnerabilities exist, the JSON is still valid
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || stdout.Len() == 0 {
			return nil, fmt.Errorf("npm audit failed: %w\nStderr: %s", err, stderr.String())
		}
		logger.WithField("exitCode", exitErr.ExitCode()).Debug("npm audit exited non-zero")
	}
	return ParseNpmAudit(stdout.Bytes())
}
