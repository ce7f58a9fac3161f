package depcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Source yields the raw `npm outdated --json` report
type Source interface {
	Outdated(ctx context.Context) ([]byte, error)
}

// NpmSource runs npm in Dir, or reads ReportPath when set
type NpmSource struct {
	Dir        string
	ReportPath string
}

var _ Source = (*NpmSource)(nil)

func NewNpmSource(dir, reportPath string) *NpmSource {
	return &NpmSource{Dir: dir, ReportPath: reportPath}
}

func (s *NpmSource) Outdated(ctx context.Context) ([]byte, error) {
	if s.ReportPath != "" {
		logger.WithField("path", s.ReportPath).Info("Outdated: reading captured npm outdated report")
		data, err := os.ReadFile(s.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read outdated report: %w", err)
		}
		return data, nil
	}

	cmd := exec.CommandContext(ctx, "npm", "outdated", "--json")
	cmd.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	logger.WithField("cmd", cmd.String()).Info("Outdated: running npm outdated...")

	// exit code 1 means "something is outdated"
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || stdout.Len() == 0 {
			return nil, fmt.Errorf("npm outdated failed: %w\nStderr: %s", err, stderr.String())
		}
	}
	return stdout.Bytes(), nil
}
