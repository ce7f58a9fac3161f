// Package release runs semantic-release in dry-run mode to preview the next version.
package release

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "release")

// DefaultCommand is the dry run invocation; --no-ci allows running outside a release branch build
var DefaultCommand = []string{"npx", "--no-install", "semantic-release", "--dry-run", "--no-ci"}

var (
	nextVersionRe = regexp.MustCompile(`(?i)next release version is\s+v?([0-9A-Za-z.+-]+)`)
	noReleaseRe   = regexp.MustCompile(`(?i)no new version is released|no relevant changes`)
)

// Previewer computes what a merge would release
type Previewer interface {
	Preview(ctx context.Context, branch string) (*models.ReleasePreview, error)
}

type SemanticRelease struct {
	Dir     string
	Command []string
}

var _ Previewer = (*SemanticRelease)(nil)

func NewSemanticRelease(dir string) *SemanticRelease {
	return &SemanticRelease{Dir: dir, Command: DefaultCommand}
}

func (s *SemanticRelease) Preview(ctx context.Context, branch string) (*models.ReleasePreview, error) {
	command := s.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	logger.WithField("cmd", cmd.String()).WithField("branch", branch).Info("Preview: running semantic-release dry run...")

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("semantic-release dry run failed: %w\nStderr: %s", err, tail(stderr.String(), 20))
	}

	preview := &models.ReleasePreview{Branch: branch}
	version, ok := ParseNextVersion(stdout.String())
	if ok {
		preview.Version = version
	}
	logger.WithField("version", preview.Version).Info("Preview: done.")
	return preview, nil
}

// ParseNextVersion extracts the version announced by a semantic-release run.
// It reports false when the run decided not to release.
func ParseNextVersion(output string) (string, bool) {
	if m := nextVersionRe.FindStringSubmatch(output); m != nil {
		return strings.TrimRight(m[1], "."), true
	}
	if noReleaseRe.MatchString(output) {
		logger.Debug("semantic-release found no relevant changes")
	}
	return "", false
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
