package runner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gh-nvat/ci-guard/src/pkg/section"
)

const (
	PUBLISH_MODE_COMMENT = "comment"
	PUBLISH_MODE_SECTION = "section"
)

// PublishRunner pushes an arbitrary markdown document to the PR, as a marker-anchored
// comment or as a delimited section of the PR body
type PublishRunner struct {
	RunnerBase

	Mode  string
	Input io.Reader

	content string
}

var _ RunnerInterface = (*PublishRunner)(nil)

func NewPublishRunner(base *RunnerBase, mode string, stdin io.Reader) (*PublishRunner, error) {
	if base == nil {
		return nil, fmt.Errorf("runner base is required")
	}
	return &PublishRunner{RunnerBase: *base, Mode: mode, Input: stdin}, nil
}

func (r *PublishRunner) Initialize() error {
	switch r.Mode {
	case PUBLISH_MODE_COMMENT:
		if strings.TrimSpace(r.Options.Marker) == "" {
			return fmt.Errorf("--marker is required")
		}
	case PUBLISH_MODE_SECTION:
		if strings.TrimSpace(r.Options.StartMarker) == "" || strings.TrimSpace(r.Options.EndMarker) == "" {
			return fmt.Errorf("--start-marker and --end-marker are required")
		}
		if strings.TrimSpace(r.Options.StartMarker) == strings.TrimSpace(r.Options.EndMarker) {
			return fmt.Errorf("start and end markers must differ")
		}
	default:
		return fmt.Errorf("invalid publish mode: %s", r.Mode)
	}

	var data []byte
	var err error
	if r.Options.BodyFile == "" || r.Options.BodyFile == "-" {
		if r.Input == nil {
			return fmt.Errorf("no input to publish")
		}
		data, err = io.ReadAll(r.Input)
	} else {
		data, err = os.ReadFile(r.Options.BodyFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	r.content = strings.TrimRight(string(data), "\r\n")
	return nil
}

func (r *PublishRunner) Process() error {
	var outcome section.Outcome
	switch r.Mode {
	case PUBLISH_MODE_COMMENT:
		outcome = r.Publisher.Comment(r.Context, r.Options.Marker, r.content)
	case PUBLISH_MODE_SECTION:
		outcome = r.Publisher.Section(r.Context, r.Options.StartMarker, r.Options.EndMarker, r.content)
	}
	logger.WithField("mode", r.Mode).WithField("action", outcome.Action).Info("Process: done.")
	return r.writeStepOutput("action", string(outcome.Action))
}
