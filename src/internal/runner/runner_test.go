package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gh-nvat/ci-guard/src/pkg/github"
	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/gh-nvat/ci-guard/src/pkg/policy"
	"github.com/gh-nvat/ci-guard/src/pkg/section"
	"github.com/gh-nvat/ci-guard/src/pkg/template"
)

type fakeScanner struct {
	advisories     []models.Advisory
	err            error
	productionOnly bool
}

func (s *fakeScanner) Scan(ctx context.Context, productionOnly bool) ([]models.Advisory, error) {
	s.productionOnly = productionOnly
	return s.advisories, s.err
}

type fakeSource struct {
	data []byte
	err  error
}

func (s *fakeSource) Outdated(ctx context.Context) ([]byte, error) {
	return s.data, s.err
}

// fakePR is an in-memory pull request; fail makes every call return an error
type fakePR struct {
	body     string
	comments []*models.Comment
	nextID   int64
	fail     bool
}

func (f *fakePR) GetComments(ctx context.Context, repo string, number int) ([]*models.Comment, error) {
	if f.fail {
		return nil, errors.New("api down")
	}
	return f.comments, nil
}

func (f *fakePR) CreateComment(ctx context.Context, repo string, number int, body string) (*models.Comment, error) {
	if f.fail {
		return nil, errors.New("api down")
	}
	f.nextID++
	c := &models.Comment{ID: f.nextID, Body: body}
	f.comments = append(f.comments, c)
	return c, nil
}

func (f *fakePR) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	if f.fail {
		return errors.New("api down")
	}
	for _, c := range f.comments {
		if c.ID == commentID {
			c.Body = body
			return nil
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakePR) GetPR(ctx context.Context, repo string, number int) (*models.PullRequest, error) {
	if f.fail {
		return nil, errors.New("api down")
	}
	return &models.PullRequest{Number: number, Body: f.body}, nil
}

func (f *fakePR) UpdatePRBody(ctx context.Context, repo string, number int, body string) error {
	if f.fail {
		return errors.New("api down")
	}
	f.body = body
	return nil
}

type fakePreviewer struct {
	version string
	// configSeen is the release config content at preview time
	configPath string
	configSeen string
}

func (p *fakePreviewer) Preview(ctx context.Context, branch string) (*models.ReleasePreview, error) {
	data, err := os.ReadFile(p.configPath)
	if err != nil {
		return nil, err
	}
	p.configSeen = string(data)
	return &models.ReleasePreview{Branch: branch, Version: p.version}, nil
}

var testToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestBase(t *testing.T, opts *Options, api github.GitHubClient) *RunnerBase {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.GitHubOutput == "" {
		opts.GitHubOutput = filepath.Join(t.TempDir(), "github_output")
	}
	if opts.RunMode == "" {
		opts.RunMode = RUN_MODE_GITHUB
		opts.GhRepo = "org/app"
		opts.GhPrNumber = 7
	}
	base, err := NewRunnerBase(context.Background(), opts, template.NewRenderer(""), NewPublisher(api, opts.Target()))
	if err != nil {
		t.Fatalf("NewRunnerBase() error = %v", err)
	}
	base.Now = func() time.Time { return testToday }
	return base
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

var testAdvisories = []models.Advisory{
	{ID: "GHSA-crit", Severity: models.SeverityCritical, Package: "minimist", Title: "Prototype pollution"},
	{ID: "GHSA-wave", Severity: models.SeverityHigh, Package: "axios", Title: "SSRF"},
	{ID: "GHSA-low1", Severity: models.SeverityLow, Package: "qs", Title: "Minor"},
}

const testPolicy = `core-packages:
  - react
audit:
  fail-on: high
  production-only: true
  allowlist:
    - id: GHSA-wave
      reason: not reachable
      expires: 2026-04-01
`

func TestAuditRunner_FailingAdvisories(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{
		PolicyFile:         writeFile(t, dir, policy.DEFAULT_POLICY_FILENAME, testPolicy),
		EnableExportReport: true,
	}
	api := &fakePR{}
	scanner := &fakeScanner{advisories: testAdvisories}

	r, err := NewAuditRunner(newTestBase(t, opts, api), scanner)
	if err != nil {
		t.Fatalf("NewAuditRunner() error = %v", err)
	}
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	err = r.Process()
	if !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("Process() error = %v, want ErrCheckFailed", err)
	}

	if !scanner.productionOnly {
		t.Error("scanner was not asked for production dependencies only")
	}
	if len(api.comments) != 1 || !strings.HasPrefix(api.comments[0].Body, template.AuditCommentMarker+"\n") {
		t.Fatalf("comments = %+v, want one audit comment", api.comments)
	}
	if !strings.Contains(api.comments[0].Body, "GHSA-crit") {
		t.Errorf("comment does not list the failing advisory:\n%s", api.comments[0].Body)
	}

	if out := readFile(t, opts.GitHubOutput); out != "status=fail\n" {
		t.Errorf("step output = %q", out)
	}
	reportJson := readFile(t, filepath.Join(opts.OutputDir, REPORT_JSON_FILENAME))
	for _, want := range []string{`"check": "audit"`, `"status": "fail"`, `"GHSA-wave"`} {
		if !strings.Contains(reportJson, want) {
			t.Errorf("report.json missing %s", want)
		}
	}
	if md := readFile(t, filepath.Join(opts.OutputDir, REPORT_MD_FILENAME)); !strings.HasPrefix(md, "❌") {
		t.Errorf("report.md = %q", md)
	}
}

func TestAuditRunner_RerunUpdatesSameComment(t *testing.T) {
	api := &fakePR{}
	for i := 0; i < 2; i++ {
		r, err := NewAuditRunner(newTestBase(t, &Options{AuditFailOn: "critical"}, api), &fakeScanner{})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Initialize(); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if err := r.Process(); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}
	if len(api.comments) != 1 {
		t.Errorf("got %d comments after two runs, want 1", len(api.comments))
	}
}

func TestAuditRunner_PublishFailureKeepsVerdict(t *testing.T) {
	api := &fakePR{fail: true}
	opts := &Options{AuditFailOn: "critical"}
	scanner := &fakeScanner{advisories: testAdvisories[1:]}

	r, _ := NewAuditRunner(newTestBase(t, opts, api), scanner)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v, want pass despite publishing failure", err)
	}
	if out := readFile(t, opts.GitHubOutput); out != "status=pass\n" {
		t.Errorf("step output = %q", out)
	}
}

func TestAuditRunner_LocalModeSkipsPublishing(t *testing.T) {
	api := &fakePR{}
	opts := &Options{RunMode: RUN_MODE_LOCAL, AuditFailOn: "low"}
	r, _ := NewAuditRunner(newTestBase(t, opts, api), &fakeScanner{advisories: testAdvisories})
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r.Process(); !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("Process() error = %v, want ErrCheckFailed", err)
	}
	if len(api.comments) != 0 {
		t.Errorf("local mode posted %d comments", len(api.comments))
	}
}

func TestAuditRunner_InvalidFailOn(t *testing.T) {
	r, _ := NewAuditRunner(newTestBase(t, &Options{AuditFailOn: "severe"}, nil), &fakeScanner{})
	err := r.Initialize()
	var cfgErr *policy.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Initialize() error = %v, want ConfigError", err)
	}
}

func TestAuditRunner_ScanError(t *testing.T) {
	r, _ := NewAuditRunner(newTestBase(t, &Options{}, nil), &fakeScanner{err: errors.New("npm missing")})
	if err := r.Initialize(); err != nil {
		t.Fatal(err)
	}
	err := r.Process()
	if err == nil || errors.Is(err, ErrCheckFailed) {
		t.Errorf("Process() error = %v, want a scan error", err)
	}
}

func TestAuditRunner_PolicyRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "audit.rego", `package audit

deny[msg] {
	count(input.waived) > 0
	msg := "waivers are not allowed on this repository"
}
`)
	opts := &Options{
		PolicyFile: writeFile(t, dir, policy.DEFAULT_POLICY_FILENAME, testPolicy+"  rules: audit.rego\n"),
	}
	scanner := &fakeScanner{advisories: testAdvisories[1:]}
	r, _ := NewAuditRunner(newTestBase(t, opts, nil), scanner)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	err := r.Process()
	if !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("Process() error = %v, want ErrCheckFailed from rule violation", err)
	}
	if !strings.Contains(err.Error(), "1 rule violations") {
		t.Errorf("Process() error = %v", err)
	}
}

func TestDepsRunner(t *testing.T) {
	api := &fakePR{}
	opts := &Options{CorePackages: []string{"react", "vite"}}
	source := &fakeSource{data: []byte(`{"react": {"current": "17.0.2", "wanted": "17.0.2", "latest": "18.3.1"}}`)}

	r, err := NewDepsRunner(newTestBase(t, opts, api), source)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v, dependency drift must not fail the step", err)
	}
	if out := readFile(t, opts.GitHubOutput); out != "status=warn\n" {
		t.Errorf("step output = %q", out)
	}
	if len(api.comments) != 1 || !strings.HasPrefix(api.comments[0].Body, template.DepsCommentMarker) {
		t.Errorf("comments = %+v, want one deps comment", api.comments)
	}
}

func TestDepsRunner_NoCorePackages(t *testing.T) {
	source := &fakeSource{err: errors.New("must not be called")}
	opts := &Options{}
	r, _ := NewDepsRunner(newTestBase(t, opts, nil), source)
	if err := r.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out := readFile(t, opts.GitHubOutput); out != "status=pass\n" {
		t.Errorf("step output = %q", out)
	}
}

func TestReleaseRunner(t *testing.T) {
	dir := t.TempDir()
	original := "branches:\n  - main\nplugins:\n  - \"@semantic-release/npm\"\n  - \"@semantic-release/github\"\n"
	configPath := writeFile(t, dir, ".releaserc.yml", original)

	api := &fakePR{body: "Adds the thing.\n"}
	opts := &Options{WorkDir: dir, Branch: "feature-x"}
	previewer := &fakePreviewer{version: "1.5.0", configPath: configPath}

	r, err := NewReleaseRunner(newTestBase(t, opts, api), previewer)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if want := "branches: [\"feature-x\"]\nplugins:\n  - \"@semantic-release/npm\"\n"; previewer.configSeen != want {
		t.Errorf("config during preview = %q, want %q", previewer.configSeen, want)
	}
	if got := readFile(t, configPath); got != original {
		t.Errorf("config was not restored: %q", got)
	}
	if !strings.HasPrefix(api.body, "Adds the thing.\n\n"+template.ReleaseSectionStart+"\n") ||
		!strings.Contains(api.body, "**1.5.0**") {
		t.Errorf("PR body = %q", api.body)
	}
	if out := readFile(t, opts.GitHubOutput); out != "status=pass\nversion=1.5.0\n" {
		t.Errorf("step output = %q", out)
	}

	// second run replaces the section instead of appending another one
	previewer.version = "1.6.0"
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if strings.Count(api.body, template.ReleaseSectionStart) != 1 || !strings.Contains(api.body, "**1.6.0**") {
		t.Errorf("PR body after rerun = %q", api.body)
	}
}

func TestReleaseRunner_RestoresModeAndRecordsPublish(t *testing.T) {
	tests := []struct {
		name          string
		api           *fakePR
		wantPublished bool
	}{
		{name: "section written", api: &fakePR{body: "desc"}, wantPublished: true},
		{name: "api failure", api: &fakePR{fail: true}, wantPublished: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			configPath := writeFile(t, dir, ".releaserc.yml", "branches:\n  - main\n")
			if err := os.Chmod(configPath, 0600); err != nil {
				t.Fatal(err)
			}
			opts := &Options{WorkDir: dir, Branch: "feature-x", EnableExportReport: true}
			previewer := &fakePreviewer{version: "2.0.0", configPath: configPath}

			r, _ := NewReleaseRunner(newTestBase(t, opts, tt.api), previewer)
			if err := r.Initialize(); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if err := r.Process(); err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			info, err := os.Stat(configPath)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
			}

			var data models.ReportData
			if err := json.Unmarshal([]byte(readFile(t, filepath.Join(opts.OutputDir, REPORT_JSON_FILENAME))), &data); err != nil {
				t.Fatalf("report.json: %v", err)
			}
			if data.Release == nil || data.Release.Published != tt.wantPublished {
				t.Errorf("release = %+v, want published %v", data.Release, tt.wantPublished)
			}
		})
	}
}

func TestReleaseRunner_KeepRewritten(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, ".releaserc.json", `{"branches": ["main"], "plugins": ["@semantic-release/git"]}`)

	r, _ := NewReleaseRunner(newTestBase(t, &Options{WorkDir: dir, Branch: "pr-9"}, nil), nil)
	r.KeepRewritten = true
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	got := readFile(t, configPath)
	if !strings.Contains(got, `"pr-9"`) || strings.Contains(got, "@semantic-release/git") {
		t.Errorf("config = %s", got)
	}
}

func TestReleaseRunner_RequiresBranch(t *testing.T) {
	r, _ := NewReleaseRunner(newTestBase(t, &Options{WorkDir: t.TempDir()}, nil), &fakePreviewer{})
	if err := r.Initialize(); err == nil {
		t.Error("Initialize() expected error without branch")
	}
}

func TestPublishRunner(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		opts    Options
		wantErr bool
		check   func(t *testing.T, api *fakePR)
	}{
		{
			name: "comment",
			mode: PUBLISH_MODE_COMMENT,
			opts: Options{Marker: "<!-- lint -->"},
			check: func(t *testing.T, api *fakePR) {
				if len(api.comments) != 1 || api.comments[0].Body != "<!-- lint -->\nhello" {
					t.Errorf("comments = %+v", api.comments)
				}
			},
		},
		{
			name: "section",
			mode: PUBLISH_MODE_SECTION,
			opts: Options{StartMarker: "<!--S-->", EndMarker: "<!--E-->"},
			check: func(t *testing.T, api *fakePR) {
				if api.body != "intro\n\n<!--S-->\nhello\n<!--E-->\n" {
					t.Errorf("body = %q", api.body)
				}
			},
		},
		{name: "missing marker", mode: PUBLISH_MODE_COMMENT, wantErr: true},
		{name: "same markers", mode: PUBLISH_MODE_SECTION, opts: Options{StartMarker: "<!--X-->", EndMarker: "<!--X-->"}, wantErr: true},
		{name: "unknown mode", mode: "tweet", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakePR{body: "intro"}
			opts := tt.opts
			r, err := NewPublishRunner(newTestBase(t, &opts, api), tt.mode, strings.NewReader("hello\n"))
			if err != nil {
				t.Fatal(err)
			}
			err = r.Initialize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if err := r.Process(); err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			tt.check(t, api)
			if out := readFile(t, opts.GitHubOutput); out != "action=created\n" {
				t.Errorf("step output = %q", out)
			}
		})
	}
}

func TestPublisher_NilClientSkips(t *testing.T) {
	p := NewPublisher(nil, section.Target{Repo: "org/app", Number: 1})
	if got := p.Comment(context.Background(), "<!-- m -->", "x"); got.Action != section.ActionSkipped {
		t.Errorf("Comment() = %+v, want skipped", got)
	}
	if got := p.Section(context.Background(), "<!--S-->", "<!--E-->", "x"); got.Action != section.ActionSkipped {
		t.Errorf("Section() = %+v, want skipped", got)
	}
}
