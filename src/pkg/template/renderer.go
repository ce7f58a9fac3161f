package template

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"
	"github.com/gh-nvat/ci-guard/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "template")

//go:embed templates/*.md.tmpl
var embeddedTemplates embed.FS

const (
	// GitHub rejects comment bodies over 65536 characters, the marker and section
	// delimiters need to fit next to the rendered report.
	GH_COMMENT_MAX_LENGTH = 60_000
	// Tables longer than this are cut, the full list is in report.json
	DEFAULT_MAX_TABLE_ROWS = 100
)

// Renderer turns check results into markdown for PR comments and sections.
// Templates found in TemplatesPath take precedence over the embedded defaults.
type Renderer struct {
	TemplatesPath string
	// RunURL links the report to the workflow run holding its artifacts
	RunURL string

	MaxTableRows int
	MaxLength    int
}

func NewRenderer(templatesPath string) *Renderer {
	return &Renderer{
		TemplatesPath: templatesPath,
		MaxTableRows:  DEFAULT_MAX_TABLE_ROWS,
		MaxLength:     GH_COMMENT_MAX_LENGTH,
	}
}

type severityCount struct {
	Severity models.Severity
	Count    int
}

type auditView struct {
	Clean          bool
	Status         string
	Threshold      models.Severity
	Counts         []severityCount
	FailingTotal   int
	WaivedTotal    int
	BelowTotal     int
	Failing        []models.Advisory
	Waived         []models.WaivedAdvisory
	BelowThreshold []models.Advisory
	FailingMore    int
	WaivedMore     int
	BelowMore      int
	RuleViolations []string
	PolicySource   string
	RunURL         string
}

type depsView struct {
	Status      string
	MajorCount  int
	Updates     []models.PackageUpdate
	UpdatesMore int
	UpToDate    []string
	RunURL      string
}

// Render formats a classified audit report. Formatting never affects the status.
func (r *Renderer) Render(report *models.ClassifiedReport, cfg *models.PolicyConfig) (*models.RenderedReport, error) {
	full := auditView{
		Clean:          report.Total() == 0 && len(report.RuleViolations) == 0,
		Status:         report.Status(),
		Threshold:      report.Threshold,
		Counts:         countsBySeverity(report),
		FailingTotal:   len(report.Failing),
		WaivedTotal:    len(report.Waived),
		BelowTotal:     len(report.BelowThreshold),
		RuleViolations: report.RuleViolations,
		RunURL:         r.RunURL,
	}
	if cfg != nil && cfg.SourcePath != "" {
		full.PolicySource = filepath.Base(cfg.SourcePath)
	}
	failing := sortedAdvisories(report.Failing)
	waived := sortedWaived(report.Waived)
	below := sortedAdvisories(report.BelowThreshold)

	md, err := r.executeFitted(FileNameAuditTemplate, func(rows int) any {
		view := full
		view.Failing, view.FailingMore = limitRows(failing, rows)
		view.Waived, view.WaivedMore = limitRows(waived, rows)
		view.BelowThreshold, view.BelowMore = limitRows(below, rows)
		return view
	})
	if err != nil {
		return nil, err
	}
	return &models.RenderedReport{Markdown: md, Status: full.Status}, nil
}

// RenderDeps formats the core package dependency check
func (r *Renderer) RenderDeps(result *models.DepCheckResult) (*models.RenderedReport, error) {
	full := depsView{
		Status:   result.Status(),
		UpToDate: result.UpToDate,
		RunURL:   r.RunURL,
	}
	for _, u := range result.Updates {
		if u.IsMajor() {
			full.MajorCount++
		}
	}

	md, err := r.executeFitted(FileNameDepsTemplate, func(rows int) any {
		view := full
		view.Updates, view.UpdatesMore = limitRows(result.Updates, rows)
		return view
	})
	if err != nil {
		return nil, err
	}
	return &models.RenderedReport{Markdown: md, Status: full.Status}, nil
}

// RenderRelease formats a release preview for the PR description
func (r *Renderer) RenderRelease(preview *models.ReleasePreview) (string, error) {
	return r.execute(FileNameReleaseTemplate, preview)
}

// executeFitted renders with fewer table rows until the markdown fits a comment,
// then truncates whatever is still too long.
func (r *Renderer) executeFitted(name string, view func(rows int) any) (string, error) {
	rows := r.MaxTableRows
	if rows <= 0 {
		rows = DEFAULT_MAX_TABLE_ROWS
	}
	maxLength := r.MaxLength
	if maxLength <= 0 {
		maxLength = GH_COMMENT_MAX_LENGTH
	}

	for {
		md, err := r.execute(name, view(rows))
		if err != nil {
			return "", err
		}
		if len(md) <= maxLength || rows == 0 {
			return truncateMarkdown(md, maxLength), nil
		}
		logger.WithFields(log.Fields{
			"template": name,
			"length":   len(md),
			"rows":     rows,
		}).Debug("Rendered report is too long, reducing table rows")
		rows /= 2
	}
}

// limitRows keeps the first n items and reports how many were dropped
func limitRows[T any](items []T, n int) ([]T, int) {
	if len(items) <= n {
		return items, 0
	}
	return items[:n], len(items) - n
}

const truncatedNotice = "\n\n_…report truncated, see report.json_"

// truncateMarkdown cuts md at a line boundary so it stays under maxLength bytes
func truncateMarkdown(md string, maxLength int) string {
	if len(md) <= maxLength {
		return md
	}
	cut := maxLength - len(truncatedNotice)
	if cut < 0 {
		cut = 0
	}
	if i := strings.LastIndex(md[:cut], "\n"); i >= 0 {
		cut = i
	} else {
		for cut > 0 && !utf8.RuneStart(md[cut]) {
			cut--
		}
	}
	logger.WithField("length", len(md)).Warn("Rendered report truncated to fit a GitHub comment")
	return strings.TrimRight(md[:cut], "\n") + truncatedNotice
}

func (r *Renderer) execute(name string, data any) (string, error) {
	content, err := r.loadTemplate(name)
	if err != nil {
		return "", err
	}

	funcMap := sprig.TxtFuncMap()
	funcMap["cell"] = escapeCell
	funcMap["advisoryLink"] = advisoryLink

	tmpl, err := template.New(name).Funcs(funcMap).Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) loadTemplate(name string) (string, error) {
	if r.TemplatesPath != "" {
		path := filepath.Join(r.TemplatesPath, name)
		content, err := os.ReadFile(path)
		if err == nil {
			logger.WithField("path", path).Debug("Using custom template")
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	content, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("no template named %s: %w", name, err)
	}
	return string(content), nil
}

var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityModerate,
	models.SeverityLow,
	models.SeverityInfo,
}

func countsBySeverity(report *models.ClassifiedReport) []severityCount {
	counts := report.CountBySeverity()
	var out []severityCount
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			out = append(out, severityCount{Severity: sev, Count: n})
		}
	}
	return out
}

// severity descending, then id
func lessAdvisory(a, b models.Advisory) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	return a.ID < b.ID
}

func sortedAdvisories(in []models.Advisory) []models.Advisory {
	out := append([]models.Advisory(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return lessAdvisory(out[i], out[j]) })
	return out
}

func sortedWaived(in []models.WaivedAdvisory) []models.WaivedAdvisory {
	out := append([]models.WaivedAdvisory(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return lessAdvisory(out[i].Advisory, out[j].Advisory) })
	return out
}

var cellReplacer = strings.NewReplacer(
	"|", `\|`,
	"\r\n", "<br>",
	"\n", "<br>",
	"\r", "<br>",
)

// escapeCell keeps a value inside one markdown table cell
func escapeCell(s string) string {
	return cellReplacer.Replace(strings.TrimSpace(s))
}

var linkReplacer = strings.NewReplacer(
	" ", "%20",
	"(", "%28",
	")", "%29",
	"<", "%3C",
	">", "%3E",
	"|", "%7C",
	"\n", "",
	"\r", "",
)

func advisoryLink(a models.Advisory) string {
	url := linkReplacer.Replace(strings.TrimSpace(a.URL))
	if url == "" {
		return escapeCell(a.ID)
	}
	return fmt.Sprintf("[%s](%s)", escapeCell(a.ID), url)
}
