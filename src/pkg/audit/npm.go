package audit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
)

var ghsaPattern = regexp.MustCompile(`(?i)GHSA(-[0-9a-z]{4}){3}`)

// npmAuditReport covers both the npm >= 7 (auditReportVersion 2) and the legacy layouts
type npmAuditReport struct {
	AuditReportVersion int                          `json:"auditReportVersion"`
	Vulnerabilities    map[string]npmVulnerability  `json:"vulnerabilities"`
	Advisories         map[string]npmLegacyAdvisory `json:"advisories"`
	Error              *struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
	} `json:"error"`
}

type npmVulnerability struct {
	Name         string            `json:"name"`
	Severity     string            `json:"severity"`
	Via          []json.RawMessage `json:"via"`
	FixAvailable json.RawMessage   `json:"fixAvailable"`
}

// npmVia is an advisory entry; via entries that are plain strings only name another vulnerable package
type npmVia struct {
	Source   int    `json:"source"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Severity string `json:"severity"`
	Range    string `json:"range"`
}

type npmLegacyAdvisory struct {
	ID               int    `json:"id"`
	ModuleName       string `json:"module_name"`
	Severity         string `json:"severity"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	GithubAdvisoryID string `json:"github_advisory_id"`
	PatchedVersions  string `json:"patched_versions"`
}

// ParseNpmAudit converts `npm audit --json` output into deduplicated advisories
func ParseNpmAudit(data []byte) ([]models.Advisory, error) {
	var raw npmAuditReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse npm audit output: %w", err)
	}
	if raw.Error != nil {
		return nil, fmt.Errorf("npm audit failed: %s: %s", raw.Error.Code, raw.Error.Summary)
	}

	var advisories []models.Advisory
	if raw.Vulnerabilities != nil {
		names := make([]string, 0, len(raw.Vulnerabilities))
		for name := range raw.Vulnerabilities {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			vuln := raw.Vulnerabilities[name]
			fix, err := parseFixAvailable(vuln.FixAvailable)
			if err != nil {
				return nil, fmt.Errorf("vulnerability %s: %w", name, err)
			}
			for _, rawVia := range vuln.Via {
				var via npmVia
				if err := json.Unmarshal(rawVia, &via); err != nil {
					// a string reference to another vulnerable package
					continue
				}
				pkg := via.Name
				if pkg == "" {
					pkg = name
				}
				advisories = append(advisories, models.Advisory{
					ID:           advisoryID(via.URL, via.Source, pkg),
					Severity:     models.ParseSeverity(via.Severity),
					Package:      pkg,
					Title:        strings.TrimSpace(via.Title),
					FixAvailable: fix,
					URL:          via.URL,
				})
			}
		}
	}

	if raw.Advisories != nil {
		keys := make([]string, 0, len(raw.Advisories))
		for k := range raw.Advisories {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			adv := raw.Advisories[k]
			id := adv.GithubAdvisoryID
			if id == "" {
				id = advisoryID(adv.URL, adv.ID, adv.ModuleName)
			}
			fix := models.FixAvailable{}
			if adv.PatchedVersions != "" && adv.PatchedVersions != "<0.0.0" {
				fix = models.FixAvailable{Available: true}
			}
			advisories = append(advisories, models.Advisory{
				ID:           id,
				Severity:     models.ParseSeverity(adv.Severity),
				Package:      adv.ModuleName,
				Title:        strings.TrimSpace(adv.Title),
				FixAvailable: fix,
				URL:          adv.URL,
			})
		}
	}

	advisories = Dedup(advisories)
	logger.WithField("count", len(advisories)).Debug("Parsed npm audit advisories")
	return advisories, nil
}

func advisoryID(url string, source int, pkg string) string {
	if id := ghsaPattern.FindString(url); id != "" {
		return "GHSA" + strings.ToLower(id[4:])
	}
	if source != 0 {
		return fmt.Sprintf("npm-%d", source)
	}
	return "npm-" + pkg
}

func parseFixAvailable(raw json.RawMessage) (models.FixAvailable, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.FixAvailable{}, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return models.FixAvailable{Available: b}, nil
	}
	var obj struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		IsSemVerMajor bool   `json:"isSemVerMajor"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.FixAvailable{}, fmt.Errorf("unexpected fixAvailable %s", string(raw))
	}
	return models.FixAvailable{
		Available:     true,
		Name:          obj.Name,
		Version:       obj.Version,
		IsSemVerMajor: obj.IsSemVerMajor,
	}, nil
}
