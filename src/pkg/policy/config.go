package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "policy")

const (
	DEFAULT_POLICY_FILENAME = "dependency-policy.yml"
	EXPIRES_DATE_LAYOUT     = "2006-01-02"
)

// Fallbacks are the caller supplied values used for anything the policy document leaves out
type Fallbacks struct {
	CorePackages        []string
	AuditFailOn         string
	AuditProductionOnly bool
}

// policyDocument mirrors the policy file. Pointers distinguish absent keys from zero values.
type policyDocument struct {
	CorePackages []string     `yaml:"core-packages"`
	Audit        *auditPolicy `yaml:"audit"`
}

type auditPolicy struct {
	FailOn         *string          `yaml:"fail-on"`
	ProductionOnly *bool            `yaml:"production-only"`
	Allowlist      []allowlistEntry `yaml:"allowlist"`
	Rules          string           `yaml:"rules"`
}

type allowlistEntry struct {
	ID      string `yaml:"id"`
	Reason  string `yaml:"reason"`
	Expires string `yaml:"expires"`
}

// Load resolves the policy for this invocation.
// A missing or malformed document yields the fallbacks; an invalid fail-on level is a ConfigError.
func Load(path string, fallbacks Fallbacks) (*models.PolicyConfig, error) {
	cfg := fromFallbacks(fallbacks)

	if path == "" {
		logger.Info("Load: no policy file configured, using fallbacks")
		return cfg, validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithField("path", path).Info("Load: policy file not found, using fallbacks")
		} else {
			logger.WithField("path", path).WithField("error", err).Warn("Load: failed to read policy file, using fallbacks")
		}
		return cfg, validate(cfg)
	}

	if err := apply(cfg, path, data); err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			logger.WithField("error", err).Warn("Load: policy file is malformed, using fallbacks")
			cfg = fromFallbacks(fallbacks)
			return cfg, validate(cfg)
		}
		return nil, err
	}

	logger.WithFields(log.Fields{
		"path":          path,
		"failOn":        cfg.AuditFailOn,
		"corePackages":  len(cfg.CorePackages),
		"allowlistSize": len(cfg.Allowlist),
	}).Info("Load: done.")
	return cfg, validate(cfg)
}

// Parse applies a policy document on top of the fallbacks without touching the filesystem
func Parse(data []byte, fallbacks Fallbacks) (*models.PolicyConfig, error) {
	cfg := fromFallbacks(fallbacks)
	if err := apply(cfg, "", data); err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

func fromFallbacks(fb Fallbacks) *models.PolicyConfig {
	failOn := fb.AuditFailOn
	if strings.TrimSpace(failOn) == "" {
		failOn = string(models.SeverityHigh)
	}
	return &models.PolicyConfig{
		CorePackages:        append([]string(nil), fb.CorePackages...),
		AuditFailOn:         normalizeLevel(failOn),
		AuditProductionOnly: fb.AuditProductionOnly,
		Allowlist:           make(map[string]models.AllowlistEntry),
	}
}

// apply overrides cfg field by field with whatever the document declares
func apply(cfg *models.PolicyConfig, path string, data []byte) error {
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ParseError{Path: path, Cause: err}
	}

	if doc.CorePackages != nil {
		pkgs := make([]string, 0, len(doc.CorePackages))
		for _, p := range doc.CorePackages {
			if p = strings.TrimSpace(p); p != "" {
				pkgs = append(pkgs, p)
			}
		}
		cfg.CorePackages = pkgs
	}

	if doc.Audit == nil {
		return nil
	}
	if doc.Audit.FailOn != nil {
		cfg.AuditFailOn = normalizeLevel(*doc.Audit.FailOn)
	}
	if doc.Audit.ProductionOnly != nil {
		cfg.AuditProductionOnly = *doc.Audit.ProductionOnly
	}
	if doc.Audit.Allowlist != nil {
		allowlist := make(map[string]models.AllowlistEntry, len(doc.Audit.Allowlist))
		for i, entry := range doc.Audit.Allowlist {
			id := strings.TrimSpace(entry.ID)
			if id == "" {
				return &ParseError{Path: path, Cause: fmt.Errorf("allowlist entry %d: id is required", i)}
			}
			parsed := models.AllowlistEntry{ID: id, Reason: strings.TrimSpace(entry.Reason)}
			if exp := strings.TrimSpace(entry.Expires); exp != "" {
				t, err := time.Parse(EXPIRES_DATE_LAYOUT, exp)
				if err != nil {
					return &ParseError{Path: path, Cause: fmt.Errorf("allowlist entry %s: expires must be YYYY-MM-DD: %w", id, err)}
				}
				parsed.Expires = &t
			}
			if _, dup := allowlist[id]; dup {
				logger.WithField("id", id).Warn("duplicate allowlist entry, keeping the first one")
				continue
			}
			allowlist[id] = parsed
		}
		cfg.Allowlist = allowlist
	}
	if rules := strings.TrimSpace(doc.Audit.Rules); rules != "" {
		if !filepath.IsAbs(rules) && path != "" {
			rules = filepath.Join(filepath.Dir(path), rules)
		}
		cfg.RulesPath = rules
	}
	cfg.SourcePath = path
	return nil
}

func validate(cfg *models.PolicyConfig) error {
	if !cfg.AuditFailOn.IsFailOnLevel() {
		return &ConfigError{
			Field: "audit.fail-on",
			Value: string(cfg.AuditFailOn),
			Msg:   "must be one of critical, high, moderate, low",
		}
	}
	return nil
}

func normalizeLevel(s string) models.Severity {
	return models.Severity(strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`)))
}
