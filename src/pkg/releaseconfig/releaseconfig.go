// Package releaseconfig rewrites a semantic-release configuration so that a
// dry run can be executed from a pull request branch.
//
// The rewrite narrows `branches` to the PR branch and strips the plugins that
// publish a release or commit changes back to the repository. Everything else
// in the document, comments and key order included, is left untouched.
package releaseconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "releaseconfig")

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	PluginGitHub = "@semantic-release/github"
	PluginGit    = "@semantic-release/git"
)

// DefaultStrippedPlugins publish a release (github) and commit back (git)
var DefaultStrippedPlugins = []string{PluginGitHub, PluginGit}

// ConfigFileNames are the semantic-release config files looked up, in order
var ConfigFileNames = []string{".releaserc", ".releaserc.json", ".releaserc.yaml", ".releaserc.yml"}

var ErrConfigNotFound = errors.New("release config not found")

// Rewriter rewrites release configs. Plugins are matched by exact name.
type Rewriter struct {
	stripped map[string]bool
}

// NewRewriter strips the given plugins, or DefaultStrippedPlugins when none are given
func NewRewriter(strippedPlugins []string) *Rewriter {
	if len(strippedPlugins) == 0 {
		strippedPlugins = DefaultStrippedPlugins
	}
	stripped := make(map[string]bool, len(strippedPlugins))
	for _, p := range strippedPlugins {
		stripped[strings.TrimSpace(p)] = true
	}
	return &Rewriter{stripped: stripped}
}

// Rewrite rewrites doc with the default stripped plugins
func Rewrite(doc string, format Format, branch string) (string, error) {
	return NewRewriter(nil).Rewrite(doc, format, branch)
}

func (r *Rewriter) Rewrite(doc string, format Format, branch string) (string, error) {
	if strings.TrimSpace(branch) == "" {
		return "", fmt.Errorf("branch name is required")
	}
	switch format {
	case FormatYAML:
		return r.rewriteYAML(doc, branch)
	case FormatJSON:
		return r.rewriteJSON(doc, branch)
	default:
		return "", fmt.Errorf("unsupported release config format: %q", format)
	}
}

// RewriteFile rewrites the config at path in place and returns the detected format
func (r *Rewriter) RewriteFile(path string, branch string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat release config: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read release config: %w", err)
	}

	format := DetectFormat(path, string(content))
	rewritten, err := r.Rewrite(string(content), format, branch)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(rewritten), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to write release config: %w", err)
	}
	logger.WithField("path", path).WithField("format", format).WithField("branch", branch).Info("Rewrote release config")
	return format, nil
}

// DetectFormat uses the file extension, then sniffs extension-less files
func DetectFormat(path string, content string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	if strings.HasPrefix(strings.TrimSpace(content), "{") {
		return FormatJSON
	}
	return FormatYAML
}

// FindConfig returns the first release config present in dir
func FindConfig(dir string) (string, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrConfigNotFound, dir, strings.Join(ConfigFileNames, ", "))
}
