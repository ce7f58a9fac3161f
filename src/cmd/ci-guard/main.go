package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gh-nvat/ci-guard/src/internal/runner"
	"github.com/gh-nvat/ci-guard/src/pkg/github"
	"github.com/gh-nvat/ci-guard/src/pkg/policy"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// a local .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, runner.ErrCheckFailed) {
			fmt.Fprintln(os.Stderr, "ci-guard:", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// newRootCmd creates the root command, parse args from CLI
func newRootCmd() *cobra.Command {
	opts := &runner.Options{}

	cmd := &cobra.Command{
		Use:   "ci-guard",
		Short: "Dependency policy and release preview checks for pull requests",
		Long: `ci-guard evaluates npm audit results against a repository dependency policy,
reports major-version drift of core packages, previews the next semantic-release version,
and keeps its reports up to date on the pull request.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultRunMode := runner.RUN_MODE_LOCAL
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		defaultRunMode = runner.RUN_MODE_GITHUB
	}

	// Common flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.RunMode, "run-mode", defaultRunMode, "Run mode: github or local")
	flags.BoolVar(&opts.Debug, "debug", false, "Debug mode")
	flags.StringVar(&opts.WorkDir, "workdir", ".", "Project directory (contains package.json)")
	flags.StringVar(&opts.PolicyFile, "policy-file", envOr("POLICY_FILE", policy.DEFAULT_POLICY_FILENAME),
		"Path to the dependency policy file [env POLICY_FILE]")
	flags.StringVar(&opts.TemplatesPath, "templates-path", "",
		"Directory with custom report templates (audit.md.tmpl, deps.md.tmpl, release.md.tmpl)")
	flags.StringVar(&opts.OutputDir, "output-dir", "./output",
		"Output directory in case the tool need to export files")
	flags.BoolVar(&opts.EnableExportReport, "enable-export-report", false, "Enable export report (report.json and report.md to output dir)")
	flags.BoolVar(&opts.EnableExportPerformanceReport, "enable-export-performance-report", false, "Enable export performance report (trace.json to output dir)")
	flags.StringVar(&opts.GitHubOutput, "github-output", os.Getenv("GITHUB_OUTPUT"),
		"File receiving step outputs [env GITHUB_OUTPUT]")

	// Policy fallbacks
	flags.StringSliceVar(&opts.CorePackages, "core-packages", envList("CORE_PACKAGES"),
		"Core packages when the policy file has none [env CORE_PACKAGES]")
	flags.StringVar(&opts.AuditFailOn, "fail-on", os.Getenv("AUDIT_FAIL_ON"),
		"Audit threshold when the policy file has none: critical, high, moderate or low [env AUDIT_FAIL_ON]")
	flags.BoolVar(&opts.AuditProductionOnly, "production-only", envBool("AUDIT_PRODUCTION_ONLY"),
		"Audit production dependencies only when the policy file does not say [env AUDIT_PRODUCTION_ONLY]")

	// GitHub mode flags
	flags.StringVar(&opts.GhRepo, "gh-repo", os.Getenv("GITHUB_REPOSITORY"),
		"GitHub repository (e.g., org/repo) [github mode]")
	flags.IntVar(&opts.GhPrNumber, "gh-pr-number", prNumberFromEnv(),
		"GitHub PR number [github mode, env PR_NUMBER or GITHUB_REF]")
	flags.StringVar(&opts.GhApiUrl, "gh-api-url", envOr("GITHUB_API_URL", github.DEFAULT_API_URL),
		"GitHub API URL [github mode]")
	flags.StringVar(&opts.GhServerUrl, "gh-server-url", os.Getenv("GITHUB_SERVER_URL"),
		"GitHub server URL for workflow run links [github mode, env GITHUB_SERVER_URL]")
	flags.IntVar(&opts.GhRunId, "gh-run-id", envInt("GITHUB_RUN_ID"),
		"Workflow run id linked from the reports [github mode, env GITHUB_RUN_ID]")

	cmd.AddCommand(
		newAuditCmd(opts),
		newDepsCmd(opts),
		newReleasePreviewCmd(opts),
		newRewriteReleasercCmd(opts),
		newCommentCmd(opts),
		newSectionCmd(opts),
	)
	return cmd
}

func newAuditCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Evaluate npm audit advisories against the dependency policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createAuditRunner)
		},
	}
	cmd.Flags().StringVar(&opts.AuditReportPath, "audit-file", "",
		"Read a captured `npm audit --json` report instead of running npm")
	return cmd
}

func newDepsCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Report core packages behind by a major version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createDepsRunner)
		},
	}
	cmd.Flags().StringVar(&opts.OutdatedReportPath, "outdated-file", "",
		"Read a captured `npm outdated --json` report instead of running npm")
	return cmd
}

func addReleaseFlags(cmd *cobra.Command, opts *runner.Options) {
	cmd.Flags().StringVar(&opts.Branch, "branch", os.Getenv("GITHUB_HEAD_REF"),
		"Branch the release config is scoped to [env GITHUB_HEAD_REF]")
	cmd.Flags().StringVar(&opts.ReleaseConfig, "release-config", "",
		"Path to the semantic-release config (default: first .releaserc* in --workdir)")
	cmd.Flags().StringSliceVar(&opts.StrippedPlugins, "strip-plugin", nil,
		"Plugins removed from the config (default: @semantic-release/github,@semantic-release/git)")
}

func newReleasePreviewCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release-preview",
		Short: "Dry-run semantic-release for the PR branch and record the next version in the PR body",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createReleaseRunner(false))
		},
	}
	addReleaseFlags(cmd, opts)
	return cmd
}

func newRewriteReleasercCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite-releaserc",
		Short: "Rewrite the semantic-release config in place for a PR preview run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createReleaseRunner(true))
		},
	}
	addReleaseFlags(cmd, opts)
	return cmd
}

func newCommentCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Create or update the PR comment anchored by a marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createPublishRunner(runner.PUBLISH_MODE_COMMENT, cmd.InOrStdin()))
		},
	}
	cmd.Flags().StringVar(&opts.Marker, "marker", "", "Marker the comment body starts with (required)")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "-", "Markdown file to publish, - for stdin")
	_ = cmd.MarkFlagRequired("marker")
	return cmd
}

func newSectionCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Replace or append a delimited section of the PR description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, createPublishRunner(runner.PUBLISH_MODE_SECTION, cmd.InOrStdin()))
		},
	}
	cmd.Flags().StringVar(&opts.StartMarker, "start-marker", "", "Line opening the section (required)")
	cmd.Flags().StringVar(&opts.EndMarker, "end-marker", "", "Line closing the section (required)")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "-", "Markdown file to publish, - for stdin")
	_ = cmd.MarkFlagRequired("start-marker")
	_ = cmd.MarkFlagRequired("end-marker")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func envInt(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return n
}

func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func prNumberFromEnv() int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("PR_NUMBER"))); err == nil && n > 0 {
		return n
	}
	return github.ParsePRNumberFromRef(os.Getenv("GITHUB_REF"))
}
