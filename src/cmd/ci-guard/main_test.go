package main

import (
	"reflect"
	"testing"

	"github.com/gh-nvat/ci-guard/src/internal/runner"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv("CORE_PACKAGES", " react, ,vite ")
	t.Setenv("AUDIT_PRODUCTION_ONLY", "true")
	t.Setenv("PR_NUMBER", "")
	t.Setenv("GITHUB_REF", "refs/pull/42/merge")

	if got := envList("CORE_PACKAGES"); !reflect.DeepEqual(got, []string{"react", "vite"}) {
		t.Errorf("envList() = %v", got)
	}
	if !envBool("AUDIT_PRODUCTION_ONLY") {
		t.Error("envBool() = false, want true")
	}
	if got := prNumberFromEnv(); got != 42 {
		t.Errorf("prNumberFromEnv() = %d, want 42", got)
	}

	t.Setenv("PR_NUMBER", "7")
	if got := prNumberFromEnv(); got != 7 {
		t.Errorf("prNumberFromEnv() = %d, want 7", got)
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    runner.Options
		wantErr bool
	}{
		{name: "local", opts: runner.Options{RunMode: runner.RUN_MODE_LOCAL}},
		{name: "github without PR context is allowed", opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB}},
		{name: "github", opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB, GhRepo: "org/app", GhPrNumber: 3}},
		{name: "bad mode", opts: runner.Options{RunMode: "remote"}, wantErr: true},
		{name: "bad repo", opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB, GhRepo: "app"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOptions(&tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"audit", "deps", "release-preview", "rewrite-releaserc", "comment", "section"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %s not registered: %v", name, err)
		}
	}
}

func TestWorkflowRunUrl(t *testing.T) {
	tests := []struct {
		name string
		opts runner.Options
		want string
	}{
		{
			name: "github run",
			opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB, GhRepo: "org/app", GhRunId: 42},
			want: "https://github.com/org/app/actions/runs/42",
		},
		{
			name: "enterprise server",
			opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB, GhRepo: "org/app", GhRunId: 42, GhServerUrl: "https://ghe.example.com/"},
			want: "https://ghe.example.com/org/app/actions/runs/42",
		},
		{name: "no run id", opts: runner.Options{RunMode: runner.RUN_MODE_GITHUB, GhRepo: "org/app"}},
		{name: "local mode", opts: runner.Options{RunMode: runner.RUN_MODE_LOCAL, GhRepo: "org/app", GhRunId: 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := createRenderer(&tt.opts).RunURL; got != tt.want {
				t.Errorf("RunURL = %q, want %q", got, tt.want)
			}
		})
	}
}
