package github

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOwnerRepo splits "owner/repo"
func ParseOwnerRepo(fullRepo string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(fullRepo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/repo", fullRepo)
	}
	return parts[0], parts[1], nil
}

// GetWorkflowRunUrl returns the Actions run page for the repository
func GetWorkflowRunUrl(serverURL, repo string, runId int) (string, error) {
	if _, _, err := ParseOwnerRepo(repo); err != nil {
		return "", err
	}
	if runId <= 0 {
		return "", fmt.Errorf("invalid run id %d", runId)
	}
	if serverURL == "" {
		serverURL = "https://github.com"
	}
	return fmt.Sprintf("%s/%s/actions/runs/%d", strings.TrimRight(serverURL, "/"), repo, runId), nil
}

// ParsePRNumberFromRef extracts the PR number from refs like "refs/pull/123/merge"
func ParsePRNumberFromRef(ref string) int {
	parts := strings.Split(ref, "/")
	if len(parts) != 4 || parts[0] != "refs" || parts[1] != "pull" {
		return 0
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
