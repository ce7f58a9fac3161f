package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var logger = log.WithField("package", "github")

const DEFAULT_API_URL = "https://api.github.com"

// GitHubClient defines the interface for GitHub API operations
type GitHubClient interface {
	// GetPR retrieves pull request information, including its body
	GetPR(ctx context.Context, repo string, number int) (*models.PullRequest, error)
	// UpdatePRBody replaces the pull request description
	UpdatePRBody(ctx context.Context, repo string, number int, body string) error
	// CreateComment creates a new comment on a pull request
	CreateComment(ctx context.Context, repo string, number int, body string) (*models.Comment, error)
	// UpdateComment updates an existing comment
	UpdateComment(ctx context.Context, repo string, commentID int64, body string) error
	// GetComments retrieves all comments for a pull request
	GetComments(ctx context.Context, repo string, number int) ([]*models.Comment, error)
}

// Client handles GitHub API interactions using go-github
type Client struct {
	client *github.Client
}

// Ensure Client implements GitHubClient
var _ GitHubClient = (*Client)(nil)

// NewClient creates a new GitHub client. apiURL may point to a GitHub Enterprise Server API.
func NewClient(apiURL string) (*Client, error) {
	token := os.Getenv("GH_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token not found. Set GH_TOKEN or GITHUB_TOKEN environment variable")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	if apiURL != "" && strings.TrimRight(apiURL, "/") != DEFAULT_API_URL {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
	}

	return &Client{
		client: client,
	}, nil
}

// NewClientFromGitHub wraps an existing go-github client, used with test servers
func NewClientFromGitHub(client *github.Client) *Client {
	return &Client{client: client}
}

// GetPR retrieves pull request information
func (c *Client) GetPR(ctx context.Context, repo string, number int) (*models.PullRequest, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	pr, _, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, newExternalCallError("get PR", err)
	}

	return &models.PullRequest{
		Number: pr.GetNumber(),
		Body:   pr.GetBody(),
	}, nil
}

// UpdatePRBody replaces the pull request description
func (c *Client) UpdatePRBody(ctx context.Context, repo string, number int, body string) error {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return fmt.Errorf("failed to parse repository: %w", err)
	}
	_, res, err := c.client.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		Body: github.String(body),
	})
	logger.WithField("response", res).Debug("Updated PR body")
	if err != nil {
		return newExternalCallError("update PR body", err)
	}
	return nil
}

// CreateComment creates a new comment on a pull request
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (*models.Comment, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	comment := &github.IssueComment{
		Body: github.String(body),
	}

	created, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		return nil, newExternalCallError("create comment", err)
	}

	return &models.Comment{
		ID:   created.GetID(),
		Body: created.GetBody(),
	}, nil
}

// UpdateComment updates an existing comment
func (c *Client) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return fmt.Errorf("failed to parse repository: %w", err)
	}
	comment := &github.IssueComment{
		Body: github.String(body),
	}

	commentRes, res, err := c.client.Issues.EditComment(ctx, owner, repo, commentID, comment)
	logger.WithField("comment", commentRes.GetID()).WithField("response", res).Debug("Updated comment")
	if err != nil {
		return newExternalCallError("update comment", err)
	}

	return nil
}

// GetComments retrieves all comments for a pull request, following pagination
func (c *Client) GetComments(ctx context.Context, repo string, prNumber int) ([]*models.Comment, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var allComments []*models.Comment
	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, newExternalCallError("list comments", err)
		}

		for _, c := range comments {
			allComments = append(allComments, &models.Comment{
				ID:   c.GetID(),
				Body: c.GetBody(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// ExternalCallError is a failed GitHub API round trip
type ExternalCallError struct {
	Op         string
	StatusCode int
	Cause      error
}

func newExternalCallError(op string, err error) *ExternalCallError {
	e := &ExternalCallError{Op: op, Cause: err}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		e.StatusCode = ghErr.Response.StatusCode
	}
	return e
}

func (e *ExternalCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to %s (HTTP %d): %v", e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Cause)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Cause
}

// NotFound reports whether the resource no longer exists
func (e *ExternalCallError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
