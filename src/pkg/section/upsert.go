package section

import (
	"context"
	"errors"
	"fmt"

	"github.com/gh-nvat/ci-guard/src/pkg/models"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "section")

// CommentAPI is the discussion thread capability used for marker-anchored comments
type CommentAPI interface {
	GetComments(ctx context.Context, repo string, number int) ([]*models.Comment, error)
	CreateComment(ctx context.Context, repo string, number int, body string) (*models.Comment, error)
	UpdateComment(ctx context.Context, repo string, commentID int64, body string) error
}

// BodyAPI is the PR description capability used for delimited sections
type BodyAPI interface {
	GetPR(ctx context.Context, repo string, number int) (*models.PullRequest, error)
	UpdatePRBody(ctx context.Context, repo string, number int, body string) error
}

// Target identifies the pull request a document belongs to
type Target struct {
	Repo   string
	Number int
}

func (t Target) Valid() bool {
	return t.Repo != "" && t.Number > 0
}

func (t Target) String() string {
	return fmt.Sprintf("%s#%d", t.Repo, t.Number)
}

type Action string

const (
	ActionSkipped   Action = "skipped"
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionFailed    Action = "failed"
)

// Outcome reports what happened to the document. Err is informational only:
// commentary is a side effect and never fails the calling step.
type Outcome struct {
	Action    Action
	CommentID int64
	Err       error
}

// Applied reports whether the document now carries the content
func (o Outcome) Applied() bool {
	switch o.Action {
	case ActionCreated, ActionUpdated, ActionUnchanged:
		return true
	}
	return false
}

// notFounder is implemented by API errors that can tell a vanished resource apart
type notFounder interface {
	NotFound() bool
}

func isNotFound(err error) bool {
	var nf notFounder
	return errors.As(err, &nf) && nf.NotFound()
}

// CommentUpserter keeps a single comment per marker on a PR
type CommentUpserter struct {
	api CommentAPI
}

func NewCommentUpserter(api CommentAPI) *CommentUpserter {
	return &CommentUpserter{api: api}
}

// Upsert replaces the body of the comment anchored by marker, creating it if missing.
//
// When the update fails the comment is only re-created if it is known to be gone (404, or
// missing from a fresh listing) or if the listing itself fails. If the fresh listing shows
// the anchor already carries the new body, the update is treated as applied.
func (u *CommentUpserter) Upsert(ctx context.Context, target Target, marker, content string) Outcome {
	lg := logger.WithField("target", target.String()).WithField("func", "CommentUpserter.Upsert()")
	if !target.Valid() {
		lg.Info("No PR context available, skipping comment")
		return Outcome{Action: ActionSkipped}
	}

	fullBody := ComposeComment(marker, content)

	comments, err := u.api.GetComments(ctx, target.Repo, target.Number)
	if err != nil {
		lg.WithField("error", err).Warn("Failed to list comments, will create a new one")
		return u.create(ctx, target, fullBody, lg)
	}

	anchor := FindAnchor(comments, marker)
	if anchor == nil {
		return u.create(ctx, target, fullBody, lg)
	}

	err = u.api.UpdateComment(ctx, target.Repo, anchor.ID, fullBody)
	if err == nil {
		lg.WithField("commentID", anchor.ID).Info("Updated existing comment")
		return Outcome{Action: ActionUpdated, CommentID: anchor.ID}
	}
	lg = lg.WithField("commentID", anchor.ID).WithField("error", err)

	if isNotFound(err) {
		lg.Warn("Comment vanished before update, creating a new one")
		return u.create(ctx, target, fullBody, lg)
	}

	comments, listErr := u.api.GetComments(ctx, target.Repo, target.Number)
	if listErr != nil {
		lg.Warn("Failed to update comment and could not verify it, creating a new one")
		return u.create(ctx, target, fullBody, lg)
	}
	current := FindAnchor(comments, marker)
	switch {
	case current == nil:
		lg.Warn("Comment vanished before update, creating a new one")
		return u.create(ctx, target, fullBody, lg)
	case current.Body == fullBody:
		lg.Info("Update reported an error but the comment already has the new body")
		return Outcome{Action: ActionUpdated, CommentID: current.ID}
	}

	if retryErr := u.api.UpdateComment(ctx, target.Repo, current.ID, fullBody); retryErr != nil {
		lg.WithField("retryError", retryErr).Warn("Failed to update comment after retry, leaving it as is")
		return Outcome{Action: ActionFailed, CommentID: current.ID, Err: retryErr}
	}
	lg.Info("Updated existing comment on retry")
	return Outcome{Action: ActionUpdated, CommentID: current.ID}
}

func (u *CommentUpserter) create(ctx context.Context, target Target, body string, lg *log.Entry) Outcome {
	created, err := u.api.CreateComment(ctx, target.Repo, target.Number, body)
	if err != nil {
		lg.WithField("error", err).Warn("Failed to create comment")
		return Outcome{Action: ActionFailed, Err: err}
	}
	lg.WithField("commentID", created.ID).Info("Created new comment")
	return Outcome{Action: ActionCreated, CommentID: created.ID}
}

// BodyUpdater maintains a delimited section inside the PR description
type BodyUpdater struct {
	api BodyAPI
}

func NewBodyUpdater(api BodyAPI) *BodyUpdater {
	return &BodyUpdater{api: api}
}

// Update rewrites the section between start and end in the PR body, leaving the rest untouched
func (u *BodyUpdater) Update(ctx context.Context, target Target, start, end, content string) Outcome {
	lg := logger.WithField("target", target.String()).WithField("func", "BodyUpdater.Update()")
	if !target.Valid() {
		lg.Info("No PR context available, skipping PR body update")
		return Outcome{Action: ActionSkipped}
	}

	pr, err := u.api.GetPR(ctx, target.Repo, target.Number)
	if err != nil {
		lg.WithField("error", err).Warn("Failed to fetch PR body")
		return Outcome{Action: ActionFailed, Err: err}
	}

	action := ActionCreated
	if HasSection(pr.Body, start, end) {
		action = ActionUpdated
	}
	newBody := UpdateSection(pr.Body, start, end, content)
	if newBody == pr.Body {
		lg.Info("PR body section already up to date")
		return Outcome{Action: ActionUnchanged}
	}

	if err := u.api.UpdatePRBody(ctx, target.Repo, target.Number, newBody); err != nil {
		lg.WithField("error", err).Warn("Failed to update PR body, retrying once")
		if err := u.api.UpdatePRBody(ctx, target.Repo, target.Number, newBody); err != nil {
			lg.WithField("error", err).Warn("Failed to update PR body")
			return Outcome{Action: ActionFailed, Err: err}
		}
	}
	lg.WithField("action", action).Info("PR body section written")
	return Outcome{Action: action}
}
