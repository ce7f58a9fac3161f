package runner

import (
	"context"

	"github.com/gh-nvat/ci-guard/src/pkg/github"
	"github.com/gh-nvat/ci-guard/src/pkg/section"
	"github.com/gh-nvat/ci-guard/src/pkg/trace"
)

// Publisher writes rendered documents to the pull request of the run.
// Publishing is a side effect: failures are logged and never change a verdict.
type Publisher struct {
	target   section.Target
	comments *section.CommentUpserter
	bodies   *section.BodyUpdater
}

// NewPublisher returns a publisher for target. A nil api turns every call into a skip.
func NewPublisher(api github.GitHubClient, target section.Target) *Publisher {
	p := &Publisher{target: target}
	if api != nil {
		p.comments = section.NewCommentUpserter(api)
		p.bodies = section.NewBodyUpdater(api)
	}
	return p
}

// Comment upserts the single comment anchored by marker
func (p *Publisher) Comment(ctx context.Context, marker, content string) section.Outcome {
	ctx, span := trace.StartSpan(ctx, "Publish.Comment")
	defer span.End()

	if p == nil || p.comments == nil {
		logger.Info("Publish: no GitHub client, skipping comment")
		return section.Outcome{Action: section.ActionSkipped}
	}
	return p.comments.Upsert(ctx, p.target, marker, content)
}

// Section replaces the delimited section of the PR description
func (p *Publisher) Section(ctx context.Context, start, end, content string) section.Outcome {
	ctx, span := trace.StartSpan(ctx, "Publish.Section")
	defer span.End()

	if p == nil || p.bodies == nil {
		logger.Info("Publish: no GitHub client, skipping PR body section")
		return section.Outcome{Action: section.ActionSkipped}
	}
	return p.bodies.Update(ctx, p.target, start, end, content)
}
