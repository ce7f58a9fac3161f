package models

// PullRequest holds the fields of a GitHub PR used by the tool
type PullRequest struct {
	Number int
	Body   string
}

// Comment is an issue comment on a PR
type Comment struct {
	ID   int64
	Body string
}
