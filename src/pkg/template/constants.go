package template

// Markers anchor the documents ci-guard owns on a pull request. They must stay stable
// across releases, otherwise existing comments and sections are no longer found.
const (
	AuditCommentMarker = `<!-- ci-guard:audit - auto-generated comment, please do not remove -->`
	DepsCommentMarker  = `<!-- ci-guard:deps - auto-generated comment, please do not remove -->`

	ReleaseSectionStart = `<!-- ci-guard:release-preview:start -->`
	ReleaseSectionEnd   = `<!-- ci-guard:release-preview:end -->`

	FileNameAuditTemplate   = "audit.md.tmpl"
	FileNameDepsTemplate    = "deps.md.tmpl"
	FileNameReleaseTemplate = "release.md.tmpl"
)
