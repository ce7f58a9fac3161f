// Package section edits machine-managed regions of human-edited GitHub documents.
//
// A region is identified by marker tokens (HTML comments) so that repeated runs replace
// the region in place instead of appending a new copy. The functions in this file are pure;
// upsert.go drives them against the GitHub API.
package section

import (
	"strings"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
)

// ComposeComment builds the body of a marker-anchored comment
func ComposeComment(marker, content string) string {
	return marker + "\n" + content
}

// FindAnchor returns the first comment whose body starts with marker, or nil
func FindAnchor(comments []*models.Comment, marker string) *models.Comment {
	for _, c := range comments {
		if c != nil && strings.HasPrefix(c.Body, marker) {
			return c
		}
	}
	return nil
}

// ComposeSection builds the delimited region, trailing newlines of content are dropped
func ComposeSection(start, end, content string) string {
	content = strings.TrimRight(content, "\r\n")
	if content == "" {
		return start + "\n" + end
	}
	return start + "\n" + content + "\n" + end
}

// UpdateSection replaces the region between the first start marker line and the last end
// marker line after it, or appends the region when no complete region exists.
//
// Everything after the end marker line is kept byte for byte. Blank lines directly before
// the start marker collapse to a single one so repeated updates reach a fixed point.
func UpdateSection(doc, start, end, content string) string {
	sec := ComposeSection(start, end, content)
	lines := strings.Split(doc, "\n")

	startIdx, endIdx := findRegion(lines, start, end)
	if startIdx < 0 {
		return appendSection(doc, sec)
	}

	before, hadBlank := trimTrailingBlank(lines[:startIdx])
	var b strings.Builder
	if len(before) > 0 {
		b.WriteString(strings.Join(before, "\n"))
		b.WriteString("\n")
		if hadBlank {
			b.WriteString("\n")
		}
	}
	b.WriteString(sec)
	if endIdx+1 < len(lines) {
		b.WriteString("\n")
		b.WriteString(strings.Join(lines[endIdx+1:], "\n"))
	}
	return b.String()
}

// HasSection reports whether doc contains a complete region for the markers
func HasSection(doc, start, end string) bool {
	s, _ := findRegion(strings.Split(doc, "\n"), start, end)
	return s >= 0
}

// findRegion returns the first start marker line and the last end marker line after it.
// A start marker without any end marker after it is treated as no region at all.
func findRegion(lines []string, start, end string) (int, int) {
	startIdx := -1
	for i, l := range lines {
		if isMarkerLine(l, start) {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return -1, -1
	}
	for j := len(lines) - 1; j > startIdx; j-- {
		if isMarkerLine(lines[j], end) {
			return startIdx, j
		}
	}
	return -1, -1
}

func isMarkerLine(line, marker string) bool {
	return strings.TrimSpace(line) == marker
}

func appendSection(doc, sec string) string {
	lines, _ := trimTrailingBlank(strings.Split(doc, "\n"))
	if len(lines) == 0 {
		return sec + "\n"
	}
	return strings.Join(lines, "\n") + "\n\n" + sec + "\n"
}

// trimTrailingBlank drops trailing whitespace-only lines and reports whether any were dropped
func trimTrailingBlank(lines []string) ([]string, bool) {
	n := len(lines)
	for n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		n--
	}
	return lines[:n], n < len(lines)
}
