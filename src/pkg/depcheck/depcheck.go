// Package depcheck reports core packages that drifted behind their latest major version.
package depcheck

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/gh-nvat/ci-guard/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "depcheck")

const (
	BumpMajor   = "major"
	BumpMinor   = "minor"
	BumpPatch   = "patch"
	BumpNone    = "none"
	BumpUnknown = "unknown"
)

type outdatedEntry struct {
	Current string `json:"current"`
	Wanted  string `json:"wanted"`
	Latest  string `json:"latest"`
}

// Check evaluates `npm outdated --json` output for the given core packages.
// Packages missing from the report are up to date.
func Check(outdated []byte, corePackages []string) (*models.DepCheckResult, error) {
	entries, err := parseOutdated(outdated)
	if err != nil {
		return nil, err
	}

	result := &models.DepCheckResult{
		Updates:  []models.PackageUpdate{},
		UpToDate: []string{},
	}
	seen := make(map[string]bool)
	for _, name := range corePackages {
		if seen[name] {
			continue
		}
		seen[name] = true

		entry, ok := entries[name]
		if !ok {
			result.UpToDate = append(result.UpToDate, name)
			continue
		}
		update := models.PackageUpdate{
			Name:    name,
			Current: entry.Current,
			Wanted:  entry.Wanted,
			Latest:  entry.Latest,
			Bump:    Bump(entry.Current, entry.Latest),
		}
		logger.WithField("package", name).WithField("bump", update.Bump).Debug("Core package is outdated")
		result.Updates = append(result.Updates, update)
	}
	return result, nil
}

// Bump classifies the difference between two versions. Anything that is not
// semver, including a package that is not installed, is unknown.
func Bump(current, latest string) string {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return BumpUnknown
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return BumpUnknown
	}
	if !lat.GreaterThan(cur) {
		return BumpNone
	}
	switch {
	case lat.Major() > cur.Major():
		return BumpMajor
	case lat.Major() == cur.Major() && lat.Minor() > cur.Minor():
		return BumpMinor
	case lat.Major() == cur.Major() && lat.Minor() == cur.Minor():
		return BumpPatch
	default:
		return BumpNone
	}
}

// parseOutdated accepts both the flat shape and the workspace shape where each
// package maps to a list of entries; the first entry wins.
func parseOutdated(data []byte) (map[string]outdatedEntry, error) {
	entries := make(map[string]outdatedEntry)
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse npm outdated output: %w", err)
	}
	if msg, ok := raw["error"]; ok {
		return nil, fmt.Errorf("npm outdated reported an error: %s", string(msg))
	}

	for name, value := range raw {
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []outdatedEntry
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("failed to parse npm outdated entry %s: %w", name, err)
			}
			if len(list) > 0 {
				entries[name] = list[0]
			}
			continue
		}
		var entry outdatedEntry
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse npm outdated entry %s: %w", name, err)
		}
		entries[name] = entry
	}
	return entries, nil
}
