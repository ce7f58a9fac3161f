package models

// PackageUpdate is the outdated state of one core package
type PackageUpdate struct {
	Name    string `json:"name"`
	Current string `json:"current"`
	Wanted  string `json:"wanted"`
	Latest  string `json:"latest"`
	// Bump is one of "major", "minor", "patch", "none" or "unknown"
	Bump string `json:"bump"`
}

// IsMajor reports a major-version advisory
func (p PackageUpdate) IsMajor() bool {
	return p.Bump == "major"
}

// DepCheckResult is the dependency check over the policy core packages
type DepCheckResult struct {
	Updates []PackageUpdate `json:"updates"`
	// UpToDate lists core packages absent from the outdated report
	UpToDate []string `json:"upToDate"`
}

// Status is warn when any core package is behind by a major version; there is no fail tier
func (r *DepCheckResult) Status() string {
	for _, u := range r.Updates {
		if u.IsMajor() {
			return StatusWarn
		}
	}
	return StatusPass
}
