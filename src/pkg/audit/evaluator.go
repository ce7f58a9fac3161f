package audit

import (
	"time"

	"github.com/gh-nvat/ci-guard/src/pkg/models"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "audit")

// EXPIRY_WARNING_WINDOW flags waivers that run out within a week
const EXPIRY_WARNING_WINDOW = 7 * 24 * time.Hour

// Classify partitions advisories into failing, waived and below-threshold.
// It is pure: today is injected and nothing outside the returned report is touched.
func Classify(advisories []models.Advisory, cfg *models.PolicyConfig, today time.Time) *models.ClassifiedReport {
	report := &models.ClassifiedReport{
		Threshold:      cfg.AuditFailOn,
		Failing:        []models.Advisory{},
		Waived:         []models.WaivedAdvisory{},
		BelowThreshold: []models.Advisory{},
	}
	threshold := cfg.AuditFailOn.Rank()

	for _, adv := range Dedup(advisories) {
		if entry, ok := cfg.Allowlist[adv.ID]; ok {
			if entry.ActiveOn(today) {
				report.Waived = append(report.Waived, models.WaivedAdvisory{
					Advisory:     adv,
					Reason:       entry.Reason,
					Expires:      entry.Expires,
					ExpiringSoon: expiringSoon(entry, today),
				})
				continue
			}
			logger.WithField("id", adv.ID).WithField("expires", entry.Expires.Format("2006-01-02")).
				Debug("allowlist entry expired, evaluating severity")
		}

		if adv.Severity.Rank() >= threshold {
			report.Failing = append(report.Failing, adv)
		} else {
			report.BelowThreshold = append(report.BelowThreshold, adv)
		}
	}
	return report
}

// Dedup keeps the first advisory for every id, preserving order
func Dedup(advisories []models.Advisory) []models.Advisory {
	seen := make(map[string]bool, len(advisories))
	out := make([]models.Advisory, 0, len(advisories))
	for _, adv := range advisories {
		if seen[adv.ID] {
			continue
		}
		seen[adv.ID] = true
		out = append(out, adv)
	}
	return out
}

func expiringSoon(entry models.AllowlistEntry, today time.Time) bool {
	if entry.Expires == nil {
		return false
	}
	left := entry.Expires.Sub(today)
	return left >= 0 && left <= EXPIRY_WARNING_WINDOW
}
