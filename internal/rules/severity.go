package rules

import "github.com/fleetops/kestrel/internal/domain"

// maxConfidence caps the reported confidence score. Internal accumulation
// may exceed it, which is intentional: many weak signals are allowed to
// combine before capping.
const maxConfidence = 100

// Default severity thresholds on the accumulated confidence score.
const (
	highSeverityScore   = 70
	mediumSeverityScore = 40
)

// scoreFindings sums the confidence contributions of all findings and
// returns both the raw accumulation and the capped score.
func scoreFindings(findings []Finding) (raw, capped int) {
	for _, f := range findings {
		raw += f.Confidence
	}
	capped = raw
	if capped > maxConfidence {
		capped = maxConfidence
	}
	return raw, capped
}

// defaultSeverity derives the severity tier from the accumulated score.
func defaultSeverity(score int) domain.Severity {
	switch {
	case score >= highSeverityScore:
		return domain.SeverityHigh
	case score >= mediumSeverityScore:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// resolveSeverity applies the rule's severity overrides to the score-derived
// default. Overrides are consulted in declaration order and the first entry
// whose code is among the detected codes wins outright; it replaces the
// default rather than combining with it.
func resolveSeverity(score int, overrides []domain.SeverityOverride, findings []Finding) domain.Severity {
	detected := make(map[domain.DiagnosticCode]bool, len(findings))
	for _, f := range findings {
		detected[f.Code] = true
	}

	for _, ov := range overrides {
		if detected[ov.Code] {
			return ov.Severity
		}
	}

	return defaultSeverity(score)
}

// requiresReview reports whether a severity tier demands manual review.
func requiresReview(sev domain.Severity) bool {
	return sev == domain.SeverityHigh || sev == domain.SeverityCritical
}
