package models

import "time"

// DefectKind identifies which compliance rule produced a defect.
type DefectKind string

const (
	DefectAnnexureMissing            DefectKind = "annexure_missing"
	DefectMarginNonCompliant         DefectKind = "margin_non_compliant"
	DefectStampDutyInsufficient      DefectKind = "stamp_duty_insufficient"
	DefectTranslationRequiredFull    DefectKind = "translation_required_full"
	DefectTranslationRequiredPartial DefectKind = "translation_required_partial"
	DefectIndexMismatch              DefectKind = "index_mismatch"
	DefectPageNumberingGap           DefectKind = "page_numbering_gap"
	DefectFontNonCompliant           DefectKind = "font_non_compliant"
)

// DefectSeverity ranks how strongly a defect blocks filing.
type DefectSeverity string

const (
	SeverityMustFix  DefectSeverity = "must-fix"
	SeverityReview   DefectSeverity = "review"
	SeverityAdvisory DefectSeverity = "advisory"
)

// SeverityRank returns the sort rank for a severity. Lower sorts first.
func SeverityRank(s DefectSeverity) int {
	switch s {
	case SeverityMustFix:
		return 0
	case SeverityReview:
		return 1
	case SeverityAdvisory:
		return 2
	default:
		return 3
	}
}

// DefectStatus is the resolution state of a defect.
type DefectStatus string

const (
	DefectStatusPending  DefectStatus = "pending"
	DefectStatusResolved DefectStatus = "resolved"
	DefectStatusIgnored  DefectStatus = "ignored"
)

// Defect is one detected compliance violation in a filing package.
type Defect struct {
	ID                string
	PassID            string
	Kind              DefectKind
	Severity          DefectSeverity
	Description       string // court-facing language
	Explanation       string // what rule triggered it
	RelatedDocumentID string
	AnnexureLabel     string // for annexure_missing: the unmatched label
	PageNumber        int    // 0 = whole document
	Pages             []int  // for translation_required_partial
	Status            DefectStatus
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// Pending reports whether the defect still blocks the completion gate.
func (d *Defect) Pending() bool {
	return d.Status == DefectStatusPending
}
