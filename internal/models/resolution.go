package models

import "time"

// ResolutionStrategy is the repair path chosen for one defect.
type ResolutionStrategy string

const (
	StrategyUpload           ResolutionStrategy = "upload"
	StrategyReplaceReference ResolutionStrategy = "replace-reference"
	StrategyRemoveReference  ResolutionStrategy = "remove-reference"
	StrategyDirectFix        ResolutionStrategy = "direct-fix"
	StrategyTranslate        ResolutionStrategy = "translate"
)

// TranslationMode selects how a translate resolution obtains its text.
type TranslationMode string

const (
	TranslateNow         TranslationMode = "translate-now"
	TranslateUseExisting TranslationMode = "use-existing"
)

// PagePlacement decides where translated pages land in a partially
// translated annexure. Required before a selective-pages translation
// resolution can complete.
type PagePlacement string

const (
	PlacementReplaceOriginal     PagePlacement = "replace-original-pages"
	PlacementAppendAtEnd         PagePlacement = "append-translated-at-end"
	PlacementInsertAfterOriginal PagePlacement = "insert-after-original-page"
)

// ResolutionRecord is the audit row written when a resolution reaches a
// terminal outcome.
type ResolutionRecord struct {
	ID        string
	PackageID string
	DefectID  string
	Strategy  ResolutionStrategy
	Outcome   string // resolved, failed, cancelled
	Detail    string
	StartedAt time.Time
	EndedAt   time.Time
}
