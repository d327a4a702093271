package resolve

import "github.com/jubeelegal/jubee/internal/models"

// Payload carries the strategy-specific input for one resolution. The
// sealed interface keeps invalid field combinations unrepresentable:
// each strategy accepts exactly one payload type.
type Payload interface {
	isPayload()
}

// UploadPayload supplies a replacement or missing document. PDF only for
// primary and annexure roles.
type UploadPayload struct {
	Ref *models.DocumentRef
}

// ReplaceReferencePayload maps a missing annexure reference onto a
// document already in the package.
type ReplaceReferencePayload struct {
	TargetDocumentID string
}

// RemoveReferencePayload carries the edited narration text with the
// offending annexure mention excised.
type RemoveReferencePayload struct {
	EditedNarration string
}

// DirectFixPayload triggers an engine-computed fix. No user input.
type DirectFixPayload struct{}

// TranslatePayload starts a translation resolution. With TranslateNow the
// engine produces a draft the caller must approve; with
// TranslateUseExisting the supplied pre-translated document resolves the
// defect immediately.
type TranslatePayload struct {
	Mode     models.TranslationMode
	Existing *models.DocumentRef // required for TranslateUseExisting
}

func (UploadPayload) isPayload()           {}
func (ReplaceReferencePayload) isPayload() {}
func (RemoveReferencePayload) isPayload()  {}
func (DirectFixPayload) isPayload()        {}
func (TranslatePayload) isPayload()        {}
