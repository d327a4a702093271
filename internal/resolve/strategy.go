package resolve

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/rules"
)

// run executes one resolution strategy. All document-set writes happen at
// a single commit point after validation, so a cancelled or failed attempt
// leaves no partial state behind.
func (r *Resolver) run(ctx context.Context, h *Handle, defect *models.Defect, strategy models.ResolutionStrategy, payload Payload) error {
	switch strategy {
	case models.StrategyUpload:
		return r.runUpload(ctx, defect, payload.(UploadPayload))
	case models.StrategyReplaceReference:
		return r.runReplaceReference(ctx, defect, payload.(ReplaceReferencePayload))
	case models.StrategyRemoveReference:
		return r.runRemoveReference(ctx, defect, payload.(RemoveReferencePayload))
	case models.StrategyDirectFix:
		return r.runDirectFix(ctx, defect)
	case models.StrategyTranslate:
		return r.runTranslate(ctx, h, defect, payload.(TranslatePayload))
	default:
		return fmt.Errorf("unknown strategy %s", strategy)
	}
}

func (r *Resolver) runUpload(ctx context.Context, defect *models.Defect, p UploadPayload) error {
	if p.Ref == nil {
		return fmt.Errorf("upload: no document supplied")
	}
	if !p.Ref.IsPDF() {
		return fmt.Errorf("upload %q has type %s: %w", p.Ref.DisplayName, p.Ref.ContentType, ErrInvalidFileType)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ref := p.Ref.Clone()
	switch defect.Kind {
	case models.DefectAnnexureMissing, models.DefectIndexMismatch:
		// Picker selections and caller-supplied metadata arrive without an
		// identity of their own; the set rejects ID-less documents.
		if ref.ID == "" {
			ref.ID = newULID()
		}
		ref.Role = models.RoleAnnexure
		if ref.Label == "" {
			ref.Label = defect.AnnexureLabel
		}
		return r.docs.Add(ref)
	case models.DefectStampDutyInsufficient:
		// A fresh fee receipt: replace the primary's declared payment.
		primary, err := r.docs.Primary()
		if err != nil {
			return err
		}
		fixed := primary.Clone()
		fixed.StampDutyPaidPaise = ref.StampDutyPaidPaise
		return r.docs.Replace(primary.ID, fixed)
	default:
		return r.docs.Replace(defect.RelatedDocumentID, ref)
	}
}

func (r *Resolver) runReplaceReference(ctx context.Context, defect *models.Defect, p ReplaceReferencePayload) error {
	target, err := r.docs.Get(p.TargetDocumentID)
	if err != nil {
		return fmt.Errorf("replace-reference: %w", err)
	}
	if target.Role == models.RolePrimary {
		return fmt.Errorf("replace-reference: cannot map onto the primary petition")
	}
	if r.cfg.RevalidateReferences {
		if err := r.checkReplacementTarget(target, defect.AnnexureLabel); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The mapping is an assertion: the chosen document now carries the
	// label the narration refers to.
	mapped := target.Clone()
	mapped.Label = defect.AnnexureLabel
	mapped.Role = models.RoleAnnexure
	return r.docs.Replace(target.ID, mapped)
}

// checkReplacementTarget rejects mappings that could not actually close
// the defect, before any write reaches the set. A non-PDF cannot serve as
// a filed annexure, an index document has a fixed role, and stealing a
// document that already backs another referenced label would only trade
// one missing annexure for another.
func (r *Resolver) checkReplacementTarget(target *models.DocumentRef, label string) error {
	if !target.IsPDF() {
		return fmt.Errorf("replace-reference %q has type %s: %w", target.DisplayName, target.ContentType, ErrInvalidFileType)
	}
	if target.Role == models.RoleIndex {
		return fmt.Errorf("replace-reference: the index document cannot serve as annexure %s", label)
	}
	if target.Role == models.RoleAnnexure && target.Label != "" && !strings.EqualFold(target.Label, label) {
		if primary, err := r.docs.Primary(); err == nil && rules.MentionsLabel(primary.Narration, target.Label) {
			return fmt.Errorf("replace-reference: document %s already serves referenced annexure %s", target.ID, target.Label)
		}
	}
	return nil
}

func (r *Resolver) runRemoveReference(ctx context.Context, defect *models.Defect, p RemoveReferencePayload) error {
	if rules.MentionsLabel(p.EditedNarration, defect.AnnexureLabel) {
		return fmt.Errorf("annexure %s: %w", defect.AnnexureLabel, ErrReferenceStillPresent)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.docs.SetNarration(p.EditedNarration)
}

// runDirectFix computes the compliant value for the defect's document.
// Deterministic, no user payload, always succeeds on a well-formed set.
func (r *Resolver) runDirectFix(ctx context.Context, defect *models.Defect) error {
	doc, err := r.docs.Get(defect.RelatedDocumentID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fixed := doc.Clone()
	switch defect.Kind {
	case models.DefectMarginNonCompliant:
		fixed.LeftMarginInches = r.profile.MinLeftMarginInches
	case models.DefectFontNonCompliant:
		fixed.FontFamily = r.profile.RequiredFont
	case models.DefectPageNumberingGap:
		renumber(fixed)
	case models.DefectStampDutyInsufficient:
		fixed.StampDutyPaidPaise = r.profile.RequiredStampDuty(r.caseCategory)
	case models.DefectIndexMismatch:
		rebuildIndex(r.docs, fixed)
	default:
		return fmt.Errorf("direct-fix: %w for %s", ErrStrategyNotApplicable, defect.Kind)
	}
	return r.docs.Replace(doc.ID, fixed)
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func renumber(d *models.DocumentRef) {
	if len(d.PageNumbers) == 0 {
		return
	}
	start := d.PageNumbers[0]
	for i := range d.PageNumbers {
		d.PageNumbers[i] = start + i
	}
}

// rebuildIndex regenerates a role-index document's entries from the
// annexures actually present, in label order.
func rebuildIndex(docs *docset.Set, idx *models.DocumentRef) {
	var labels []string
	for _, a := range docs.ByRole(models.RoleAnnexure) {
		if a.Label != "" {
			labels = append(labels, strings.ToUpper(a.Label))
		}
	}
	sort.Strings(labels)
	idx.IndexEntries = labels
}

func (r *Resolver) runTranslate(ctx context.Context, h *Handle, defect *models.Defect, p TranslatePayload) error {
	doc, err := r.docs.Get(defect.RelatedDocumentID)
	if err != nil {
		return err
	}
	target := r.profile.TargetLanguage

	var approved string
	switch p.Mode {
	case models.TranslateUseExisting:
		if p.Existing == nil {
			return fmt.Errorf("translate use-existing: no document supplied")
		}
		if !p.Existing.IsPDF() {
			return fmt.Errorf("translate use-existing %q has type %s: %w", p.Existing.DisplayName, p.Existing.ContentType, ErrInvalidFileType)
		}
		approved = p.Existing.Narration
	case models.TranslateNow:
		if r.cfg.Translator == nil {
			return fmt.Errorf("translate: no translation provider configured")
		}
		draft, err := r.cfg.Translator.Translate(ctx, doc.Narration, doc.Language, target)
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		h.setDraft(draft)

		// The draft never enters the document set without explicit caller
		// approval; the caller may hand-edit it first.
		select {
		case approved = <-h.approveCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return fmt.Errorf("translate: unknown mode %q", p.Mode)
	}

	if defect.Kind == models.DefectTranslationRequiredPartial {
		// Selective pages additionally need a placement decision before
		// the resolution can complete.
		var placement models.PagePlacement
		select {
		case placement = <-h.placeCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		return r.commitPartialTranslation(doc, defect, approved, placement, target)
	}

	translated := doc.Clone()
	translated.Language = target
	translated.Narration = approved
	if p.Mode == models.TranslateUseExisting {
		translated.DisplayName = p.Existing.DisplayName
		translated.StorageKey = p.Existing.StorageKey
		translated.PageCount = p.Existing.PageCount
		translated.SizeBytes = p.Existing.SizeBytes
	}
	return r.docs.Replace(doc.ID, translated)
}

func (r *Resolver) commitPartialTranslation(doc *models.DocumentRef, defect *models.Defect, approved string, placement models.PagePlacement, target string) error {
	translated := doc.Clone()
	for _, p := range defect.Pages {
		delete(translated.PageLanguages, p)
	}
	switch placement {
	case models.PlacementReplaceOriginal:
		// Originals swapped out; page count unchanged.
	case models.PlacementAppendAtEnd, models.PlacementInsertAfterOriginal:
		translated.PageCount += len(defect.Pages)
	default:
		return fmt.Errorf("translate: unknown placement %q", placement)
	}
	if approved != "" {
		translated.Narration = approved
	}
	return r.docs.Replace(doc.ID, translated)
}
