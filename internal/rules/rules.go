// Package rules is the compliance rule catalog: a fixed, ordered set of
// pure checks evaluated against a document set. Each rule reports the
// defects it finds; it never mutates the set and never looks at history,
// so a re-scan against a repaired set simply stops reporting the defect.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
)

// ErrMalformedSet aborts a scrutiny pass when the document set violates
// package invariants (no primary petition).
var ErrMalformedSet = errors.New("malformed document set")

// Input is everything a rule may inspect.
type Input struct {
	Docs         *docset.Set
	Profile      *Profile
	CaseCategory string
}

// Rule is one catalog entry. Eval returns the defects the rule detects in
// deterministic order; id assignment and status are the runner's job.
type Rule struct {
	Kind     models.DefectKind
	Severity models.DefectSeverity
	Eval     func(in Input) []*models.Defect
}

// Catalog returns the rule catalog in declaration order. The order is part
// of the engine's contract: defect lists sort by severity first, catalog
// position second.
func Catalog() []Rule {
	return []Rule{
		{models.DefectAnnexureMissing, models.SeverityMustFix, annexureMissing},
		{models.DefectMarginNonCompliant, models.SeverityMustFix, marginNonCompliant},
		{models.DefectStampDutyInsufficient, models.SeverityMustFix, stampDutyInsufficient},
		{models.DefectTranslationRequiredFull, models.SeverityMustFix, translationRequiredFull},
		{models.DefectTranslationRequiredPartial, models.SeverityMustFix, translationRequiredPartial},
		{models.DefectIndexMismatch, models.SeverityReview, indexMismatch},
		{models.DefectPageNumberingGap, models.SeverityReview, pageNumberingGap},
		{models.DefectFontNonCompliant, models.SeverityAdvisory, fontNonCompliant},
	}
}

// annexureLabelRe matches annexure mentions like "Annexure P-4" or
// "ANNEXURE R1" in narration text. Capture group 1 is the label.
var annexureLabelRe = regexp.MustCompile(`(?i)\bannexure[\s-]+([A-Z]{1,3}-?\d{1,3})\b`)

// ReferencedLabels extracts the annexure labels mentioned in narration
// text, normalized to upper case, in order of first mention.
func ReferencedLabels(narration string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, m := range annexureLabelRe.FindAllStringSubmatch(narration, -1) {
		label := strings.ToUpper(m[1])
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

// MentionsLabel reports whether narration text still references the given
// annexure label. Used by the remove-reference resolution to validate
// edited narration.
func MentionsLabel(narration, label string) bool {
	for _, l := range ReferencedLabels(narration) {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

func annexureMissing(in Input) []*models.Defect {
	primary, err := in.Docs.Primary()
	if err != nil {
		return nil
	}

	var defects []*models.Defect
	for _, label := range ReferencedLabels(primary.Narration) {
		if in.Docs.AnnexureByLabel(label) != nil {
			continue
		}
		defects = append(defects, &models.Defect{
			Description:       fmt.Sprintf("Annexure %s is referred to in the petition but has not been filed.", label),
			Explanation:       fmt.Sprintf("The narration mentions %q with no annexure carrying that label in the package.", label),
			RelatedDocumentID: primary.ID,
			AnnexureLabel:     label,
		})
	}
	return defects
}

func marginNonCompliant(in Input) []*models.Defect {
	min := in.Profile.MinLeftMarginInches
	var defects []*models.Defect
	for _, d := range in.Docs.All() {
		if d.Role != models.RolePrimary && d.Role != models.RoleAnnexure {
			continue
		}
		if d.LeftMarginInches <= 0 || d.LeftMarginInches >= min {
			continue
		}
		defects = append(defects, &models.Defect{
			Description:       fmt.Sprintf("%s does not leave the %.2g inch left margin required by the court.", d.DisplayName, min),
			Explanation:       fmt.Sprintf("Detected left margin %.2g in, required %.2g in.", d.LeftMarginInches, min),
			RelatedDocumentID: d.ID,
		})
	}
	return defects
}

func stampDutyInsufficient(in Input) []*models.Defect {
	primary, err := in.Docs.Primary()
	if err != nil {
		return nil
	}
	required := in.Profile.RequiredStampDuty(in.CaseCategory)
	if required == 0 || primary.StampDutyPaidPaise >= required {
		return nil
	}
	return []*models.Defect{{
		Description: fmt.Sprintf("Court fee of ₹%.2f is payable; ₹%.2f has been affixed.",
			float64(required)/100, float64(primary.StampDutyPaidPaise)/100),
		Explanation: fmt.Sprintf("Schedule for %q requires %d paise, detected %d paise paid.",
			in.CaseCategory, required, primary.StampDutyPaidPaise),
		RelatedDocumentID: primary.ID,
	}}
}

func translationRequiredFull(in Input) []*models.Defect {
	target := in.Profile.TargetLanguage
	var defects []*models.Defect
	for _, d := range in.Docs.ByRole(models.RoleAnnexure) {
		if d.Language == "" || strings.EqualFold(d.Language, target) {
			continue
		}
		defects = append(defects, &models.Defect{
			Description:       fmt.Sprintf("Annexure %s must be accompanied by a %s translation.", d.Label, languageName(target)),
			Explanation:       fmt.Sprintf("Document language %q differs from the court language %q.", d.Language, target),
			RelatedDocumentID: d.ID,
			AnnexureLabel:     d.Label,
		})
	}
	return defects
}

func translationRequiredPartial(in Input) []*models.Defect {
	target := in.Profile.TargetLanguage
	var defects []*models.Defect
	for _, d := range in.Docs.ByRole(models.RoleAnnexure) {
		// Whole-document translation is already covered by the full rule.
		if d.Language != "" && !strings.EqualFold(d.Language, target) {
			continue
		}
		var pages []int
		for p, lang := range d.PageLanguages {
			if !strings.EqualFold(lang, target) {
				pages = append(pages, p)
			}
		}
		if len(pages) == 0 {
			continue
		}
		sort.Ints(pages)
		defects = append(defects, &models.Defect{
			Description: fmt.Sprintf("Pages %s of annexure %s must be accompanied by a %s translation.",
				pageList(pages), d.Label, languageName(target)),
			Explanation:       fmt.Sprintf("%d of %d pages are not in the court language %q.", len(pages), d.PageCount, target),
			RelatedDocumentID: d.ID,
			AnnexureLabel:     d.Label,
			Pages:             pages,
		})
	}
	return defects
}

func indexMismatch(in Input) []*models.Defect {
	indexes := in.Docs.ByRole(models.RoleIndex)
	if len(indexes) == 0 {
		return nil
	}
	idx := indexes[0]

	listed := make(map[string]bool, len(idx.IndexEntries))
	var defects []*models.Defect
	for _, label := range idx.IndexEntries {
		listed[strings.ToUpper(label)] = true
		if in.Docs.AnnexureByLabel(label) == nil {
			defects = append(defects, &models.Defect{
				Description:       fmt.Sprintf("The index lists annexure %s which is not part of the paper book.", strings.ToUpper(label)),
				Explanation:       "Index entry has no matching annexure in the package.",
				RelatedDocumentID: idx.ID,
				AnnexureLabel:     strings.ToUpper(label),
			})
		}
	}
	for _, d := range in.Docs.ByRole(models.RoleAnnexure) {
		if d.Label != "" && !listed[strings.ToUpper(d.Label)] {
			defects = append(defects, &models.Defect{
				Description:       fmt.Sprintf("Annexure %s is filed but does not appear in the index.", d.Label),
				Explanation:       "Annexure present in the package with no corresponding index entry.",
				RelatedDocumentID: d.ID,
				AnnexureLabel:     d.Label,
			})
		}
	}
	return defects
}

func pageNumberingGap(in Input) []*models.Defect {
	var defects []*models.Defect
	for _, d := range in.Docs.All() {
		if len(d.PageNumbers) < 2 {
			continue
		}
		for i := 1; i < len(d.PageNumbers); i++ {
			if d.PageNumbers[i] != d.PageNumbers[i-1]+1 {
				defects = append(defects, &models.Defect{
					Description: fmt.Sprintf("Page numbering of %s jumps from %d to %d.",
						d.DisplayName, d.PageNumbers[i-1], d.PageNumbers[i]),
					Explanation:       "Printed page numbers are not consecutive.",
					RelatedDocumentID: d.ID,
					PageNumber:        d.PageNumbers[i-1],
				})
				break
			}
		}
	}
	return defects
}

func fontNonCompliant(in Input) []*models.Defect {
	required := in.Profile.RequiredFont
	if required == "" {
		return nil
	}
	var defects []*models.Defect
	for _, d := range in.Docs.All() {
		if d.FontFamily == "" || strings.EqualFold(d.FontFamily, required) {
			continue
		}
		defects = append(defects, &models.Defect{
			Description:       fmt.Sprintf("%s is set in %s; the court prefers %s.", d.DisplayName, d.FontFamily, required),
			Explanation:       fmt.Sprintf("Detected font %q, preferred font %q.", d.FontFamily, required),
			RelatedDocumentID: d.ID,
		})
	}
	return defects
}

// DefectID derives a stable id from a defect's identifying fields, so two
// scrutiny passes over the same document state report the same ids.
func DefectID(kind models.DefectKind, relatedDocID, label string, page int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d", kind, relatedDocID, label, page))
	return "dft_" + hex.EncodeToString(h[:])[:16]
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "en":
		return "English"
	case "hi":
		return "Hindi"
	default:
		return strings.ToUpper(code)
	}
}
