package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
)

// compliantPrimary returns a primary petition that passes every rule under
// the default profile for a civil suit.
func compliantPrimary(narration string) *models.DocumentRef {
	return &models.DocumentRef{
		ID:                 "p1",
		DisplayName:        "Plaint",
		Role:               models.RolePrimary,
		ContentType:        models.PDFContentType,
		PageCount:          3,
		Narration:          narration,
		LeftMarginInches:   1.75,
		FontFamily:         "Times New Roman",
		Language:           "en",
		StampDutyPaidPaise: 50000,
		PageNumbers:        []int{1, 2, 3},
	}
}

func annexure(id, label string) *models.DocumentRef {
	return &models.DocumentRef{
		ID:               id,
		DisplayName:      "Annexure " + label,
		Role:             models.RoleAnnexure,
		Label:            label,
		ContentType:      models.PDFContentType,
		PageCount:        2,
		LeftMarginInches: 1.75,
		FontFamily:       "Times New Roman",
		Language:         "en",
		PageNumbers:      []int{1, 2},
	}
}

func input(t *testing.T, docs ...*models.DocumentRef) Input {
	t.Helper()
	set := docset.New()
	for _, d := range docs {
		require.NoError(t, set.Add(d))
	}
	return Input{Docs: set, Profile: Default(), CaseCategory: "civil-suit"}
}

func evalAll(in Input) []*models.Defect {
	var out []*models.Defect
	for _, r := range Catalog() {
		for _, d := range r.Eval(in) {
			d.Kind = r.Kind
			d.Severity = r.Severity
			out = append(out, d)
		}
	}
	return out
}

func TestReferencedLabels(t *testing.T) {
	labels := ReferencedLabels("A copy is at Annexure P-4. See also annexure R1 and ANNEXURE P-4 again.")
	assert.Equal(t, []string{"P-4", "R1"}, labels, "order of first mention, deduplicated, upper-cased")

	assert.Empty(t, ReferencedLabels("no references here"))
	assert.Empty(t, ReferencedLabels("the annexure itself"), "a bare mention with no label is not a reference")
}

func TestMentionsLabel(t *testing.T) {
	narration := "Produced as Annexure A-1."
	assert.True(t, MentionsLabel(narration, "a-1"))
	assert.False(t, MentionsLabel(narration, "A-2"))
}

func TestCompliantPackage_NoDefects(t *testing.T) {
	in := input(t, compliantPrimary("Produced as Annexure A-1."), annexure("a1", "A-1"))
	assert.Empty(t, evalAll(in))
}

func TestAnnexureMissing(t *testing.T) {
	in := input(t, compliantPrimary("See Annexure A-1 and Annexure A-2."), annexure("a1", "A-1"))

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectAnnexureMissing, defects[0].Kind)
	assert.Equal(t, models.SeverityMustFix, defects[0].Severity)
	assert.Equal(t, "A-2", defects[0].AnnexureLabel)
	assert.Equal(t, "p1", defects[0].RelatedDocumentID)
}

func TestMarginNonCompliant(t *testing.T) {
	p := compliantPrimary("")
	p.LeftMarginInches = 1.0
	in := input(t, p)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectMarginNonCompliant, defects[0].Kind)
}

func TestMarginNonCompliant_UnknownMarginSkipped(t *testing.T) {
	p := compliantPrimary("")
	p.LeftMarginInches = 0 // not extracted
	in := input(t, p)
	assert.Empty(t, evalAll(in))
}

func TestStampDutyInsufficient(t *testing.T) {
	p := compliantPrimary("")
	p.StampDutyPaidPaise = 20000
	in := input(t, p)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectStampDutyInsufficient, defects[0].Kind)
	assert.Contains(t, defects[0].Description, "₹500.00")
	assert.Contains(t, defects[0].Description, "₹200.00")
}

func TestStampDutyInsufficient_UnscheduledCategory(t *testing.T) {
	p := compliantPrimary("")
	p.StampDutyPaidPaise = 0
	in := input(t, p)
	in.CaseCategory = "caveat" // not in the fee schedule

	assert.Empty(t, evalAll(in))
}

func TestTranslationRequiredFull(t *testing.T) {
	a := annexure("a1", "A-1")
	a.Language = "hi"
	in := input(t, compliantPrimary("See Annexure A-1."), a)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectTranslationRequiredFull, defects[0].Kind)
	assert.Contains(t, defects[0].Description, "English translation")
}

func TestTranslationRequiredPartial(t *testing.T) {
	a := annexure("a1", "A-1")
	a.PageCount = 4
	a.PageLanguages = map[int]string{2: "hi", 4: "hi", 1: "en"}
	in := input(t, compliantPrimary("See Annexure A-1."), a)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectTranslationRequiredPartial, defects[0].Kind)
	assert.Equal(t, []int{2, 4}, defects[0].Pages, "pages sorted ascending")
}

func TestTranslationPartial_SkippedWhenFullApplies(t *testing.T) {
	a := annexure("a1", "A-1")
	a.Language = "hi"
	a.PageLanguages = map[int]string{1: "hi"}
	in := input(t, compliantPrimary("See Annexure A-1."), a)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectTranslationRequiredFull, defects[0].Kind)
}

func TestIndexMismatch(t *testing.T) {
	idx := &models.DocumentRef{
		ID:           "i1",
		DisplayName:  "Index",
		Role:         models.RoleIndex,
		ContentType:  models.PDFContentType,
		IndexEntries: []string{"A-1", "A-9"},
	}
	in := input(t, compliantPrimary("See Annexure A-1 and Annexure A-2."),
		annexure("a1", "A-1"), annexure("a2", "A-2"), idx)

	defects := evalAll(in)
	require.Len(t, defects, 2)
	// Phantom index entry first, unlisted annexure second.
	assert.Equal(t, models.DefectIndexMismatch, defects[0].Kind)
	assert.Equal(t, "A-9", defects[0].AnnexureLabel)
	assert.Equal(t, "A-2", defects[1].AnnexureLabel)
}

func TestIndexMismatch_NoIndexDocument(t *testing.T) {
	in := input(t, compliantPrimary("See Annexure A-1."), annexure("a1", "A-1"))
	assert.Empty(t, evalAll(in))
}

func TestPageNumberingGap(t *testing.T) {
	p := compliantPrimary("")
	p.PageNumbers = []int{1, 2, 4, 5}
	in := input(t, p)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectPageNumberingGap, defects[0].Kind)
	assert.Equal(t, models.SeverityReview, defects[0].Severity)
	assert.Equal(t, 2, defects[0].PageNumber)
	assert.Contains(t, defects[0].Description, "jumps from 2 to 4")
}

func TestFontNonCompliant(t *testing.T) {
	p := compliantPrimary("")
	p.FontFamily = "Arial"
	in := input(t, p)

	defects := evalAll(in)
	require.Len(t, defects, 1)
	assert.Equal(t, models.DefectFontNonCompliant, defects[0].Kind)
	assert.Equal(t, models.SeverityAdvisory, defects[0].Severity)
}

func TestRulesDoNotMutateSet(t *testing.T) {
	p := compliantPrimary("See Annexure A-1.")
	p.LeftMarginInches = 1.0
	p.FontFamily = "Arial"
	in := input(t, p)

	before := in.Docs.Snapshot()
	evalAll(in)
	assert.Equal(t, before, in.Docs.Snapshot())
}

func TestDefectID_Deterministic(t *testing.T) {
	a := DefectID(models.DefectAnnexureMissing, "p1", "A-2", 0)
	b := DefectID(models.DefectAnnexureMissing, "p1", "A-2", 0)
	assert.Equal(t, a, b)
	assert.Len(t, a, len("dft_")+16)

	c := DefectID(models.DefectAnnexureMissing, "p1", "A-3", 0)
	assert.NotEqual(t, a, c)
	d := DefectID(models.DefectPageNumberingGap, "p1", "A-2", 0)
	assert.NotEqual(t, a, d)
}

func TestCatalogOrder(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 8)
	assert.Equal(t, models.DefectAnnexureMissing, catalog[0].Kind)
	assert.Equal(t, models.DefectFontNonCompliant, catalog[len(catalog)-1].Kind)

	// Severities never rise again after they drop.
	prev := 0
	for i, r := range catalog {
		rank := models.SeverityRank(r.Severity)
		assert.GreaterOrEqual(t, rank, prev, "catalog entry %d", i)
		prev = rank
	}
}

func TestMultipleDefectsAcrossDocuments(t *testing.T) {
	p := compliantPrimary("See Annexure A-1.")
	a := annexure("a1", "A-1")
	a.LeftMarginInches = 0.5
	b := annexure("a2", "A-2")
	b.LeftMarginInches = 0.5
	in := input(t, p, a, b)

	defects := evalAll(in)
	require.Len(t, defects, 2)
	for i, d := range defects {
		assert.Equal(t, models.DefectMarginNonCompliant, d.Kind, "defect %d", i)
	}
	assert.Equal(t, "a1", defects[0].RelatedDocumentID, "document order preserved")
	assert.Equal(t, "a2", defects[1].RelatedDocumentID)
}
