package scrutiny

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/rules"
)

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

func newTestEngine(t *testing.T, docs ...*models.DocumentRef) *Engine {
	t.Helper()
	set := docset.New()
	for _, d := range docs {
		require.NoError(t, set.Add(d))
	}
	pkg := &models.FilingPackage{
		ID:           "pkg1",
		Name:         "mehta-v-sharma",
		CaseCategory: "civil-suit",
		Status:       models.PackageStatusScrutiny,
	}
	e := New(pkg, set, rules.Default(), resolve.Config{})
	t.Cleanup(func() {
		e.Resolver().CancelAll()
		e.Resolver().Wait()
	})
	return e
}

func TestRunPass_NoPrimary(t *testing.T) {
	e := newTestEngine(t, annexure("a1", "A-1"))

	_, err := e.RunPass(context.Background())
	require.ErrorIs(t, err, rules.ErrMalformedSet)
	assert.Nil(t, e.Pass())
}

func TestRunPass_CompliantPackage(t *testing.T) {
	e := newTestEngine(t,
		compliantPrimary("The plaintiff relies on the agreement produced as Annexure A-1."),
		annexure("a1", "A-1"))

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pass.Defects)
	assert.Equal(t, "pkg1", pass.PackageID)
	assert.Len(t, pass.ID, 26)
	assert.Equal(t, e.Docs().Snapshot(), pass.SnapshotID)
	assert.Same(t, pass, e.Pass())
}

func TestRunPass_SortsBySeverity(t *testing.T) {
	p := compliantPrimary("A true copy is produced as Annexure A-1.")
	p.FontFamily = "Arial" // advisory
	e := newTestEngine(t, p)

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 2)
	assert.Equal(t, models.DefectAnnexureMissing, pass.Defects[0].Kind)
	assert.Equal(t, models.SeverityMustFix, pass.Defects[0].Severity)
	assert.Equal(t, models.DefectFontNonCompliant, pass.Defects[1].Kind)
	assert.Equal(t, models.SeverityAdvisory, pass.Defects[1].Severity)

	for _, d := range pass.Defects {
		assert.Equal(t, pass.ID, d.PassID)
		assert.Equal(t, models.DefectStatusPending, d.Status)
		assert.NotEmpty(t, d.ID)
	}
}

func TestRunPass_DeterministicDefectIDs(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1 and Annexure A-2."))

	first, err := e.RunPass(context.Background())
	require.NoError(t, err)
	second, err := e.RunPass(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, first.Defects, 2)
	require.Len(t, second.Defects, 2)
	for i := range first.Defects {
		assert.Equal(t, first.Defects[i].ID, second.Defects[i].ID)
	}
}

func TestRunPass_SupersedesPreviousDefects(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1."))

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 1)

	require.NoError(t, e.Docs().Add(annexure("a1", "A-1")))

	next, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, next.Defects)
	assert.Same(t, next, e.Pass())
	assert.NotEqual(t, pass.SnapshotID, next.SnapshotID)
}

func TestDefect_Lookup(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1."))

	_, err := e.Defect("dft_x")
	require.ErrorContains(t, err, "no scrutiny pass")

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 1)

	got, err := e.Defect(pass.Defects[0].ID)
	require.NoError(t, err)
	assert.Same(t, pass.Defects[0], got)

	_, err = e.Defect("dft_missing")
	require.ErrorContains(t, err, "not found")
}

func TestBeginResolution_EndToEnd(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("The plaintiff relies on the lease, Annexure A-1."))

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 1)
	d := pass.Defects[0]

	h, err := e.BeginResolution(context.Background(), d.ID, models.StrategyRemoveReference,
		resolve.RemoveReferencePayload{EditedNarration: "The plaintiff relies on the lease."})
	require.NoError(t, err)
	out := h.Outcome()
	require.Equal(t, resolve.OutcomeResolved, out.Status, "outcome error: %v", out.Err)
	assert.Equal(t, models.DefectStatusResolved, e.Resolver().Status(d))

	rescan, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rescan.Defects)
}

func TestBeginResolution_UnknownDefect(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Nothing cited."))
	_, err := e.RunPass(context.Background())
	require.NoError(t, err)

	_, err = e.BeginResolution(context.Background(), "dft_missing", models.StrategyDirectFix, resolve.DirectFixPayload{})
	require.ErrorContains(t, err, "not found")
}

func TestIgnore(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1."))

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 1)

	require.NoError(t, e.Ignore(pass.Defects[0].ID))
	assert.Equal(t, models.DefectStatusIgnored, pass.Defects[0].Status)

	err = e.Ignore(pass.Defects[0].ID)
	require.ErrorIs(t, err, resolve.ErrNotPending)
}

func TestProceed_NoPass(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Nothing cited."))
	_, err := e.Proceed(false)
	require.ErrorContains(t, err, "no scrutiny pass")
}

func TestProceed_BlockedThenOverride(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1."))

	_, err := e.RunPass(context.Background())
	require.NoError(t, err)

	res, err := e.Proceed(false)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.False(t, res.Override)
	assert.Equal(t, 1, res.Summary.MustFix)

	res, err = e.Proceed(true)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Override)
	assert.Equal(t, 1, res.Summary.Total())
}

func TestProceed_CleanAfterResolution(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Produced as Annexure A-1."))

	pass, err := e.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, pass.Defects, 1)
	require.NoError(t, e.Ignore(pass.Defects[0].ID))

	res, err := e.Proceed(false)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, res.Override)
	assert.Zero(t, res.Summary.Total())
}

func TestRestore(t *testing.T) {
	e := newTestEngine(t, compliantPrimary("Nothing cited."))

	pass := &models.ScrutinyPass{
		ID:        "01HRESTORED0000000000000PS",
		PackageID: "pkg1",
		CreatedAt: time.Now().UTC(),
		Defects: []*models.Defect{{
			ID:       "dft_restored",
			Kind:     models.DefectMarginNonCompliant,
			Severity: models.SeverityMustFix,
			Status:   models.DefectStatusPending,
		}},
	}
	e.Restore(pass)
	assert.Same(t, pass, e.Pass())

	got, err := e.Defect("dft_restored")
	require.NoError(t, err)
	assert.Same(t, pass.Defects[0], got)

	res, err := e.Proceed(false)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
