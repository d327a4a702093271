package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jubeelegal/jubee/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func testPackage(t *testing.T, s *SQLiteStore, name string) *models.FilingPackage {
	t.Helper()
	p := &models.FilingPackage{
		Name:         name,
		CaseCategory: "civil-suit",
		CourtProfile: "default",
	}
	require.NoError(t, s.CreatePackage(context.Background(), p))
	return p
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Filing package CRUD ---

func TestPackageCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Create
	p := &models.FilingPackage{
		Name:         "mehta-v-sharma",
		CaseCategory: "civil-suit",
		CourtProfile: "high-court",
	}
	err := s.CreatePackage(ctx, p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.PackageStatusIntake, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	// Get by ID
	got, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.CaseCategory, got.CaseCategory)
	assert.Equal(t, p.CourtProfile, got.CourtProfile)
	assert.Equal(t, models.PackageStatusIntake, got.Status)

	// Get by name
	got, err = s.GetPackageByName(ctx, "mehta-v-sharma")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	// Update
	p.Status = models.PackageStatusScrutiny
	p.CourtProfile = "district-court"
	require.NoError(t, s.UpdatePackage(ctx, p))
	got, err = s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusScrutiny, got.Status)
	assert.Equal(t, "district-court", got.CourtProfile)

	// Delete
	require.NoError(t, s.DeletePackage(ctx, p.ID))
	_, err = s.GetPackage(ctx, p.ID)
	assert.Error(t, err)
}

func TestGetPackage_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPackage(ctx, "nonexistent")
	assert.ErrorContains(t, err, "not found")

	_, err = s.GetPackageByName(ctx, "nonexistent")
	assert.ErrorContains(t, err, "not found")

	assert.Error(t, s.UpdatePackage(ctx, &models.FilingPackage{ID: "nonexistent"}))
	assert.Error(t, s.DeletePackage(ctx, "nonexistent"))
}

func TestListPackages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testPackage(t, s, "alpha-v-beta")
	b := testPackage(t, s, "gamma-v-delta")
	b.Status = models.PackageStatusReady
	require.NoError(t, s.UpdatePackage(ctx, b))

	all, err := s.ListPackages(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Sorted by name
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	ready, err := s.ListPackages(ctx, models.PackageStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, b.ID, ready[0].ID)
}

// --- Documents ---

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "doc-pkg")

	d := &models.DocumentRef{
		DisplayName:        "Plaint",
		Role:               models.RolePrimary,
		ContentType:        models.PDFContentType,
		PageCount:          12,
		SizeBytes:          204800,
		Narration:          "Produced as Annexure A-1.",
		LeftMarginInches:   1.75,
		FontFamily:         "Times New Roman",
		Language:           "en",
		PageLanguages:      map[int]string{3: "hi", 7: "mr"},
		StampDutyPaidPaise: 50000,
		IndexEntries:       []string{"A-1", "A-2"},
		PageNumbers:        []int{1, 2, 3},
		StorageKey:         "packages/doc-pkg/plaint.pdf",
	}
	err := s.SaveDocument(ctx, p.ID, d)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.DisplayName, got.DisplayName)
	assert.Equal(t, models.RolePrimary, got.Role)
	assert.Equal(t, d.Narration, got.Narration)
	assert.Equal(t, 1.75, got.LeftMarginInches)
	assert.Equal(t, map[int]string{3: "hi", 7: "mr"}, got.PageLanguages)
	assert.Equal(t, int64(50000), got.StampDutyPaidPaise)
	assert.Equal(t, []string{"A-1", "A-2"}, got.IndexEntries)
	assert.Equal(t, []int{1, 2, 3}, got.PageNumbers)
	assert.Equal(t, d.StorageKey, got.StorageKey)
}

func TestSaveDocument_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "upsert-pkg")

	d := &models.DocumentRef{
		ID:               "doc1",
		DisplayName:      "Annexure A-1",
		Role:             models.RoleAnnexure,
		Label:            "A-1",
		ContentType:      models.PDFContentType,
		LeftMarginInches: 1.0,
	}
	require.NoError(t, s.SaveDocument(ctx, p.ID, d))

	// A resolution replaces the document under the same id.
	d.LeftMarginInches = 1.5
	require.NoError(t, s.SaveDocument(ctx, p.ID, d))

	docs, err := s.ListDocuments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1.5, docs[0].LeftMarginInches)
}

func TestListDocuments_ScopedToPackage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := testPackage(t, s, "pkg-one")
	p2 := testPackage(t, s, "pkg-two")

	require.NoError(t, s.SaveDocument(ctx, p1.ID, &models.DocumentRef{ID: "d1", DisplayName: "one", Role: models.RolePrimary}))
	require.NoError(t, s.SaveDocument(ctx, p2.ID, &models.DocumentRef{ID: "d2", DisplayName: "two", Role: models.RolePrimary}))

	docs, err := s.ListDocuments(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "del-pkg")

	require.NoError(t, s.SaveDocument(ctx, p.ID, &models.DocumentRef{ID: "d1", DisplayName: "doc", Role: models.RoleOther}))
	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	_, err := s.GetDocument(ctx, "d1")
	assert.ErrorContains(t, err, "not found")
	assert.Error(t, s.DeleteDocument(ctx, "d1"))
}

// --- Passes and defects ---

func testPass(packageID string, createdAt time.Time, defects ...*models.Defect) *models.ScrutinyPass {
	return &models.ScrutinyPass{
		PackageID:  packageID,
		SnapshotID: "snap-" + createdAt.Format("150405"),
		CreatedAt:  createdAt,
		Defects:    defects,
	}
}

func testDefect(id string, kind models.DefectKind, sev models.DefectSeverity) *models.Defect {
	return &models.Defect{
		ID:          id,
		Kind:        kind,
		Severity:    sev,
		Description: "description for " + id,
		Explanation: "explanation for " + id,
		Status:      models.DefectStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSavePass_PreservesDefectOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "pass-pkg")

	d1 := testDefect("dft_aaaa", models.DefectAnnexureMissing, models.SeverityMustFix)
	d1.AnnexureLabel = "A-1"
	d2 := testDefect("dft_bbbb", models.DefectTranslationRequiredPartial, models.SeverityReview)
	d2.Pages = []int{2, 4}
	d3 := testDefect("dft_cccc", models.DefectFontNonCompliant, models.SeverityAdvisory)

	pass := testPass(p.ID, time.Now().UTC(), d1, d2, d3)
	require.NoError(t, s.SavePass(ctx, pass))
	assert.NotEmpty(t, pass.ID)

	got, err := s.GetPass(ctx, pass.ID)
	require.NoError(t, err)
	assert.Equal(t, pass.SnapshotID, got.SnapshotID)
	require.Len(t, got.Defects, 3)
	assert.Equal(t, "dft_aaaa", got.Defects[0].ID)
	assert.Equal(t, "dft_bbbb", got.Defects[1].ID)
	assert.Equal(t, "dft_cccc", got.Defects[2].ID)
	assert.Equal(t, "A-1", got.Defects[0].AnnexureLabel)
	assert.Equal(t, []int{2, 4}, got.Defects[1].Pages)
	assert.Equal(t, pass.ID, got.Defects[0].PassID)
}

func TestGetLatestPass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "latest-pkg")

	base := time.Now().UTC().Truncate(time.Second)
	old := testPass(p.ID, base.Add(-time.Hour), testDefect("dft_old", models.DefectMarginNonCompliant, models.SeverityMustFix))
	newer := testPass(p.ID, base)
	require.NoError(t, s.SavePass(ctx, old))
	require.NoError(t, s.SavePass(ctx, newer))

	got, err := s.GetLatestPass(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Empty(t, got.Defects)
}

func TestGetLatestPass_NoPass(t *testing.T) {
	s := newTestStore(t)
	p := testPackage(t, s, "empty-pkg")

	_, err := s.GetLatestPass(context.Background(), p.ID)
	assert.ErrorContains(t, err, "no pass found")
}

func TestListDefects_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "filter-pkg")
	other := testPackage(t, s, "other-pkg")

	d1 := testDefect("dft_must", models.DefectAnnexureMissing, models.SeverityMustFix)
	d2 := testDefect("dft_adv", models.DefectFontNonCompliant, models.SeverityAdvisory)
	d2.Status = models.DefectStatusIgnored
	pass := testPass(p.ID, time.Now().UTC(), d1, d2)
	require.NoError(t, s.SavePass(ctx, pass))

	otherPass := testPass(other.ID, time.Now().UTC(), testDefect("dft_other", models.DefectIndexMismatch, models.SeverityMustFix))
	require.NoError(t, s.SavePass(ctx, otherPass))

	byPackage, err := s.ListDefects(ctx, DefectListFilter{PackageID: p.ID})
	require.NoError(t, err)
	assert.Len(t, byPackage, 2)

	byPass, err := s.ListDefects(ctx, DefectListFilter{PassID: otherPass.ID})
	require.NoError(t, err)
	require.Len(t, byPass, 1)
	assert.Equal(t, "dft_other", byPass[0].ID)

	pending, err := s.ListDefects(ctx, DefectListFilter{PackageID: p.ID, Status: models.DefectStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dft_must", pending[0].ID)

	advisory, err := s.ListDefects(ctx, DefectListFilter{PackageID: p.ID, Severity: models.SeverityAdvisory})
	require.NoError(t, err)
	require.Len(t, advisory, 1)
	assert.Equal(t, "dft_adv", advisory[0].ID)
}

func TestUpdateDefectStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "status-pkg")

	d := testDefect("dft_fix", models.DefectMarginNonCompliant, models.SeverityMustFix)
	pass := testPass(p.ID, time.Now().UTC(), d)
	require.NoError(t, s.SavePass(ctx, pass))

	now := time.Now().UTC()
	d.PassID = pass.ID
	d.Status = models.DefectStatusResolved
	d.ResolvedAt = &now
	require.NoError(t, s.UpdateDefectStatus(ctx, d))

	got, err := s.ListDefects(ctx, DefectListFilter{PassID: pass.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DefectStatusResolved, got[0].Status)
	require.NotNil(t, got[0].ResolvedAt)

	missing := testDefect("dft_missing", models.DefectMarginNonCompliant, models.SeverityMustFix)
	missing.PassID = pass.ID
	assert.Error(t, s.UpdateDefectStatus(ctx, missing))
}

// --- Audit ---

func TestProceedDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "gate-pkg")

	pass := testPass(p.ID, time.Now().UTC())
	require.NoError(t, s.SavePass(ctx, pass))

	dec := &models.ProceedDecision{
		PackageID: p.ID,
		PassID:    pass.ID,
		Allowed:   true,
		Override:  true,
		Summary:   models.PendingSummary{MustFix: 1, Review: 2, Advisory: 3},
	}
	require.NoError(t, s.CreateProceedDecision(ctx, dec))
	assert.NotEmpty(t, dec.ID)
	assert.False(t, dec.DecidedAt.IsZero())

	got, err := s.ListProceedDecisions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Allowed)
	assert.True(t, got[0].Override)
	assert.Equal(t, models.PendingSummary{MustFix: 1, Review: 2, Advisory: 3}, got[0].Summary)
	assert.Equal(t, pass.ID, got[0].PassID)
}

func TestResolutionRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPackage(t, s, "audit-pkg")

	started := time.Now().UTC().Add(-time.Minute)
	rec := &models.ResolutionRecord{
		PackageID: p.ID,
		DefectID:  "dft_fix",
		Strategy:  models.StrategyRemoveReference,
		Outcome:   "failed",
		Detail:    "annexure reference still present in narration",
		StartedAt: started,
		EndedAt:   started.Add(2 * time.Second),
	}
	require.NoError(t, s.CreateResolutionRecord(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	later := &models.ResolutionRecord{
		PackageID: p.ID,
		DefectID:  "dft_fix",
		Strategy:  models.StrategyRemoveReference,
		Outcome:   "resolved",
		StartedAt: started.Add(10 * time.Second),
		EndedAt:   started.Add(11 * time.Second),
	}
	require.NoError(t, s.CreateResolutionRecord(ctx, later))

	got, err := s.ListResolutionRecords(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "failed", got[0].Outcome)
	assert.Equal(t, models.StrategyRemoveReference, got[0].Strategy)
	assert.Equal(t, "resolved", got[1].Outcome)
}
