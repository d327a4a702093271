package store

import (
	"context"

	"github.com/jubeelegal/jubee/internal/models"
)

// DefectListFilter specifies filters for listing defects.
type DefectListFilter struct {
	PackageID string
	PassID    string
	Status    models.DefectStatus
	Severity  models.DefectSeverity
}

// Store defines the persistence interface for jubee. The natural unit of
// persistence is one scrutiny pass plus its defect sequence and per-defect
// status, alongside the package's document metadata.
type Store interface {
	// Filing packages
	CreatePackage(ctx context.Context, p *models.FilingPackage) error
	GetPackage(ctx context.Context, id string) (*models.FilingPackage, error)
	GetPackageByName(ctx context.Context, name string) (*models.FilingPackage, error)
	ListPackages(ctx context.Context, status models.PackageStatus) ([]*models.FilingPackage, error)
	UpdatePackage(ctx context.Context, p *models.FilingPackage) error
	DeletePackage(ctx context.Context, id string) error

	// Documents
	SaveDocument(ctx context.Context, packageID string, d *models.DocumentRef) error
	GetDocument(ctx context.Context, id string) (*models.DocumentRef, error)
	ListDocuments(ctx context.Context, packageID string) ([]*models.DocumentRef, error)
	DeleteDocument(ctx context.Context, id string) error

	// Scrutiny passes and defects
	SavePass(ctx context.Context, pass *models.ScrutinyPass) error
	GetPass(ctx context.Context, id string) (*models.ScrutinyPass, error)
	GetLatestPass(ctx context.Context, packageID string) (*models.ScrutinyPass, error)
	ListDefects(ctx context.Context, filter DefectListFilter) ([]*models.Defect, error)
	UpdateDefectStatus(ctx context.Context, d *models.Defect) error

	// Audit
	CreateProceedDecision(ctx context.Context, dec *models.ProceedDecision) error
	ListProceedDecisions(ctx context.Context, packageID string) ([]*models.ProceedDecision, error)
	CreateResolutionRecord(ctx context.Context, rec *models.ResolutionRecord) error
	ListResolutionRecords(ctx context.Context, packageID string) ([]*models.ResolutionRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
