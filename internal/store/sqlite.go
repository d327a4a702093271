package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jubeelegal/jubee/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent resolutions.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Filing packages ---

func (s *SQLiteStore) CreatePackage(ctx context.Context, p *models.FilingPackage) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	if p.Status == "" {
		p.Status = models.PackageStatusIntake
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO packages (id, name, case_category, court_profile, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.CaseCategory, p.CourtProfile, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (*models.FilingPackage, error) {
	return s.getPackageWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetPackageByName(ctx context.Context, name string) (*models.FilingPackage, error) {
	return s.getPackageWhere(ctx, "name = ?", name)
}

func (s *SQLiteStore) getPackageWhere(ctx context.Context, where string, arg any) (*models.FilingPackage, error) {
	p := &models.FilingPackage{}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, case_category, court_profile, status, created_at, updated_at
		FROM packages WHERE `+where, arg,
	).Scan(&p.ID, &p.Name, &p.CaseCategory, &p.CourtProfile, &status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("package not found: %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	p.Status = models.PackageStatus(status)
	return p, nil
}

func (s *SQLiteStore) ListPackages(ctx context.Context, status models.PackageStatus) ([]*models.FilingPackage, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, case_category, court_profile, status, created_at, updated_at
			FROM packages WHERE status = ? ORDER BY name`, string(status))
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, case_category, court_profile, status, created_at, updated_at
			FROM packages ORDER BY name`)
	}
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var packages []*models.FilingPackage
	for rows.Next() {
		p := &models.FilingPackage{}
		var st string
		if err := rows.Scan(&p.ID, &p.Name, &p.CaseCategory, &p.CourtProfile, &st, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		p.Status = models.PackageStatus(st)
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (s *SQLiteStore) UpdatePackage(ctx context.Context, p *models.FilingPackage) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE packages SET name=?, case_category=?, court_profile=?, status=?, updated_at=? WHERE id=?`,
		p.Name, p.CaseCategory, p.CourtProfile, string(p.Status), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("package not found: %s", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeletePackage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM packages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("package not found: %s", id)
	}
	return nil
}

// --- Documents ---

const documentCols = `id, package_id, display_name, role, label, content_type, page_count, size_bytes,
	narration, left_margin_inches, font_family, language, page_languages, stamp_duty_paid_paise,
	index_entries, page_numbers, storage_key, created_at, updated_at`

// SaveDocument inserts or replaces a document row. Resolution strategies
// replace documents in place, so upsert semantics match the engine.
func (s *SQLiteStore) SaveDocument(ctx context.Context, packageID string, d *models.DocumentRef) error {
	if d.ID == "" {
		d.ID = newULID()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	pageLangs, err := json.Marshal(d.PageLanguages)
	if err != nil {
		return fmt.Errorf("marshal page languages: %w", err)
	}
	indexEntries, err := json.Marshal(d.IndexEntries)
	if err != nil {
		return fmt.Errorf("marshal index entries: %w", err)
	}
	pageNumbers, err := json.Marshal(d.PageNumbers)
	if err != nil {
		return fmt.Errorf("marshal page numbers: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (`+documentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, packageID, d.DisplayName, string(d.Role), d.Label, d.ContentType, d.PageCount, d.SizeBytes,
		d.Narration, d.LeftMarginInches, d.FontFamily, d.Language, string(pageLangs), d.StampDutyPaidPaise,
		string(indexEntries), string(pageNumbers), d.StorageKey, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func scanDocument(scan func(dest ...any) error) (*models.DocumentRef, string, error) {
	d := &models.DocumentRef{}
	var packageID, role, pageLangs, indexEntries, pageNumbers string
	err := scan(&d.ID, &packageID, &d.DisplayName, &role, &d.Label, &d.ContentType, &d.PageCount, &d.SizeBytes,
		&d.Narration, &d.LeftMarginInches, &d.FontFamily, &d.Language, &pageLangs, &d.StampDutyPaidPaise,
		&indexEntries, &pageNumbers, &d.StorageKey, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, "", err
	}
	d.Role = models.DocumentRole(role)
	if err := json.Unmarshal([]byte(pageLangs), &d.PageLanguages); err != nil {
		return nil, "", fmt.Errorf("unmarshal page languages: %w", err)
	}
	if err := json.Unmarshal([]byte(indexEntries), &d.IndexEntries); err != nil {
		return nil, "", fmt.Errorf("unmarshal index entries: %w", err)
	}
	if err := json.Unmarshal([]byte(pageNumbers), &d.PageNumbers); err != nil {
		return nil, "", fmt.Errorf("unmarshal page numbers: %w", err)
	}
	return d, packageID, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.DocumentRef, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentCols+` FROM documents WHERE id = ?`, id)
	d, _, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, packageID string) ([]*models.DocumentRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE package_id = ? ORDER BY created_at, id`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*models.DocumentRef
	for rows.Next() {
		d, _, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// --- Scrutiny passes and defects ---

// SavePass persists a pass with its full defect sequence in one
// transaction. Positions preserve the severity-then-catalog ordering.
func (s *SQLiteStore) SavePass(ctx context.Context, pass *models.ScrutinyPass) error {
	if pass.ID == "" {
		pass.ID = newULID()
	}
	if pass.CreatedAt.IsZero() {
		pass.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO passes (id, package_id, snapshot_id, created_at) VALUES (?, ?, ?, ?)`,
		pass.ID, pass.PackageID, pass.SnapshotID, pass.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save pass: %w", err)
	}

	for i, d := range pass.Defects {
		pages, err := json.Marshal(d.Pages)
		if err != nil {
			return fmt.Errorf("marshal defect pages: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO defects (id, pass_id, position, kind, severity, description, explanation,
			related_document_id, annexure_label, page_number, pages, status, created_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, pass.ID, i, string(d.Kind), string(d.Severity), d.Description, d.Explanation,
			d.RelatedDocumentID, d.AnnexureLabel, d.PageNumber, string(pages), string(d.Status),
			d.CreatedAt, d.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("save defect %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

const defectCols = `id, pass_id, kind, severity, description, explanation,
	related_document_id, annexure_label, page_number, pages, status, created_at, resolved_at`

func scanDefect(scan func(dest ...any) error) (*models.Defect, error) {
	d := &models.Defect{}
	var kind, severity, pages, status string
	var resolvedAt sql.NullTime
	err := scan(&d.ID, &d.PassID, &kind, &severity, &d.Description, &d.Explanation,
		&d.RelatedDocumentID, &d.AnnexureLabel, &d.PageNumber, &pages, &status, &d.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	d.Kind = models.DefectKind(kind)
	d.Severity = models.DefectSeverity(severity)
	d.Status = models.DefectStatus(status)
	if err := json.Unmarshal([]byte(pages), &d.Pages); err != nil {
		return nil, fmt.Errorf("unmarshal defect pages: %w", err)
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
}

func (s *SQLiteStore) GetPass(ctx context.Context, id string) (*models.ScrutinyPass, error) {
	pass := &models.ScrutinyPass{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, package_id, snapshot_id, created_at FROM passes WHERE id = ?`, id,
	).Scan(&pass.ID, &pass.PackageID, &pass.SnapshotID, &pass.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pass not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get pass: %w", err)
	}

	defects, err := s.ListDefects(ctx, DefectListFilter{PassID: pass.ID})
	if err != nil {
		return nil, err
	}
	pass.Defects = defects
	return pass, nil
}

func (s *SQLiteStore) GetLatestPass(ctx context.Context, packageID string) (*models.ScrutinyPass, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM passes WHERE package_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, packageID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no pass found for package: %s", packageID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest pass: %w", err)
	}
	return s.GetPass(ctx, id)
}

func (s *SQLiteStore) ListDefects(ctx context.Context, filter DefectListFilter) ([]*models.Defect, error) {
	query := `SELECT ` + defectCols + ` FROM defects WHERE 1=1`
	var args []any
	if filter.PassID != "" {
		query += " AND pass_id = ?"
		args = append(args, filter.PassID)
	}
	if filter.PackageID != "" {
		query += " AND pass_id IN (SELECT id FROM passes WHERE package_id = ?)"
		args = append(args, filter.PackageID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	query += " ORDER BY pass_id, position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list defects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defects []*models.Defect
	for rows.Next() {
		d, err := scanDefect(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		defects = append(defects, d)
	}
	return defects, rows.Err()
}

func (s *SQLiteStore) UpdateDefectStatus(ctx context.Context, d *models.Defect) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE defects SET status=?, resolved_at=? WHERE pass_id=? AND id=?`,
		string(d.Status), d.ResolvedAt, d.PassID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update defect status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("defect not found: %s", d.ID)
	}
	return nil
}

// --- Audit ---

func (s *SQLiteStore) CreateProceedDecision(ctx context.Context, dec *models.ProceedDecision) error {
	if dec.ID == "" {
		dec.ID = newULID()
	}
	if dec.DecidedAt.IsZero() {
		dec.DecidedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proceed_decisions (id, package_id, pass_id, allowed, override, must_fix, review, advisory, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dec.ID, dec.PackageID, dec.PassID, boolToInt(dec.Allowed), boolToInt(dec.Override),
		dec.Summary.MustFix, dec.Summary.Review, dec.Summary.Advisory, dec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("create proceed decision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListProceedDecisions(ctx context.Context, packageID string) ([]*models.ProceedDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, package_id, pass_id, allowed, override, must_fix, review, advisory, decided_at
		FROM proceed_decisions WHERE package_id = ? ORDER BY decided_at`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list proceed decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*models.ProceedDecision
	for rows.Next() {
		dec := &models.ProceedDecision{}
		if err := rows.Scan(&dec.ID, &dec.PackageID, &dec.PassID, &dec.Allowed, &dec.Override,
			&dec.Summary.MustFix, &dec.Summary.Review, &dec.Summary.Advisory, &dec.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan proceed decision: %w", err)
		}
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}

func (s *SQLiteStore) CreateResolutionRecord(ctx context.Context, rec *models.ResolutionRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolution_records (id, package_id, defect_id, strategy, outcome, detail, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PackageID, rec.DefectID, string(rec.Strategy), rec.Outcome, rec.Detail, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create resolution record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResolutionRecords(ctx context.Context, packageID string) ([]*models.ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, package_id, defect_id, strategy, outcome, detail, started_at, ended_at
		FROM resolution_records WHERE package_id = ? ORDER BY started_at`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list resolution records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.ResolutionRecord
	for rows.Next() {
		rec := &models.ResolutionRecord{}
		var strategy string
		if err := rows.Scan(&rec.ID, &rec.PackageID, &rec.DefectID, &strategy, &rec.Outcome,
			&rec.Detail, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("scan resolution record: %w", err)
		}
		rec.Strategy = models.ResolutionStrategy(strategy)
		records = append(records, rec)
	}
	return records, rows.Err()
}
