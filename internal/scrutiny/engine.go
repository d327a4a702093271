// Package scrutiny runs the compliance rule catalog over a filing
// package's document set and gates progression to the next workflow
// stage. One engine instance owns one package's workflow.
package scrutiny

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/rules"
)

// Engine drives one filing package through scrutiny: document set, current
// pass, and the per-defect resolution machinery.
type Engine struct {
	pkg      *models.FilingPackage
	docs     *docset.Set
	profile  *rules.Profile
	resolver *resolve.Resolver

	mu   sync.Mutex
	pass *models.ScrutinyPass
}

// New creates an engine for the package over the given document set.
func New(pkg *models.FilingPackage, docs *docset.Set, profile *rules.Profile, cfg resolve.Config) *Engine {
	return &Engine{
		pkg:      pkg,
		docs:     docs,
		profile:  profile,
		resolver: resolve.New(docs, profile, pkg.CaseCategory, cfg),
	}
}

// Docs exposes the package's document set.
func (e *Engine) Docs() *docset.Set { return e.docs }

// Package returns the filing package under scrutiny.
func (e *Engine) Package() *models.FilingPackage { return e.pkg }

// Resolver exposes the resolution state machine, mainly for shutdown
// (CancelAll / Wait).
func (e *Engine) Resolver() *resolve.Resolver { return e.resolver }

// RunPass evaluates the full rule catalog against the current document set
// and produces a new scrutiny pass. The new pass supersedes the previous
// defect list wholesale. A malformed set (no primary petition) aborts the
// pass with no partial defect list.
func (e *Engine) RunPass(ctx context.Context) (*models.ScrutinyPass, error) {
	if _, err := e.docs.Primary(); err != nil {
		return nil, fmt.Errorf("%w: %v", rules.ErrMalformedSet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := rules.Input{Docs: e.docs, Profile: e.profile, CaseCategory: e.pkg.CaseCategory}
	now := time.Now().UTC()

	var defects []*models.Defect
	for _, rule := range rules.Catalog() {
		for _, d := range rule.Eval(in) {
			d.Kind = rule.Kind
			d.Severity = rule.Severity
			d.Status = models.DefectStatusPending
			d.CreatedAt = now
			d.ID = rules.DefectID(d.Kind, d.RelatedDocumentID, d.AnnexureLabel, d.PageNumber)
			defects = append(defects, d)
		}
	}

	// Catalog order is already severity-grouped within each rule; the
	// stable sort keeps declaration order for equal severities.
	sort.SliceStable(defects, func(i, j int) bool {
		return models.SeverityRank(defects[i].Severity) < models.SeverityRank(defects[j].Severity)
	})

	pass := &models.ScrutinyPass{
		ID:         newULID(),
		PackageID:  e.pkg.ID,
		SnapshotID: e.docs.Snapshot(),
		CreatedAt:  now,
		Defects:    defects,
	}
	for _, d := range defects {
		d.PassID = pass.ID
	}

	e.mu.Lock()
	e.pass = pass
	e.mu.Unlock()
	return pass, nil
}

// Restore installs a previously persisted pass as the current one, so
// resolution can continue across process restarts.
func (e *Engine) Restore(pass *models.ScrutinyPass) {
	e.mu.Lock()
	e.pass = pass
	e.mu.Unlock()
}

// Pass returns the current scrutiny pass, or nil before the first run.
func (e *Engine) Pass() *models.ScrutinyPass {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass
}

// Defect finds a defect in the current pass by id.
func (e *Engine) Defect(id string) (*models.Defect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pass == nil {
		return nil, fmt.Errorf("no scrutiny pass has been run")
	}
	for _, d := range e.pass.Defects {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("defect not found: %s", id)
}

// BeginResolution starts an asynchronous resolution of the defect.
func (e *Engine) BeginResolution(ctx context.Context, defectID string, strategy models.ResolutionStrategy, payload resolve.Payload) (*resolve.Handle, error) {
	d, err := e.Defect(defectID)
	if err != nil {
		return nil, err
	}
	return e.resolver.Begin(ctx, d, strategy, payload)
}

// Ignore marks a pending defect ignored for the current pass.
func (e *Engine) Ignore(defectID string) error {
	d, err := e.Defect(defectID)
	if err != nil {
		return err
	}
	return e.resolver.Ignore(d)
}

// ProceedResult is the completion gate's decision.
type ProceedResult struct {
	Allowed  bool                  `json:"allowed"`
	Override bool                  `json:"override"`
	Summary  models.PendingSummary `json:"pending_summary"`
}

// Proceed evaluates the completion gate: the package may move to the next
// stage when no defect is pending. With override the gate is bypassed, and
// the remaining pending counts are reported for audit.
func (e *Engine) Proceed(override bool) (ProceedResult, error) {
	e.mu.Lock()
	pass := e.pass
	e.mu.Unlock()
	if pass == nil {
		return ProceedResult{}, fmt.Errorf("no scrutiny pass has been run")
	}

	summary := e.resolver.PendingSummary(pass.Defects)
	res := ProceedResult{
		Allowed:  summary.Total() == 0 || override,
		Override: override && summary.Total() > 0,
		Summary:  summary,
	}
	return res, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
