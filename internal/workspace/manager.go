// Package workspace orchestrates scrutiny engines with the persistence
// layer. One manager serves the CLI, REST API, and MCP surfaces; it opens
// at most one engine per filing package and writes engine state back to
// the store after every scan, resolution, and gate decision.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/rules"
	"github.com/jubeelegal/jubee/internal/scrutiny"
	"github.com/jubeelegal/jubee/internal/store"
)

// Manager opens scrutiny engines over persisted packages.
type Manager struct {
	store      store.Store
	profiles   map[string]*rules.Profile
	translator resolve.Translator
	revalidate bool

	mu      sync.Mutex
	engines map[string]*scrutiny.Engine
}

// NewManager creates a workspace manager. profiles may be nil, in which
// case every package evaluates against the built-in default profile. The
// translator may be nil if no API key is configured; translate-now
// resolutions then fail with a configuration error.
func NewManager(s store.Store, profiles map[string]*rules.Profile, translator resolve.Translator) *Manager {
	return &Manager{
		store:      s,
		profiles:   profiles,
		translator: translator,
		revalidate: true,
		engines:    make(map[string]*scrutiny.Engine),
	}
}

// Open returns the engine for a package, loading its documents and latest
// pass from the store on first use.
func (m *Manager) Open(ctx context.Context, packageID string) (*scrutiny.Engine, error) {
	m.mu.Lock()
	if eng, ok := m.engines[packageID]; ok {
		m.mu.Unlock()
		return eng, nil
	}
	m.mu.Unlock()

	pkg, err := m.store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	docs := docset.New()
	persisted, err := m.store.ListDocuments(ctx, packageID)
	if err != nil {
		return nil, err
	}
	for _, d := range persisted {
		if err := docs.Add(d); err != nil {
			return nil, fmt.Errorf("load document %s: %w", d.ID, err)
		}
	}

	profile := m.profileFor(pkg.CourtProfile)
	cfg := resolve.Config{
		Translator:           m.translator,
		RevalidateReferences: m.revalidate,
		Audit: func(rec models.ResolutionRecord) {
			rec.PackageID = packageID
			_ = m.store.CreateResolutionRecord(context.Background(), &rec)
		},
	}
	eng := scrutiny.New(pkg, docs, profile, cfg)

	// Rehydrate the latest pass so resolution continues across restarts.
	if pass, err := m.store.GetLatestPass(ctx, packageID); err == nil {
		eng.Restore(pass)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.engines[packageID]; ok {
		return existing, nil
	}
	m.engines[packageID] = eng
	return eng, nil
}

func (m *Manager) profileFor(name string) *rules.Profile {
	if p, ok := m.profiles[name]; ok {
		return p
	}
	return rules.Default()
}

// Scan runs a fresh scrutiny pass and persists it. The package moves to
// the scrutiny stage.
func (m *Manager) Scan(ctx context.Context, packageID string) (*models.ScrutinyPass, error) {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return nil, err
	}

	pass, err := eng.RunPass(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.store.SavePass(ctx, pass); err != nil {
		return nil, err
	}

	pkg := eng.Package()
	if pkg.Status == models.PackageStatusIntake {
		pkg.Status = models.PackageStatusScrutiny
		if err := m.store.UpdatePackage(ctx, pkg); err != nil {
			return nil, err
		}
	}
	return pass, nil
}

// Resolve starts an asynchronous resolution and returns its handle.
// Callers await the handle (or drive its translate stages) and then call
// Commit to persist the result.
func (m *Manager) Resolve(ctx context.Context, packageID, defectID string, strategy models.ResolutionStrategy, payload resolve.Payload) (*resolve.Handle, error) {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return nil, err
	}
	return eng.BeginResolution(ctx, defectID, strategy, payload)
}

// Commit waits for a resolution to finish and persists the defect status
// and document changes it produced.
func (m *Manager) Commit(ctx context.Context, packageID string, h *resolve.Handle) (resolve.Outcome, error) {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return resolve.Outcome{}, err
	}

	out := h.Outcome()
	if out.Status != resolve.OutcomeResolved {
		return out, nil
	}

	d, err := eng.Defect(h.DefectID)
	if err != nil {
		return out, err
	}
	if err := m.store.UpdateDefectStatus(ctx, d); err != nil {
		return out, err
	}
	for _, doc := range eng.Docs().All() {
		if err := m.store.SaveDocument(ctx, packageID, doc); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Ignore marks a defect ignored and persists the status.
func (m *Manager) Ignore(ctx context.Context, packageID, defectID string) error {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return err
	}
	if err := eng.Ignore(defectID); err != nil {
		return err
	}
	d, err := eng.Defect(defectID)
	if err != nil {
		return err
	}
	return m.store.UpdateDefectStatus(ctx, d)
}

// Proceed evaluates the completion gate, records the decision for audit,
// and advances the package to ready when allowed.
func (m *Manager) Proceed(ctx context.Context, packageID string, override bool) (scrutiny.ProceedResult, error) {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return scrutiny.ProceedResult{}, err
	}

	res, err := eng.Proceed(override)
	if err != nil {
		return scrutiny.ProceedResult{}, err
	}

	dec := &models.ProceedDecision{
		PackageID: packageID,
		Allowed:   res.Allowed,
		Override:  res.Override,
		Summary:   res.Summary,
	}
	if pass := eng.Pass(); pass != nil {
		dec.PassID = pass.ID
	}
	if err := m.store.CreateProceedDecision(ctx, dec); err != nil {
		return res, err
	}

	if res.Allowed {
		pkg := eng.Package()
		pkg.Status = models.PackageStatusReady
		if err := m.store.UpdatePackage(ctx, pkg); err != nil {
			return res, err
		}
	}
	return res, nil
}

// AddDocument attaches a document to the package at intake and persists it.
func (m *Manager) AddDocument(ctx context.Context, packageID string, d *models.DocumentRef) error {
	eng, err := m.Open(ctx, packageID)
	if err != nil {
		return err
	}
	if d.ID == "" {
		// Store assigns ULIDs; the engine needs the id up front.
		if err := m.store.SaveDocument(ctx, packageID, d); err != nil {
			return err
		}
		if err := eng.Docs().Add(d); err != nil {
			derr := m.store.DeleteDocument(ctx, d.ID)
			return errors.Join(err, derr)
		}
		return nil
	}
	if err := eng.Docs().Add(d); err != nil {
		return err
	}
	return m.store.SaveDocument(ctx, packageID, d)
}

// CloseAll cancels in-flight resolutions on every open engine and waits
// for them to settle.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := make([]*scrutiny.Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Resolver().CancelAll()
		e.Resolver().Wait()
	}
}
