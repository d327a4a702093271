// Package resolve drives the per-defect resolution state machine:
// pending -> resolving -> resolved | pending | ignored. Resolutions run
// asynchronously, one at a time per defect, with a package-wide write
// lock on the primary document's narration text.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/rules"
)

var (
	// ErrResolutionInProgress rejects a second concurrent resolution on the
	// same defect, or a second concurrent remove-reference package-wide.
	ErrResolutionInProgress = errors.New("resolution already in progress")

	// ErrInvalidFileType rejects uploads whose declared type is not an
	// accepted filing type.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrReferenceStillPresent rejects remove-reference payloads that did
	// not actually strip the flagged annexure mention.
	ErrReferenceStillPresent = errors.New("annexure reference still present in narration")

	// ErrStrategyNotApplicable rejects a strategy the defect kind does not
	// support.
	ErrStrategyNotApplicable = errors.New("strategy not applicable to defect kind")

	// ErrNotPending rejects resolution of a defect that is already resolved
	// or ignored.
	ErrNotPending = errors.New("defect is not pending")
)

// Translator produces translated text for the translate strategy. The
// result is always subject to caller approval before acceptance.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Config tunes a Resolver.
type Config struct {
	Translator Translator

	// Timeout bounds each resolution attempt. Zero means the default of
	// two minutes.
	Timeout time.Duration

	// RevalidateReferences re-runs the missing-annexure check after a
	// replace-reference resolution instead of trusting the asserted
	// mapping.
	RevalidateReferences bool

	// Audit, when set, receives a record for every terminal resolution.
	Audit func(models.ResolutionRecord)
}

const defaultTimeout = 2 * time.Minute

// Resolver owns the in-flight resolution state for one filing package.
type Resolver struct {
	docs         *docset.Set
	profile      *rules.Profile
	caseCategory string
	cfg          Config

	group *errgroup.Group

	mu            sync.Mutex // guards defect statuses, inflight, narrationBusy
	inflight      map[string]*Handle
	narrationBusy string // defect id holding the narration write lock, "" if free
}

// New creates a resolver over the package's document set.
func New(docs *docset.Set, profile *rules.Profile, caseCategory string, cfg Config) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	r := &Resolver{
		docs:         docs,
		profile:      profile,
		caseCategory: caseCategory,
		cfg:          cfg,
		group:        &errgroup.Group{},
		inflight:     make(map[string]*Handle),
	}
	return r
}

// Begin starts an asynchronous resolution of the defect with the given
// strategy. At most one resolution may be in flight per defect; the
// returned handle is awaited, staged (translate), or cancelled by the
// caller.
func (r *Resolver) Begin(ctx context.Context, defect *models.Defect, strategy models.ResolutionStrategy, payload Payload) (*Handle, error) {
	if err := checkApplicable(defect.Kind, strategy, payload); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if defect.Status != models.DefectStatusPending {
		r.mu.Unlock()
		return nil, fmt.Errorf("defect %s is %s: %w", defect.ID, defect.Status, ErrNotPending)
	}
	if _, ok := r.inflight[defect.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("defect %s: %w", defect.ID, ErrResolutionInProgress)
	}
	if strategy == models.StrategyRemoveReference && r.narrationBusy != "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("narration text locked by resolution of defect %s: %w", r.narrationBusy, ErrResolutionInProgress)
	}

	rctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	h := newHandle(defect.ID, strategy, cancel)
	r.inflight[defect.ID] = h
	if strategy == models.StrategyRemoveReference {
		r.narrationBusy = defect.ID
	}
	r.mu.Unlock()

	started := time.Now().UTC()
	r.group.Go(func() error {
		defer cancel()
		err := r.run(rctx, h, defect, strategy, payload)
		out := outcomeFor(rctx, err)

		r.mu.Lock()
		delete(r.inflight, defect.ID)
		if r.narrationBusy == defect.ID {
			r.narrationBusy = ""
		}
		if out.Status == OutcomeResolved {
			now := time.Now().UTC()
			defect.Status = models.DefectStatusResolved
			defect.ResolvedAt = &now
		}
		// Failed and cancelled attempts leave the defect pending.
		r.mu.Unlock()

		h.finish(out)
		r.audit(defect, strategy, out, started)
		return nil
	})

	return h, nil
}

// CancelAll aborts every in-flight resolution.
func (r *Resolver) CancelAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.inflight))
	for _, h := range r.inflight {
		handles = append(handles, h)
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// Wait blocks until all in-flight resolutions have reached terminal state.
func (r *Resolver) Wait() {
	_ = r.group.Wait()
}

// Ignore transitions a pending defect to ignored. Ignoring is terminal for
// the current pass; only a fresh scrutiny pass can surface the defect again.
func (r *Resolver) Ignore(defect *models.Defect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inflight[defect.ID]; ok {
		return fmt.Errorf("defect %s: %w", defect.ID, ErrResolutionInProgress)
	}
	if defect.Status != models.DefectStatusPending {
		return fmt.Errorf("defect %s is %s: %w", defect.ID, defect.Status, ErrNotPending)
	}
	defect.Status = models.DefectStatusIgnored
	return nil
}

// PendingSummary counts still-pending defects by severity, read under the
// resolver's lock so concurrent resolutions cannot tear the counts.
func (r *Resolver) PendingSummary(defects []*models.Defect) models.PendingSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s models.PendingSummary
	for _, d := range defects {
		if d.Status != models.DefectStatusPending {
			continue
		}
		switch d.Severity {
		case models.SeverityMustFix:
			s.MustFix++
		case models.SeverityReview:
			s.Review++
		case models.SeverityAdvisory:
			s.Advisory++
		}
	}
	return s
}

// Status returns the defect's current status under the resolver's lock.
func (r *Resolver) Status(defect *models.Defect) models.DefectStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return defect.Status
}

// Resolving reports whether a resolution is in flight for the defect id.
func (r *Resolver) Resolving(defectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[defectID]
	return ok
}

func (r *Resolver) audit(defect *models.Defect, strategy models.ResolutionStrategy, out Outcome, started time.Time) {
	if r.cfg.Audit == nil {
		return
	}
	rec := models.ResolutionRecord{
		DefectID:  defect.ID,
		Strategy:  strategy,
		Outcome:   string(out.Status),
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}
	if out.Err != nil {
		rec.Detail = out.Err.Error()
	}
	r.cfg.Audit(rec)
}

func outcomeFor(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Status: OutcomeResolved}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return Outcome{Status: OutcomeCancelled, Err: err}
	default:
		return Outcome{Status: OutcomeFailed, Err: err}
	}
}

// checkApplicable validates the strategy and payload shape against the
// defect kind before any state changes.
func checkApplicable(kind models.DefectKind, strategy models.ResolutionStrategy, payload Payload) error {
	ok := func(allowed ...models.ResolutionStrategy) bool {
		for _, s := range allowed {
			if s == strategy {
				return true
			}
		}
		return false
	}

	switch kind {
	case models.DefectAnnexureMissing:
		if !ok(models.StrategyUpload, models.StrategyReplaceReference, models.StrategyRemoveReference) {
			return fmt.Errorf("%s on %s: %w", strategy, kind, ErrStrategyNotApplicable)
		}
	case models.DefectMarginNonCompliant, models.DefectFontNonCompliant, models.DefectPageNumberingGap:
		if !ok(models.StrategyDirectFix) {
			return fmt.Errorf("%s on %s: %w", strategy, kind, ErrStrategyNotApplicable)
		}
	case models.DefectStampDutyInsufficient:
		if !ok(models.StrategyDirectFix, models.StrategyUpload) {
			return fmt.Errorf("%s on %s: %w", strategy, kind, ErrStrategyNotApplicable)
		}
	case models.DefectTranslationRequiredFull, models.DefectTranslationRequiredPartial:
		if !ok(models.StrategyTranslate) {
			return fmt.Errorf("%s on %s: %w", strategy, kind, ErrStrategyNotApplicable)
		}
	case models.DefectIndexMismatch:
		if !ok(models.StrategyUpload, models.StrategyDirectFix) {
			return fmt.Errorf("%s on %s: %w", strategy, kind, ErrStrategyNotApplicable)
		}
	}

	var want bool
	switch strategy {
	case models.StrategyUpload:
		_, want = payload.(UploadPayload)
	case models.StrategyReplaceReference:
		_, want = payload.(ReplaceReferencePayload)
	case models.StrategyRemoveReference:
		_, want = payload.(RemoveReferencePayload)
	case models.StrategyDirectFix:
		_, want = payload.(DirectFixPayload)
	case models.StrategyTranslate:
		_, want = payload.(TranslatePayload)
	}
	if !want {
		return fmt.Errorf("payload %T does not match strategy %s", payload, strategy)
	}
	return nil
}
