package resolve

import (
	"context"
	"fmt"
	"sync"

	"github.com/jubeelegal/jubee/internal/models"
)

// OutcomeStatus is the terminal state of one resolution attempt.
type OutcomeStatus string

const (
	OutcomeResolved  OutcomeStatus = "resolved"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the result of an async resolution. Err is set for failed
// outcomes and carries the typed reason.
type Outcome struct {
	Status OutcomeStatus
	Err    error
}

// Handle tracks one in-flight resolution. The caller awaits Outcome, and
// for translate resolutions drives the approve/placement steps through it.
type Handle struct {
	DefectID string
	Strategy models.ResolutionStrategy

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome

	// Translate staging. draftReady is closed once the provider's draft is
	// available; approveCh and placeCh feed the worker the caller's
	// decisions.
	draftReady chan struct{}
	draft      string
	approveCh  chan string
	placeCh    chan models.PagePlacement
}

func newHandle(defectID string, strategy models.ResolutionStrategy, cancel context.CancelFunc) *Handle {
	return &Handle{
		DefectID:   defectID,
		Strategy:   strategy,
		cancel:     cancel,
		done:       make(chan struct{}),
		draftReady: make(chan struct{}),
		approveCh:  make(chan string, 1),
		placeCh:    make(chan models.PagePlacement, 1),
	}
}

// Outcome blocks until the resolution reaches a terminal state.
func (h *Handle) Outcome() Outcome {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Done returns a channel closed when the resolution is terminal.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts the resolution. The defect reverts to pending with no
// partial writes; Outcome reports OutcomeCancelled.
func (h *Handle) Cancel() {
	h.cancel()
}

// Draft blocks until the translation draft is ready and returns it. Only
// meaningful for translate-now resolutions.
func (h *Handle) Draft(ctx context.Context) (string, error) {
	select {
	case <-h.draftReady:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.draft, nil
	case <-h.done:
		return "", fmt.Errorf("resolution already %s", h.Outcome().Status)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Approve accepts the (possibly hand-edited) translated text. The
// resolution completes after approval, except selective-pages
// translations which additionally wait for Place.
func (h *Handle) Approve(text string) error {
	select {
	case <-h.done:
		return fmt.Errorf("resolution already %s", h.Outcome().Status)
	default:
	}
	select {
	case h.approveCh <- text:
		return nil
	default:
		return fmt.Errorf("approval already recorded for defect %s", h.DefectID)
	}
}

// Place records the placement decision for translated pages.
func (h *Handle) Place(p models.PagePlacement) error {
	select {
	case <-h.done:
		return fmt.Errorf("resolution already %s", h.Outcome().Status)
	default:
	}
	select {
	case h.placeCh <- p:
		return nil
	default:
		return fmt.Errorf("placement already recorded for defect %s", h.DefectID)
	}
}

func (h *Handle) setDraft(text string) {
	h.mu.Lock()
	h.draft = text
	h.mu.Unlock()
	close(h.draftReady)
}

func (h *Handle) finish(out Outcome) {
	h.mu.Lock()
	h.outcome = out
	h.mu.Unlock()
	close(h.done)
}
