// Package docset models the document set of one filing package: the primary
// petition plus its annexures and index, with lookup by id, role, and
// annexure label. It is a pure composition structure with no I/O.
package docset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jubeelegal/jubee/internal/models"
)

var (
	// ErrDuplicateRole is returned when a second primary document is added.
	ErrDuplicateRole = errors.New("package already has a primary document")

	// ErrNotFound is returned for lookups of unknown document ids.
	ErrNotFound = errors.New("document not found")
)

// Set holds the documents of one filing package. Safe for concurrent use:
// resolution strategies for different defects may touch the set at the
// same time.
type Set struct {
	mu    sync.RWMutex
	docs  map[string]*models.DocumentRef
	order []string // insertion order of ids
}

// New creates an empty document set.
func New() *Set {
	return &Set{docs: make(map[string]*models.DocumentRef)}
}

// Add inserts a document. Fails with ErrDuplicateRole if the document is a
// primary and the set already holds one. Ids must be unique within the set.
func (s *Set) Add(ref *models.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.ID == "" {
		return fmt.Errorf("document %q has no id", ref.DisplayName)
	}
	if _, ok := s.docs[ref.ID]; ok {
		return fmt.Errorf("duplicate document id %s", ref.ID)
	}
	if ref.Role == models.RolePrimary {
		for _, id := range s.order {
			if s.docs[id].Role == models.RolePrimary {
				return fmt.Errorf("add %q: %w", ref.DisplayName, ErrDuplicateRole)
			}
		}
	}

	s.docs[ref.ID] = ref
	s.order = append(s.order, ref.ID)
	return nil
}

// Replace substitutes the document with the given id, preserving the id.
// Used by resolution strategies that swap a file in place.
func (s *Set) Replace(id string, newRef *models.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("replace %s: %w", id, ErrNotFound)
	}
	r := newRef.Clone()
	r.ID = id
	if r.Role == "" {
		r.Role = old.Role
	}
	if r.Role == models.RolePrimary && old.Role != models.RolePrimary {
		return fmt.Errorf("replace %s: %w", id, ErrDuplicateRole)
	}
	s.docs[id] = r
	return nil
}

// Get returns the document with the given id.
func (s *Set) Get(id string) (*models.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return d, nil
}

// Primary returns the primary petition, or ErrNotFound if the set has none.
func (s *Set) Primary() (*models.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if s.docs[id].Role == models.RolePrimary {
			return s.docs[id], nil
		}
	}
	return nil, fmt.Errorf("primary document: %w", ErrNotFound)
}

// ByRole returns all documents with the given role in insertion order.
// May be empty for annexure.
func (s *Set) ByRole(role models.DocumentRole) []*models.DocumentRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DocumentRef
	for _, id := range s.order {
		if s.docs[id].Role == role {
			out = append(out, s.docs[id])
		}
	}
	return out
}

// AnnexureByLabel returns the annexure carrying the given label, matched
// case-insensitively, or nil.
func (s *Set) AnnexureByLabel(label string) *models.DocumentRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		d := s.docs[id]
		if d.Role == models.RoleAnnexure && strings.EqualFold(d.Label, label) {
			return d
		}
	}
	return nil
}

// All returns every document in insertion order.
func (s *Set) All() []*models.DocumentRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DocumentRef, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// Len returns the number of documents in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// SetNarration rewrites the primary document's narration text. Callers
// (the remove-reference strategy) serialize access through the engine's
// narration lock; the set itself only guards the map.
func (s *Set) SetNarration(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.docs[id].Role == models.RolePrimary {
			d := s.docs[id].Clone()
			d.Narration = text
			s.docs[id] = d
			return nil
		}
	}
	return fmt.Errorf("set narration: %w", ErrNotFound)
}

// Snapshot returns a fingerprint of the set's rule-relevant state. Two sets
// that scrutinize identically produce the same snapshot id.
func (s *Set) Snapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := sha256.New()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Strings(ids)
	for _, id := range ids {
		d := s.docs[id]
		fmt.Fprintf(h, "%s|%s|%s|%s|%d|%.3f|%s|%s|%d|%s\n",
			d.ID, d.Role, d.Label, d.ContentType, d.PageCount,
			d.LeftMarginInches, d.FontFamily, d.Language,
			d.StampDutyPaidPaise, d.Narration)
		pages := make([]int, 0, len(d.PageLanguages))
		for p := range d.PageLanguages {
			pages = append(pages, p)
		}
		sort.Ints(pages)
		for _, p := range pages {
			fmt.Fprintf(h, "%d=%s;", p, d.PageLanguages[p])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
