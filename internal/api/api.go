// Package api provides the REST surface over the scrutiny workspace.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jubeelegal/jubee/internal/docset"
	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/picker"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/store"
	"github.com/jubeelegal/jubee/internal/workspace"
)

// Server provides the REST API handlers.
type Server struct {
	store   store.Store
	manager *workspace.Manager
	picker  *picker.Picker // may be nil if no object storage is configured
	log     *slog.Logger

	mu      sync.Mutex
	handles map[string]*handleEntry
}

type handleEntry struct {
	packageID string
	handle    *resolve.Handle
}

// handleRetention is how long a settled resolution handle stays pollable
// before the server drops it.
var handleRetention = 10 * time.Minute

// NewServer creates a new API server. The picker may be nil.
func NewServer(s store.Store, m *workspace.Manager, p *picker.Picker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:   s,
		manager: m,
		picker:  p,
		log:     log,
		handles: make(map[string]*handleEntry),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/packages", s.listPackages)
	mux.HandleFunc("POST /api/v1/packages", s.createPackage)
	mux.HandleFunc("GET /api/v1/packages/{id}", s.getPackage)
	mux.HandleFunc("DELETE /api/v1/packages/{id}", s.deletePackage)

	mux.HandleFunc("GET /api/v1/packages/{id}/documents", s.listDocuments)
	mux.HandleFunc("POST /api/v1/packages/{id}/documents", s.addDocument)

	mux.HandleFunc("POST /api/v1/packages/{id}/scan", s.scan)
	mux.HandleFunc("GET /api/v1/packages/{id}/defects", s.listDefects)
	mux.HandleFunc("POST /api/v1/packages/{id}/defects/{defectID}/resolve", s.beginResolution)
	mux.HandleFunc("POST /api/v1/packages/{id}/defects/{defectID}/ignore", s.ignoreDefect)
	mux.HandleFunc("POST /api/v1/packages/{id}/proceed", s.proceed)
	mux.HandleFunc("GET /api/v1/packages/{id}/decisions", s.listDecisions)
	mux.HandleFunc("GET /api/v1/packages/{id}/resolutions", s.listResolutionRecords)

	mux.HandleFunc("GET /api/v1/resolutions/{handleID}", s.pollResolution)
	mux.HandleFunc("GET /api/v1/resolutions/{handleID}/draft", s.resolutionDraft)
	mux.HandleFunc("POST /api/v1/resolutions/{handleID}/approve", s.approveResolution)
	mux.HandleFunc("POST /api/v1/resolutions/{handleID}/place", s.placeResolution)
	mux.HandleFunc("DELETE /api/v1/resolutions/{handleID}", s.cancelResolution)

	mux.HandleFunc("GET /api/v1/storage", s.listStorage)

	return s.requestLogger(corsMiddleware(mux))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func notFound(err error) bool {
	return strings.Contains(err.Error(), "not found")
}

// --- Packages ---

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	status := models.PackageStatus(r.URL.Query().Get("status"))
	packages, err := s.store.ListPackages(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var p models.FilingPackage
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.store.CreatePackage(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetPackage(r.Context(), id)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeletePackage(r.Context(), id); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Documents ---

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	docs, err := s.store.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) addDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var d models.DocumentRef
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.manager.AddDocument(r.Context(), id, &d); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, docset.ErrDuplicateRole) {
			status = http.StatusConflict
		} else if notFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- Scrutiny ---

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pass, err := s.manager.Scan(r.Context(), id)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (s *Server) listDefects(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pass, err := s.store.GetLatestPass(r.Context(), id)
	if err != nil {
		if notFound(err) || strings.Contains(err.Error(), "no pass") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pass.Defects)
}

// resolveRequest is the wire shape for starting a resolution. Exactly the
// fields for the chosen strategy need to be set.
type resolveRequest struct {
	Strategy models.ResolutionStrategy `json:"strategy"`

	Document         *models.DocumentRef    `json:"document,omitempty"`           // upload / translate use-existing
	TargetDocumentID string                 `json:"target_document_id,omitempty"` // replace-reference
	EditedNarration  string                 `json:"edited_narration,omitempty"`   // remove-reference
	Mode             models.TranslationMode `json:"mode,omitempty"`               // translate
}

func payloadFrom(req resolveRequest) (resolve.Payload, error) {
	switch req.Strategy {
	case models.StrategyUpload:
		return resolve.UploadPayload{Ref: req.Document}, nil
	case models.StrategyReplaceReference:
		return resolve.ReplaceReferencePayload{TargetDocumentID: req.TargetDocumentID}, nil
	case models.StrategyRemoveReference:
		return resolve.RemoveReferencePayload{EditedNarration: req.EditedNarration}, nil
	case models.StrategyDirectFix:
		return resolve.DirectFixPayload{}, nil
	case models.StrategyTranslate:
		return resolve.TranslatePayload{Mode: req.Mode, Existing: req.Document}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
}

func (s *Server) beginResolution(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	defectID := r.PathValue("defectID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	payload, err := payloadFrom(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The resolution outlives this request; it is cancelled through the
	// handle, not the request context.
	h, err := s.manager.Resolve(context.Background(), packageID, defectID, req.Strategy, payload)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, resolve.ErrResolutionInProgress) {
			status = http.StatusConflict
		} else if notFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	handleID := newHandleID()
	s.mu.Lock()
	s.handles[handleID] = &handleEntry{packageID: packageID, handle: h}
	s.mu.Unlock()

	// Persist results as soon as the resolution settles. Commit blocks on
	// the outcome, so the retention clock starts only once the handle has a
	// final status for pollers to collect.
	retention := handleRetention
	go func() {
		_, _ = s.manager.Commit(context.Background(), packageID, h)
		time.AfterFunc(retention, func() {
			s.mu.Lock()
			delete(s.handles, handleID)
			s.mu.Unlock()
		})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"handle_id": handleID,
		"defect_id": defectID,
		"status":    "resolving",
	})
}

func (s *Server) lookupHandle(w http.ResponseWriter, r *http.Request) *handleEntry {
	id := r.PathValue("handleID")
	s.mu.Lock()
	entry, ok := s.handles[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "resolution handle not found: "+id)
		return nil
	}
	return entry
}

func (s *Server) pollResolution(w http.ResponseWriter, r *http.Request) {
	entry := s.lookupHandle(w, r)
	if entry == nil {
		return
	}
	select {
	case <-entry.handle.Done():
		out := entry.handle.Outcome()
		resp := map[string]string{"status": string(out.Status)}
		if out.Err != nil {
			resp["error"] = out.Err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolving"})
	}
}

func (s *Server) resolutionDraft(w http.ResponseWriter, r *http.Request) {
	entry := s.lookupHandle(w, r)
	if entry == nil {
		return
	}
	draft, err := entry.handle.Draft(r.Context())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (s *Server) approveResolution(w http.ResponseWriter, r *http.Request) {
	entry := s.lookupHandle(w, r)
	if entry == nil {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := entry.handle.Approve(body.Text); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) placeResolution(w http.ResponseWriter, r *http.Request) {
	entry := s.lookupHandle(w, r)
	if entry == nil {
		return
	}
	var body struct {
		Placement models.PagePlacement `json:"placement"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := entry.handle.Place(body.Placement); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "placement recorded"})
}

func (s *Server) cancelResolution(w http.ResponseWriter, r *http.Request) {
	entry := s.lookupHandle(w, r)
	if entry == nil {
		return
	}
	entry.handle.Cancel()
	<-entry.handle.Done()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(entry.handle.Outcome().Status)})
}

func (s *Server) ignoreDefect(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	defectID := r.PathValue("defectID")
	if err := s.manager.Ignore(r.Context(), packageID, defectID); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, resolve.ErrResolutionInProgress) {
			status = http.StatusConflict
		} else if notFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

func (s *Server) proceed(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	var body struct {
		Override bool `json:"override"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	res, err := s.manager.Proceed(r.Context(), packageID, body.Override)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	decisions, err := s.store.ListProceedDecisions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) listResolutionRecords(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := s.store.ListResolutionRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Storage ---

func (s *Server) listStorage(w http.ResponseWriter, r *http.Request) {
	if s.picker == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	entries, err := s.picker.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func newHandleID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return "res_" + ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
