// Package api exposes the merge review, workout linking and bulk delete
// endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/auth"
	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/scanner"
)

// Resolver reviews merge candidates.
type Resolver interface {
	ListPending(ctx context.Context, ownerID string) ([]domain.PendingCandidate, error)
	Reject(ctx context.Context, ownerID string, activityID int64) (domain.Resolution, error)
	Accept(ctx context.Context, ownerID string, activityID int64) (domain.Resolution, error)
}

// Linker attaches activities to planned workouts.
type Linker interface {
	Link(ctx context.Context, ownerID string, activityID, workoutID int64, reason string) (domain.LinkResult, error)
	Unlink(ctx context.Context, ownerID string, activityID int64) (domain.LinkResult, error)
}

// Activities deletes activities in bulk.
type Activities interface {
	DeleteActivities(ctx context.Context, ownerID string, ids []int64) (int64, error)
}

// Scans runs an owner-scoped candidate scan and persists its flags.
type Scans interface {
	ScanAndFlag(ctx context.Context, ownerID string, w scanner.Window) (scanner.Summary, error)
}

// maxBodyBytes bounds request bodies; a full bulk delete fits comfortably.
const maxBodyBytes = 64 << 10

// Handler serves the HTTP endpoints. Every handler scopes its work to the
// authenticated subject.
type Handler struct {
	resolver   Resolver
	linker     Linker
	activities Activities
	scans      Scans
	log        *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(resolver Resolver, linker Linker, activities Activities, scans Scans) *Handler {
	return &Handler{
		resolver:   resolver,
		linker:     linker,
		activities: activities,
		scans:      scans,
		log:        zap.L().With(zap.String("component", "api")),
	}
}

// Routes mounts the versioned endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1", func(r chi.Router) {
		r.With(requireScope(auth.ScopeActivitiesRead)).Get("/merge-candidates", h.listCandidates)

		r.Group(func(r chi.Router) {
			r.Use(requireScope(auth.ScopeActivitiesWrite))
			r.Post("/merge-candidates/reject", h.rejectCandidate)
			r.Post("/merge-candidates/accept", h.acceptCandidate)
			r.Post("/merge-candidates/scan", h.scan)
			r.Post("/workout-links", h.link)
			r.Delete("/workout-links", h.unlink)
			r.Delete("/activities", h.deleteActivities)
		})
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireScope rejects requests without claims or without scope. Write
// tokens may also read.
func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			allowed := claims.HasScope(scope)
			if scope == auth.ScopeActivitiesRead {
				allowed = allowed || claims.HasScope(auth.ScopeActivitiesWrite)
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ownerID(r *http.Request) string {
	claims, _ := auth.FromContext(r.Context())
	return claims.Subject
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	pending, err := h.resolver.ListPending(r.Context(), ownerID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]CandidateView, 0, len(pending))
	for _, p := range pending {
		items = append(items, toCandidateView(p))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.resolver.Reject)
}

func (h *Handler) acceptCandidate(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.resolver.Accept)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int64) (domain.Resolution, error)) {
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	res, err := op(r.Context(), ownerID(r), req.ActivityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{
		ActivityID:  res.ActivityID,
		MergeStatus: string(res.MergeStatus),
		Changed:     res.Changed,
	})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decode(w, r, &req) {
		return
	}
	window, err := req.Window()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	summary, err := h.scans.ScanAndFlag(r.Context(), ownerID(r), window)
	status := http.StatusOK
	if err != nil {
		// flags from the chunks that finished are already committed
		if summary.Chunks == 0 || summary.FailedChunks >= summary.Chunks {
			h.fail(w, r, err)
			return
		}
		h.log.Warn("scan completed partially",
			zap.String("run_id", summary.RunID.String()),
			zap.Int("failed_chunks", summary.FailedChunks),
			zap.Int("failed", summary.Failed),
			zap.Error(err))
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, ScanResponse{
		RunID:        summary.RunID.String(),
		Candidates:   summary.Candidates,
		Flagged:      summary.Flagged,
		Skipped:      summary.Skipped,
		Failed:       summary.Failed,
		Chunks:       summary.Chunks,
		FailedChunks: summary.FailedChunks,
	})
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	res, err := h.linker.Link(r.Context(), ownerID(r), req.ActivityID, *req.WorkoutID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(res))
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	var req UnlinkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	res, err := h.linker.Unlink(r.Context(), ownerID(r), req.ActivityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(res))
}

func (h *Handler) deleteActivities(w http.ResponseWriter, r *http.Request) {
	var req DeleteActivitiesRequest
	if !decode(w, r, &req) {
		return
	}

	deleted, err := h.activities.DeleteActivities(r.Context(), ownerID(r), req.ActivityIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteActivitiesResponse{Deleted: deleted})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// fail maps domain errors onto status codes. Not-found responses are
// identical whether the row is missing or owned by someone else.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "activity was already resolved differently")
	default:
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
