// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "portfolio-sync/internal/errors"
	"portfolio-sync/internal/model"
)

// ProjectStore is the persistence surface the API needs.
type ProjectStore interface {
	AllProjects(ctx context.Context) ([]model.Project, error)
	VisibleProjects(ctx context.Context) ([]model.Project, error)
	CreateManualProject(ctx context.Context, p model.Project) (model.Project, error)
	UpdateManualProject(ctx context.Context, id int64, p model.Project) (model.Project, error)
	DeleteProject(ctx context.Context, id int64) error
	SetVisibility(ctx context.Context, id int64, visible bool) (model.Project, error)
	Reorder(ctx context.Context, items []model.ReorderItem) error
	SetCacheDuration(ctx context.Context, minutes int) error
}

// SyncService triggers and reports on reconciliation passes.
type SyncService interface {
	Sync(ctx context.Context, force bool) (model.SyncResult, error)
	Status(ctx context.Context) (model.CacheStatus, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	store  ProjectStore
	syncer SyncService
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// Admin routes live under /v1/admin so an auth middleware can wrap them;
// authentication itself is outside this service.
func NewRouter(store ProjectStore, syncer SyncService, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:  store,
		syncer: syncer,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/projects", h.getVisibleProjects)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/projects", h.getAllProjects)
			r.Post("/projects", h.createProject)
			r.Put("/projects/reorder", h.reorderProjects)
			r.Put("/projects/{id}", h.updateProject)
			r.Delete("/projects/{id}", h.deleteProject)
			r.Patch("/projects/{id}/visibility", h.setVisibility)

			r.Post("/sync", h.triggerSync)
			r.Get("/sync/status", h.syncStatus)
			r.Put("/sync/settings", h.updateSyncSettings)
		})
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getVisibleProjects serves the public listing: visible projects only, in
// display order, stripped of admin-only fields.
// GET /v1/projects
func (h *Handler) getVisibleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.VisibleProjects(r.Context())
	if err != nil {
		h.logger.Error("Failed to list visible projects", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	public := make([]model.PublicProject, len(projects))
	for i, p := range projects {
		public[i] = p.Public()
	}
	respondWithJSON(w, http.StatusOK, public)
}

// getAllProjects serves the full records, including visibility, ordering and
// the manual flag.
// GET /v1/admin/projects
func (h *Handler) getAllProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.AllProjects(r.Context())
	if err != nil {
		h.logger.Error("Failed to list projects", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, projects)
}

// projectRequest is the body for manual project create/update.
type projectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Homepage    string   `json:"homepage"`
	Language    *string  `json:"language"`
	Stars       int      `json:"stars"`
	Topics      []string `json:"topics"`
	IsVisible   *bool    `json:"isVisible"`
}

func (req *projectRequest) toProject() model.Project {
	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}
	topics := req.Topics
	if topics == nil {
		topics = []string{}
	}
	return model.Project{
		Name:        req.Name,
		Description: req.Description,
		URL:         req.URL,
		Homepage:    req.Homepage,
		Language:    req.Language,
		Stars:       req.Stars,
		Topics:      topics,
		IsVisible:   visible,
		IsManual:    true,
	}
}

// createProject creates a manual project, appended after all existing ones.
// POST /v1/admin/projects
func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "'name' is required")
		return
	}

	created, err := h.store.CreateManualProject(r.Context(), req.toProject())
	if err != nil {
		h.logger.Error("Failed to create manual project", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// updateProject fully edits a manual project. Source-linked projects are
// rejected: their provider fields are owned by the sync.
// PUT /v1/admin/projects/{id}
func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "'name' is required")
		return
	}

	updated, err := h.store.UpdateManualProject(r.Context(), id, req.toProject())
	if err != nil {
		h.respondStoreError(w, err, "Failed to update project")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// deleteProject removes a manual project. Source-linked projects cannot be
// deleted, only hidden.
// DELETE /v1/admin/projects/{id}
func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "Failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setVisibility toggles the admin-owned visibility flag.
// PATCH /v1/admin/projects/{id}/visibility
func (h *Handler) setVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		IsVisible *bool `json:"isVisible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsVisible == nil {
		respondWithError(w, http.StatusBadRequest, "'isVisible' is required")
		return
	}

	updated, err := h.store.SetVisibility(r.Context(), id, *req.IsVisible)
	if err != nil {
		h.respondStoreError(w, err, "Failed to set visibility")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// reorderProjects applies a new ordering as one atomic unit.
// PUT /v1/admin/projects/reorder
func (h *Handler) reorderProjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []model.ReorderItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondWithError(w, http.StatusBadRequest, "'items' must not be empty")
		return
	}

	if err := h.store.Reorder(r.Context(), req.Items); err != nil {
		h.respondStoreError(w, err, "Failed to reorder projects")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerSync runs one reconciliation pass. ?force=true bypasses the cache
// gate. A gate-declined sync is a normal 200, not an error.
// POST /v1/admin/sync
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	result, err := h.syncer.Sync(r.Context(), force)
	if err != nil {
		h.logger.Error("Sync failed", "error", err, "force", force)
		var fetchErr *apperrors.FetchError
		if errors.As(err, &fetchErr) {
			respondWithJSON(w, http.StatusBadGateway, result)
			return
		}
		respondWithJSON(w, http.StatusInternalServerError, result)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// syncStatus reports the cache gate's state.
// GET /v1/admin/sync/status
func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to get sync status", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// updateSyncSettings changes the minimum interval between syncs.
// PUT /v1/admin/sync/settings
func (h *Handler) updateSyncSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CacheDurationMinutes int `json:"cacheDurationMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CacheDurationMinutes <= 0 {
		respondWithError(w, http.StatusBadRequest, "'cacheDurationMinutes' must be a positive integer")
		return
	}

	if err := h.store.SetCacheDuration(r.Context(), req.CacheDurationMinutes); err != nil {
		h.logger.Error("Failed to update cache duration", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondStoreError maps store errors onto HTTP statuses.
func (h *Handler) respondStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, apperrors.ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, apperrors.ErrNotManual):
		respondWithError(w, http.StatusConflict, apperrors.ErrNotManual.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid project id")
		return 0, false
	}
	return id, true
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
