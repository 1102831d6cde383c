package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"phones/internal/phone/loader"
	"phones/internal/phone/models"
	"phones/internal/phone/service"
	dErrors "phones/pkg/domain-errors"
	"phones/pkg/requestcontext"
)

// PhoneService is the slice of the phone service the HTTP layer consumes.
type PhoneService interface {
	List(ctx context.Context, f models.ListFilter) (*service.ViewList, error)
	GetByEntities(ctx context.Context, entityIDs []uuid.UUID) ([]models.PhoneView, error)
	Create(ctx context.Context, in models.PhoneInput) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, in models.PhoneInput) error
	Delete(ctx context.Context, ids []uuid.UUID) error
	DeleteByEntity(ctx context.Context, entityID uuid.UUID) error
	Replace(ctx context.Context, entityID uuid.UUID, specs []models.PhoneInput) (*models.ReplaceResult, error)
	RebaseTypes(ctx context.Context, types []string) error
	EntityTypes(ctx context.Context) ([]string, error)
}

// Handler is the thin HTTP layer over the phone service. Reads go through the
// loader so list pages prime the per-id cache; writes clear every id they
// touch before responding.
type Handler struct {
	phones PhoneService
	loader *loader.Loader
	logger *slog.Logger
}

// New constructs a Handler.
func New(phones PhoneService, l *loader.Loader, logger *slog.Logger) *Handler {
	return &Handler{phones: phones, loader: l, logger: logger}
}

// Register mounts the public phone routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/phones/list", h.handleList)
	r.Post("/phones/delete", h.handleDeleteMany)
	r.Post("/phones", h.handleCreate)
	r.Get("/phones/{id}", h.handleGet)
	r.Patch("/phones/{id}", h.handleUpdate)
	r.Delete("/phones/{id}", h.handleDelete)
	r.Get("/entities/{entityID}/phones", h.handleListByEntity)
	r.Post("/entities/{entityID}/phones/replace", h.handleReplace)
	r.Delete("/entities/{entityID}/phones", h.handleDeleteByEntity)
}

// RegisterAdmin mounts the operational routes; the caller wraps them with the
// admin token guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/types/rebase", h.handleRebaseTypes)
	r.Get("/admin/types", h.handleListTypes)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.phones.List(r.Context(), req.toFilter())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.PrimeMany(r.Context(), result.Nodes)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	view, found, err := h.loader.Load(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeNotFound, "phone %s not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in models.PhoneInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	id, err := h.phones.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.Clear(r.Context(), id)
	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.PhoneInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := h.phones.Update(r.Context(), id, in); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.Clear(r.Context(), id)
	h.writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.phones.Delete(r.Context(), []uuid.UUID{id}); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.Clear(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	ids := req.allIDs()
	if len(ids) == 0 {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "id or ids is required"))
		return
	}
	if err := h.phones.Delete(r.Context(), ids); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.Clear(r.Context(), ids...)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListByEntity(w http.ResponseWriter, r *http.Request) {
	entityID, ok := h.pathID(w, r, "entityID")
	if !ok {
		return
	}
	views, err := h.phones.GetByEntities(r.Context(), []uuid.UUID{entityID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loader.PrimeMany(r.Context(), views)
	h.writeJSON(w, http.StatusOK, entityPhonesResponse{Nodes: views, TotalCount: len(views)})
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	entityID, ok := h.pathID(w, r, "entityID")
	if !ok {
		return
	}
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	result, err := h.phones.Replace(r.Context(), entityID, req.Input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Every touched id leaves the cache before the response makes the new
	// state observable.
	h.loader.Clear(r.Context(), result.Affected...)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteByEntity(w http.ResponseWriter, r *http.Request) {
	entityID, ok := h.pathID(w, r, "entityID")
	if !ok {
		return
	}
	views, err := h.phones.GetByEntities(r.Context(), []uuid.UUID{entityID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.phones.DeleteByEntity(r.Context(), entityID); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := make([]uuid.UUID, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	h.loader.Clear(r.Context(), ids...)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRebaseTypes(w http.ResponseWriter, r *http.Request) {
	var req rebaseTypesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := h.phones.RebaseTypes(r.Context(), req.Types); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.phones.EntityTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"types": types})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeInvalidInput, "%s must be a uuid", param))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// writeError renders the JSON error envelope. Internal failures keep their
// detail in the log and an opaque message on the wire.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
	})
}
