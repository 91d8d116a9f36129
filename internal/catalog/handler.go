package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chatscai10/friedg-inventory/internal/platform/httpx"
	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// Handler wires HTTP endpoints for catalog items.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleList)
	r.Get("/items/{itemID}", h.handleGet)
	r.Post("/items", h.handleCreate)
	r.Put("/items/{itemID}", h.handleUpdate)
}

type listItemsResponse struct {
	Items      []Item            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		TenantID: q.Get("tenantId"),
		Category: q.Get("category"),
		Search:   q.Get("name"),
	}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			vErr := shared.NewValidationError()
			vErr.Add("isActive", "must be a boolean")
			httpx.RespondError(w, vErr)
			return
		}
		filters.IsActive = &active
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listItemsResponse{
		Items:      items,
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var item Item
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	ident, _ := shared.IdentityFromContext(r.Context())
	created, err := h.service.Create(r.Context(), item, ident.OperatorID)
	if err != nil {
		h.logger.Error("create item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var item Item
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	ident, _ := shared.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "itemID")
	if err := h.service.Update(r.Context(), id, item, ident.OperatorID); err != nil {
		h.logger.Error("update item", slog.Any("error", err), slog.String("item_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
