package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/chatscai10/friedg-inventory/internal/platform/httpx"
	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Post("/adjustments", h.handleCreateAdjustment)
		r.Put("/stock-levels", h.handleSeedLevel)
	})
	r.Get("/adjustments", h.handleListAdjustments)
	r.Get("/stock-levels", h.handleListLevels)
	r.Get("/stock-levels/{itemID}/{storeID}", h.handleGetLevel)
	r.Get("/stock-levels/{itemID}/{storeID}/reconcile", h.handleReconcile)
}

type adjustmentRequest struct {
	ItemID            string    `json:"itemId"`
	StoreID           string    `json:"storeId"`
	Type              string    `json:"adjustmentType"`
	Quantity          float64   `json:"quantityAdjusted"`
	Reason            string    `json:"reason"`
	AdjustmentDate    time.Time `json:"adjustmentDate"`
	TransferToStoreID string    `json:"transferToStoreId"`
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}

	ident, _ := shared.IdentityFromContext(r.Context())
	if req.StoreID != "" && !ident.CanAccess(req.StoreID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: req.StoreID})
		return
	}
	if req.TransferToStoreID != "" && !ident.CanAccess(req.TransferToStoreID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: req.TransferToStoreID})
		return
	}

	input := AdjustmentInput{
		ItemID:            req.ItemID,
		StoreID:           req.StoreID,
		Type:              AdjustmentType(req.Type),
		Quantity:          req.Quantity,
		Reason:            req.Reason,
		AdjustmentDate:    req.AdjustmentDate,
		TransferToStoreID: req.TransferToStoreID,
		OperatorID:        ident.OperatorID,
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	}
	result, err := h.engine.CreateAdjustment(r.Context(), input)
	if err != nil {
		h.logger.Error("create adjustment",
			slog.Any("error", err),
			slog.String("item_id", req.ItemID),
			slog.String("store_id", req.StoreID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type seedRequest struct {
	ItemID    string   `json:"itemId"`
	StoreID   string   `json:"storeId"`
	Quantity  float64  `json:"quantity"`
	Threshold *float64 `json:"threshold"`
	Reason    string   `json:"reason"`
}

func (h *Handler) handleSeedLevel(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}

	ident, _ := shared.IdentityFromContext(r.Context())
	if ident.Role != shared.RoleAdmin {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: req.StoreID})
		return
	}

	result, err := h.engine.SeedLevel(r.Context(), SeedInput{
		ItemID:     req.ItemID,
		StoreID:    req.StoreID,
		Quantity:   req.Quantity,
		Threshold:  req.Threshold,
		Reason:     req.Reason,
		OperatorID: ident.OperatorID,
	})
	if err != nil {
		h.logger.Error("seed stock level",
			slog.Any("error", err),
			slog.String("item_id", req.ItemID),
			slog.String("store_id", req.StoreID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type listLevelsResponse struct {
	Levels     []LevelView       `json:"levels"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleListLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LevelFilter{
		StoreID:  q.Get("storeId"),
		Category: q.Get("category"),
		Name:     q.Get("name"),
	}
	var vErr error
	if filter.LowStock, vErr = parseBoolParam(q.Get("lowStock"), "lowStock"); vErr != nil {
		httpx.RespondError(w, vErr)
		return
	}
	if filter.IsActive, vErr = parseBoolParam(q.Get("isActive"), "isActive"); vErr != nil {
		httpx.RespondError(w, vErr)
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	ident, _ := shared.IdentityFromContext(r.Context())
	if filter.StoreID != "" && !ident.CanAccess(filter.StoreID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: filter.StoreID})
		return
	}

	levels, total, err := h.engine.ListLevels(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock levels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listLevelsResponse{
		Levels:     levels,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

type listAdjustmentsResponse struct {
	Adjustments []StockAdjustment `json:"adjustments"`
	Pagination  shared.Pagination `json:"pagination"`
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AdjustmentFilter{
		ItemID:     q.Get("itemId"),
		StoreID:    q.Get("storeId"),
		Type:       AdjustmentType(q.Get("adjustmentType")),
		OperatorID: q.Get("operatorId"),
	}
	var err error
	if filter.StartDate, err = parseDateParam(q.Get("startDate")); err != nil {
		vErr := shared.NewValidationError()
		vErr.Add("startDate", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
		httpx.RespondError(w, vErr)
		return
	}
	if filter.EndDate, err = parseDateParam(q.Get("endDate")); err != nil {
		vErr := shared.NewValidationError()
		vErr.Add("endDate", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
		httpx.RespondError(w, vErr)
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	ident, _ := shared.IdentityFromContext(r.Context())
	if filter.StoreID != "" && !ident.CanAccess(filter.StoreID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: filter.StoreID})
		return
	}

	entries, total, err := h.engine.ListAdjustments(r.Context(), filter)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listAdjustmentsResponse{
		Adjustments: entries,
		Pagination:  shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	storeID := chi.URLParam(r, "storeID")

	ident, _ := shared.IdentityFromContext(r.Context())
	if !ident.CanAccess(storeID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: storeID})
		return
	}

	level, err := h.engine.GetLevel(r.Context(), itemID, storeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	storeID := chi.URLParam(r, "storeID")

	ident, _ := shared.IdentityFromContext(r.Context())
	if !ident.CanAccess(storeID) {
		httpx.RespondError(w, &shared.ForbiddenError{OperatorID: ident.OperatorID, StoreID: storeID})
		return
	}

	report, err := h.engine.Reconcile(r.Context(), itemID, storeID)
	if err != nil {
		var inv *shared.InvariantViolationError
		if errors.As(err, &inv) {
			h.logger.Error("stock level diverged from ledger",
				slog.String("item_id", itemID),
				slog.String("store_id", storeID),
				slog.Float64("level_quantity", inv.LevelQty),
				slog.Float64("ledger_sum", inv.LedgerSum))
			httpx.JSON(w, http.StatusOK, report)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func parseBoolParam(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		vErr := shared.NewValidationError()
		vErr.Add(name, "must be a boolean")
		return nil, vErr
	}
	return &v, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
