package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/rbac"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Readers...))
		r.Get("/products/{id}", h.handleStockPosition)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Writers...))
		r.Post("/receipts", h.handleReceipt)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Admins...))
		r.Post("/adjustments", h.handleAdjustment)
	})
}

type stockPosition struct {
	Availability
	Ledger []StockTransaction `json:"ledger"`
}

func (h *Handler) handleStockPosition(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	avail, err := h.service.Availability(r.Context(), actor.OrganisationID, productID)
	if err != nil {
		h.fail(w, "stock availability failed", err)
		return
	}
	ledger, err := h.service.Ledger(r.Context(), LedgerFilter{OrganisationID: actor.OrganisationID, ProductID: productID, Limit: limit})
	if err != nil {
		h.fail(w, "stock ledger failed", err)
		return
	}
	if ledger == nil {
		ledger = []StockTransaction{}
	}
	httpx.JSON(w, http.StatusOK, stockPosition{Availability: avail, Ledger: ledger})
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	receipt, err := h.service.ReceiveStock(r.Context(), actor.OrganisationID, actor.UserID, input)
	if err != nil {
		h.fail(w, "receive stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	entry, err := h.service.PostAdjustment(r.Context(), actor.OrganisationID, actor.UserID, input)
	if err != nil {
		h.fail(w, "post adjustment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
