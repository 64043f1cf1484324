package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/masterdata/shared"
	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/rbac"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers catalog endpoints under an organisation-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.Readers...)).Get("/", h.List)
	r.With(h.rbac.Require(rbac.Readers...)).Get("/{id}", h.Show)
	r.With(h.rbac.Require(rbac.Admins...)).Post("/", h.Create)
	r.With(h.rbac.Require(rbac.Admins...)).Put("/{id}/price", h.UpdatePrice)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	filters := shared.FiltersFromQuery(actor.OrganisationID, r.URL.Query())

	products, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list products failed", err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products": products,
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	product, err := h.service.Get(r.Context(), actor.OrganisationID, id)
	if err != nil {
		h.fail(w, "get product failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), actor.OrganisationID, input)
	if err != nil {
		h.fail(w, "create product failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input PriceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	product, err := h.service.UpdatePrice(r.Context(), actor.OrganisationID, id, input)
	if err != nil {
		h.fail(w, "update product price failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
