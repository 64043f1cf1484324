package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/platform/validate"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/shared"
)

// IdempotencyHeader carries the optional client request key on order creation.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.rejectBody(w, r, orgID, rbac.Writers, err)
		return
	}
	order, err := h.service.Create(r.Context(), orgID, req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, Success(order))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, validate.Field("id", "is invalid"))
		return
	}
	order, err := h.service.Get(r.Context(), orgID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, Success(order))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := ListOrdersRequest{OrganisationID: orgID}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			h.fail(w, validate.Field("customer_id", "is invalid"))
			return
		}
		req.CustomerID = &id
	}

	orders, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, Success(map[string]any{
		"orders":     orders,
		"pagination": shared.NewPagination(req.Limit, req.Offset, total),
	}))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, validate.Field("id", "is invalid"))
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.rejectBody(w, r, orgID, rbac.Writers, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), orgID, id, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, Success(order))
}

func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, validate.Field("organisation_id", "is invalid"))
		return 0, false
	}
	return id, true
}

// RejectUnauthenticated answers a request that carries no usable bearer token with a
// 401 failure envelope.
func RejectUnauthenticated(w http.ResponseWriter, _ *http.Request, reason string) {
	_, result := Failure(fmt.Errorf("%w: %s", ErrUnauthorized, reason))
	httpx.JSON(w, http.StatusUnauthorized, result)
}

// rejectBody answers an undecodable body. Callers outside the organisation learn only
// that they are unauthorized.
func (h *Handler) rejectBody(w http.ResponseWriter, r *http.Request, orgID int64, roles []rbac.Role, decodeErr error) {
	if err := h.service.Authorize(r.Context(), orgID, roles...); err != nil {
		h.fail(w, err)
		return
	}
	if errors.Is(decodeErr, httpx.ErrBodyTooLarge) {
		h.fail(w, validate.Field("body", fmt.Sprintf("must not exceed %d bytes", httpx.MaxBodyBytes)))
		return
	}
	h.fail(w, validate.Field("body", "must be valid JSON"))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, result := Failure(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("order request failed", slog.Any("error", err))
	}
	httpx.JSON(w, status, result)
}
