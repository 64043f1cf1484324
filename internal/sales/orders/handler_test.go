package orders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	svc, repo := newFixture(WithIdempotency(&idempotencySpy{}))
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/orgs/{orgID}/orders", h.MountRoutes)
	return r, repo
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestHandlerCreateAndShow(t *testing.T) {
	h, _ := newTestRouter(t)

	status, body := do(t, h, http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"2"}]}`, nil)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.Equal(t, "ORD-202403-0001", data["order_number"])
	require.Equal(t, "20", data["final_amount"])

	status, body = do(t, h, http.MethodGet, "/orgs/1/orders/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["data"].(map[string]any)["items"], 1)

	status, body = do(t, h, http.MethodGet, "/orgs/1/orders?limit=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	list := body["data"].(map[string]any)
	require.Len(t, list["orders"], 1)
}

func TestHandlerFailureEnvelope(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/orgs/1/orders", `{`, http.StatusBadRequest, CodeValidation},
		{"bad json from non-member", http.MethodPost, "/orgs/2/orders", `{`, http.StatusForbidden, CodeUnauthorized},
		{"bad status json from non-member", http.MethodPost, "/orgs/2/orders/1/status", `{"status":`, http.StatusForbidden, CodeUnauthorized},
		{"trailing json", http.MethodPost, "/orgs/1/orders", `{"customer_id":1}{}`, http.StatusBadRequest, CodeValidation},
		{"fine quantity", http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"1.0005"}]}`, http.StatusBadRequest, CodeValidation},
		{"validation", http.MethodPost, "/orgs/1/orders", `{"items":[]}`, http.StatusBadRequest, CodeValidation},
		{"other organisation", http.MethodPost, "/orgs/2/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"1"}]}`, http.StatusForbidden, CodeUnauthorized},
		{"missing product", http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":77,"quantity":"1"}]}`, http.StatusNotFound, CodeNotFound},
		{"unpriced", http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":2,"quantity":"1"}]}`, http.StatusUnprocessableEntity, CodePreconditionFailed},
		{"stock", http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"6"}]}`, http.StatusConflict, CodeInsufficientStock},
		{"discount", http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"1"}],"discount":"10.01"}`, http.StatusUnprocessableEntity, CodeInvalidDiscount},
		{"unknown order", http.MethodGet, "/orgs/1/orders/404", "", http.StatusNotFound, CodeNotFound},
		{"bad id", http.MethodGet, "/orgs/1/orders/abc", "", http.StatusBadRequest, CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, h, tc.method, tc.path, tc.body, nil)
			require.Equal(t, tc.status, status)
			require.Equal(t, false, body["success"])
			require.Equal(t, tc.code, body["code"])
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestHandlerRejectsOversizedBody(t *testing.T) {
	h, repo := newTestRouter(t)

	notes := strings.Repeat("n", int(httpx.MaxBodyBytes))
	status, body := do(t, h, http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"1"}],"notes":"`+notes+`"}`, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, CodeValidation, body["code"])
	require.Contains(t, body["details"], "body")
	require.Empty(t, repo.orders)
}

func TestHandlerInsufficientStockDetails(t *testing.T) {
	h, _ := newTestRouter(t)

	_, body := do(t, h, http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"6"}]}`, nil)
	details := body["details"].(map[string]any)
	require.Equal(t, "P1", details["product"])
	require.Equal(t, "5", details["available"])
	require.Equal(t, "6", details["requested"])
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	h, repo := newTestRouter(t)
	payload := `{"customer_id":1,"items":[{"product_id":3,"quantity":"1"}]}`
	header := map[string]string{IdempotencyHeader: "req-1"}

	status, _ := do(t, h, http.MethodPost, "/orgs/1/orders", payload, header)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, h, http.MethodPost, "/orgs/1/orders", payload, header)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, CodeDuplicate, body["code"])
	require.Len(t, repo.orders, 1)
}

func TestHandlerUpdateStatus(t *testing.T) {
	h, _ := newTestRouter(t)

	status, _ := do(t, h, http.MethodPost, "/orgs/1/orders", `{"customer_id":1,"items":[{"product_id":1,"quantity":"1"}]}`, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, h, http.MethodPost, "/orgs/1/orders/1/status", `{"status":"CANCELLED"}`, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "CANCELLED", body["data"].(map[string]any)["status"])

	status, body = do(t, h, http.MethodPost, "/orgs/1/orders/1/status", `{"status":"PENDING"}`, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, CodeInvalidTransition, body["code"])
	details := body["details"].(map[string]any)
	require.Equal(t, "CANCELLED", details["from"])
	require.Equal(t, "PENDING", details["to"])
}
