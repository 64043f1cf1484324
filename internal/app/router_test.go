package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/sales/orders"
	"github.com/stockroom/stockroom/jobs"
)

func TestRouterOpsAndBearerAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("router-test-secret-0123", "stockroom", time.Hour)
	router := NewRouter(RouterParams{
		Logger:     logger,
		Config:     &Config{AppEnv: "production", RateLimitPerMin: 1000},
		Metrics:    observability.NewMetrics(),
		Tokens:     tokens,
		JobHandler: jobs.NewHandler(nil, logger),
	})

	do := func(path, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	require.Equal(t, http.StatusOK, do("/metrics", "").Code)

	require.Equal(t, http.StatusUnauthorized, do("/jobs/health", "").Code)
	require.Equal(t, http.StatusUnauthorized, do("/jobs/health", "not-a-token").Code)

	token, err := tokens.Issue(7)
	require.NoError(t, err)
	rec = do("/jobs/health", token.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rec.Body.String())
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, int64, ...rbac.Role) (rbac.Actor, error) {
	return rbac.Actor{}, rbac.ErrUnauthorized
}

func TestRouterOrderRoutesAnswerInEnvelope(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("router-test-secret-0123", "stockroom", time.Hour)
	svc := orders.NewService(nil, denyAll{}, logger, orders.ServiceConfig{})
	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        &Config{AppEnv: "production", RateLimitPerMin: 1000},
		Tokens:        tokens,
		OrdersHandler: orders.NewHandler(svc, logger),
		JobHandler:    jobs.NewHandler(nil, logger),
	})

	post := func(path, bearer, body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	order := `{"customer_id":1,"items":[{"product_id":1,"quantity":"1"}]}`
	for _, bearer := range []string{"", "not-a-token"} {
		rec, body := post("/orgs/1/orders", bearer, order)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.Contains(t, body, "success")
		require.Equal(t, false, body["success"])
		require.Equal(t, orders.CodeUnauthorized, body["code"])
		require.NotEmpty(t, body["error"])
	}

	token, err := tokens.Issue(7)
	require.NoError(t, err)
	rec, body := post("/orgs/1/orders", token.AccessToken, `{`)
	require.Equal(t, http.StatusForbidden, rec.Code, "non-members learn nothing about the body")
	require.Equal(t, orders.CodeUnauthorized, body["code"])

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	plain := httptest.NewRecorder()
	router.ServeHTTP(plain, req)
	require.Equal(t, http.StatusUnauthorized, plain.Code)
	require.Equal(t, "application/problem+json", plain.Header().Get("Content-Type"))
}
