package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockroom/stockroom/internal/shared"
)

type stubRepo struct {
	user *User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newTestService(t *testing.T, active bool) (*Service, *Tokens) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens := NewTokens("0123456789abcdef", "stockroom-test", time.Hour)
	repo := &stubRepo{user: &User{ID: 9, Email: "staff@example.com", PasswordHash: string(hash), IsActive: active}}
	return NewService(repo, tokens), tokens
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, tokens := newTestService(t, true)

	token, err := svc.Login(context.Background(), "staff@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "Bearer", token.TokenType)

	userID, err := tokens.Verify(token.AccessToken)
	require.NoError(t, err)
	require.EqualValues(t, 9, userID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t, true)
	_, err := svc.Login(context.Background(), "staff@example.com", "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	inactive, _ := newTestService(t, false)
	_, err = inactive.Login(context.Background(), "staff@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	tokens := NewTokens("0123456789abcdef", "stockroom-test", time.Minute)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	token, err := tokens.Issue(3)
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Verify(token.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokens("another-secret-value", "stockroom-test", time.Hour)
	foreign, err := other.Issue(3)
	require.NoError(t, err)
	_, err = NewTokens("0123456789abcdef", "stockroom-test", time.Hour).Verify(foreign.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMiddleware(t *testing.T) {
	tokens := NewTokens("0123456789abcdef", "stockroom-test", time.Hour)
	token, err := tokens.Issue(5)
	require.NoError(t, err)

	var seen int64
	handler := Authenticate(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.EqualValues(t, 5, seen)
}

func TestAuthenticateWithCustomRejection(t *testing.T) {
	tokens := NewTokens("0123456789abcdef", "stockroom-test", time.Hour)
	var reasons []string
	handler := AuthenticateWith(tokens, nil, func(w http.ResponseWriter, _ *http.Request, reason string) {
		reasons = append(reasons, reason)
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{"", "Bearer ", "Bearer garbage", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusTeapot, rec.Code, header)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	}
	require.Equal(t, []string{"bearer token required", "bearer token required", "invalid token", "bearer token required"}, reasons)
}

func TestIssueTokenHandler(t *testing.T) {
	svc, _ := newTestService(t, true)
	h := NewHandler(nil, svc)
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"email":"staff@example.com","password":"correct-horse"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "access_token")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"email":"staff@example.com","password":"nope-nope-nope"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"email":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
