package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail bool
	}{
		{fmt.Errorf("product 3: %w", ErrNotFound), http.StatusNotFound, true},
		{fmt.Errorf("sku: %w", ErrDuplicate), http.StatusConflict, true},
		{ErrValidation, http.StatusBadRequest, true},
		{ErrBodyTooLarge, http.StatusRequestEntityTooLarge, true},
		{ErrUnauthorized, http.StatusUnauthorized, true},
		{ErrUnprocessable, http.StatusUnprocessableEntity, true},
		{errors.New("pg: connection reset"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)

		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, tc.status, body.Status)
		if tc.detail {
			require.Equal(t, tc.err.Error(), body.Detail)
		} else {
			require.Empty(t, body.Detail)
		}
	}
}

func TestProblemUsesProblemContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusBadRequest, "Bad Request", "invalid json body")
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	decode := func(body string) (payload, error) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return p, DecodeJSON(req, &p)
	}

	p, err := decode(`{"name":"widget"}` + "\n")
	require.NoError(t, err)
	require.Equal(t, "widget", p.Name)

	_, err = decode(`{"name":`)
	require.ErrorIs(t, err, ErrValidation)

	_, err = decode(`{"name":"a"}{"name":"b"}`)
	require.ErrorIs(t, err, ErrValidation)

	_, err = decode(`{"name":"` + strings.Repeat("x", int(MaxBodyBytes)) + `"}`)
	require.ErrorIs(t, err, ErrBodyTooLarge)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(err))
}
