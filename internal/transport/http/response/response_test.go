package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmesh/ebookstore/internal/domain"
)

func TestErr_AppErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.ErrValidation("bad"), http.StatusBadRequest, "validation_error"},
		{"invalid_discount", domain.ErrInvalidDiscount("bad pct"), http.StatusBadRequest, "invalid_discount"},
		{"not_found", domain.ErrNotFound("missing"), http.StatusNotFound, "not_found"},
		{"forbidden", domain.ErrForbidden("nope"), http.StatusForbidden, "forbidden"},
		{"invalid_state", domain.ErrInvalidState("cannot"), http.StatusConflict, "invalid_state"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			Err(w, r, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error.Code)
		})
	}
}

func TestErr_UnknownErrorIs500(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Err(w, r, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Error.Code)
	assert.Equal(t, "internal error", body.Error.Message, "details stay in the logs")
}

func TestData_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	Data(w, http.StatusOK, map[string]string{"k": "v"})

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"k":"v"}}`, w.Body.String())
}
