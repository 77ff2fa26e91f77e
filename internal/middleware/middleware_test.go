package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard, logger.LevelError)
}

func TestChainSetsRequestIDAndEnvelope(t *testing.T) {
	h := Chain(func(w http.ResponseWriter, r *http.Request) {
		WriteAPISuccess(w, r, map[string]int{"items": 2})
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/inventory", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get("X-Request-ID")
	assert.Len(t, id, 16)

	var resp struct {
		Success   bool           `json:"success"`
		Data      map[string]int `json:"data"`
		RequestID string         `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Data["items"])
	assert.Equal(t, id, resp.RequestID)
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := RequestID(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", GetRequestID(r.Context()))
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))
}

func TestErrorHandlingRecoversPanic(t *testing.T) {
	h := Chain(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "internal_error", apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestParseJSONRequest(t *testing.T) {
	var body struct {
		Question string `json:"question"`
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"What is low?"}`))
	req.Header.Set("Content-Type", "application/json")
	require.NoError(t, ParseJSONRequest(httptest.NewRecorder(), req, &body))
	assert.Equal(t, "What is low?", body.Question)

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"x"}`))
	assert.Error(t, ParseJSONRequest(httptest.NewRecorder(), req, &body), "wrong content type")

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"x","extra":1}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Error(t, ParseJSONRequest(httptest.NewRecorder(), req, &body), "unknown field")

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"`+strings.Repeat("a", maxJSONBody)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	err := ParseJSONRequest(httptest.NewRecorder(), req, &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
