package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteList(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteList(rec, "/v1/players", []map[string]any{{"object": "player"}}, true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeJSON(t, rec)
	assert.Equal(t, "list", body["object"])
	assert.Equal(t, "/v1/players", body["url"])
	assert.Equal(t, true, body["has_more"])
	assert.Len(t, body["data"], 1)
}

func TestWriteResource(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteResource(rec, http.StatusCreated, map[string]any{"object": "routine", "name": "Wake up"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "routine", body["object"])
	assert.Equal(t, "Wake up", body["name"])
}

func TestWriteAction(t *testing.T) {
	rec := httptest.NewRecorder()
	err := WriteAction(rec, http.StatusOK, map[string]any{"object": "player_action", "action": "play"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "play", decodeJSON(t, rec)["action"])
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/players/7", nil)

	appErr := apperrors.NewAppError(apperrors.ErrorCodePlayerNotFound, "Player not found", 404, map[string]any{"player_id": 7}, nil)
	WriteError(rec, req, appErr)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	errObj := decodeJSON(t, rec)["error"].(map[string]any)
	assert.Equal(t, "invalid_request_error", errObj["type"])
	assert.Equal(t, "PLAYER_NOT_FOUND", errObj["code"])
	assert.Equal(t, "Player not found", errObj["message"])
	assert.Equal(t, float64(7), errObj["details"].(map[string]any)["player_id"])
}

func TestWriteError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/players", nil)

	WriteError(rec, req, errors.New("database exploded"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	errObj := decodeJSON(t, rec)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
	assert.Equal(t, "Internal server error", errObj["message"], "internal details must not leak")
}

func TestHandler_WritesReturnedError(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewValidationError("level must be 0-100", nil)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/players/1/volume", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := decodeJSON(t, rec)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestHandler_NoErrorWritesNothingExtra(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return WriteResource(w, http.StatusOK, map[string]any{"object": "ok"})
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON(t, rec)["object"])
}

func TestRecovererMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	RecovererMiddleware(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/players", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := decodeJSON(t, rec)["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
}

func TestRecovererMiddleware_PassthroughWithoutPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	RecovererMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
