package api

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/players", nil))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "generated request id should be a UUID")
	assert.Equal(t, seen, rec.Header().Get("x-request-id"))
}

func TestRequestIDMiddleware_KeepsProvidedID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/players", nil)
	req.Header.Set("x-request-id", "client-supplied-id")

	rec := httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", seen)
	assert.Equal(t, "client-supplied-id", rec.Header().Get("x-request-id"))
}

func TestGetRequestID_NilRequest(t *testing.T) {
	assert.Equal(t, "", GetRequestID(nil))
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	assert.Equal(t, "", RequestIDFromContext(nil))

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	RequestLoggerMiddleware(logger)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/players/99", nil))

	line := buf.String()
	assert.Contains(t, line, "GET /v1/players/99 404")
}

func TestRequestLoggerMiddleware_DefaultsStatusToOK(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	// Handler that never calls WriteHeader.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	RequestLoggerMiddleware(logger)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Contains(t, buf.String(), "GET /v1/health 200")
}
