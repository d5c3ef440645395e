// backend/src/handlers/middleware_test.go
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fliegerkasse/backend/src/logger"
)

func TestContextualLoggerMiddlewareAttachesRequestID(t *testing.T) {
	logger.InitLogger("error")

	var captured string
	handler := ContextualLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		require.True(t, ok)
		captured = id
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, captured)

	var second string
	handler = ContextualLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second, _ = RequestIDFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, captured, second, "every request gets its own ID")
}

func TestSendInternalErrorEchoesRequestID(t *testing.T) {
	logger.InitLogger("error")

	handler := ContextualLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendInternalError(w, r, "boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "boom", payload["error"])
	assert.NotEmpty(t, payload["request_id"])
}
