package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogger *zerolog.Logger
	handler := Requests(logger, func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxLogger = zerolog.Ctx(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.NotNil(t, ctxLogger)
	require.NotEqual(t, zerolog.Disabled, ctxLogger.GetLevel())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "GET", entry["method"])
	require.Equal(t, "/healthz", entry["path"])
	require.Equal(t, "203.0.113.7", entry["addr"])
	require.Equal(t, "req-1", entry["request_id"])
	require.EqualValues(t, http.StatusTeapot, entry["status"])
}

func TestRequests_serverErrorLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	handler := Requests(zerolog.New(&buf), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.NotContains(t, entry, "request_id")
}
