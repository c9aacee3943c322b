package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Same(t, GetLogger(), FromContext(context.Background()))

	scoped := zap.NewNop().With(zap.String("run", "r1"))
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
}

func TestInitLogger_Development(t *testing.T) {
	prev := log
	t.Cleanup(func() { log = prev })

	require.NoError(t, InitLogger(&LogConfig{Level: "debug", Environment: "development", ServiceName: "test"}))
	assert.True(t, GetLogger().Core().Enabled(zap.DebugLevel))
}

func TestMiddleware_LogsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := log
	log = zap.New(core)
	t.Cleanup(func() { log = prev })

	var inner *zap.Logger
	h := middleware.RequestID(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotNil(t, inner)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HTTP Request", entry.Message)
	assert.EqualValues(t, http.StatusTeapot, entry.ContextMap()["status"])
	assert.Equal(t, "/health", entry.ContextMap()["path"])
	assert.NotEmpty(t, entry.ContextMap()["request_id"])
}
