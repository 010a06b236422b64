package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	application, err := New(context.Background(), Config{
		Port:     "0",
		GRPCPort: ":0",
		DBDriver: "sqlite3",
		DBURL:    ":memory:",
		LogLevel: "error",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.DB().Close() })
	return application
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	_, err := New(context.Background(), Config{DBDriver: "sqlite3", DBURL: ":memory:", LogLevel: "loud"})
	require.Error(t, err)
}

func TestHTTPHandlerRequestID(t *testing.T) {
	application := newTestApp(t)
	var seen string
	application.Mux().HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		seen = application.RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := application.httpHandler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, recorder.Header().Get(requestIDHeader))

	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	request.Header.Set(requestIDHeader, "req-1")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	require.Equal(t, "req-1", seen)
	require.Equal(t, "req-1", recorder.Header().Get(requestIDHeader))
}

func TestHTTPHandlerAllowsAnyOrigin(t *testing.T) {
	application := newTestApp(t)
	application.Mux().HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {})

	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	request.Header.Set("Origin", "https://game.example.org")
	recorder := httptest.NewRecorder()
	application.httpHandler().ServeHTTP(recorder, request)
	require.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDFromGRPCMetadata(t *testing.T) {
	application := newTestApp(t)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "grpc-1"))
	require.Equal(t, "grpc-1", application.RequestID(ctx))
	require.Empty(t, application.RequestID(context.Background()))
}

func TestErrorReturnsGivenError(t *testing.T) {
	application := newTestApp(t)
	application.logger = zap.NewNop()

	err := errors.New("store is down")
	require.Same(t, err, application.Error(context.Background(), err, http.StatusInternalServerError))
	require.Nil(t, application.Error(context.Background(), nil, http.StatusBadRequest))
}

func TestSetServing(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	application.SetServing(false)
	response, err := application.health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, response.Status)

	application.SetServing(true)
	response, err = application.health.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, response.Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	application, err := New(ctx, Config{
		Port:     ":0",
		GRPCPort: ":0",
		DBDriver: "sqlite3",
		DBURL:    ":memory:",
		LogLevel: "error",
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- application.Run() }()
	cancel()
	require.NoError(t, <-done)

	// shutdown always goes through cleanup
	require.ErrorContains(t, application.DB().Ping(), "database is closed")
}

func TestRunReturnsJobError(t *testing.T) {
	application := newTestApp(t)
	application.jobs = nil
	application.AddBackgroundJob(func(ctx context.Context) error { return nil })
	application.AddBackgroundJob(func(ctx context.Context) error { return errors.New("listener failed") })

	require.EqualError(t, application.Run(), "listener failed")
}
