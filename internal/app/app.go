package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

type backgroundJob func(context.Context) error

type App interface {
	Logger() *zap.Logger
	DB() *sqlx.DB
	Config() Config
	Mux() *http.ServeMux
	AddBackgroundJob(backgroundJob)
	SetServing(serving bool)
	Run() error
	Error(ctx context.Context, err error, status int, fields ...zap.Field) error

	RequestID(ctx context.Context) string
}

func New(ctx context.Context, cfg Config) (*app, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "could not create logger")
	}
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}
	// sqlx.Open does not dial; the store is allowed to be down at start
	db, err := sqlx.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s database", cfg.DBDriver)
	}
	application := &app{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		db:     db,
		health: health.NewServer(),
		mux:    http.NewServeMux(),
	}
	application.registerGRPCServer()
	application.registerHTTPServer()
	return application, nil
}

type app struct {
	ctx    context.Context
	logger *zap.Logger
	cfg    Config
	db     *sqlx.DB
	grpc   *grpc.Server
	health *health.Server
	mux    *http.ServeMux
	jobs   []backgroundJob
}

func (app *app) Run() error {
	app.Logger().Info("started application")

	var wg sync.WaitGroup
	errChannel := make(chan error, len(app.jobs))

	for _, job := range app.jobs {
		wg.Add(1)
		go func(job backgroundJob) {
			defer wg.Done()
			errChannel <- job(app.ctx)
		}(job)
	}

	for {
		select {
		case <-app.ctx.Done():
			wg.Wait()
			close(errChannel)
			var errs []error
			for err := range errChannel {
				errs = append(errs, err)
			}
			errs = append(errs, errors.Wrap(app.db.Close(), "could not close database"))
			_ = app.logger.Sync()
			return multierr.Combine(errs...)
		case err := <-errChannel:
			// stop jobs finish with nil as soon as ctx is done
			if err != nil {
				return err
			}
		}
	}
}

// Error logs a failed request: 5xx at error level, everything else as a warning.
// The error is returned unchanged so callers can render it.
func (app *app) Error(ctx context.Context, err error, status int, fields ...zap.Field) error {
	if err == nil {
		return nil
	}

	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if requestID := app.RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	message := fmt.Sprintf("%d %s", status, http.StatusText(status))

	if status >= http.StatusInternalServerError {
		app.Logger().Error(message, fields...)
	} else {
		app.Logger().Warn(message, fields...)
	}
	return err
}

func (app *app) AddBackgroundJob(job backgroundJob) {
	app.jobs = append(app.jobs, job)
}

func (app *app) Logger() *zap.Logger {
	return app.logger
}

func (app *app) DB() *sqlx.DB {
	return app.db
}

func (app *app) Config() Config {
	return app.cfg
}

func (app *app) Mux() *http.ServeMux {
	return app.mux
}

// SetServing flips the gRPC health status reported for the whole server.
func (app *app) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	app.health.SetServingStatus("", status)
}

func (app *app) RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	if headers, ok := metadata.FromIncomingContext(ctx); ok {
		if header, ok := headers["x-request-id"]; ok && len(header) > 0 {
			return header[0]
		}
	}
	return ""
}

func (app *app) registerGRPCServer() {
	app.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(grpcUnaryServerInterceptor))
	healthpb.RegisterHealthServer(app.grpc, app.health)
	app.AddBackgroundJob(func(ctx context.Context) error {
		listener, listenErr := net.Listen("tcp", app.cfg.GRPCPort)
		if listenErr != nil {
			return errors.Wrap(listenErr, "could not open GRPC port to serve")
		}
		app.Logger().Info("starting GRPC server", zap.String("addr", app.cfg.GRPCPort))
		if err := app.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return errors.Wrap(err, "GRPC server error")
		}
		return nil
	})
	app.AddBackgroundJob(func(ctx context.Context) error {
		<-ctx.Done()
		app.health.Shutdown()
		app.grpc.GracefulStop()
		return nil
	})
}

func (app *app) registerHTTPServer() {
	app.mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{
		Handler:           app.httpHandler(),
		Addr:              app.cfg.HTTPAddr(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.AddBackgroundJob(func(ctx context.Context) error {
		app.Logger().Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "HTTP server error")
		}
		return nil
	})
	app.AddBackgroundJob(func(ctx context.Context) error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})
}

// httpHandler wraps the mux with CORS, request IDs, access logs and metrics.
func (app *app) httpHandler() http.Handler {
	return cors.AllowAll().Handler(withRequestID(app.observe(app.mux)))
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func grpcUnaryServerInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var requestID string
	if headers, ok := metadata.FromIncomingContext(ctx); ok {
		if header, ok := headers["x-request-id"]; ok && len(header) > 0 {
			requestID = header[0]
		}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = metadata.NewOutgoingContext(ctx, metadata.Pairs("x-request-id", requestID))
	ctx = context.WithValue(ctx, requestIDContextKey{}, requestID)
	return handler(ctx, req)
}
