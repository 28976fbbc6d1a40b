// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package server wires the reconciliation service into an HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"time"

	"github.com/VuDube/suitewasteos-18dec/fieldsync"
	"github.com/VuDube/suitewasteos-18dec/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig holds configuration for the server
type ServerConfig struct {
	DatabaseURL     string
	JWTSecret       string
	MaxBatchSize    int
	LogRequests     bool
	LogStageTimings bool
	Logger          *slog.Logger
}

// ServerComponents holds the initialized server components
type ServerComponents struct {
	Pool    *pgxpool.Pool
	Store   *fieldsync.PostgresStore
	Service *fieldsync.ReconcileService
	JWTAuth *fieldsync.JWTAuth
	Handler http.Handler
	Logger  *slog.Logger
	cancel  context.CancelFunc
}

// TestServer represents a running test server instance
type TestServer struct {
	*ServerComponents
	HTTPServer *httptest.Server
}

// SetupServer connects to PostgreSQL, prepares the record schema and builds the handler.
// This is the shared logic used by the serve command and tests.
func SetupServer(cfg *ServerConfig) (*ServerComponents, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	databaseURL := cfg.DatabaseURL
	if databaseURL == "" {
		databaseURL = config.Default().DatabaseURL
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	// each record of a batch may hold a connection
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cancel()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store, err := fieldsync.NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		cancel()
		return nil, err
	}

	serviceConfig := fieldsync.DefaultServiceConfig()
	if cfg.MaxBatchSize > 0 {
		serviceConfig.MaxBatchSize = cfg.MaxBatchSize
	}
	serviceConfig.LogStageTimings = cfg.LogStageTimings
	service := fieldsync.NewReconcileService(store, serviceConfig, logger)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = config.DefaultJWTSecret
	}
	if jwtSecret == config.DefaultJWTSecret {
		logger.Warn("Using default JWT secret - change in production!")
	}
	jwtAuth := fieldsync.NewJWTAuth(jwtSecret, logger)

	return &ServerComponents{
		Pool:    pool,
		Store:   store,
		Service: service,
		JWTAuth: jwtAuth,
		Handler: NewHandler(service, jwtAuth, cfg.LogRequests, logger),
		Logger:  logger,
		cancel:  cancel,
	}, nil
}

// NewHandler mounts health, dev sign-in and the authenticated record API
func NewHandler(service *fieldsync.ReconcileService, jwtAuth *fieldsync.JWTAuth, logRequests bool, logger *slog.Logger) http.Handler {
	syncHandlers := fieldsync.NewHTTPSyncHandlers(service, jwtAuth, logger)

	api := http.NewServeMux()
	syncHandlers.Register(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HandleHealth)
	mux.HandleFunc("POST /dev/signin", HandleDevSignin(jwtAuth, logger))
	mux.Handle("/api/", LoggingMiddleware(logRequests, jwtAuth.Middleware(api), logger))
	return mux
}

// HandleDevSignin returns a JWT for the posted operator/device; any password is accepted
func HandleDevSignin(jwtAuth *fieldsync.JWTAuth, logger *slog.Logger) http.HandlerFunc {
	type signinReq struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
		Device   string `json:"device"`
	}
	type signinResp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
		Operator  string `json:"operator"`
		Device    string `json:"device"`
	}
	const ttl = 12 * time.Hour

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var req signinReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(fieldsync.ErrorResponse{Error: fieldsync.CodeInvalidRequest, Message: "invalid JSON"})
			return
		}
		if req.Operator == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(fieldsync.ErrorResponse{Error: fieldsync.CodeInvalidRequest, Message: "operator required"})
			return
		}
		if req.Device == "" {
			req.Device = "device-" + strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		tok, err := jwtAuth.GenerateToken(req.Operator, req.Device, ttl)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(fieldsync.ErrorResponse{Error: "token_error", Message: err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(signinResp{Token: tok, ExpiresIn: int64(ttl.Seconds()), Operator: req.Operator, Device: req.Device})
		logger.Info("Issued development token", "operator", req.Operator, "device", req.Device)
	}
}

// Close shuts down the server components and cleans up resources
func (sc *ServerComponents) Close() {
	if sc.Service != nil {
		_ = sc.Service.Close()
	}
	if sc.Pool != nil {
		sc.Pool.Close()
	}
	if sc.cancel != nil {
		sc.cancel()
	}
}

// NewTestServer creates a new test server instance using the shared server setup
func NewTestServer(cfg *ServerConfig) (*TestServer, error) {
	components, err := SetupServer(cfg)
	if err != nil {
		return nil, err
	}
	return &TestServer{
		ServerComponents: components,
		HTTPServer:       httptest.NewServer(components.Handler),
	}, nil
}

// Close shuts down the test server and cleans up resources
func (ts *TestServer) Close() {
	if ts.HTTPServer != nil {
		ts.HTTPServer.Close()
	}
	ts.ServerComponents.Close()
}

// URL returns the base URL of the test server
func (ts *TestServer) URL() string {
	return ts.HTTPServer.URL
}

// GenerateToken generates a JWT token for testing
func (ts *TestServer) GenerateToken(operatorID, deviceID string, duration time.Duration) (string, error) {
	return ts.JWTAuth.GenerateToken(operatorID, deviceID, duration)
}

// HandleHealth provides a simple health check endpoint
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "healthy", "service": "fieldsync"}`))
}
