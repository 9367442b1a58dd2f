// Package api exposes the fleet dashboard HTTP interface: pool configuration,
// earnings estimates, energy cost, profitability snapshots, and network
// status. Handlers are thin; all domain logic lives in the engine packages.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/dirtysats/fleetd/internal/bitcoin"
	"github.com/dirtysats/fleetd/internal/config"
	"github.com/dirtysats/fleetd/internal/database/influx"
	"github.com/dirtysats/fleetd/internal/database/postgres"
	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/internal/pool"
	"github.com/dirtysats/fleetd/internal/profit"
	"github.com/dirtysats/fleetd/pkg/errors"
	"github.com/dirtysats/fleetd/pkg/log"
)

// PoolConfigStore persists resolved pool configurations.
type PoolConfigStore interface {
	Upsert(ctx context.Context, cfg pool.PoolConfig) error
	Get(ctx context.Context, minerIP string, poolIndex int) (*pool.PoolConfig, error)
	List(ctx context.Context) ([]pool.PoolConfig, error)
	Delete(ctx context.Context, minerIP string, poolIndex int) error
}

// RateStore persists the time-of-use rate schedule.
type RateStore interface {
	ReplaceIntervals(ctx context.Context, intervals []energy.RateInterval) error
	LoadSchedule(ctx context.Context, defaultRate float64) (*energy.Schedule, error)
	SaveSeasonal(ctx context.Context, cfg energy.SeasonalConfig) error
}

// SnapshotStore reads the profitability log.
type SnapshotStore interface {
	Recent(ctx context.Context, minerIP string, limit int) ([]postgres.ProfitabilityLogRow, error)
}

// SampleStore reads time-series miner samples.
type SampleStore interface {
	GetPowerReadings(ctx context.Context, minerIP string, start, end time.Time) ([]energy.PowerReading, error)
	GetShareCounterWindow(ctx context.Context, minerIP string, start, end time.Time) (*influx.ShareCounterWindow, error)
	GetEstimateHistory(ctx context.Context, minerIP string, duration time.Duration) ([]influx.EstimatePoint, error)
}

// BlockMarkerStore reports solo block markers and the last block the fleet
// has seen.
type BlockMarkerStore interface {
	SoloBlockSince(ctx context.Context, minerIP string, since time.Time) (bool, string, error)
	GetLastBlock(ctx context.Context) (string, int64, error)
}

// NodeSource reports local Bitcoin Core connectivity for health checks.
type NodeSource interface {
	Ping(ctx context.Context) error
	BlockchainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error)
}

// ChainSource supplies live network parameters.
type ChainSource interface {
	PriceUSD(ctx context.Context) (float64, error)
	Difficulty(ctx context.Context) (float64, error)
	SubsidySats(ctx context.Context) (int64, error)
	Status(ctx context.Context) (*bitcoin.NetworkStatus, error)
}

// Deps bundles everything the server needs.
type Deps struct {
	Registry    *pool.Registry
	Estimator   *earnings.Estimator
	Engine      *energy.Engine
	Calculator  *profit.Calculator
	Chain       ChainSource
	PoolConfigs PoolConfigStore
	Rates       RateStore
	Snapshots   SnapshotStore
	Samples     SampleStore
	Blocks      BlockMarkerStore
	// Node is the local Bitcoin Core client, nil when none is configured.
	Node NodeSource
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg    *config.Config
	logger *log.Logger
	deps   Deps
	http   *http.Server
}

// NewServer creates the dashboard server.
func NewServer(cfg *config.Config, logger *log.Logger, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.WithComponent("api"),
		deps:   deps,
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// routes wires the endpoint table.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/network", s.handleNetworkStatus)

	mux.HandleFunc("GET /api/pools", s.handleListPools)
	mux.HandleFunc("GET /api/pools/{ip}/config", s.handleGetPoolConfig)
	mux.HandleFunc("PUT /api/pools/{ip}/config", s.handlePutPoolConfig)
	mux.HandleFunc("DELETE /api/pools/{ip}/config", s.handleDeletePoolConfig)
	mux.HandleFunc("POST /api/pools/{ip}/redetect", s.handleRedetectPool)

	mux.HandleFunc("GET /api/earnings", s.handleEarnings)
	mux.HandleFunc("GET /api/earnings/history", s.handleEarningsHistory)
	mux.HandleFunc("GET /api/energy/rates", s.handleGetRates)
	mux.HandleFunc("PUT /api/energy/rates", s.handlePutRates)
	mux.HandleFunc("GET /api/energy/cost", s.handleEnergyCost)
	mux.HandleFunc("GET /api/profitability", s.handleProfitability)
	mux.HandleFunc("GET /api/profitability/history", s.handleProfitabilityHistory)

	return s.withLogging(mux)
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "http_listen",
			"HTTP server failed").WithContext("addr", s.http.Addr)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// withLogging logs each request with its duration and status.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON serializes a response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// errorResponse is the JSON error body shape.
type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// writeError maps service error types onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	errType := string(errors.ErrorTypeInternal)

	switch {
	case errors.IsType(err, errors.ErrorTypeValidation):
		status = http.StatusBadRequest
		errType = string(errors.ErrorTypeValidation)
	case errors.IsType(err, errors.ErrorTypeUpstream):
		status = http.StatusBadGateway
		errType = string(errors.ErrorTypeUpstream)
	case errors.IsType(err, errors.ErrorTypeDatabase):
		errType = string(errors.ErrorTypeDatabase)
	}

	if status >= 500 {
		s.logger.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Type: errType})
}

// writeBadRequest reports a caller mistake.
func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: msg,
		Type:  string(errors.ErrorTypeValidation),
	})
}

// writeNotFound reports a missing resource.
func (s *Server) writeNotFound(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusNotFound, errorResponse{Error: msg})
}
