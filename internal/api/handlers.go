package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dirtysats/fleetd/internal/bitcoin"
	"github.com/dirtysats/fleetd/internal/database/influx"
	"github.com/dirtysats/fleetd/internal/database/postgres"
	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/internal/pool"
	"github.com/dirtysats/fleetd/internal/profit"
)

// Window query bounds. A dashboard asking for more than 30 days of raw
// samples should use the profitability log instead.
const (
	defaultWindowHours = 24
	maxWindowHours     = 720
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": s.cfg.ServiceName,
		"version": s.cfg.Version,
	}

	if s.deps.Node == nil {
		body["bitcoin_rpc"] = "disabled"
		s.writeJSON(w, http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Node.Ping(ctx); err != nil {
		body["bitcoin_rpc"] = "unreachable"
		s.writeJSON(w, http.StatusOK, body)
		return
	}

	body["bitcoin_rpc"] = "ok"
	if info, err := s.deps.Node.BlockchainInfo(ctx); err == nil {
		body["chain"] = info.Chain
		body["blocks"] = info.Blocks
		body["verification_progress"] = info.VerificationProgress
	}
	s.writeJSON(w, http.StatusOK, body)
}

// networkResponse extends the chain snapshot with the last block the fleet
// services have seen.
type networkResponse struct {
	*bitcoin.NetworkStatus
	LastBlockHash   string `json:"last_block_hash,omitempty"`
	LastBlockHeight int64  `json:"last_block_height,omitempty"`
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Chain.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := networkResponse{NetworkStatus: status}
	if s.deps.Blocks != nil {
		hash, height, err := s.deps.Blocks.GetLastBlock(r.Context())
		if err != nil {
			s.logger.WithError(err).Warn("last block lookup failed")
		} else {
			resp.LastBlockHash = hash
			resp.LastBlockHeight = height
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Pool configuration

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.PoolConfigs.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if configs == nil {
		configs = []pool.PoolConfig{}
	}
	s.writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetPoolConfig(w http.ResponseWriter, r *http.Request) {
	minerIP := r.PathValue("ip")
	poolIndex := queryInt(r, "pool_index", 0)

	stored, err := s.deps.PoolConfigs.Get(r.Context(), minerIP, poolIndex)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// A pool_url lets the dashboard preview a resolution without persisting
	// it, merging any stored user overrides.
	if poolURL := r.URL.Query().Get("pool_url"); poolURL != "" {
		resolved := s.deps.Registry.Resolve(minerIP, poolURL, poolIndex, stored, false)
		s.writeJSON(w, http.StatusOK, resolved)
		return
	}

	if stored == nil {
		s.writeNotFound(w, "no pool configuration for miner")
		return
	}
	s.writeJSON(w, http.StatusOK, stored)
}

// poolConfigUpdate is the PUT body for a user override.
type poolConfigUpdate struct {
	PoolIndex      int     `json:"pool_index"`
	PoolName       string  `json:"pool_name"`
	PoolURL        string  `json:"pool_url"`
	FeePercent     float64 `json:"fee_percent"`
	PayoutType     string  `json:"payout_type"`
	PoolDifficulty float64 `json:"pool_difficulty"`
}

func (s *Server) handlePutPoolConfig(w http.ResponseWriter, r *http.Request) {
	minerIP := r.PathValue("ip")

	var update poolConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if update.PoolURL == "" {
		s.writeBadRequest(w, "pool_url is required")
		return
	}
	if update.FeePercent < 0 || update.FeePercent > 100 {
		s.writeBadRequest(w, "fee_percent must be between 0 and 100")
		return
	}
	if update.PoolDifficulty < 0 {
		s.writeBadRequest(w, "pool_difficulty cannot be negative")
		return
	}

	// Start from detection so non-overridable fields (is_known, default port)
	// stay truthful, then lay the user's values on top.
	cfg := s.deps.Registry.Resolve(minerIP, update.PoolURL, update.PoolIndex, nil, false)
	if update.PoolName != "" {
		cfg.PoolName = update.PoolName
	}
	cfg.FeePercent = update.FeePercent
	cfg.PayoutType = pool.ParsePayoutType(update.PayoutType)
	if update.PoolDifficulty > 0 {
		cfg.PoolDifficulty = update.PoolDifficulty
		cfg.DifficultyDefaulted = false
	}
	cfg.UserConfigured = true
	cfg.FeeDefaulted = false
	cfg.RequiresConfiguration = false

	if err := s.deps.PoolConfigs.Upsert(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeletePoolConfig(w http.ResponseWriter, r *http.Request) {
	minerIP := r.PathValue("ip")
	poolIndex := queryInt(r, "pool_index", 0)

	if err := s.deps.PoolConfigs.Delete(r.Context(), minerIP, poolIndex); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRedetectPool(w http.ResponseWriter, r *http.Request) {
	minerIP := r.PathValue("ip")
	poolIndex := queryInt(r, "pool_index", 0)

	poolURL := r.URL.Query().Get("pool_url")
	stored, err := s.deps.PoolConfigs.Get(r.Context(), minerIP, poolIndex)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if poolURL == "" {
		if stored == nil {
			s.writeBadRequest(w, "pool_url is required when no configuration is stored")
			return
		}
		poolURL = stored.PoolURL
	}

	// Forced resolution discards user overrides.
	cfg := s.deps.Registry.Resolve(minerIP, poolURL, poolIndex, stored, true)
	if err := s.deps.PoolConfigs.Upsert(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.LogPoolDetected(minerIP, cfg.PoolName, cfg.IsKnown)
	s.writeJSON(w, http.StatusOK, cfg)
}

// Earnings

// earningsResponse pairs an estimate with the window and pool it covers.
type earningsResponse struct {
	MinerIP     string            `json:"miner_ip"`
	PoolName    string            `json:"pool_name"`
	PayoutType  string            `json:"payout_type"`
	ShareDelta  int64             `json:"share_delta"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	Estimate    earnings.Estimate `json:"estimate"`
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	minerIP := r.URL.Query().Get("miner_ip")
	if minerIP == "" {
		s.writeBadRequest(w, "miner_ip is required")
		return
	}
	window := queryWindow(r)
	poolIndex := queryInt(r, "pool_index", 0)

	resp, err := s.computeEarnings(r, minerIP, poolIndex, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resp == nil {
		s.writeNotFound(w, "no pool configuration for miner")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// computeEarnings estimates sats earned by one miner over a window. Returns
// nil without error when the miner has no stored pool configuration.
func (s *Server) computeEarnings(r *http.Request, minerIP string, poolIndex int, window energy.Window) (*earningsResponse, error) {
	ctx := r.Context()

	cfg, err := s.deps.PoolConfigs.Get(ctx, minerIP, poolIndex)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	var shareDelta int64
	counters, err := s.deps.Samples.GetShareCounterWindow(ctx, minerIP, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if counters != nil {
		shareDelta = counters.Delta
	}

	difficulty, err := s.deps.Chain.Difficulty(ctx)
	if err != nil {
		return nil, err
	}
	subsidySats, err := s.deps.Chain.SubsidySats(ctx)
	if err != nil {
		return nil, err
	}

	blockFound := false
	if cfg.PayoutType == pool.PayoutSolo && s.deps.Blocks != nil {
		found, _, err := s.deps.Blocks.SoloBlockSince(ctx, minerIP, window.Start)
		if err != nil {
			s.logger.WithError(err).Warn("solo block lookup failed", "miner_ip", minerIP)
		} else {
			blockFound = found
		}
	}

	est := s.deps.Estimator.Estimate(earnings.Params{
		ShareDelta:          shareDelta,
		PoolDifficulty:      cfg.PoolDifficulty,
		FeePercent:          cfg.FeePercent,
		PayoutType:          cfg.PayoutType,
		NetworkDifficulty:   difficulty,
		BlockSubsidySats:    subsidySats,
		BlockFound:          blockFound,
		DifficultyDefaulted: cfg.DifficultyDefaulted,
		FeeDefaulted:        cfg.FeeDefaulted,
	})

	return &earningsResponse{
		MinerIP:     minerIP,
		PoolName:    cfg.PoolName,
		PayoutType:  string(cfg.PayoutType),
		ShareDelta:  shareDelta,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Estimate:    est,
	}, nil
}

// handleEarningsHistory serves the computed-estimate time series the
// dashboard charts.
func (s *Server) handleEarningsHistory(w http.ResponseWriter, r *http.Request) {
	minerIP := r.URL.Query().Get("miner_ip")
	if minerIP == "" {
		s.writeBadRequest(w, "miner_ip is required")
		return
	}

	hours := queryInt(r, "hours", defaultWindowHours)
	if hours < 1 {
		hours = 1
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}

	points, err := s.deps.Samples.GetEstimateHistory(r.Context(), minerIP, time.Duration(hours)*time.Hour)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if points == nil {
		points = []influx.EstimatePoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

// Energy

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.deps.Rates.LoadSchedule(r.Context(), s.cfg.DefaultEnergyRate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedule)
}

// ratesUpdate is the PUT body for the rate schedule.
type ratesUpdate struct {
	Intervals []energy.RateInterval  `json:"intervals"`
	Seasonal  *energy.SeasonalConfig `json:"seasonal,omitempty"`
}

func (s *Server) handlePutRates(w http.ResponseWriter, r *http.Request) {
	var update ratesUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	seasonal := energy.DefaultSeasonalConfig()
	if update.Seasonal != nil {
		seasonal = *update.Seasonal
	}

	candidate := energy.Schedule{
		Intervals:   update.Intervals,
		Seasonal:    seasonal,
		DefaultRate: s.cfg.DefaultEnergyRate,
	}
	if err := candidate.Validate(); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}

	if err := s.deps.Rates.ReplaceIntervals(r.Context(), update.Intervals); err != nil {
		s.writeError(w, err)
		return
	}
	if update.Seasonal != nil {
		if err := s.deps.Rates.SaveSeasonal(r.Context(), seasonal); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, candidate)
}

// energyCostResponse pairs a priced consumption with its window.
type energyCostResponse struct {
	MinerIP     string            `json:"miner_ip"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	Cost        energy.CostResult `json:"cost"`
}

func (s *Server) handleEnergyCost(w http.ResponseWriter, r *http.Request) {
	minerIP := r.URL.Query().Get("miner_ip")
	if minerIP == "" {
		s.writeBadRequest(w, "miner_ip is required")
		return
	}
	window := queryWindow(r)

	cost, err := s.computeCost(r, minerIP, window)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.LogEnergyCost(minerIP, cost.KWh, cost.CostUSD)
	s.writeJSON(w, http.StatusOK, energyCostResponse{
		MinerIP:     minerIP,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Cost:        cost,
	})
}

func (s *Server) computeCost(r *http.Request, minerIP string, window energy.Window) (energy.CostResult, error) {
	ctx := r.Context()

	readings, err := s.deps.Samples.GetPowerReadings(ctx, minerIP, window.Start, window.End)
	if err != nil {
		return energy.CostResult{}, err
	}
	schedule, err := s.deps.Rates.LoadSchedule(ctx, s.cfg.DefaultEnergyRate)
	if err != nil {
		return energy.CostResult{}, err
	}

	return s.deps.Engine.CostForWindow(readings, schedule, window), nil
}

// Profitability

// profitabilityResponse is the full per-miner dashboard card: earnings, cost,
// and the combined snapshot at the current BTC price.
type profitabilityResponse struct {
	MinerIP     string            `json:"miner_ip"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	BTCPriceUSD float64           `json:"btc_price_usd"`
	Earnings    earnings.Estimate `json:"earnings"`
	Cost        energy.CostResult `json:"cost"`
	Snapshot    profit.Snapshot   `json:"snapshot"`
}

func (s *Server) handleProfitability(w http.ResponseWriter, r *http.Request) {
	minerIP := r.URL.Query().Get("miner_ip")
	if minerIP == "" {
		s.writeBadRequest(w, "miner_ip is required")
		return
	}
	window := queryWindow(r)
	poolIndex := queryInt(r, "pool_index", 0)

	earned, err := s.computeEarnings(r, minerIP, poolIndex, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if earned == nil {
		s.writeNotFound(w, "no pool configuration for miner")
		return
	}

	cost, err := s.computeCost(r, minerIP, window)
	if err != nil {
		s.writeError(w, err)
		return
	}

	price, err := s.deps.Chain.PriceUSD(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.deps.Calculator.Compute(earned.Estimate, cost, price)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.LogSnapshot(snap.RevenueUSD, snap.CostUSD, snap.ProfitUSD, snap.Confidence)
	s.writeJSON(w, http.StatusOK, profitabilityResponse{
		MinerIP:     minerIP,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		BTCPriceUSD: price,
		Earnings:    earned.Estimate,
		Cost:        cost,
		Snapshot:    snap,
	})
}

func (s *Server) handleProfitabilityHistory(w http.ResponseWriter, r *http.Request) {
	minerIP := r.URL.Query().Get("miner_ip")
	if minerIP == "" {
		s.writeBadRequest(w, "miner_ip is required")
		return
	}
	limit := queryInt(r, "limit", 50)

	rows, err := s.deps.Snapshots.Recent(r.Context(), minerIP, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []postgres.ProfitabilityLogRow{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// Query helpers

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

// queryWindow resolves the hours query parameter into a half-open window
// ending now, clamped to the supported range.
func queryWindow(r *http.Request) energy.Window {
	hours := queryInt(r, "hours", defaultWindowHours)
	if hours < 1 {
		hours = 1
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}

	end := time.Now().UTC()
	return energy.Window{
		Start: end.Add(-time.Duration(hours) * time.Hour),
		End:   end,
	}
}
