package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
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
	"github.com/dirtysats/fleetd/pkg/log"
)

// Fakes

type fakePoolStore struct {
	configs map[string]pool.PoolConfig
	gets    int
}

func poolKey(minerIP string, poolIndex int) string {
	return fmt.Sprintf("%s/%d", minerIP, poolIndex)
}

func newFakePoolStore() *fakePoolStore {
	return &fakePoolStore{configs: make(map[string]pool.PoolConfig)}
}

func (f *fakePoolStore) Upsert(_ context.Context, cfg pool.PoolConfig) error {
	f.configs[poolKey(cfg.MinerIP, cfg.PoolIndex)] = cfg
	return nil
}

func (f *fakePoolStore) Get(_ context.Context, minerIP string, poolIndex int) (*pool.PoolConfig, error) {
	f.gets++
	cfg, ok := f.configs[poolKey(minerIP, poolIndex)]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakePoolStore) List(_ context.Context) ([]pool.PoolConfig, error) {
	var out []pool.PoolConfig
	for _, cfg := range f.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (f *fakePoolStore) Delete(_ context.Context, minerIP string, poolIndex int) error {
	delete(f.configs, poolKey(minerIP, poolIndex))
	return nil
}

type fakeRateStore struct {
	intervals []energy.RateInterval
	seasonal  energy.SeasonalConfig
}

func (f *fakeRateStore) ReplaceIntervals(_ context.Context, intervals []energy.RateInterval) error {
	f.intervals = intervals
	return nil
}

func (f *fakeRateStore) LoadSchedule(_ context.Context, defaultRate float64) (*energy.Schedule, error) {
	return &energy.Schedule{
		Intervals:   f.intervals,
		Seasonal:    f.seasonal,
		DefaultRate: defaultRate,
	}, nil
}

func (f *fakeRateStore) SaveSeasonal(_ context.Context, cfg energy.SeasonalConfig) error {
	f.seasonal = cfg
	return nil
}

type fakeSnapshotStore struct {
	rows []postgres.ProfitabilityLogRow
}

func (f *fakeSnapshotStore) Recent(_ context.Context, minerIP string, limit int) ([]postgres.ProfitabilityLogRow, error) {
	var out []postgres.ProfitabilityLogRow
	for _, row := range f.rows {
		if row.MinerIP == minerIP && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

// fakeSampleStore synthesizes steady readings across whatever window is
// requested, so window-relative assertions stay deterministic.
type fakeSampleStore struct {
	watts      float64
	shareDelta int64
	window     *influx.ShareCounterWindow
	history    []influx.EstimatePoint
}

func (f *fakeSampleStore) GetPowerReadings(_ context.Context, _ string, start, end time.Time) ([]energy.PowerReading, error) {
	if f.watts <= 0 {
		return nil, nil
	}
	var readings []energy.PowerReading
	for t := start; t.Before(end); t = t.Add(5 * time.Minute) {
		readings = append(readings, energy.PowerReading{Timestamp: t, Watts: f.watts})
	}
	return readings, nil
}

func (f *fakeSampleStore) GetShareCounterWindow(_ context.Context, _ string, start, end time.Time) (*influx.ShareCounterWindow, error) {
	if f.window != nil {
		return f.window, nil
	}
	if f.shareDelta == 0 {
		return nil, nil
	}
	return &influx.ShareCounterWindow{
		FirstValue: 1000,
		LastValue:  1000 + f.shareDelta,
		FirstAt:    start,
		LastAt:     end,
		Samples:    2,
		Delta:      f.shareDelta,
	}, nil
}

func (f *fakeSampleStore) GetEstimateHistory(_ context.Context, _ string, _ time.Duration) ([]influx.EstimatePoint, error) {
	return f.history, nil
}

type fakeBlockStore struct {
	found      bool
	hash       string
	lastHash   string
	lastHeight int64
}

func (f *fakeBlockStore) SoloBlockSince(_ context.Context, _ string, _ time.Time) (bool, string, error) {
	return f.found, f.hash, nil
}

func (f *fakeBlockStore) GetLastBlock(_ context.Context) (string, int64, error) {
	return f.lastHash, f.lastHeight, nil
}

type fakeNode struct {
	pingErr error
	info    *btcjson.GetBlockChainInfoResult
	infoErr error
}

func (f *fakeNode) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeNode) BlockchainInfo(_ context.Context) (*btcjson.GetBlockChainInfoResult, error) {
	return f.info, f.infoErr
}

type fakeChain struct {
	price      float64
	difficulty float64
	height     int64
}

func (f *fakeChain) PriceUSD(_ context.Context) (float64, error)   { return f.price, nil }
func (f *fakeChain) Difficulty(_ context.Context) (float64, error) { return f.difficulty, nil }

func (f *fakeChain) SubsidySats(_ context.Context) (int64, error) {
	return int64(bitcoin.SubsidyAtHeight(f.height)), nil
}

func (f *fakeChain) Status(_ context.Context) (*bitcoin.NetworkStatus, error) {
	subsidy := bitcoin.SubsidyAtHeight(f.height)
	return &bitcoin.NetworkStatus{
		PriceUSD:    f.price,
		Difficulty:  f.difficulty,
		BlockHeight: f.height,
		SubsidySats: int64(subsidy),
		SubsidyBTC:  subsidy.ToBTC(),
	}, nil
}

// Harness

type testEnv struct {
	server  *Server
	handler http.Handler
	pools   *fakePoolStore
	rates   *fakeRateStore
	samples *fakeSampleStore
	blocks  *fakeBlockStore
	chain   *fakeChain
	log     *fakeSnapshotStore
}

func newTestEnv() *testEnv {
	cfg := &config.Config{
		ServiceName:       "fleetd-test",
		Version:           "test",
		ListenAddr:        "127.0.0.1",
		ListenPort:        0,
		DefaultEnergyRate: 0.15,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	logger := log.New("fleetd-test", "test", "error", "text")

	env := &testEnv{
		pools:   newFakePoolStore(),
		rates:   &fakeRateStore{seasonal: energy.DefaultSeasonalConfig()},
		samples: &fakeSampleStore{},
		blocks:  &fakeBlockStore{},
		chain:   &fakeChain{price: 100000, difficulty: 80e12, height: 850000},
		log:     &fakeSnapshotStore{},
	}

	env.server = NewServer(cfg, logger, Deps{
		Registry:    pool.NewDefaultRegistry(),
		Estimator:   earnings.NewEstimator(2.0),
		Engine:      energy.NewEngine(0),
		Calculator:  profit.NewCalculator(),
		Chain:       env.chain,
		PoolConfigs: env.pools,
		Rates:       env.rates,
		Snapshots:   env.log,
		Samples:     env.samples,
		Blocks:      env.blocks,
	})
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// Tests

func TestHandleHealth(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	// No RPC client configured in the test harness.
	if body["bitcoin_rpc"] != "disabled" {
		t.Errorf("expected bitcoin_rpc disabled, got %q", body["bitcoin_rpc"])
	}
}

func TestHandleHealth_NodeReachable(t *testing.T) {
	env := newTestEnv()
	env.server.deps.Node = &fakeNode{
		info: &btcjson.GetBlockChainInfoResult{
			Chain:                "main",
			Blocks:               850000,
			VerificationProgress: 0.9999,
		},
	}

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["bitcoin_rpc"] != "ok" {
		t.Errorf("expected bitcoin_rpc ok, got %v", body["bitcoin_rpc"])
	}
	if body["chain"] != "main" {
		t.Errorf("expected chain main, got %v", body["chain"])
	}
	if blocks, _ := body["blocks"].(float64); blocks != 850000 {
		t.Errorf("expected 850000 blocks, got %v", body["blocks"])
	}
}

func TestHandleHealth_NodeUnreachable(t *testing.T) {
	env := newTestEnv()
	env.server.deps.Node = &fakeNode{pingErr: fmt.Errorf("connection refused")}

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("a down node must not fail the service health, got %q", body["status"])
	}
	if body["bitcoin_rpc"] != "unreachable" {
		t.Errorf("expected bitcoin_rpc unreachable, got %q", body["bitcoin_rpc"])
	}
}

func TestHandleNetworkStatus(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/network", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[bitcoin.NetworkStatus](t, rec)
	if status.PriceUSD != 100000 {
		t.Errorf("expected price 100000, got %g", status.PriceUSD)
	}
	if status.SubsidySats != 312_500_000 {
		t.Errorf("expected subsidy 312500000 at height 850000, got %d", status.SubsidySats)
	}
}

func TestHandleNetworkStatus_IncludesLastBlock(t *testing.T) {
	env := newTestEnv()
	env.blocks.lastHash = "00000000000000000001deadbeef"
	env.blocks.lastHeight = 850001

	rec := env.do(t, http.MethodGet, "/api/network", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[networkResponse](t, rec)
	if resp.LastBlockHash != "00000000000000000001deadbeef" {
		t.Errorf("expected last block hash, got %q", resp.LastBlockHash)
	}
	if resp.LastBlockHeight != 850001 {
		t.Errorf("expected last block height 850001, got %d", resp.LastBlockHeight)
	}
}

func TestHandleGetPoolConfig_NotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/pools/192.168.1.50/config", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetPoolConfig_PreviewResolvesURL(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet,
		"/api/pools/192.168.1.50/config?pool_url=stratum%2Btcp%3A%2F%2Fstratum.braiins.com%3A3333", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cfg := decode[pool.PoolConfig](t, rec)
	if cfg.PoolName != "Braiins Pool" {
		t.Errorf("expected Braiins Pool, got %q", cfg.PoolName)
	}
	if cfg.PayoutType != pool.PayoutFPPSPlus {
		t.Errorf("expected FPPS+, got %q", cfg.PayoutType)
	}
	// Preview must not persist.
	if len(env.pools.configs) != 0 {
		t.Error("preview resolution should not be stored")
	}
}

func TestHandlePutPoolConfig(t *testing.T) {
	env := newTestEnv()
	body := `{
		"pool_index": 0,
		"pool_url": "stratum+tcp://stratum.braiins.com:3333",
		"fee_percent": 1.5,
		"payout_type": "FPPS+",
		"pool_difficulty": 8192
	}`
	rec := env.do(t, http.MethodPut, "/api/pools/192.168.1.50/config", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cfg := decode[pool.PoolConfig](t, rec)
	if !cfg.UserConfigured {
		t.Error("expected user_configured to be set")
	}
	if cfg.FeePercent != 1.5 {
		t.Errorf("expected fee 1.5, got %g", cfg.FeePercent)
	}
	if cfg.DifficultyDefaulted {
		t.Error("user-supplied difficulty should not be marked defaulted")
	}

	stored, _ := env.pools.Get(context.Background(), "192.168.1.50", 0)
	if stored == nil || stored.PoolDifficulty != 8192 {
		t.Fatalf("expected stored config with difficulty 8192, got %+v", stored)
	}
}

func TestHandlePutPoolConfig_Validation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name string
		body string
	}{
		{"missing pool_url", `{"fee_percent": 2.0}`},
		{"fee too high", `{"pool_url": "stratum+tcp://x:3333", "fee_percent": 150}`},
		{"negative difficulty", `{"pool_url": "stratum+tcp://x:3333", "pool_difficulty": -1}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/pools/192.168.1.50/config", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleRedetectPool_DiscardsOverrides(t *testing.T) {
	env := newTestEnv()

	// Seed a user-configured entry pointing at a known pool URL.
	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP:        "192.168.1.50",
		PoolIndex:      0,
		PoolName:       "My Custom Name",
		PoolURL:        "stratum+tcp://stratum.braiins.com:3333",
		FeePercent:     0.5,
		PayoutType:     pool.PayoutPPS,
		PoolDifficulty: 9999,
		UserConfigured: true,
	})

	rec := env.do(t, http.MethodPost, "/api/pools/192.168.1.50/redetect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg := decode[pool.PoolConfig](t, rec)
	if cfg.PoolName != "Braiins Pool" {
		t.Errorf("expected redetection to restore Braiins Pool, got %q", cfg.PoolName)
	}
	if cfg.UserConfigured {
		t.Error("forced redetection should discard user configuration")
	}
}

func TestHandleEarnings_FPPS(t *testing.T) {
	env := newTestEnv()
	env.samples.shareDelta = 1000

	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP:        "192.168.1.50",
		PoolIndex:      0,
		PoolName:       "Foundry USA",
		PoolURL:        "stratum+tcp://btc.foundryusapool.com:3333",
		FeePercent:     2.5,
		PayoutType:     pool.PayoutFPPS,
		PoolDifficulty: 5000,
	})

	rec := env.do(t, http.MethodGet, "/api/earnings?miner_ip=192.168.1.50&hours=24", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[earningsResponse](t, rec)
	if resp.ShareDelta != 1000 {
		t.Errorf("expected share delta 1000, got %d", resp.ShareDelta)
	}
	if resp.Estimate.Sats != 1_135_049_387_812 {
		t.Errorf("expected 1135049387812 sats, got %d", resp.Estimate.Sats)
	}
	if resp.Estimate.Method != earnings.MethodFPPS {
		t.Errorf("expected fpps_calculation, got %q", resp.Estimate.Method)
	}
}

func TestHandleEarnings_CounterResetMidWindow(t *testing.T) {
	env := newTestEnv()

	// A miner restart mid-window leaves the endpoints inverted (5000 down to
	// 3000) while the accumulated delta keeps the shares from both uptimes.
	// The estimate must come from that delta, not the endpoint difference.
	env.samples.window = &influx.ShareCounterWindow{
		FirstValue: 5000,
		LastValue:  3000,
		Samples:    4,
		Delta:      3000,
	}

	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP:        "192.168.1.50",
		PoolIndex:      0,
		PoolName:       "Foundry USA",
		PoolURL:        "stratum+tcp://btc.foundryusapool.com:3333",
		FeePercent:     2.5,
		PayoutType:     pool.PayoutFPPS,
		PoolDifficulty: 5000,
	})

	rec := env.do(t, http.MethodGet, "/api/earnings?miner_ip=192.168.1.50&hours=24", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[earningsResponse](t, rec)
	if resp.ShareDelta != 3000 {
		t.Errorf("expected share delta 3000, got %d", resp.ShareDelta)
	}
	if resp.Estimate.Method != earnings.MethodFPPS {
		t.Errorf("expected fpps_calculation, got %q", resp.Estimate.Method)
	}
	if resp.Estimate.Sats <= 0 {
		t.Errorf("expected positive sats across a restart, got %d", resp.Estimate.Sats)
	}
	if resp.Estimate.Confidence == 0 {
		t.Error("a recovered window must not be reported as zero confidence")
	}
}

func TestHandleEarningsHistory(t *testing.T) {
	env := newTestEnv()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	env.samples.history = []influx.EstimatePoint{
		{Time: base, Sats: 1200, Confidence: 90},
		{Time: base.Add(5 * time.Minute), Sats: 1350, Confidence: 90},
	}

	rec := env.do(t, http.MethodGet, "/api/earnings/history?miner_ip=192.168.1.50&hours=6", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	points := decode[[]influx.EstimatePoint](t, rec)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].Sats != 1350 {
		t.Errorf("expected second point 1350 sats, got %d", points[1].Sats)
	}
}

func TestHandleEarningsHistory_Empty(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/earnings/history?miner_ip=10.0.0.9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty array body, got %q", body)
	}
}

func TestHandleEarningsHistory_MissingMinerIP(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/earnings/history", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleEarnings_SoloBlockFound(t *testing.T) {
	env := newTestEnv()
	env.samples.shareDelta = 500
	env.blocks.found = true
	env.blocks.hash = "00000000abc"

	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP:    "192.168.1.60",
		PoolIndex:  0,
		PoolName:   "Solo CK Pool",
		PoolURL:    "stratum+tcp://solo.ckpool.org:3333",
		FeePercent: 2.0,
		PayoutType: pool.PayoutSolo,
	})

	rec := env.do(t, http.MethodGet, "/api/earnings?miner_ip=192.168.1.60", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[earningsResponse](t, rec)
	if resp.Estimate.Method != earnings.MethodSoloBlock {
		t.Errorf("expected solo_block_found, got %q", resp.Estimate.Method)
	}
	if resp.Estimate.Confidence != 100 {
		t.Errorf("expected confidence 100, got %d", resp.Estimate.Confidence)
	}
}

func TestHandleEarnings_MissingMinerIP(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/earnings", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleEarnings_UnknownMiner(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/api/earnings?miner_ip=10.0.0.99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleEnergyCost(t *testing.T) {
	env := newTestEnv()
	env.samples.watts = 1000

	rec := env.do(t, http.MethodGet, "/api/energy/cost?miner_ip=192.168.1.50&hours=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[energyCostResponse](t, rec)
	if diff := resp.Cost.KWh - 2.0; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected 2.0 kWh at 1 kW over 2h, got %g", resp.Cost.KWh)
	}
	// No schedule bands, so everything prices at the default rate and
	// confidence halves.
	if resp.Cost.Confidence != 50 {
		t.Errorf("expected confidence 50 on all-default pricing, got %d", resp.Cost.Confidence)
	}
}

func TestHandlePutRates(t *testing.T) {
	env := newTestEnv()
	body := `{
		"intervals": [
			{"start_time": "14:00", "end_time": "20:00", "rate_per_kwh": 0.35, "rate_type": "peak"},
			{"start_time": "00:00", "end_time": "14:00", "rate_per_kwh": 0.10, "rate_type": "off_peak"}
		]
	}`
	rec := env.do(t, http.MethodPut, "/api/energy/rates", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.rates.intervals) != 2 {
		t.Fatalf("expected 2 stored intervals, got %d", len(env.rates.intervals))
	}
}

func TestHandlePutRates_InvalidInterval(t *testing.T) {
	env := newTestEnv()
	body := `{"intervals": [{"start_time": "25:00", "end_time": "26:00", "rate_per_kwh": 0.10, "rate_type": "peak"}]}`
	rec := env.do(t, http.MethodPut, "/api/energy/rates", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid clock, got %d", rec.Code)
	}
	if len(env.rates.intervals) != 0 {
		t.Error("invalid schedule must not be persisted")
	}
}

func TestHandleProfitability(t *testing.T) {
	env := newTestEnv()
	env.samples.shareDelta = 1000
	env.samples.watts = 1000

	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP:        "192.168.1.50",
		PoolIndex:      0,
		PoolName:       "Foundry USA",
		PoolURL:        "stratum+tcp://btc.foundryusapool.com:3333",
		FeePercent:     2.5,
		PayoutType:     pool.PayoutFPPS,
		PoolDifficulty: 5000,
	})

	rec := env.do(t, http.MethodGet, "/api/profitability?miner_ip=192.168.1.50&hours=24", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[profitabilityResponse](t, rec)
	if resp.BTCPriceUSD != 100000 {
		t.Errorf("expected price 100000, got %g", resp.BTCPriceUSD)
	}
	if resp.Snapshot.SatsEarned != resp.Earnings.Sats {
		t.Error("snapshot sats should mirror the earnings estimate")
	}
	if resp.Snapshot.RevenueUSD <= 0 {
		t.Errorf("expected positive revenue, got %g", resp.Snapshot.RevenueUSD)
	}
	// 24h at 1 kW on the 0.15 default rate.
	wantCost := 24.0 * 0.15
	if diff := resp.Snapshot.CostUSD - wantCost; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected cost %g, got %g", wantCost, resp.Snapshot.CostUSD)
	}
}

func TestHandleProfitabilityHistory(t *testing.T) {
	env := newTestEnv()
	env.log.rows = []postgres.ProfitabilityLogRow{
		{MinerIP: "192.168.1.50", SatsEarned: 1200, ProfitUSD: 0.5},
		{MinerIP: "192.168.1.50", SatsEarned: 900, ProfitUSD: -0.1},
		{MinerIP: "10.0.0.2", SatsEarned: 100},
	}

	rec := env.do(t, http.MethodGet, "/api/profitability/history?miner_ip=192.168.1.50", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rows := decode[[]postgres.ProfitabilityLogRow](t, rec)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestHandleDeletePoolConfig(t *testing.T) {
	env := newTestEnv()
	_ = env.pools.Upsert(context.Background(), pool.PoolConfig{
		MinerIP: "192.168.1.50", PoolIndex: 0, PoolName: "X",
	})

	rec := env.do(t, http.MethodDelete, "/api/pools/192.168.1.50/config", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(env.pools.configs) != 0 {
		t.Error("expected config removed")
	}
}
