// Package main implements sampleproc, the fleet sample processor. It consumes
// miner samples from Kafka, writes them to InfluxDB, computes per-interval
// earnings estimates, and logs hourly profitability snapshots.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dirtysats/fleetd/internal/bitcoin"
	"github.com/dirtysats/fleetd/internal/config"
	"github.com/dirtysats/fleetd/internal/database/influx"
	"github.com/dirtysats/fleetd/internal/database/postgres"
	"github.com/dirtysats/fleetd/internal/database/redis"
	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/internal/messaging"
	"github.com/dirtysats/fleetd/internal/pool"
	"github.com/dirtysats/fleetd/internal/profit"
	"github.com/dirtysats/fleetd/pkg/log"
)

// snapshotInterval is how often profitability snapshots are computed and
// logged for each miner.
const snapshotInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting sampleproc", "version", cfg.Version)

	pgClient, err := postgres.NewClient(&postgres.Config{URL: cfg.PostgresURL})
	if err != nil {
		logger.WithError(err).Error("failed to connect to PostgreSQL")
		os.Exit(1)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redis.NewClientFromURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Error("failed to connect to Redis")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	influxClient, err := influx.NewClient(&influx.Config{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to InfluxDB")
		os.Exit(1)
	}
	defer influxClient.Close()

	publicSource := bitcoin.NewPublicAPISource(cfg.PriceAPIURL, cfg.DifficultyAPIURL, cfg.BlockHeightAPIURL)
	var network bitcoin.NetworkSource = publicSource
	if cfg.HasBitcoinRPC() {
		rpcClient, err := bitcoin.NewRPCClient(
			cfg.BitcoinRPCHost, cfg.BitcoinRPCPort,
			cfg.BitcoinRPCUser, cfg.BitcoinRPCPassword,
		)
		if err != nil {
			logger.WithError(err).Error("Bitcoin RPC unavailable, falling back to public APIs")
		} else {
			network = rpcClient
			defer rpcClient.Close()
		}
	}
	chain := bitcoin.NewChainData(network, publicSource, redisClient, cfg.ChainCacheTTL, logger)

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() { _ = kafkaClient.Close() }()

	processor := NewSampleProcessor(cfg, logger, kafkaClient, influxClient, pgClient, redisClient, chain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := processor.Start(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("sample processor failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	influxClient.Flush()
	logger.Info("sampleproc stopped")
}

// lastSample is the previous counter observation for a miner, the baseline
// for the next share delta.
type lastSample struct {
	counter int64
	at      time.Time
}

// SampleProcessor turns raw miner samples into estimates and snapshots.
type SampleProcessor struct {
	cfg        *config.Config
	logger     *log.Logger
	kafka      *messaging.KafkaClient
	influx     *influx.Client
	redis      *redis.Client
	chain      *bitcoin.ChainData
	registry   *pool.Registry
	estimator  *earnings.Estimator
	engine     *energy.Engine
	calculator *profit.Calculator

	poolRepo   *postgres.PoolConfigRepository
	rateRepo   *postgres.EnergyRateRepository
	profitRepo *postgres.ProfitabilityRepository

	mu       sync.Mutex
	counters map[string]lastSample
}

// NewSampleProcessor creates a sample processor.
func NewSampleProcessor(
	cfg *config.Config,
	logger *log.Logger,
	kafkaClient *messaging.KafkaClient,
	influxClient *influx.Client,
	pgClient *postgres.Client,
	redisClient *redis.Client,
	chain *bitcoin.ChainData,
) *SampleProcessor {
	registry := pool.NewRegistry(pool.DefaultProfiles(), pool.FallbackDefaults{
		FeePercent: cfg.FallbackPoolFee,
		PayoutType: pool.ParsePayoutType(cfg.FallbackPayoutType),
		Difficulty: cfg.FallbackPoolDifficulty,
	})

	return &SampleProcessor{
		cfg:        cfg,
		logger:     logger.WithComponent("sampleproc"),
		kafka:      kafkaClient,
		influx:     influxClient,
		redis:      redisClient,
		chain:      chain,
		registry:   registry,
		estimator:  earnings.NewEstimator(cfg.TxFeeUpliftPercent),
		engine:     energy.NewEngine(cfg.MaxSampleGap),
		calculator: profit.NewCalculator(),
		poolRepo:   postgres.NewPoolConfigRepository(pgClient),
		rateRepo:   postgres.NewEnergyRateRepository(pgClient),
		profitRepo: postgres.NewProfitabilityRepository(pgClient),
		counters:   make(map[string]lastSample),
	}
}

// Start runs the consumer and snapshot loops until the context is canceled.
func (sp *SampleProcessor) Start(ctx context.Context) error {
	sp.logger.Info("sample processor starting", "snapshot_interval", snapshotInterval.String())

	go sp.snapshotLoop(ctx)

	return sp.kafka.StartConsumer(ctx,
		messaging.TopicSamples,
		sp.cfg.KafkaGroupID+"-samples",
		func() any { return &messaging.SampleMessage{} },
		sp,
	)
}

// HandleMessage processes one consumed sample.
func (sp *SampleProcessor) HandleMessage(ctx context.Context, key string, msg any) error {
	sample, ok := msg.(*messaging.SampleMessage)
	if !ok {
		sp.logger.Error("unexpected message type", "key", key)
		return nil
	}
	return sp.processSample(ctx, sample)
}

func (sp *SampleProcessor) processSample(ctx context.Context, sample *messaging.SampleMessage) error {
	logger := sp.logger.WithMiner(sample.MinerIP)

	sp.influx.WriteMinerSample(
		sample.MinerIP,
		sample.SharesAccepted, sample.SharesRejected,
		sample.HashrateHS, sample.PowerWatts,
		sample.SampledAt,
	)

	cfg, err := sp.resolvePoolConfig(ctx, sample)
	if err != nil {
		return err
	}

	// Establish the counter baseline. The first observation of a miner
	// cannot produce a delta.
	prev, seen := sp.observeCounter(sample.MinerIP, sample.SharesAccepted, sample.SampledAt)
	if !seen {
		logger.Info("first sample for miner, baseline recorded",
			"shares_accepted", sample.SharesAccepted)
		return nil
	}

	difficulty, err := sp.chain.Difficulty(ctx)
	if err != nil {
		return err
	}
	subsidySats, err := sp.chain.SubsidySats(ctx)
	if err != nil {
		return err
	}

	blockFound := false
	if cfg.PayoutType == pool.PayoutSolo {
		found, _, err := sp.redis.SoloBlockSince(ctx, sample.MinerIP, prev.at)
		if err != nil {
			logger.WithError(err).Warn("solo block lookup failed")
		} else {
			blockFound = found
		}
	}

	shareDelta := sample.SharesAccepted - prev.counter
	est := sp.estimator.Estimate(earnings.Params{
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

	logger.LogEstimate(sample.MinerIP, est.Sats, est.Confidence, est.Method)
	sp.influx.WriteEstimateMetric(sample.MinerIP, cfg.PoolName, est.Method, est.Sats, est.Confidence, sample.SampledAt)

	return sp.kafka.Publish(ctx, messaging.TopicEstimates, sample.MinerIP, &messaging.EstimateMessage{
		MinerIP:     sample.MinerIP,
		PoolName:    cfg.PoolName,
		PayoutType:  string(cfg.PayoutType),
		ShareDelta:  shareDelta,
		WindowStart: prev.at,
		WindowEnd:   sample.SampledAt,
		Estimate:    est,
	})
}

// observeCounter records a counter observation and returns the previous one
// along with whether the miner had been seen before.
func (sp *SampleProcessor) observeCounter(minerIP string, counter int64, at time.Time) (lastSample, bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	prev, seen := sp.counters[minerIP]
	sp.counters[minerIP] = lastSample{counter: counter, at: at}
	return prev, seen
}

// resolvePoolConfig loads or creates the pool configuration a sample belongs
// to, folding in the pool difficulty the miner reports.
func (sp *SampleProcessor) resolvePoolConfig(ctx context.Context, sample *messaging.SampleMessage) (*pool.PoolConfig, error) {
	cfg, err := sp.poolRepo.Get(ctx, sample.MinerIP, sample.PoolIndex)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg == nil:
		resolved := sp.registry.Resolve(sample.MinerIP, sample.PoolURL, sample.PoolIndex, nil, false)
		cfg = &resolved
		if err := sp.poolRepo.Upsert(ctx, *cfg); err != nil {
			return nil, err
		}
		sp.logger.LogPoolDetected(sample.MinerIP, cfg.PoolName, cfg.IsKnown)

	case sample.PoolURL != "" && cfg.PoolURL != sample.PoolURL:
		// Miner switched pools; stored overrides belong to the old pool.
		resolved := sp.registry.Resolve(sample.MinerIP, sample.PoolURL, sample.PoolIndex, cfg, true)
		cfg = &resolved
		if err := sp.poolRepo.Upsert(ctx, *cfg); err != nil {
			return nil, err
		}
		sp.logger.LogPoolDetected(sample.MinerIP, cfg.PoolName, cfg.IsKnown)
	}

	// A pool-assigned difficulty from the miner beats any default.
	if sample.PoolDifficulty > 0 && !cfg.UserConfigured &&
		(cfg.DifficultyDefaulted || cfg.PoolDifficulty != sample.PoolDifficulty) {
		cfg.PoolDifficulty = sample.PoolDifficulty
		cfg.DifficultyDefaulted = false
		if err := sp.poolRepo.Upsert(ctx, *cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// snapshotLoop logs a profitability snapshot per miner every interval.
func (sp *SampleProcessor) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sp.snapshotAll(ctx)
		}
	}
}

func (sp *SampleProcessor) snapshotAll(ctx context.Context) {
	configs, err := sp.poolRepo.List(ctx)
	if err != nil {
		sp.logger.WithError(err).Error("failed to list pool configs for snapshots")
		return
	}

	end := time.Now().UTC()
	window := energy.Window{Start: end.Add(-snapshotInterval), End: end}

	schedule, err := sp.rateRepo.LoadSchedule(ctx, sp.cfg.DefaultEnergyRate)
	if err != nil {
		sp.logger.WithError(err).Error("failed to load rate schedule")
		return
	}

	price, err := sp.chain.PriceUSD(ctx)
	if err != nil {
		sp.logger.WithError(err).Error("BTC price unavailable, skipping snapshot cycle")
		return
	}

	for _, cfg := range configs {
		// Power draw is per miner, not per pool slot; slot 0 represents the
		// miner to avoid double-counting consumption.
		if cfg.PoolIndex != 0 {
			continue
		}
		if err := sp.snapshotMiner(ctx, cfg, schedule, window, price); err != nil {
			sp.logger.WithError(err).Error("snapshot failed", "miner_ip", cfg.MinerIP)
		}
	}
}

func (sp *SampleProcessor) snapshotMiner(ctx context.Context, cfg pool.PoolConfig, schedule *energy.Schedule, window energy.Window, price float64) error {
	var shareDelta int64
	counters, err := sp.influx.GetShareCounterWindow(ctx, cfg.MinerIP, window.Start, window.End)
	if err != nil {
		return err
	}
	if counters != nil {
		shareDelta = counters.Delta
	}

	difficulty, err := sp.chain.Difficulty(ctx)
	if err != nil {
		return err
	}
	subsidySats, err := sp.chain.SubsidySats(ctx)
	if err != nil {
		return err
	}

	blockFound := false
	if cfg.PayoutType == pool.PayoutSolo {
		found, _, err := sp.redis.SoloBlockSince(ctx, cfg.MinerIP, window.Start)
		if err == nil {
			blockFound = found
		}
	}

	est := sp.estimator.Estimate(earnings.Params{
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

	readings, err := sp.influx.GetPowerReadings(ctx, cfg.MinerIP, window.Start, window.End)
	if err != nil {
		return err
	}
	cost := sp.engine.CostForWindow(readings, schedule, window)

	snap, err := sp.calculator.Compute(est, cost, price)
	if err != nil {
		return err
	}

	if err := sp.profitRepo.Insert(ctx, cfg.MinerIP, window.Start, window.End, price, snap); err != nil {
		return err
	}

	sp.logger.LogSnapshot(snap.RevenueUSD, snap.CostUSD, snap.ProfitUSD, snap.Confidence)
	return sp.kafka.Publish(ctx, messaging.TopicSnapshots, cfg.MinerIP, &messaging.SnapshotMessage{
		MinerIP:     cfg.MinerIP,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		BTCPriceUSD: price,
		Snapshot:    snap,
	})
}
