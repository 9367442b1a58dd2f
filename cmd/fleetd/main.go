// Package main implements fleetd, the dashboard API server for the mining
// fleet. It serves pool configuration, earnings estimates, energy cost, and
// profitability snapshots over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirtysats/fleetd/internal/api"
	"github.com/dirtysats/fleetd/internal/bitcoin"
	"github.com/dirtysats/fleetd/internal/config"
	"github.com/dirtysats/fleetd/internal/database/influx"
	"github.com/dirtysats/fleetd/internal/database/postgres"
	"github.com/dirtysats/fleetd/internal/database/redis"
	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/internal/pool"
	"github.com/dirtysats/fleetd/internal/profit"
	"github.com/dirtysats/fleetd/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fleetd",
		"version", cfg.Version,
		"listen_addr", cfg.ListenAddr,
		"listen_port", cfg.ListenPort,
	)

	// Database clients
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

	// Chain data sources: the public APIs always supply the price; a local
	// node supplies difficulty and height when configured.
	publicSource := bitcoin.NewPublicAPISource(cfg.PriceAPIURL, cfg.DifficultyAPIURL, cfg.BlockHeightAPIURL)

	var network bitcoin.NetworkSource = publicSource
	var node api.NodeSource
	if cfg.HasBitcoinRPC() {
		rpcClient, err := bitcoin.NewRPCClient(
			cfg.BitcoinRPCHost, cfg.BitcoinRPCPort,
			cfg.BitcoinRPCUser, cfg.BitcoinRPCPassword,
		)
		if err != nil {
			logger.WithError(err).Error("Bitcoin RPC unavailable, falling back to public APIs")
		} else {
			network = rpcClient
			node = rpcClient
			defer rpcClient.Close()
			logger.Info("using local Bitcoin Core node", "host", cfg.BitcoinRPCHost)
		}
	}

	chain := bitcoin.NewChainData(network, publicSource, redisClient, cfg.ChainCacheTTL, logger)

	registry := pool.NewRegistry(pool.DefaultProfiles(), pool.FallbackDefaults{
		FeePercent: cfg.FallbackPoolFee,
		PayoutType: pool.ParsePayoutType(cfg.FallbackPayoutType),
		Difficulty: cfg.FallbackPoolDifficulty,
	})

	server := api.NewServer(cfg, logger, api.Deps{
		Registry:    registry,
		Estimator:   earnings.NewEstimator(cfg.TxFeeUpliftPercent),
		Engine:      energy.NewEngine(cfg.MaxSampleGap),
		Calculator:  profit.NewCalculator(),
		Chain:       chain,
		PoolConfigs: api.NewCachedPoolConfigStore(postgres.NewPoolConfigRepository(pgClient), redisClient, 0),
		Rates:       postgres.NewEnergyRateRepository(pgClient),
		Snapshots:   postgres.NewProfitabilityRepository(pgClient),
		Samples:     influxClient,
		Blocks:      redisClient,
		Node:        node,
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
		return
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}

	logger.Info("fleetd stopped")
}
