// Package main implements blockwatch, the block notification service. It
// listens for new blocks on Bitcoin Core's ZMQ interface, refreshes cached
// chain data, publishes block announcements, and credits blocks to solo
// miners when the coinbase pays a fleet address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirtysats/fleetd/internal/bitcoin"
	"github.com/dirtysats/fleetd/internal/config"
	"github.com/dirtysats/fleetd/internal/database/postgres"
	"github.com/dirtysats/fleetd/internal/database/redis"
	"github.com/dirtysats/fleetd/internal/messaging"
	"github.com/dirtysats/fleetd/internal/pool"
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
	logger.Info("starting blockwatch",
		"version", cfg.Version,
		"zmq_addr", cfg.BitcoinZMQAddr,
	)

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

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() { _ = kafkaClient.Close() }()

	publicSource := bitcoin.NewPublicAPISource(cfg.PriceAPIURL, cfg.DifficultyAPIURL, cfg.BlockHeightAPIURL)
	var network bitcoin.NetworkSource = publicSource
	var rpcClient *bitcoin.RPCClient
	if cfg.HasBitcoinRPC() {
		rpcClient, err = bitcoin.NewRPCClient(
			cfg.BitcoinRPCHost, cfg.BitcoinRPCPort,
			cfg.BitcoinRPCUser, cfg.BitcoinRPCPassword,
		)
		if err != nil {
			logger.WithError(err).Error("Bitcoin RPC unavailable, solo attribution disabled")
			rpcClient = nil
		} else {
			network = rpcClient
			defer rpcClient.Close()
		}
	}
	chain := bitcoin.NewChainData(network, publicSource, redisClient, cfg.ChainCacheTTL, logger)

	watcher := NewBlockWatcher(cfg, logger, kafkaClient, redisClient, chain, rpcClient,
		postgres.NewPoolConfigRepository(pgClient))

	// Seed the last-block marker so the dashboard has a tip before the first
	// ZMQ notification arrives.
	watcher.PrimeLastBlock(context.Background())

	listener, err := bitcoin.NewBlockListener(cfg.BitcoinZMQAddr, logger, watcher.HandleBlock)
	if err != nil {
		logger.WithError(err).Error("failed to create ZMQ listener")
		os.Exit(1)
	}
	defer func() { _ = listener.Close() }()

	if err := listener.Connect(); err != nil {
		logger.WithError(err).Error("failed to connect to ZMQ endpoint")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := listener.Listen(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("block listener failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	logger.Info("blockwatch stopped")
}

// BlockWatcher reacts to new block notifications.
type BlockWatcher struct {
	cfg      *config.Config
	logger   *log.Logger
	kafka    *messaging.KafkaClient
	redis    *redis.Client
	chain    *bitcoin.ChainData
	rpc      *bitcoin.RPCClient
	poolRepo *postgres.PoolConfigRepository
}

// NewBlockWatcher creates a block watcher. rpc may be nil, which disables
// coinbase-based solo attribution.
func NewBlockWatcher(
	cfg *config.Config,
	logger *log.Logger,
	kafkaClient *messaging.KafkaClient,
	redisClient *redis.Client,
	chain *bitcoin.ChainData,
	rpcClient *bitcoin.RPCClient,
	poolRepo *postgres.PoolConfigRepository,
) *BlockWatcher {
	return &BlockWatcher{
		cfg:      cfg,
		logger:   logger.WithComponent("blockwatch"),
		kafka:    kafkaClient,
		redis:    redisClient,
		chain:    chain,
		rpc:      rpcClient,
		poolRepo: poolRepo,
	}
}

// PrimeLastBlock records the node's current tip as the last-seen block. Does
// nothing without an RPC client or when a marker already exists.
func (w *BlockWatcher) PrimeLastBlock(ctx context.Context) {
	if w.rpc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if hash, _, err := w.redis.GetLastBlock(ctx); err == nil && hash != "" {
		return
	}

	hash, err := w.rpc.BestBlockHash(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to fetch best block hash")
		return
	}
	height, err := w.chain.BlockHeight(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to fetch block height")
		return
	}
	if err := w.redis.SetLastBlock(ctx, hash, height, time.Now().UTC()); err != nil {
		w.logger.WithError(err).Warn("failed to seed last block marker")
		return
	}
	w.logger.Info("seeded last block marker", "block_hash", hash, "block_height", height)
}

// HandleBlock processes one hashblock notification.
func (w *BlockWatcher) HandleBlock(blockHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Height and difficulty changed; cached values are stale now.
	w.chain.Invalidate(ctx)

	var coinbase *bitcoin.CoinbaseInfo
	if w.rpc != nil {
		info, err := w.rpc.BlockCoinbase(ctx, blockHash)
		if err != nil {
			w.logger.WithError(err).Error("failed to fetch block coinbase", "block_hash", blockHash)
		} else {
			coinbase = info
		}
	}

	var height int64
	if coinbase != nil {
		height = coinbase.Height
	} else {
		h, err := w.chain.BlockHeight(ctx)
		if err != nil {
			return err
		}
		height = h
	}

	w.logger.LogBlockSeen(blockHash, height)

	seenAt := time.Now().UTC()
	if err := w.redis.SetLastBlock(ctx, blockHash, height, seenAt); err != nil {
		w.logger.WithError(err).Error("failed to record last block")
	}

	if coinbase != nil {
		w.creditSoloMiners(ctx, blockHash, height, coinbase.Addresses, seenAt)
	}

	subsidy := bitcoin.SubsidyAtHeight(height)
	return w.kafka.Publish(ctx, messaging.TopicBlocks, blockHash, &messaging.BlockMessage{
		BlockHash:   blockHash,
		BlockHeight: height,
		SubsidySats: int64(subsidy),
		SeenAt:      seenAt,
	})
}

// coinbasePaysFleet reports whether any coinbase output address is one of the
// fleet's configured solo payout addresses.
func coinbasePaysFleet(fleetAddrs, coinbaseAddrs []string) bool {
	if len(fleetAddrs) == 0 || len(coinbaseAddrs) == 0 {
		return false
	}

	ours := make(map[string]bool, len(fleetAddrs))
	for _, addr := range fleetAddrs {
		ours[addr] = true
	}
	for _, addr := range coinbaseAddrs {
		if ours[addr] {
			return true
		}
	}
	return false
}

// creditSoloMiners marks a solo block for the fleet's solo miners when the
// coinbase pays one of the configured payout addresses.
func (w *BlockWatcher) creditSoloMiners(ctx context.Context, blockHash string, height int64, coinbaseAddrs []string, seenAt time.Time) {
	if !coinbasePaysFleet(w.cfg.SoloPayoutAddresses, coinbaseAddrs) {
		return
	}

	w.logger.Info("block pays a fleet address", "block_hash", blockHash, "block_height", height)

	configs, err := w.poolRepo.List(ctx)
	if err != nil {
		w.logger.WithError(err).Error("failed to list pool configs for solo credit")
		return
	}

	for _, cfg := range configs {
		if cfg.PayoutType != pool.PayoutSolo {
			continue
		}
		if err := w.redis.MarkSoloBlock(ctx, cfg.MinerIP, blockHash, height, seenAt, w.cfg.SoloMarkerRetention); err != nil {
			w.logger.WithError(err).Error("failed to mark solo block", "miner_ip", cfg.MinerIP)
			continue
		}
		w.logger.Info("solo block credited", "miner_ip", cfg.MinerIP, "block_hash", blockHash)
	}
}
