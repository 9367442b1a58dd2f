package bitcoin

import (
	"context"
	"strconv"
	"time"

	"github.com/dirtysats/fleetd/pkg/errors"
	"github.com/dirtysats/fleetd/pkg/log"
)

// Cache keys for chain data shared across fleetd services.
const (
	cacheKeyPrice      = "chain:btc_price_usd"
	cacheKeyDifficulty = "chain:difficulty"
	cacheKeyHeight     = "chain:block_height"
)

// NetworkSource supplies network difficulty and block height, either from a
// local node or a public API.
type NetworkSource interface {
	Difficulty(ctx context.Context) (float64, error)
	BlockHeight(ctx context.Context) (int64, error)
}

// PriceSource supplies the BTC/USD price.
type PriceSource interface {
	PriceUSD(ctx context.Context) (float64, error)
}

// Cache is the shared TTL cache in front of the sources. Get returns an empty
// string on a miss; cache errors are treated as misses so a cache outage
// degrades to direct fetches.
type Cache interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
}

// NetworkStatus is one consistent view of the chain parameters the earnings
// engine consumes. JSON names are part of the /api/network contract.
type NetworkStatus struct {
	PriceUSD        float64 `json:"btc_price_usd"`
	Difficulty      float64 `json:"network_difficulty"`
	BlockHeight     int64   `json:"block_height"`
	SubsidySats     int64   `json:"block_subsidy_sats"`
	SubsidyBTC      float64 `json:"block_subsidy_btc"`
	HalvingEpoch    int64   `json:"halving_epoch"`
	BlocksToHalving int64   `json:"blocks_to_halving"`
}

// ChainData serves chain parameters through the cache. Upstream failures
// surface as errors; chain data is never silently zeroed because a zero
// difficulty or price would corrupt every downstream estimate.
type ChainData struct {
	network NetworkSource
	price   PriceSource
	cache   Cache
	ttl     time.Duration
	logger  *log.Logger
}

// NewChainData creates the chain data service. cache may be nil, which
// disables caching and hits the sources on every call.
func NewChainData(network NetworkSource, price PriceSource, cache Cache, ttl time.Duration, logger *log.Logger) *ChainData {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChainData{
		network: network,
		price:   price,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.WithComponent("chaindata"),
	}
}

// PriceUSD returns the cached or freshly fetched BTC price.
func (c *ChainData) PriceUSD(ctx context.Context) (float64, error) {
	if v, ok := c.cachedFloat(ctx, cacheKeyPrice); ok {
		return v, nil
	}

	price, err := c.price.PriceUSD(ctx)
	if err != nil {
		return 0, err
	}
	c.storeFloat(ctx, cacheKeyPrice, price)
	return price, nil
}

// Difficulty returns the cached or freshly fetched network difficulty.
func (c *ChainData) Difficulty(ctx context.Context) (float64, error) {
	if v, ok := c.cachedFloat(ctx, cacheKeyDifficulty); ok {
		return v, nil
	}

	difficulty, err := c.network.Difficulty(ctx)
	if err != nil {
		return 0, err
	}
	c.storeFloat(ctx, cacheKeyDifficulty, difficulty)
	return difficulty, nil
}

// BlockHeight returns the cached or freshly fetched block height.
func (c *ChainData) BlockHeight(ctx context.Context) (int64, error) {
	if raw := c.cachedString(ctx, cacheKeyHeight); raw != "" {
		if height, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return height, nil
		}
	}

	height, err := c.network.BlockHeight(ctx)
	if err != nil {
		return 0, err
	}
	c.store(ctx, cacheKeyHeight, strconv.FormatInt(height, 10))
	return height, nil
}

// SubsidySats returns the current block subsidy in satoshis, derived from the
// block height.
func (c *ChainData) SubsidySats(ctx context.Context) (int64, error) {
	height, err := c.BlockHeight(ctx)
	if err != nil {
		return 0, err
	}
	return int64(SubsidyAtHeight(height)), nil
}

// Invalidate drops the cached block height and subsidy-bearing values. Called
// when a new block arrives over ZMQ so height-derived data refreshes at once.
func (c *ChainData) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	// Overwrite with an empty value and minimal TTL; a dedicated delete is
	// not part of the cache contract.
	_ = c.cache.SetValue(ctx, cacheKeyHeight, "", time.Millisecond)
	_ = c.cache.SetValue(ctx, cacheKeyDifficulty, "", time.Millisecond)
}

// Status assembles a full network snapshot. All parts must resolve; a partial
// snapshot with zeroed fields would be worse than an error.
func (c *ChainData) Status(ctx context.Context) (*NetworkStatus, error) {
	price, err := c.PriceUSD(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, "network_status",
			"BTC price unavailable")
	}

	difficulty, err := c.Difficulty(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, "network_status",
			"network difficulty unavailable")
	}

	height, err := c.BlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, "network_status",
			"block height unavailable")
	}

	subsidy := SubsidyAtHeight(height)
	status := &NetworkStatus{
		PriceUSD:        price,
		Difficulty:      difficulty,
		BlockHeight:     height,
		SubsidySats:     int64(subsidy),
		SubsidyBTC:      subsidy.ToBTC(),
		HalvingEpoch:    HalvingEpoch(height),
		BlocksToHalving: BlocksToHalving(height),
	}

	c.logger.LogChainData(price, difficulty, height, status.SubsidyBTC)
	return status, nil
}

func (c *ChainData) cachedFloat(ctx context.Context, key string) (float64, bool) {
	raw := c.cachedString(ctx, key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (c *ChainData) cachedString(ctx context.Context, key string) string {
	if c.cache == nil {
		return ""
	}
	raw, err := c.cache.GetValue(ctx, key)
	if err != nil {
		c.logger.Debug("cache read failed", "key", key, "error", err)
		return ""
	}
	return raw
}

func (c *ChainData) storeFloat(ctx context.Context, key string, v float64) {
	c.store(ctx, key, strconv.FormatFloat(v, 'f', -1, 64))
}

func (c *ChainData) store(ctx context.Context, key, value string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetValue(ctx, key, value, c.ttl); err != nil {
		c.logger.Debug("cache write failed", "key", key, "error", err)
	}
}
