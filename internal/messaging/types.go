package messaging

import (
	"time"

	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/profit"
)

// SampleMessage is one polled observation of a miner: its cumulative
// accepted-share counter and instantaneous power draw. Pollers publish these
// to fleet.samples.
type SampleMessage struct {
	MinerIP        string    `json:"miner_ip"`
	PoolURL        string    `json:"pool_url"`
	PoolIndex      int       `json:"pool_index"`
	SharesAccepted int64     `json:"shares_accepted"`
	SharesRejected int64     `json:"shares_rejected"`
	PoolDifficulty float64   `json:"pool_difficulty,omitempty"`
	HashrateHS     float64   `json:"hashrate_hs"`
	PowerWatts     float64   `json:"power_watts"`
	SampledAt      time.Time `json:"sampled_at"`
}

// EstimateMessage is a per-interval earnings estimate for one miner,
// published to fleet.estimates after each processed sample.
type EstimateMessage struct {
	MinerIP     string            `json:"miner_ip"`
	PoolName    string            `json:"pool_name"`
	PayoutType  string            `json:"payout_type"`
	ShareDelta  int64             `json:"share_delta"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	Estimate    earnings.Estimate `json:"estimate"`
}

// SnapshotMessage is a profitability snapshot for one miner and window,
// published to fleet.snapshots.
type SnapshotMessage struct {
	MinerIP     string          `json:"miner_ip"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	BTCPriceUSD float64         `json:"btc_price_usd"`
	Snapshot    profit.Snapshot `json:"snapshot"`
}

// BlockMessage announces a newly seen Bitcoin block, published to
// fleet.blocks by the block watcher. Solo earnings checks hinge on these.
type BlockMessage struct {
	BlockHash   string    `json:"block_hash"`
	BlockHeight int64     `json:"block_height"`
	SubsidySats int64     `json:"subsidy_sats"`
	SeenAt      time.Time `json:"seen_at"`
}
