// Package profit combines earnings estimates with energy cost into
// profitability snapshots. Revenue conversion requires live market data;
// when that data is missing the calculator fails loudly instead of
// reporting a misleading zero.
package profit

import (
	"math"

	"github.com/dirtysats/fleetd/internal/earnings"
	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/pkg/errors"
)

const satsPerBTC = 1e8

// Snapshot is one profitability computation for a miner and window. The JSON
// field names are part of the dashboard contract and the profitability_log
// row shape.
type Snapshot struct {
	SatsEarned    int64   `json:"sats_earned"`
	KWh           float64 `json:"kwh"`
	RevenueUSD    float64 `json:"revenue_usd"`
	CostUSD       float64 `json:"cost_usd"`
	ProfitUSD     float64 `json:"profit_usd"`
	MarginPercent float64 `json:"margin_percent"`
	// BreakEvenBTCPrice is the BTC price at which this window would have
	// broken even. Nil when no sats were earned, where no finite price
	// exists; nil and zero are deliberately distinct.
	BreakEvenBTCPrice *float64 `json:"break_even_btc_price"`
	// Confidence is the weaker of the earnings and cost confidences.
	Confidence int `json:"confidence"`
}

// Calculator builds profitability snapshots. Stateless; safe for concurrent
// use.
type Calculator struct{}

// NewCalculator creates a calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute converts an earnings estimate and an energy cost into a snapshot at
// the given BTC/USD price. A non-positive price is a hard upstream failure.
func (c *Calculator) Compute(est earnings.Estimate, cost energy.CostResult, btcPriceUSD float64) (Snapshot, error) {
	if btcPriceUSD <= 0 {
		return Snapshot{}, errors.New(errors.ErrorTypeUpstream, "profit",
			"BTC price unavailable, refusing to compute profitability").
			WithContext("btc_price_usd", btcPriceUSD)
	}

	btcEarned := float64(est.Sats) / satsPerBTC
	revenue := btcEarned * btcPriceUSD
	profit := revenue - cost.CostUSD

	margin := -100.0
	if revenue > 0 {
		margin = profit / revenue * 100
	}

	var breakEven *float64
	if est.Sats > 0 {
		be := cost.CostUSD / btcEarned
		breakEven = &be
	}

	confidence := est.Confidence
	if cost.Confidence < confidence {
		confidence = cost.Confidence
	}

	return Snapshot{
		SatsEarned:        est.Sats,
		KWh:               cost.KWh,
		RevenueUSD:        revenue,
		CostUSD:           cost.CostUSD,
		ProfitUSD:         profit,
		MarginPercent:     margin,
		BreakEvenBTCPrice: breakEven,
		Confidence:        confidence,
	}, nil
}

// ProjectDailyBTC estimates expected BTC earned per day for a given hashrate
// at current network difficulty, before pool variance. Used for the fleet
// projection card, not for billing.
func ProjectDailyBTC(hashrateHS, networkDifficulty, subsidyBTC, feePercent float64) (float64, error) {
	if networkDifficulty <= 0 {
		return 0, errors.New(errors.ErrorTypeUpstream, "profit",
			"network difficulty unavailable, cannot project daily earnings").
			WithContext("network_difficulty", networkDifficulty)
	}
	if hashrateHS <= 0 || subsidyBTC <= 0 {
		return 0, nil
	}

	if feePercent < 0 {
		feePercent = 0
	}
	if feePercent > 100 {
		feePercent = 100
	}

	const secondsPerDay = 86400
	blocksPerDay := hashrateHS * secondsPerDay / (networkDifficulty * math.Exp2(32))
	return blocksPerDay * subsidyBTC * (1 - feePercent/100), nil
}
