// Package earnings converts accepted-share deltas into estimated satoshi
// earnings under the payout scheme of the miner's pool. Every estimate
// carries a confidence score and a human-readable caveat so the dashboard can
// render uncertainty instead of presenting calculated sats as ground truth.
package earnings

import (
	"fmt"
	"math"

	"github.com/dirtysats/fleetd/internal/pool"
)

// Method tags identifying which formula produced an estimate. Part of the
// JSON contract with the dashboard.
const (
	MethodZeroShares   = "zero_shares"
	MethodCounterReset = "counter_reset"
	MethodInvalidInput = "invalid_parameters"
	MethodSoloWaiting  = "solo_mining"
	MethodSoloBlock    = "solo_block_found"
	MethodPPLNS        = "pplns_expected_value"
	MethodFPPS         = "fpps_calculation"
	MethodFPPSPlus     = "fpps_plus_calculation"
	MethodPPS          = "pps_calculation"
	MethodTides        = "tides_calculation"
	MethodCustom       = "custom_calculation"
)

// Estimate is the output of one estimation call. All fields are always
// present; inapplicable numeric fields are zero. Estimates are ephemeral and
// recomputed per query.
type Estimate struct {
	Sats       int64  `json:"sats"`
	Confidence int    `json:"confidence"`
	Method     string `json:"method"`
	Notes      string `json:"notes"`
}

// Params carries everything one estimation needs. The estimator reads no
// clocks, counters, or shared state: identical Params always produce an
// identical Estimate.
type Params struct {
	// ShareDelta is the change in the miner's accepted-share counter over
	// the observation window. A negative value indicates a counter reset.
	ShareDelta int64

	// PoolDifficulty is the share difficulty the pool assigns this miner.
	PoolDifficulty float64
	// FeePercent is the pool fee in [0,100].
	FeePercent float64
	// PayoutType selects the estimation formula.
	PayoutType pool.PayoutType

	// NetworkDifficulty and BlockSubsidySats are live network parameters.
	NetworkDifficulty float64
	BlockSubsidySats  int64

	// BlockFound marks that the miner's pool found a block inside the
	// window. Only meaningful for SOLO.
	BlockFound bool

	// DifficultyDefaulted and FeeDefaulted record that the corresponding
	// parameter came from a registry fallback rather than the pool or the
	// user. They lower confidence.
	DifficultyDefaulted bool
	FeeDefaulted        bool

	// TxFeeUpliftPercent overrides the estimator's configured transaction-fee
	// uplift for FPPS+/TIDES when > 0. Callers with a live moving average of
	// recent fee/subsidy ratios pass it here.
	TxFeeUpliftPercent float64
}

// Estimator computes earnings estimates. It is stateless apart from its
// configured defaults and safe for concurrent use.
type Estimator struct {
	// txFeeUpliftPercent is the transaction-fee uplift applied to payout
	// types that pay fees on top of the subsidy. Configurable because a
	// fixed multiplier was the historical accuracy defect here.
	txFeeUpliftPercent float64
}

// NewEstimator creates an estimator with the given default transaction-fee
// uplift percent for FPPS+/TIDES pools.
func NewEstimator(txFeeUpliftPercent float64) *Estimator {
	if txFeeUpliftPercent < 0 {
		txFeeUpliftPercent = 0
	}
	return &Estimator{txFeeUpliftPercent: txFeeUpliftPercent}
}

// Estimate converts a share delta into estimated sats. It never returns an
// error: input anomalies degrade to a zero-sat, low-confidence estimate with
// an explanatory note so the fleet keeps functioning for any pool.
func (e *Estimator) Estimate(p Params) Estimate {
	if p.PayoutType == pool.PayoutSolo {
		return e.estimateSolo(p)
	}

	if p.ShareDelta < 0 {
		return Estimate{
			Sats:       0,
			Confidence: 0,
			Method:     MethodCounterReset,
			Notes:      "Share counter decreased (miner restart or rollover). Delta treated as 0 for this window.",
		}
	}

	if p.ShareDelta == 0 {
		return Estimate{
			Sats:       0,
			Confidence: 100,
			Method:     MethodZeroShares,
			Notes:      "No shares accepted in window",
		}
	}

	if p.PoolDifficulty <= 0 || p.NetworkDifficulty <= 0 || p.BlockSubsidySats <= 0 {
		return Estimate{
			Sats:       0,
			Confidence: 0,
			Method:     MethodInvalidInput,
			Notes: fmt.Sprintf("Cannot estimate: pool_difficulty=%g network_difficulty=%g subsidy=%d must all be positive",
				p.PoolDifficulty, p.NetworkDifficulty, p.BlockSubsidySats),
		}
	}

	fee := clampFee(p.FeePercent)

	// Expected shares per block-equivalent at this pool's share difficulty,
	// calibrated against current network difficulty so the estimate tracks
	// real payout rates instead of a hardcoded multiplier.
	sharesPerBlock := math.Exp2(32) * p.PoolDifficulty / p.NetworkDifficulty
	shareValueSats := float64(p.BlockSubsidySats) / sharesPerBlock
	gross := float64(p.ShareDelta) * shareValueSats

	if p.PayoutType.IncludesTxFees() {
		uplift := p.TxFeeUpliftPercent
		if uplift <= 0 {
			uplift = e.txFeeUpliftPercent
		}
		gross *= 1 + uplift/100
	}

	sats := int64(math.Floor(gross * (1 - fee/100)))
	if sats < 0 {
		sats = 0
	}

	switch p.PayoutType {
	case pool.PayoutPPLNS:
		confidence := 50
		if p.DifficultyDefaulted {
			confidence = 40
		}
		return Estimate{
			Sats:       sats,
			Confidence: confidence,
			Method:     MethodPPLNS,
			Notes: fmt.Sprintf("PPLNS has high variance (roughly ±30%%): actual earnings depend on pool luck over the scoring window. Fee: %g%%", fee),
		}

	case pool.PayoutFPPS:
		return Estimate{
			Sats:       sats,
			Confidence: 90,
			Method:     MethodFPPS,
			Notes:      fmt.Sprintf("FPPS pool. Fee: %g%%. Tx fees folded into payout rate.", fee),
		}

	case pool.PayoutFPPSPlus:
		return Estimate{
			Sats:       sats,
			Confidence: 90,
			Method:     MethodFPPSPlus,
			Notes:      fmt.Sprintf("FPPS+ pool. Fee: %g%%. Includes estimated tx-fee uplift.", fee),
		}

	case pool.PayoutPPS, pool.PayoutPPSPlus:
		return Estimate{
			Sats:       sats,
			Confidence: 90,
			Method:     MethodPPS,
			Notes:      fmt.Sprintf("%s pool. Fee: %g%%. Block subsidy only.", p.PayoutType, fee),
		}

	case pool.PayoutTides:
		return Estimate{
			Sats:       sats,
			Confidence: 90,
			Method:     MethodTides,
			Notes:      fmt.Sprintf("TIDES pool. Fee: %g%%. Estimated like FPPS+ with tx-fee uplift.", fee),
		}

	default:
		// Custom or unrecognized payout type: deterministic formula with
		// confidence reflecting how much of the configuration was defaulted.
		confidence := 90
		if p.DifficultyDefaulted {
			confidence -= 10
		}
		if p.FeeDefaulted {
			confidence -= 10
		}
		return Estimate{
			Sats:       sats,
			Confidence: confidence,
			Method:     MethodCustom,
			Notes:      fmt.Sprintf("Custom pool type. Generic per-share calculation. Fee: %g%%", fee),
		}
	}
}

// estimateSolo handles solo mining, where shares alone yield no payout.
func (e *Estimator) estimateSolo(p Params) Estimate {
	if !p.BlockFound {
		return Estimate{
			Sats:       0,
			Confidence: 0,
			Method:     MethodSoloWaiting,
			Notes:      "Solo mining pays only when a block is found. No block in this window.",
		}
	}

	if p.BlockSubsidySats <= 0 {
		return Estimate{
			Sats:       0,
			Confidence: 0,
			Method:     MethodInvalidInput,
			Notes:      "Block found but block subsidy is unknown",
		}
	}

	fee := clampFee(p.FeePercent)
	sats := int64(math.Floor(float64(p.BlockSubsidySats) * (1 - fee/100)))
	if sats < 0 {
		sats = 0
	}

	return Estimate{
		Sats:       sats,
		Confidence: 100,
		Method:     MethodSoloBlock,
		Notes:      fmt.Sprintf("Block found. Full subsidy minus %g%% pool fee.", fee),
	}
}

func clampFee(fee float64) float64 {
	if fee < 0 {
		return 0
	}
	if fee > 100 {
		return 100
	}
	return fee
}
