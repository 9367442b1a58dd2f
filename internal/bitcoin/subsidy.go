package bitcoin

import (
	"github.com/btcsuite/btcd/btcutil"
)

// HalvingInterval is the number of blocks between subsidy halvings.
const HalvingInterval = 210_000

// initialSubsidy is the genesis block subsidy of 50 BTC in satoshis.
const initialSubsidy = btcutil.Amount(50 * btcutil.SatoshiPerBitcoin)

// HalvingEpoch returns the halving epoch for a block height, starting at 0.
func HalvingEpoch(height int64) int64 {
	if height < 0 {
		return 0
	}
	return height / HalvingInterval
}

// SubsidyAtHeight returns the block subsidy at the given height. The subsidy
// halves every epoch and hits zero after 64 halvings, matching consensus.
func SubsidyAtHeight(height int64) btcutil.Amount {
	epoch := HalvingEpoch(height)
	if epoch >= 64 {
		return 0
	}
	return initialSubsidy >> uint(epoch)
}

// SubsidyBTC returns the block subsidy at the given height in BTC.
func SubsidyBTC(height int64) float64 {
	return SubsidyAtHeight(height).ToBTC()
}

// BlocksToHalving returns how many blocks remain until the next halving.
func BlocksToHalving(height int64) int64 {
	if height < 0 {
		return HalvingInterval
	}
	return HalvingInterval - height%HalvingInterval
}
