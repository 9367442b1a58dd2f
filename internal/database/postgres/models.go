package postgres

import (
	"time"
)

// ProfitabilityLogRow is a row in the profitability_log table, one computed
// snapshot per miner and window.
type ProfitabilityLogRow struct {
	ID                int64     `json:"id"`
	MinerIP           string    `json:"miner_ip"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	SatsEarned        int64     `json:"sats_earned"`
	KWh               float64   `json:"kwh"`
	RevenueUSD        float64   `json:"revenue_usd"`
	CostUSD           float64   `json:"cost_usd"`
	ProfitUSD         float64   `json:"profit_usd"`
	MarginPercent     float64   `json:"margin_percent"`
	BreakEvenBTCPrice *float64  `json:"break_even_btc_price"`
	Confidence        int       `json:"confidence"`
	BTCPriceUSD       float64   `json:"btc_price_usd"`
	CreatedAt         time.Time `json:"created_at"`
}
