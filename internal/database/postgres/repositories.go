package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dirtysats/fleetd/internal/energy"
	"github.com/dirtysats/fleetd/internal/pool"
	"github.com/dirtysats/fleetd/internal/profit"
)

// PoolConfigRepository persists resolved pool configurations.
type PoolConfigRepository struct {
	client *Client
}

// NewPoolConfigRepository creates a pool config repository.
func NewPoolConfigRepository(client *Client) *PoolConfigRepository {
	return &PoolConfigRepository{client: client}
}

// Upsert saves a pool configuration keyed by miner IP and pool index.
func (r *PoolConfigRepository) Upsert(ctx context.Context, cfg pool.PoolConfig) error {
	query := `
		INSERT INTO pool_configs (
			miner_ip, pool_index, pool_name, pool_url, fee_percent, payout_type,
			pool_difficulty, default_port, is_known, requires_configuration,
			user_configured, difficulty_defaulted, fee_defaulted, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (miner_ip, pool_index) DO UPDATE SET
			pool_name = EXCLUDED.pool_name,
			pool_url = EXCLUDED.pool_url,
			fee_percent = EXCLUDED.fee_percent,
			payout_type = EXCLUDED.payout_type,
			pool_difficulty = EXCLUDED.pool_difficulty,
			default_port = EXCLUDED.default_port,
			is_known = EXCLUDED.is_known,
			requires_configuration = EXCLUDED.requires_configuration,
			user_configured = EXCLUDED.user_configured,
			difficulty_defaulted = EXCLUDED.difficulty_defaulted,
			fee_defaulted = EXCLUDED.fee_defaulted,
			updated_at = EXCLUDED.updated_at`

	_, err := r.client.db.ExecContext(ctx, query,
		cfg.MinerIP, cfg.PoolIndex, cfg.PoolName, cfg.PoolURL, cfg.FeePercent,
		string(cfg.PayoutType), cfg.PoolDifficulty, cfg.DefaultPort, cfg.IsKnown,
		cfg.RequiresConfiguration, cfg.UserConfigured, cfg.DifficultyDefaulted,
		cfg.FeeDefaulted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert pool config: %w", err)
	}
	return nil
}

// Get loads the stored configuration for one miner and pool slot. Returns
// (nil, nil) when nothing is stored.
func (r *PoolConfigRepository) Get(ctx context.Context, minerIP string, poolIndex int) (*pool.PoolConfig, error) {
	query := `
		SELECT miner_ip, pool_index, pool_name, pool_url, fee_percent, payout_type,
		       pool_difficulty, default_port, is_known, requires_configuration,
		       user_configured, difficulty_defaulted, fee_defaulted
		FROM pool_configs
		WHERE miner_ip = $1 AND pool_index = $2`

	var cfg pool.PoolConfig
	var payoutType string
	err := r.client.db.QueryRowContext(ctx, query, minerIP, poolIndex).Scan(
		&cfg.MinerIP, &cfg.PoolIndex, &cfg.PoolName, &cfg.PoolURL, &cfg.FeePercent,
		&payoutType, &cfg.PoolDifficulty, &cfg.DefaultPort, &cfg.IsKnown,
		&cfg.RequiresConfiguration, &cfg.UserConfigured, &cfg.DifficultyDefaulted,
		&cfg.FeeDefaulted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool config: %w", err)
	}

	cfg.PayoutType = pool.PayoutType(payoutType)
	return &cfg, nil
}

// List returns all stored pool configurations ordered by miner.
func (r *PoolConfigRepository) List(ctx context.Context) ([]pool.PoolConfig, error) {
	query := `
		SELECT miner_ip, pool_index, pool_name, pool_url, fee_percent, payout_type,
		       pool_difficulty, default_port, is_known, requires_configuration,
		       user_configured, difficulty_defaulted, fee_defaulted
		FROM pool_configs
		ORDER BY miner_ip, pool_index`

	rows, err := r.client.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []pool.PoolConfig
	for rows.Next() {
		var cfg pool.PoolConfig
		var payoutType string
		if err := rows.Scan(
			&cfg.MinerIP, &cfg.PoolIndex, &cfg.PoolName, &cfg.PoolURL, &cfg.FeePercent,
			&payoutType, &cfg.PoolDifficulty, &cfg.DefaultPort, &cfg.IsKnown,
			&cfg.RequiresConfiguration, &cfg.UserConfigured, &cfg.DifficultyDefaulted,
			&cfg.FeeDefaulted); err != nil {
			return nil, fmt.Errorf("failed to scan pool config: %w", err)
		}
		cfg.PayoutType = pool.PayoutType(payoutType)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Delete removes a stored configuration, reverting the slot to auto-detection.
func (r *PoolConfigRepository) Delete(ctx context.Context, minerIP string, poolIndex int) error {
	_, err := r.client.db.ExecContext(ctx,
		`DELETE FROM pool_configs WHERE miner_ip = $1 AND pool_index = $2`,
		minerIP, poolIndex)
	if err != nil {
		return fmt.Errorf("failed to delete pool config: %w", err)
	}
	return nil
}

// EnergyRateRepository persists the time-of-use rate schedule.
type EnergyRateRepository struct {
	client *Client
}

// NewEnergyRateRepository creates an energy rate repository.
func NewEnergyRateRepository(client *Client) *EnergyRateRepository {
	return &EnergyRateRepository{client: client}
}

// ReplaceIntervals swaps the entire rate table for a new ordered set of
// bands. Replacing wholesale keeps the table ordering authoritative.
func (r *EnergyRateRepository) ReplaceIntervals(ctx context.Context, intervals []energy.RateInterval) error {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM energy_rates`); err != nil {
		return fmt.Errorf("failed to clear energy rates: %w", err)
	}

	for i, iv := range intervals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO energy_rates (start_time, end_time, rate_per_kwh, rate_type, season, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			iv.StartTime, iv.EndTime, iv.RatePerKWh, iv.RateType, iv.Season, i)
		if err != nil {
			return fmt.Errorf("failed to insert energy rate: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSchedule assembles a schedule from the stored rate bands and seasonal
// boundaries. defaultRate applies to times no band covers.
func (r *EnergyRateRepository) LoadSchedule(ctx context.Context, defaultRate float64) (*energy.Schedule, error) {
	rows, err := r.client.db.QueryContext(ctx, `
		SELECT start_time, end_time, rate_per_kwh, rate_type, season
		FROM energy_rates
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to load energy rates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var intervals []energy.RateInterval
	for rows.Next() {
		var iv energy.RateInterval
		if err := rows.Scan(&iv.StartTime, &iv.EndTime, &iv.RatePerKWh, &iv.RateType, &iv.Season); err != nil {
			return nil, fmt.Errorf("failed to scan energy rate: %w", err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seasonal, err := r.loadSeasonal(ctx)
	if err != nil {
		return nil, err
	}

	return &energy.Schedule{
		Intervals:   intervals,
		Seasonal:    seasonal,
		DefaultRate: defaultRate,
	}, nil
}

// SaveSeasonal stores the seasonal boundaries.
func (r *EnergyRateRepository) SaveSeasonal(ctx context.Context, cfg energy.SeasonalConfig) error {
	_, err := r.client.db.ExecContext(ctx, `
		INSERT INTO seasonal_config (id, summer_start_month, summer_start_day, winter_start_month, winter_start_day)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			summer_start_month = EXCLUDED.summer_start_month,
			summer_start_day = EXCLUDED.summer_start_day,
			winter_start_month = EXCLUDED.winter_start_month,
			winter_start_day = EXCLUDED.winter_start_day`,
		cfg.SummerStartMonth, cfg.SummerStartDay, cfg.WinterStartMonth, cfg.WinterStartDay)
	if err != nil {
		return fmt.Errorf("failed to save seasonal config: %w", err)
	}
	return nil
}

func (r *EnergyRateRepository) loadSeasonal(ctx context.Context) (energy.SeasonalConfig, error) {
	var cfg energy.SeasonalConfig
	err := r.client.db.QueryRowContext(ctx, `
		SELECT summer_start_month, summer_start_day, winter_start_month, winter_start_day
		FROM seasonal_config WHERE id = 1`).Scan(
		&cfg.SummerStartMonth, &cfg.SummerStartDay, &cfg.WinterStartMonth, &cfg.WinterStartDay)
	if err == sql.ErrNoRows {
		return energy.DefaultSeasonalConfig(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load seasonal config: %w", err)
	}
	return cfg, nil
}

// ProfitabilityRepository persists computed snapshots for history queries.
type ProfitabilityRepository struct {
	client *Client
}

// NewProfitabilityRepository creates a profitability repository.
func NewProfitabilityRepository(client *Client) *ProfitabilityRepository {
	return &ProfitabilityRepository{client: client}
}

// Insert logs one snapshot.
func (r *ProfitabilityRepository) Insert(ctx context.Context, minerIP string, windowStart, windowEnd time.Time, btcPriceUSD float64, snap profit.Snapshot) error {
	_, err := r.client.db.ExecContext(ctx, `
		INSERT INTO profitability_log (
			miner_ip, window_start, window_end, sats_earned, kwh,
			revenue_usd, cost_usd, profit_usd, margin_percent,
			break_even_btc_price, confidence, btc_price_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		minerIP, windowStart, windowEnd, snap.SatsEarned, snap.KWh,
		snap.RevenueUSD, snap.CostUSD, snap.ProfitUSD, snap.MarginPercent,
		snap.BreakEvenBTCPrice, snap.Confidence, btcPriceUSD, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert profitability log: %w", err)
	}
	return nil
}

// Recent returns the most recent snapshots for a miner, newest first.
func (r *ProfitabilityRepository) Recent(ctx context.Context, minerIP string, limit int) ([]ProfitabilityLogRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.client.db.QueryContext(ctx, `
		SELECT id, miner_ip, window_start, window_end, sats_earned, kwh,
		       revenue_usd, cost_usd, profit_usd, margin_percent,
		       break_even_btc_price, confidence, btc_price_usd, created_at
		FROM profitability_log
		WHERE miner_ip = $1
		ORDER BY window_end DESC
		LIMIT $2`, minerIP, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query profitability log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProfitabilityLogRow
	for rows.Next() {
		var row ProfitabilityLogRow
		if err := rows.Scan(
			&row.ID, &row.MinerIP, &row.WindowStart, &row.WindowEnd, &row.SatsEarned,
			&row.KWh, &row.RevenueUSD, &row.CostUSD, &row.ProfitUSD, &row.MarginPercent,
			&row.BreakEvenBTCPrice, &row.Confidence, &row.BTCPriceUSD, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profitability log: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
