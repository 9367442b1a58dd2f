// Package log provides structured logging utilities for fleetd services.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithMiner returns a logger with miner-specific fields
func (l *Logger) WithMiner(minerIP string) *Logger {
	return l.WithFields("miner_ip", minerIP)
}

// WithPool returns a logger with pool-specific fields
func (l *Logger) WithPool(poolName string, payoutType string) *Logger {
	return l.WithFields("pool_name", poolName, "payout_type", payoutType)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Domain logging helpers

// LogPoolDetected logs a pool detection result
func (l *Logger) LogPoolDetected(minerIP, poolName string, known bool) {
	l.Info("pool detected",
		"miner_ip", minerIP,
		"pool_name", poolName,
		"is_known", known,
	)
}

// LogEstimate logs an earnings estimate
func (l *Logger) LogEstimate(minerIP string, sats int64, confidence int, method string) {
	l.Info("earnings estimate",
		"miner_ip", minerIP,
		"sats", sats,
		"confidence", confidence,
		"method", method,
	)
}

// LogEnergyCost logs an energy cost calculation
func (l *Logger) LogEnergyCost(minerIP string, kwh, cost float64) {
	l.Info("energy cost",
		"miner_ip", minerIP,
		"kwh", kwh,
		"cost_usd", cost,
	)
}

// LogSnapshot logs a profitability snapshot
func (l *Logger) LogSnapshot(revenueUSD, costUSD, profitUSD float64, confidence int) {
	l.Info("profitability snapshot",
		"revenue_usd", revenueUSD,
		"cost_usd", costUSD,
		"profit_usd", profitUSD,
		"confidence", confidence,
	)
}

// LogBlockSeen logs a new block notification
func (l *Logger) LogBlockSeen(blockHash string, height int64) {
	l.Info("block seen",
		"block_hash", blockHash,
		"block_height", height,
	)
}

// LogChainData logs refreshed network parameters
func (l *Logger) LogChainData(btcPrice, difficulty float64, height int64, subsidyBTC float64) {
	l.Info("chain data refreshed",
		"btc_price_usd", btcPrice,
		"network_difficulty", difficulty,
		"block_height", height,
		"block_subsidy_btc", subsidyBTC,
	)
}
