package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServiceName != "fleetd" {
		t.Errorf("ServiceName = %q, want fleetd", cfg.ServiceName)
	}
	if cfg.ListenPort != 8090 {
		t.Errorf("ListenPort = %d, want 8090", cfg.ListenPort)
	}
	if cfg.FallbackPoolFee != 2.5 {
		t.Errorf("FallbackPoolFee = %v, want 2.5", cfg.FallbackPoolFee)
	}
	if cfg.FallbackPayoutType != "PPS" {
		t.Errorf("FallbackPayoutType = %q, want PPS", cfg.FallbackPayoutType)
	}
	if cfg.MaxSampleGap != 10*time.Minute {
		t.Errorf("MaxSampleGap = %v, want 10m", cfg.MaxSampleGap)
	}
	if cfg.ChainCacheTTL != 5*time.Minute {
		t.Errorf("ChainCacheTTL = %v, want 5m", cfg.ChainCacheTTL)
	}
	if cfg.HasBitcoinRPC() {
		t.Error("HasBitcoinRPC() = true without host/user configured")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "fleetd-test")
	t.Setenv("LISTEN_PORT", "9999")
	t.Setenv("FALLBACK_POOL_FEE", "1.0")
	t.Setenv("TX_FEE_UPLIFT_PERCENT", "3.5")
	t.Setenv("MAX_SAMPLE_GAP", "2m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BITCOIN_RPC_HOST", "10.0.0.2")
	t.Setenv("BITCOIN_RPC_USER", "fleet")
	t.Setenv("SOLO_PAYOUT_ADDRESSES", "bc1qone,bc1qtwo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServiceName != "fleetd-test" {
		t.Errorf("ServiceName = %q, want fleetd-test", cfg.ServiceName)
	}
	if cfg.ListenPort != 9999 {
		t.Errorf("ListenPort = %d, want 9999", cfg.ListenPort)
	}
	if cfg.FallbackPoolFee != 1.0 {
		t.Errorf("FallbackPoolFee = %v, want 1.0", cfg.FallbackPoolFee)
	}
	if cfg.TxFeeUpliftPercent != 3.5 {
		t.Errorf("TxFeeUpliftPercent = %v, want 3.5", cfg.TxFeeUpliftPercent)
	}
	if cfg.MaxSampleGap != 2*time.Minute {
		t.Errorf("MaxSampleGap = %v, want 2m", cfg.MaxSampleGap)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v, want [k1:9092 k2:9092]", cfg.KafkaBrokers)
	}
	if !cfg.HasBitcoinRPC() {
		t.Error("HasBitcoinRPC() = false with host and user configured")
	}
	if len(cfg.SoloPayoutAddresses) != 2 || cfg.SoloPayoutAddresses[1] != "bc1qtwo" {
		t.Errorf("SoloPayoutAddresses = %v, want [bc1qone bc1qtwo]", cfg.SoloPayoutAddresses)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LISTEN_PORT", "not-a-number")
	t.Setenv("FALLBACK_POOL_FEE", "lots")
	t.Setenv("MAX_SAMPLE_GAP", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenPort != 8090 {
		t.Errorf("Unparseable LISTEN_PORT should keep default, got %d", cfg.ListenPort)
	}
	if cfg.FallbackPoolFee != 2.5 {
		t.Errorf("Unparseable FALLBACK_POOL_FEE should keep default, got %v", cfg.FallbackPoolFee)
	}
	if cfg.MaxSampleGap != 10*time.Minute {
		t.Errorf("Unparseable MAX_SAMPLE_GAP should keep default, got %v", cfg.MaxSampleGap)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port too high", "LISTEN_PORT", "70000"},
		{"port zero", "LISTEN_PORT", "0"},
		{"fee over 100", "FALLBACK_POOL_FEE", "150"},
		{"negative fee", "FALLBACK_POOL_FEE", "-1"},
		{"zero difficulty", "FALLBACK_POOL_DIFFICULTY", "0"},
		{"uplift over 100", "TX_FEE_UPLIFT_PERCENT", "200"},
		{"negative energy rate", "DEFAULT_ENERGY_RATE", "-0.10"},
		{"zero sample gap", "MAX_SAMPLE_GAP", "0s"},
		{"zero cache ttl", "CHAIN_CACHE_TTL", "0s"},
		{"zero solo retention", "SOLO_MARKER_RETENTION", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s expected validation error", tt.key, tt.value)
			}
		})
	}
}
