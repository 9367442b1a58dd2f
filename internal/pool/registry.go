package pool

import (
	"fmt"
	"strconv"
	"strings"
)

// PoolConfig is the resolved, possibly user-overridden, pool profile bound to
// one miner's pool slot. This is the shape the HTTP layer serializes, so the
// JSON field names are part of the dashboard contract.
type PoolConfig struct {
	MinerIP               string     `json:"miner_ip"`
	PoolIndex             int        `json:"pool_index"`
	PoolName              string     `json:"pool_name"`
	PoolURL               string     `json:"pool_url"`
	FeePercent            float64    `json:"fee_percent"`
	PayoutType            PayoutType `json:"payout_type"`
	PoolDifficulty        float64    `json:"pool_difficulty"`
	DefaultPort           int        `json:"default_port"`
	IsKnown               bool       `json:"is_known"`
	RequiresConfiguration bool       `json:"requires_configuration"`
	// UserConfigured marks fee/type/difficulty as explicitly set by the user.
	// Resolve never overwrites these unless forced.
	UserConfigured bool `json:"user_configured"`
	// DifficultyDefaulted and FeeDefaulted record whether the value came from
	// a registry fallback rather than the pool or the user. The estimator
	// lowers confidence when they are set.
	DifficultyDefaulted bool `json:"difficulty_defaulted"`
	FeeDefaulted        bool `json:"fee_defaulted"`
}

// FallbackDefaults configure the generic profile returned for unknown pools.
type FallbackDefaults struct {
	FeePercent float64
	PayoutType PayoutType
	Difficulty float64
	Port       int
}

// Registry maps stratum URLs to pool profiles using an explicit, ordered,
// immutable detection table supplied at construction time. It holds no
// mutable state and is safe for concurrent use.
type Registry struct {
	profiles []PoolProfile
	fallback FallbackDefaults
}

// NewRegistry creates a registry from an ordered profile table. Earlier
// entries win when patterns overlap. A zero-valued fallback is filled with
// conservative defaults (2.5% fee, PPS, difficulty 5000, port 3333).
func NewRegistry(profiles []PoolProfile, fallback FallbackDefaults) *Registry {
	if fallback.FeePercent <= 0 {
		fallback.FeePercent = 2.5
	}
	if fallback.PayoutType == "" {
		fallback.PayoutType = PayoutPPS
	}
	if fallback.Difficulty <= 0 {
		fallback.Difficulty = defaultShareDifficulty
	}
	if fallback.Port <= 0 {
		fallback.Port = 3333
	}

	// Copy so callers cannot mutate the table after construction.
	table := make([]PoolProfile, len(profiles))
	copy(table, profiles)

	return &Registry{profiles: table, fallback: fallback}
}

// NewDefaultRegistry creates a registry with the built-in detection table.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultProfiles(), FallbackDefaults{})
}

// Detect classifies a stratum URL into a pool profile. Exact host matches are
// tried across the whole table before substring patterns, so a hostname that
// happens to contain another pool's substring still resolves to its own
// entry. Unknown or unparseable URLs degrade to a custom profile built from
// the fallback defaults; Detect never fails.
func (r *Registry) Detect(poolURL string) PoolProfile {
	host := normalizeHost(poolURL)

	if host != "" {
		for i := range r.profiles {
			for _, h := range r.profiles[i].Hosts {
				if host == h {
					return r.profiles[i]
				}
			}
		}
		for i := range r.profiles {
			if r.profiles[i].matchesHost(host) {
				return r.profiles[i]
			}
		}
	}

	name := "Custom Pool"
	if host != "" {
		name = fmt.Sprintf("Custom Pool (%s)", host)
	}

	return PoolProfile{
		Name:                  name,
		FeePercent:            r.fallback.FeePercent,
		PayoutType:            r.fallback.PayoutType,
		DefaultDifficulty:     r.fallback.Difficulty,
		DefaultPort:           r.fallback.Port,
		IsKnown:               false,
		RequiresConfiguration: true,
	}
}

// Resolve merges a detection result with any stored per-miner configuration.
// User-supplied fields always take precedence over auto-detected values; a
// forced re-detection discards them. Pure function: persisting the result is
// the caller's responsibility.
func (r *Registry) Resolve(minerIP, poolURL string, poolIndex int, stored *PoolConfig, force bool) PoolConfig {
	detected := r.Detect(poolURL)

	cfg := PoolConfig{
		MinerIP:               minerIP,
		PoolIndex:             poolIndex,
		PoolName:              detected.Name,
		PoolURL:               poolURL,
		FeePercent:            detected.FeePercent,
		PayoutType:            detected.PayoutType,
		PoolDifficulty:        detected.DefaultDifficulty,
		DefaultPort:           detected.DefaultPort,
		IsKnown:               detected.IsKnown,
		RequiresConfiguration: detected.RequiresConfiguration,
		DifficultyDefaulted:   true,
		FeeDefaulted:          !detected.IsKnown,
	}

	if stored == nil || force {
		return cfg
	}

	// Pool-reported difficulty survives re-detection even without a user
	// override; it came from the miner, not a default.
	if stored.PoolDifficulty > 0 && !stored.DifficultyDefaulted {
		cfg.PoolDifficulty = stored.PoolDifficulty
		cfg.DifficultyDefaulted = false
	}

	if stored.UserConfigured {
		cfg.PoolName = stored.PoolName
		cfg.FeePercent = stored.FeePercent
		cfg.PayoutType = stored.PayoutType
		if stored.PoolDifficulty > 0 {
			cfg.PoolDifficulty = stored.PoolDifficulty
			cfg.DifficultyDefaulted = false
		}
		cfg.UserConfigured = true
		cfg.FeeDefaulted = false
		cfg.RequiresConfiguration = false
	}

	return cfg
}

// URLInfo holds the components extracted from a pool URL.
type URLInfo struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	URL      string `json:"url"`
}

// ParseURL extracts protocol, host, and port from a pool URL, tolerating the
// partial forms ASIC firmware reports (host:port without a scheme, or a bare
// hostname). It never fails; unparseable input comes back as a stratum+tcp
// URL on the default port.
func ParseURL(poolURL string) URLInfo {
	raw := strings.TrimSpace(poolURL)

	protocol := "stratum+tcp"
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme := strings.ToLower(raw[:idx])
		switch scheme {
		case "stratum+tcp", "stratum+ssl", "stratum":
			protocol = scheme
		}
		rest = raw[idx+3:]
	}

	host := rest
	port := 3333
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		if p, err := strconv.Atoi(rest[idx+1:]); err == nil && p > 0 && p <= 65535 {
			host = rest[:idx]
			port = p
		}
	}
	if idx := strings.IndexAny(host, "/"); idx >= 0 {
		host = host[:idx]
	}

	return URLInfo{
		Protocol: protocol,
		Host:     host,
		Port:     port,
		URL:      fmt.Sprintf("%s://%s:%d", protocol, host, port),
	}
}

// normalizeHost lowercases a pool URL and strips scheme, port, and path,
// leaving just the hostname for pattern matching.
func normalizeHost(poolURL string) string {
	return strings.ToLower(ParseURL(poolURL).Host)
}
