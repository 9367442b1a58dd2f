// Package pool classifies stratum pool URLs into payout profiles and resolves
// per-miner pool configurations. Detection is a pure mapping: unknown or
// unparseable URLs degrade to a custom fallback profile instead of failing,
// since the fleet must keep producing estimates for any pool.
package pool

import "strings"

// PayoutType identifies the payout scheme a pool uses. It drives which
// earnings formula applies and how much statistical trust the estimate gets.
type PayoutType string

const (
	// PayoutFPPS - full pay per share, subsidy plus transaction fees folded
	// into the pool's stated rate
	PayoutFPPS PayoutType = "FPPS"
	// PayoutFPPSPlus - FPPS with an explicit transaction-fee component on top
	// of the base subsidy
	PayoutFPPSPlus PayoutType = "FPPS+"
	// PayoutPPS - pay per share, block subsidy only
	PayoutPPS PayoutType = "PPS"
	// PayoutPPSPlus - PPS plus a share of transaction fees
	PayoutPPSPlus PayoutType = "PPS+"
	// PayoutPPLNS - pay per last N shares; payout depends on pool luck over
	// the scoring window
	PayoutPPLNS PayoutType = "PPLNS"
	// PayoutSolo - payout only when the miner's pool finds a block
	PayoutSolo PayoutType = "SOLO"
	// PayoutTides - Ocean's TIDES scheme, FPPS+-like for estimation purposes
	PayoutTides PayoutType = "TIDES"
	// PayoutCustom - unknown pool, estimated with configurable defaults
	PayoutCustom PayoutType = "CUSTOM"
)

// Deterministic reports whether the payout type gives each share a fixed
// expected value independent of pool luck.
func (p PayoutType) Deterministic() bool {
	switch p {
	case PayoutFPPS, PayoutFPPSPlus, PayoutPPS, PayoutPPSPlus, PayoutTides:
		return true
	}
	return false
}

// IncludesTxFees reports whether the payout adds a transaction-fee component
// on top of the base block subsidy.
func (p PayoutType) IncludesTxFees() bool {
	return p == PayoutFPPSPlus || p == PayoutTides
}

// ParsePayoutType normalizes a stored payout-type string. Unrecognized values
// map to CUSTOM rather than failing.
func ParsePayoutType(s string) PayoutType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FPPS":
		return PayoutFPPS
	case "FPPS+", "FPPS_PLUS", "FPPSPLUS":
		return PayoutFPPSPlus
	case "PPS":
		return PayoutPPS
	case "PPS+", "PPS_PLUS", "PPSPLUS":
		return PayoutPPSPlus
	case "PPLNS", "PROP", "SCORE":
		return PayoutPPLNS
	case "SOLO":
		return PayoutSolo
	case "TIDES":
		return PayoutTides
	default:
		return PayoutCustom
	}
}

// PoolProfile is the identity of a mining pool: its URL patterns, fee, payout
// scheme, and default share difficulty.
//
// Pattern matching rules: Hosts entries must equal the normalized hostname
// exactly and are checked for every profile before any substring pattern.
// Patterns entries match as substrings of the hostname; a leading '^' anchors
// the pattern to the start of the hostname. Table order encodes precedence
// for overlapping substrings.
type PoolProfile struct {
	Name                  string     `json:"pool_name"`
	Hosts                 []string   `json:"-"`
	Patterns              []string   `json:"-"`
	FeePercent            float64    `json:"fee_percent"`
	PayoutType            PayoutType `json:"payout_type"`
	DefaultDifficulty     float64    `json:"default_difficulty"`
	DefaultPort           int        `json:"default_port"`
	IsKnown               bool       `json:"is_known"`
	RequiresConfiguration bool       `json:"requires_configuration"`
}

// matchesHost reports whether the profile claims the given normalized host.
// Exact host matches are handled separately by the registry.
func (p *PoolProfile) matchesHost(host string) bool {
	for _, pat := range p.Patterns {
		if anchored, ok := strings.CutPrefix(pat, "^"); ok {
			if strings.HasPrefix(host, anchored) {
				return true
			}
			continue
		}
		if strings.Contains(host, pat) {
			return true
		}
	}
	return false
}

// defaultShareDifficulty is used when a profile does not carry its own and
// the miner has not reported one. Typical pool-assigned share difficulty for
// small home ASICs.
const defaultShareDifficulty = 5000

// DefaultProfiles returns the ordered built-in detection table. Profiles
// whose hostnames could shadow another pool's (solo.ckpool.org vs
// pool.ckpool.org) are listed before the broader entry so first-match-wins
// ordering stays correct.
func DefaultProfiles() []PoolProfile {
	return []PoolProfile{
		{
			Name:              "Braiins Pool",
			// slushpool.com is the pre-rebrand hostname; miners configured
			// years ago still point at it.
			Patterns:          []string{"braiins.com", "slushpool.com"},
			FeePercent:        2.5,
			PayoutType:        PayoutFPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Ocean",
			Patterns:          []string{"ocean.xyz"},
			FeePercent:        2.0,
			PayoutType:        PayoutTides,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3334,
			IsKnown:           true,
		},
		{
			Name:              "Public Pool",
			Patterns:          []string{"public-pool.io"},
			FeePercent:        0.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       21496,
			IsKnown:           true,
		},
		{
			Name:              "Foundry USA",
			Patterns:          []string{"foundry"},
			FeePercent:        0.0,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "F2Pool",
			Patterns:          []string{"f2pool.com"},
			FeePercent:        2.5,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "AntPool",
			Patterns:          []string{"antpool.com"},
			FeePercent:        2.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "ViaBTC",
			Patterns:          []string{"viabtc.com"},
			FeePercent:        4.0,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Poolin",
			Patterns:          []string{"poolin.com"},
			FeePercent:        2.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Luxor",
			Patterns:          []string{"luxor.tech"},
			FeePercent:        0.0,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			// "viabtc.com" contains "btc.com", so ViaBTC must stay above
			// this entry.
			Name:              "BTC.com",
			Patterns:          []string{"btc.com"},
			FeePercent:        1.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "MARA Pool",
			Patterns:          []string{"marapool", "marathondigital"},
			FeePercent:        0.0,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Binance Pool",
			Hosts:             []string{"pool.binance.com"},
			Patterns:          []string{"binance"},
			FeePercent:        2.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			// Listed before CKPool so the solo variant wins the substring race.
			Name:              "Solo CK Pool",
			Hosts:             []string{"solo.ckpool.org"},
			Patterns:          []string{"solo.ckpool"},
			FeePercent:        2.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Kano CKPool",
			Patterns:          []string{"kano.is"},
			FeePercent:        0.9,
			PayoutType:        PayoutPPLNS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "CKPool",
			Hosts:             []string{"pool.ckpool.org"},
			Patterns:          []string{"ckpool.org"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPLNS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "EMCD",
			Patterns:          []string{"emcd.io"},
			FeePercent:        1.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "NiceHash",
			Patterns:          []string{"nicehash.com"},
			FeePercent:        2.0,
			PayoutType:        PayoutPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3334,
			IsKnown:           true,
		},
		{
			Name:              "SpiderPool",
			Patterns:          []string{"spiderpool.com"},
			FeePercent:        2.0,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Rawpool",
			Patterns:          []string{"rawpool.com"},
			FeePercent:        3.5,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "SigmaPool",
			Patterns:          []string{"sigmapool.com"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Mining Dutch",
			Patterns:          []string{"mining-dutch.nl"},
			FeePercent:        2.0,
			PayoutType:        PayoutPPLNS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "LuckPool",
			Patterns:          []string{"luckpool.net"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPLNS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "BitAxe Pool",
			Patterns:          []string{"pool.bitaxe.org"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPLNS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Zpool",
			Patterns:          []string{"zpool.ca"},
			FeePercent:        2.0,
			PayoutType:        PayoutPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Cruxpool",
			Patterns:          []string{"cruxpool.com"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "TrustPool",
			Patterns:          []string{"trustpool.cc"},
			FeePercent:        1.0,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "BitFuFu",
			Patterns:          []string{"bitfufu.com"},
			FeePercent:        2.5,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Hashlabs",
			Patterns:          []string{"hashlabs.io"},
			FeePercent:        2.0,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Solo Mining Pool",
			Patterns:          []string{"solomining.io"},
			FeePercent:        2.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "SoloPool.org",
			Patterns:          []string{"solopool.org"},
			FeePercent:        2.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "Kryptex",
			Patterns:          []string{"kryptex.network"},
			FeePercent:        3.0,
			PayoutType:        PayoutPPSPlus,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "DEMAND Pool",
			Patterns:          []string{"dmnd.work"},
			FeePercent:        0.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			Name:              "ECOS Pool",
			Patterns:          []string{"ecos.am"},
			FeePercent:        0.25,
			PayoutType:        PayoutFPPS,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       3333,
			IsKnown:           true,
		},
		{
			// Local node or LAN-hosted stratum: treated as solo mining.
			Name:              "Localhost (Solo)",
			Hosts:             []string{"localhost", "127.0.0.1"},
			Patterns:          []string{"^192.168.", "^10."},
			FeePercent:        0.0,
			PayoutType:        PayoutSolo,
			DefaultDifficulty: defaultShareDifficulty,
			DefaultPort:       8332,
			IsKnown:           true,
		},
	}
}
