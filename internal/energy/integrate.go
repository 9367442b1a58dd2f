package energy

import (
	"sort"
	"time"
)

// DefaultMaxSampleGap is the longest gap between consecutive power readings
// that still counts as continuous operation. Miners poll every few seconds to
// a few minutes; anything beyond this means the miner or the poller was down.
const DefaultMaxSampleGap = 10 * time.Minute

// PowerReading is one sampled power draw.
type PowerReading struct {
	Timestamp time.Time `json:"timestamp"`
	Watts     float64   `json:"watts"`
}

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length, or 0 for an inverted window.
func (w Window) Duration() time.Duration {
	if !w.End.After(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// RateUsage is the consumption and cost attributed to one rate type.
type RateUsage struct {
	KWh     float64 `json:"kwh"`
	CostUSD float64 `json:"cost_usd"`
}

// CostResult is the priced consumption for a window.
type CostResult struct {
	KWh           float64              `json:"kwh"`
	CostUSD       float64              `json:"cost_usd"`
	AvgRatePerKWh float64              `json:"avg_rate_per_kwh"`
	Breakdown     map[string]RateUsage `json:"breakdown"`
	// Confidence is 100 when every priced span matched the schedule and
	// drops as more of the energy fell through to the default rate.
	Confidence int `json:"confidence"`
}

// Engine integrates power readings into kWh and prices them against a
// schedule. Stateless apart from its gap threshold; safe for concurrent use.
type Engine struct {
	maxSampleGap time.Duration
}

// NewEngine creates an engine. A non-positive maxSampleGap selects
// DefaultMaxSampleGap.
func NewEngine(maxSampleGap time.Duration) *Engine {
	if maxSampleGap <= 0 {
		maxSampleGap = DefaultMaxSampleGap
	}
	return &Engine{maxSampleGap: maxSampleGap}
}

// span is a stretch of time carrying one reading's power draw.
type span struct {
	start, end time.Time
	watts      float64
}

// spans converts readings into left-rectangle spans clipped to the window.
// Each reading's draw is held until the next reading. Gaps longer than the
// sample-gap threshold are dropped entirely rather than bridged, so an
// offline miner accrues no phantom consumption.
func (e *Engine) spans(readings []PowerReading, w Window) []span {
	if len(readings) == 0 || w.Duration() == 0 {
		return nil
	}

	sorted := readings
	if !sort.SliceIsSorted(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	}) {
		sorted = make([]PowerReading, len(readings))
		copy(sorted, readings)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
	}

	out := make([]span, 0, len(sorted))
	for i := range sorted {
		r := sorted[i]
		if !r.Timestamp.Before(w.End) {
			break
		}

		end := w.End
		if i+1 < len(sorted) {
			end = sorted[i+1].Timestamp
		}
		// Gap measured between raw sample times, before window clipping.
		if end.Sub(r.Timestamp) > e.maxSampleGap {
			continue
		}

		start := r.Timestamp
		if start.Before(w.Start) {
			start = w.Start
		}
		if end.After(w.End) {
			end = w.End
		}
		if !end.After(start) {
			continue
		}

		watts := r.Watts
		if watts < 0 {
			watts = 0
		}
		out = append(out, span{start: start, end: end, watts: watts})
	}
	return out
}

// IntegrateConsumption computes kWh consumed inside the window using
// left-rectangle integration over the readings.
func (e *Engine) IntegrateConsumption(readings []PowerReading, w Window) float64 {
	var kwh float64
	for _, s := range e.spans(readings, w) {
		kwh += s.watts / 1000 * s.end.Sub(s.start).Hours()
	}
	return kwh
}

// CostForWindow integrates consumption and prices it against the schedule,
// cutting each span wherever the applicable rate can change so that a span
// straddling a peak boundary is billed partly at each rate.
func (e *Engine) CostForWindow(readings []PowerReading, schedule *Schedule, w Window) CostResult {
	result := CostResult{
		Breakdown:  make(map[string]RateUsage),
		Confidence: 100,
	}

	bounds := schedule.boundaryMinutes()
	var defaultKWh float64

	for _, s := range e.spans(readings, w) {
		cur := s.start
		for cur.Before(s.end) {
			cut := nextBoundaryAfter(cur, bounds)
			if cut.After(s.end) {
				cut = s.end
			}

			kwh := s.watts / 1000 * cut.Sub(cur).Hours()
			rate := schedule.RateAt(cur)
			cost := kwh * rate.PerKWh

			result.KWh += kwh
			result.CostUSD += cost
			usage := result.Breakdown[rate.RateType]
			usage.KWh += kwh
			usage.CostUSD += cost
			result.Breakdown[rate.RateType] = usage
			if rate.Source == RateSourceDefault {
				defaultKWh += kwh
			}

			cur = cut
		}
	}

	if result.KWh > 0 {
		result.AvgRatePerKWh = result.CostUSD / result.KWh
		if defaultKWh > 0 {
			result.Confidence = 100 - int(50*defaultKWh/result.KWh+0.5)
		}
	}
	return result
}

// nextBoundaryAfter returns the first rate boundary strictly after t.
// bounds is the sorted minutes-of-day set and always contains 0, so the
// fallback is midnight of the next day.
func nextBoundaryAfter(t time.Time, bounds []int) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for _, m := range bounds {
		bt := midnight.Add(time.Duration(m) * time.Minute)
		if bt.After(t) {
			return bt
		}
	}
	return midnight.AddDate(0, 0, 1)
}
