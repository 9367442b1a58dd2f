// Package energy turns power readings into energy cost under a time-of-use
// rate schedule. All calculations take explicit timestamps and windows; the
// package never consults the wall clock, so historical windows are priced
// with the rates that applied at the time.
package energy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate types used in schedules and cost breakdowns.
const (
	RateTypePeak     = "peak"
	RateTypeOffPeak  = "off_peak"
	RateTypeStandard = "standard"
)

// Rate sources reported by RateAt.
const (
	RateSourceSchedule = "schedule"
	RateSourceDefault  = "default"
)

const minutesPerDay = 24 * 60

// RateInterval is one time-of-use band. StartTime and EndTime are "HH:MM"
// local times; matching is start-inclusive, end-exclusive. An EndTime of
// "23:59" is treated as end-of-day inclusive so a band can cover the final
// minute without a phantom unpriced sliver. StartTime after EndTime wraps
// past midnight. An empty Season applies year-round.
type RateInterval struct {
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	RatePerKWh float64 `json:"rate_per_kwh"`
	RateType   string  `json:"rate_type"`
	Season     string  `json:"season,omitempty"`
}

// Seasons.
const (
	SeasonSummer = "summer"
	SeasonWinter = "winter"
)

// SeasonalConfig sets the calendar boundaries between the two rate seasons.
// Dates are month/day pairs; the season switches at local midnight on the
// start day.
type SeasonalConfig struct {
	SummerStartMonth int `json:"summer_start_month"`
	SummerStartDay   int `json:"summer_start_day"`
	WinterStartMonth int `json:"winter_start_month"`
	WinterStartDay   int `json:"winter_start_day"`
}

// DefaultSeasonalConfig is the northern-hemisphere utility default:
// summer rates June 1 through September 30.
func DefaultSeasonalConfig() SeasonalConfig {
	return SeasonalConfig{
		SummerStartMonth: 6,
		SummerStartDay:   1,
		WinterStartMonth: 10,
		WinterStartDay:   1,
	}
}

// Season returns the season in effect on the given date.
func (c SeasonalConfig) Season(t time.Time) string {
	md := int(t.Month())*100 + t.Day()
	summer := c.SummerStartMonth*100 + c.SummerStartDay
	winter := c.WinterStartMonth*100 + c.WinterStartDay

	if summer == winter {
		return SeasonWinter
	}
	if summer < winter {
		if md >= summer && md < winter {
			return SeasonSummer
		}
		return SeasonWinter
	}
	// Southern-hemisphere style: summer wraps the year boundary.
	if md >= summer || md < winter {
		return SeasonSummer
	}
	return SeasonWinter
}

// Schedule is a full time-of-use rate plan. Intervals are consulted in order;
// the first interval matching the timestamp's season and time of day wins.
// Timestamps matching no interval fall back to DefaultRate at RateTypeStandard.
type Schedule struct {
	Intervals   []RateInterval `json:"intervals"`
	Seasonal    SeasonalConfig `json:"seasonal"`
	DefaultRate float64        `json:"default_rate"`
}

// Rate is the price in effect at one instant.
type Rate struct {
	PerKWh   float64 `json:"rate_per_kwh"`
	RateType string  `json:"rate_type"`
	Source   string  `json:"source"`
}

// RateAt resolves the rate in effect at the given timestamp.
func (s *Schedule) RateAt(t time.Time) Rate {
	season := s.Seasonal.Season(t)
	minute := t.Hour()*60 + t.Minute()

	for i := range s.Intervals {
		iv := &s.Intervals[i]
		if iv.Season != "" && iv.Season != season {
			continue
		}
		if iv.containsMinute(minute) {
			rateType := iv.RateType
			if rateType == "" {
				rateType = RateTypeStandard
			}
			return Rate{PerKWh: iv.RatePerKWh, RateType: rateType, Source: RateSourceSchedule}
		}
	}

	return Rate{PerKWh: s.DefaultRate, RateType: RateTypeStandard, Source: RateSourceDefault}
}

// Validate checks every interval for parseable times and a sane rate.
func (s *Schedule) Validate() error {
	for i := range s.Intervals {
		iv := &s.Intervals[i]
		if _, err := parseClock(iv.StartTime); err != nil {
			return fmt.Errorf("interval %d: invalid start time %q: %w", i, iv.StartTime, err)
		}
		if _, err := parseClock(iv.EndTime); err != nil {
			return fmt.Errorf("interval %d: invalid end time %q: %w", i, iv.EndTime, err)
		}
		if iv.RatePerKWh < 0 {
			return fmt.Errorf("interval %d: negative rate %g", i, iv.RatePerKWh)
		}
		switch iv.Season {
		case "", SeasonSummer, SeasonWinter:
		default:
			return fmt.Errorf("interval %d: unknown season %q", i, iv.Season)
		}
	}
	if s.DefaultRate < 0 {
		return fmt.Errorf("negative default rate %g", s.DefaultRate)
	}
	return nil
}

// boundaryMinutes returns the sorted, deduplicated set of minutes-of-day at
// which the applicable rate can change. Midnight is always a boundary because
// the season can flip there.
func (s *Schedule) boundaryMinutes() []int {
	seen := map[int]bool{0: true}
	for i := range s.Intervals {
		iv := &s.Intervals[i]
		if start, err := parseClock(iv.StartTime); err == nil {
			seen[start] = true
		}
		if end, err := parseClock(iv.EndTime); err == nil {
			if iv.endOfDay() {
				end = 0 // rolls into the midnight boundary
			}
			seen[end] = true
		}
	}

	minutes := make([]int, 0, len(seen))
	for m := range seen {
		minutes = append(minutes, m)
	}
	for i := 1; i < len(minutes); i++ {
		for j := i; j > 0 && minutes[j] < minutes[j-1]; j-- {
			minutes[j], minutes[j-1] = minutes[j-1], minutes[j]
		}
	}
	return minutes
}

func (iv *RateInterval) endOfDay() bool {
	return iv.EndTime == "23:59"
}

// containsMinute reports whether the interval covers the given minute of day.
// Start-inclusive, end-exclusive, except the 23:59 end-of-day form which
// covers through the last minute.
func (iv *RateInterval) containsMinute(minute int) bool {
	start, err := parseClock(iv.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(iv.EndTime)
	if err != nil {
		return false
	}
	if iv.endOfDay() {
		end = minutesPerDay
	}

	if start <= end {
		return minute >= start && minute < end
	}
	// Wraps past midnight, e.g. 21:00-07:00.
	return minute >= start || minute < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute in %q", clock)
	}
	return hour*60 + minute, nil
}
