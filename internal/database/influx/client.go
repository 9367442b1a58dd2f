// Package influx provides InfluxDB time-series storage for fleetd. It holds
// the raw miner samples (share counters, hashrate, power draw) that the
// earnings and energy engines integrate over.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dirtysats/fleetd/internal/energy"
)

// Client wraps InfluxDB operations for time-series samples
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// Sample writes

// WriteMinerSample writes one polled miner observation.
func (c *Client) WriteMinerSample(minerIP string, sharesAccepted, sharesRejected int64, hashrateHS, powerWatts float64, sampledAt time.Time) {
	tags := map[string]string{
		"miner_ip": minerIP,
	}

	fields := map[string]interface{}{
		"shares_accepted": sharesAccepted,
		"shares_rejected": sharesRejected,
		"hashrate_hs":     hashrateHS,
		"power_watts":     powerWatts,
	}

	point := write.NewPoint("miner_samples", tags, fields, sampledAt)
	c.writeAPI.WritePoint(point)
}

// WriteEstimateMetric writes a computed earnings estimate for history charts.
func (c *Client) WriteEstimateMetric(minerIP, poolName, method string, sats int64, confidence int, at time.Time) {
	tags := map[string]string{
		"miner_ip":  minerIP,
		"pool_name": poolName,
		"method":    method,
	}

	fields := map[string]interface{}{
		"sats":       sats,
		"confidence": confidence,
	}

	point := write.NewPoint("estimates", tags, fields, at)
	c.writeAPI.WritePoint(point)
}

// Query methods

// GetPowerReadings retrieves power draw samples for a miner inside a window,
// in the shape the energy engine integrates.
func (c *Client) GetPowerReadings(ctx context.Context, minerIP string, start, end time.Time) ([]energy.PowerReading, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: %s, stop: %s)
		|> filter(fn: (r) => r._measurement == "miner_samples")
		|> filter(fn: (r) => r.miner_ip == "%s")
		|> filter(fn: (r) => r._field == "power_watts")
		|> sort(columns: ["_time"])
	`, c.bucket, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), minerIP)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query power readings: %w", err)
	}
	defer func() { _ = result.Close() }()

	var readings []energy.PowerReading
	for result.Next() {
		record := result.Record()
		if watts, ok := record.Value().(float64); ok {
			readings = append(readings, energy.PowerReading{
				Timestamp: record.Time(),
				Watts:     watts,
			})
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return readings, nil
}

// ShareCounterWindow aggregates a miner's accepted-share counter over a
// window. Delta is the sum of counter increases between consecutive samples;
// decreases (miner restarts) contribute 0, so a mid-window reset discards
// only the one span it occurred in, not the shares on either side of it.
type ShareCounterWindow struct {
	FirstValue int64     `json:"first_value"`
	LastValue  int64     `json:"last_value"`
	FirstAt    time.Time `json:"first_at"`
	LastAt     time.Time `json:"last_at"`
	Samples    int       `json:"samples"`
	Delta      int64     `json:"delta"`
}

// observe folds one counter sample into the window.
func (w *ShareCounterWindow) observe(value int64, at time.Time) {
	if w.Samples == 0 {
		w.FirstValue = value
		w.FirstAt = at
	} else if value > w.LastValue {
		w.Delta += value - w.LastValue
	}
	w.LastValue = value
	w.LastAt = at
	w.Samples++
}

// GetShareCounterWindow aggregates the share counter samples for a miner in
// a window. Returns nil when no samples exist.
func (c *Client) GetShareCounterWindow(ctx context.Context, minerIP string, start, end time.Time) (*ShareCounterWindow, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: %s, stop: %s)
		|> filter(fn: (r) => r._measurement == "miner_samples")
		|> filter(fn: (r) => r.miner_ip == "%s")
		|> filter(fn: (r) => r._field == "shares_accepted")
		|> sort(columns: ["_time"])
	`, c.bucket, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), minerIP)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query share counters: %w", err)
	}
	defer func() { _ = result.Close() }()

	var window *ShareCounterWindow
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(int64)
		if !ok {
			if f, okf := record.Value().(float64); okf {
				value = int64(f)
			} else {
				continue
			}
		}

		if window == nil {
			window = &ShareCounterWindow{}
		}
		window.observe(value, record.Time())
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return window, nil
}

// EstimatePoint is a historical estimate value.
type EstimatePoint struct {
	Time       time.Time `json:"time"`
	Sats       int64     `json:"sats"`
	Confidence int       `json:"confidence"`
}

// GetEstimateHistory retrieves estimate history for a miner.
func (c *Client) GetEstimateHistory(ctx context.Context, minerIP string, duration time.Duration) ([]EstimatePoint, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "estimates")
		|> filter(fn: (r) => r.miner_ip == "%s")
		|> filter(fn: (r) => r._field == "sats")
		|> sort(columns: ["_time"])
	`, c.bucket, duration.String(), minerIP)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimate history: %w", err)
	}
	defer func() { _ = result.Close() }()

	var points []EstimatePoint
	for result.Next() {
		record := result.Record()
		switch v := record.Value().(type) {
		case int64:
			points = append(points, EstimatePoint{Time: record.Time(), Sats: v})
		case float64:
			points = append(points, EstimatePoint{Time: record.Time(), Sats: int64(v)})
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return points, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
