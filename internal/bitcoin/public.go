package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dirtysats/fleetd/pkg/circuit"
	"github.com/dirtysats/fleetd/pkg/errors"
	"github.com/dirtysats/fleetd/pkg/retry"
)

const maxAPIResponseBytes = 1 << 20

// PublicAPISource fetches chain data and the BTC price from public HTTP
// endpoints. It is the no-local-node path: difficulty and height come from a
// blockchain.info-style plain-text API, the price from a CoinGecko-style JSON
// API. Rate limits on these services are the norm, so every call runs behind
// a circuit breaker with upstream-tuned retry backoff.
type PublicAPISource struct {
	httpClient    *http.Client
	priceURL      string
	difficultyURL string
	heightURL     string

	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewPublicAPISource creates a source using the given endpoint URLs.
func NewPublicAPISource(priceURL, difficultyURL, heightURL string) *PublicAPISource {
	return &PublicAPISource{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		priceURL:      priceURL,
		difficultyURL: difficultyURL,
		heightURL:     heightURL,
		circuitBreaker: circuit.New(&circuit.Config{
			MaxFailures:     5,
			SuccessRequired: 2,
			Timeout:         30 * time.Second,
			ResetTimeout:    2 * time.Minute,
		}),
		retryConfig: retry.UpstreamConfig(),
	}
}

// PriceUSD fetches the current BTC price in USD.
func (s *PublicAPISource) PriceUSD(ctx context.Context) (float64, error) {
	return circuit.ExecuteWithResult(ctx, s.circuitBreaker, func() (float64, error) {
		return retry.DoWithResult(ctx, s.retryConfig, func() (float64, error) {
			body, err := s.fetch(ctx, s.priceURL, "fetch_btc_price")
			if err != nil {
				return 0, err
			}

			var payload struct {
				Bitcoin struct {
					USD float64 `json:"usd"`
				} `json:"bitcoin"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeUpstream, "parse_btc_price",
					"unexpected price API response").
					WithContext("url", s.priceURL)
			}
			if payload.Bitcoin.USD <= 0 {
				return 0, errors.New(errors.ErrorTypeUpstream, "parse_btc_price",
					"price API returned a non-positive price")
			}
			return payload.Bitcoin.USD, nil
		})
	})
}

// Difficulty fetches the current network difficulty.
func (s *PublicAPISource) Difficulty(ctx context.Context) (float64, error) {
	return circuit.ExecuteWithResult(ctx, s.circuitBreaker, func() (float64, error) {
		return retry.DoWithResult(ctx, s.retryConfig, func() (float64, error) {
			body, err := s.fetch(ctx, s.difficultyURL, "fetch_difficulty")
			if err != nil {
				return 0, err
			}

			difficulty, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeUpstream, "parse_difficulty",
					"unexpected difficulty API response").
					WithContext("url", s.difficultyURL)
			}
			if difficulty <= 0 {
				return 0, errors.New(errors.ErrorTypeUpstream, "parse_difficulty",
					"difficulty API returned a non-positive value")
			}
			return difficulty, nil
		})
	})
}

// BlockHeight fetches the current block height.
func (s *PublicAPISource) BlockHeight(ctx context.Context) (int64, error) {
	return circuit.ExecuteWithResult(ctx, s.circuitBreaker, func() (int64, error) {
		return retry.DoWithResult(ctx, s.retryConfig, func() (int64, error) {
			body, err := s.fetch(ctx, s.heightURL, "fetch_block_height")
			if err != nil {
				return 0, err
			}

			height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeUpstream, "parse_block_height",
					"unexpected block height API response").
					WithContext("url", s.heightURL)
			}
			if height < 0 {
				return 0, errors.New(errors.ErrorTypeUpstream, "parse_block_height",
					"block height API returned a negative height")
			}
			return height, nil
		})
	})
}

func (s *PublicAPISource) fetch(ctx context.Context, url, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, operation,
			"failed to build API request").
			WithContext("url", url)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, operation,
			"API request failed").
			WithContext("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrorTypeUpstream, operation,
			fmt.Sprintf("API returned status %d", resp.StatusCode)).
			WithContext("url", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, operation,
			"failed to read API response").
			WithContext("url", url)
	}
	return body, nil
}
