// Package bitcoin provides the chain data the earnings engine needs: network
// difficulty, block height, block subsidy, and the BTC price. Data comes from
// a local Bitcoin Core node when one is configured, or from public HTTP APIs
// otherwise, with a shared cache in front of both.
package bitcoin

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/dirtysats/fleetd/pkg/circuit"
	"github.com/dirtysats/fleetd/pkg/errors"
	"github.com/dirtysats/fleetd/pkg/retry"
)

// RPCClient wraps btcd's RPC client for the read-only queries fleetd makes
// against a local Bitcoin Core node.
type RPCClient struct {
	client         *rpcclient.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewRPCClient creates a Bitcoin Core RPC client in HTTP POST mode with TLS
// disabled, the usual setup for a node on the home LAN.
func NewRPCClient(host string, port int, username, password string) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", host, port),
		User:         username,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBitcoin, "rpc_client_creation",
			"failed to create Bitcoin RPC client").
			WithContext("host", host).
			WithContext("port", port)
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &RPCClient{
		client:         client,
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}, nil
}

// Close shuts down the RPC client.
func (c *RPCClient) Close() {
	c.client.Shutdown()
}

// Ping tests the connection to Bitcoin Core.
func (c *RPCClient) Ping(ctx context.Context) error {
	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if err := c.client.PingAsync().Receive(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeNetwork, "ping",
					"Bitcoin Core connectivity check failed")
			}
			return nil
		})
	})
}

// Difficulty returns the current network difficulty.
func (c *RPCClient) Difficulty(ctx context.Context) (float64, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (float64, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (float64, error) {
			difficulty, err := c.client.GetDifficultyAsync().Receive()
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeBitcoin, "get_difficulty",
					"failed to retrieve network difficulty")
			}
			return difficulty, nil
		})
	})
}

// BlockHeight returns the current block height.
func (c *RPCClient) BlockHeight(ctx context.Context) (int64, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (int64, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (int64, error) {
			count, err := c.client.GetBlockCountAsync().Receive()
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeBitcoin, "get_block_count",
					"failed to retrieve current block height")
			}
			return count, nil
		})
	})
}

// BestBlockHash returns the hash of the chain tip.
func (c *RPCClient) BestBlockHash(ctx context.Context) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			hash, err := c.client.GetBestBlockHashAsync().Receive()
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeBitcoin, "get_best_block_hash",
					"failed to retrieve best block hash")
			}
			return hash.String(), nil
		})
	})
}

// CoinbaseInfo is the subset of a block the solo attribution check needs.
type CoinbaseInfo struct {
	Height    int64
	Addresses []string
}

// BlockCoinbase returns a block's height and the addresses its coinbase pays.
// Used to decide whether a newly seen block belongs to one of the fleet's
// solo miners.
func (c *RPCClient) BlockCoinbase(ctx context.Context, blockHash string) (*CoinbaseInfo, error) {
	hash, err := chainhash.NewHashFromStr(blockHash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "parse_block_hash",
			"invalid block hash").WithContext("block_hash", blockHash)
	}

	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*CoinbaseInfo, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*CoinbaseInfo, error) {
			block, err := c.client.GetBlockVerboseTxAsync(hash).Receive()
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBitcoin, "get_block_verbose",
					"failed to retrieve block").WithContext("block_hash", blockHash)
			}

			info := &CoinbaseInfo{Height: block.Height}
			if len(block.Tx) > 0 {
				for _, vout := range block.Tx[0].Vout {
					info.Addresses = append(info.Addresses, vout.ScriptPubKey.Addresses...)
				}
			}
			return info, nil
		})
	})
}

// BlockchainInfo returns chain status from the node.
func (c *RPCClient) BlockchainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*btcjson.GetBlockChainInfoResult, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*btcjson.GetBlockChainInfoResult, error) {
			info, err := c.client.GetBlockChainInfoAsync().Receive()
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeBitcoin, "get_blockchain_info",
					"failed to retrieve blockchain information")
			}
			return info, nil
		})
	})
}
