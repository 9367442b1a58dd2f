package bitcoin

import (
	"context"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/dirtysats/fleetd/pkg/log"
)

// BlockListener subscribes to Bitcoin Core's ZMQ hashblock notifications.
// It powers solo block detection and prompt chain-data refresh without
// polling the node.
type BlockListener struct {
	socket   *zmq.Socket
	endpoint string
	logger   *log.Logger
	onBlock  func(blockHash string) error
}

// NewBlockListener creates a listener for the given ZMQ endpoint.
func NewBlockListener(endpoint string, logger *log.Logger, onBlock func(blockHash string) error) (*BlockListener, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	return &BlockListener{
		socket:   socket,
		endpoint: endpoint,
		logger:   logger.WithComponent("zmq"),
		onBlock:  onBlock,
	}, nil
}

// Connect connects to the endpoint and subscribes to hashblock.
func (l *BlockListener) Connect() error {
	if err := l.socket.Connect(l.endpoint); err != nil {
		return fmt.Errorf("failed to connect to ZMQ endpoint %s: %w", l.endpoint, err)
	}
	if err := l.socket.SetSubscribe("hashblock"); err != nil {
		return fmt.Errorf("failed to subscribe to hashblock: %w", err)
	}
	l.logger.Info("listening for blocks", "endpoint", l.endpoint)
	return nil
}

// Listen receives block notifications until the context is canceled.
func (l *BlockListener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("block listener stopping")
			return ctx.Err()
		default:
		}

		msg, err := l.socket.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			if err.Error() == "resource temporarily unavailable" {
				continue
			}
			l.logger.Error("failed to receive ZMQ message", "error", err)
			continue
		}

		if len(msg) < 2 || string(msg[0]) != "hashblock" {
			continue
		}
		if len(msg[1]) != 32 {
			l.logger.Warn("malformed hashblock payload", "size", len(msg[1]))
			continue
		}

		hash := reverseHex(msg[1])
		l.logger.Debug("hashblock received", "block_hash", hash)

		if l.onBlock != nil {
			if err := l.onBlock(hash); err != nil {
				l.logger.WithError(err).Error("block handler failed", "block_hash", hash)
			}
		}
	}
}

// Close closes the ZMQ socket.
func (l *BlockListener) Close() error {
	if l.socket != nil {
		return l.socket.Close()
	}
	return nil
}

// reverseHex renders a little-endian hash as the conventional big-endian hex
// string.
func reverseHex(data []byte) string {
	reversed := make([]byte, len(data))
	for i := 0; i < len(data); i++ {
		reversed[i] = data[len(data)-1-i]
	}
	return fmt.Sprintf("%x", reversed)
}
