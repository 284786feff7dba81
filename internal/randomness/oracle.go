package randomness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tos-network/prizepool/internal/capability"
)

// ErrChainNotReady is returned when the chain has not yet produced the
// committed block.
var ErrChainNotReady = errors.New("randomness: committed block not yet produced")

// BlockHeightOracle implements capability.RandomnessOracle by committing to
// a future block height and deriving randomness from that block's hash
// once the chain reaches it. Requesting well before the reveal and waiting
// commitDelay blocks keeps operators from being able to selectively
// withhold a draw after seeing the outcome.
type BlockHeightOracle struct {
	pool        *ChainPool
	commitDelay uint64
	readTimeout time.Duration

	nextTxID uint64
}

// NewBlockHeightOracle builds an oracle over the given chain pool.
func NewBlockHeightOracle(pool *ChainPool, commitDelay uint64, readTimeout time.Duration) *BlockHeightOracle {
	return &BlockHeightOracle{
		pool:        pool,
		commitDelay: commitDelay,
		readTimeout: readTimeout,
	}
}

// Request commits to a block commitDelay blocks ahead of the current tip.
func (o *BlockHeightOracle) Request() (capability.RequestHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.readTimeout)
	defer cancel()

	var tip *BlockInfo
	err := o.pool.CallWithFailover(func(c *ChainClient) error {
		b, err := c.GetLatestBlock(ctx)
		if err != nil {
			return err
		}
		tip = b
		return nil
	})
	if err != nil {
		return capability.RequestHandle{}, fmt.Errorf("randomness: request tip: %w", err)
	}

	commitBlock := tip.Height + o.commitDelay
	id := atomic.AddUint64(&o.nextTxID, 1)

	return capability.RequestHandle{
		RequestID:   fmt.Sprintf("blockheight-%d", id),
		CommitBlock: commitBlock,
	}, nil
}

// Fulfill returns the uint64 derived from the committed block's hash, or
// ErrChainNotReady if the chain has not yet produced that block.
func (o *BlockHeightOracle) Fulfill(handle capability.RequestHandle) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.readTimeout)
	defer cancel()

	var block *BlockInfo
	err := o.pool.CallWithFailover(func(c *ChainClient) error {
		b, err := c.GetBlockByHeight(ctx, handle.CommitBlock)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrChainNotReady, err)
	}

	h := blake3.New()
	_, _ = h.Write([]byte(block.Hash))
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], handle.CommitBlock)
	_, _ = h.Write(heightBuf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), nil
}

var _ capability.RandomnessOracle = (*BlockHeightOracle)(nil)
