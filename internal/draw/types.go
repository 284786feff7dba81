// Package draw implements the three-phase batched draw: start_draw
// materializes the prize pool and requests randomness, process_batch
// builds a weighted selection structure in bounded chunks, and
// complete_draw fulfills randomness, selects winners, and auto-compounds
// prizes. The batching exists so winner selection cost never depends on
// how the draw is triggered — only on how many process_batch calls the
// caller is willing to make.
package draw

import (
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// WeightWarningThreshold is the total-weight level above which
// process_batch reports a warning event rather than failing outright.
// Set at 80% of the maximum representable Amount, mirroring the pool's
// SAFE_MAX_TVL headroom.
var WeightWarningThreshold = fixedpoint.Frac(fixedpoint.Max, 8, 10)

// DrawReceipt is born at start_draw and consumed exactly once at
// complete_draw.
type DrawReceipt struct {
	PrizeAmount fixedpoint.Amount
	Request     capability.RequestHandle
}

// BatchSelectionData accumulates the weighted selection structure across
// process_batch calls. SnapshotCount is frozen at start_draw and pins the
// batch size: receivers registered afterward get zero weight for this
// draw, which bounds the draw's cost and starves a last-second
// registration flood of any effect.
type BatchSelectionData struct {
	ReceiverIDs       []domain.ReceiverID
	CumulativeWeights []fixedpoint.Amount
	TotalWeight       fixedpoint.Amount
	Cursor            int
	SnapshotCount     int
}

// NewBatchSelectionData freezes snapshotCount participants for this draw.
func NewBatchSelectionData(snapshotCount int) *BatchSelectionData {
	return &BatchSelectionData{SnapshotCount: snapshotCount}
}

// Complete reports whether every snapshotted receiver has been scored.
func (b *BatchSelectionData) Complete() bool { return b.Cursor >= b.SnapshotCount }

// Remaining reports how many snapshotted receivers are left to score.
func (b *BatchSelectionData) Remaining() int { return b.SnapshotCount - b.Cursor }

// Award is one winner's portion of a completed draw's prize.
type Award struct {
	Receiver domain.ReceiverID
	Amount   fixedpoint.Amount
	NFTIDs   []string
}

// NFTClaimQueue is an enqueue-only sink for NFT identifiers awarded to a
// winner. Custody and claim UX live entirely outside the core; the queue
// exists only so complete_draw has somewhere to hand off an NFT ID.
type NFTClaimQueue interface {
	Enqueue(receiver domain.ReceiverID, nftID string) error
}
