package draw

import (
	"github.com/tos-network/prizepool/internal/allocation"
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/poolerr"
	"github.com/tos-network/prizepool/internal/round"
)

// Engine ties the pure selection machinery (prng.go, selection.go,
// distribution.go) to the external collaborators a real draw needs: the
// yield connector a prize pool is materialized from, the randomness
// oracle that seeds winner selection, and the optional fee recipient and
// NFT claim sink. None of the pool's own bucket/ledger/round state lives
// here; Engine is handed references to it per call and never retains
// anything beyond what a single in-flight draw needs.
type Engine struct {
	Connector    capability.YieldConnector
	Oracle       capability.RandomnessOracle
	FeeRecipient capability.FeeRecipient // optional; nil falls back to unclaimed fees
	NFTQueue     NFTClaimQueue           // optional
	Distribution PrizeDistribution
}

// StartDrawResult is what a successful StartDraw hands back to the pool.
type StartDrawResult struct {
	Receipt      *DrawReceipt
	Batch        *BatchSelectionData
	PrizePool    fixedpoint.Amount // the pool's updated running prize_pool total
	FeeDelivered fixedpoint.Amount
	FeeForwarded bool // true if FeeDelivered went to FeeRecipient, false if it's unclaimed
	Events       []events.Event
}

// StartDraw begins phase 1 of the three-phase draw. currentPrizePool is
// the pool's running prize_pool balance carried over from any prior
// failed or partial draw; book's prize-yield and protocol-fee buckets
// are drained and materialized through the connector.
//
// Every external call (the connector withdrawals, the randomness
// request) happens before r or book is touched. If the prize withdrawal
// leaves the prize pool at zero, or a withdrawal or the randomness
// request fails, StartDraw returns an error with r and book unchanged;
// amounts already withdrawn from the connector by then are not
// deposited back. A prize withdrawal that returns less than requested
// but more than zero does not stop the draw. Only once a non-zero prize pool and a live
// randomness request are both in hand does StartDraw finalize the round
// and drain the buckets, so a caller never sees PendingDraw left nil
// against a round that can no longer be restarted.
func (e *Engine) StartDraw(now domain.Timestamp, r *round.Round, book *allocation.Book, registeredCount int, currentPrizePool fixedpoint.Amount) (*StartDrawResult, error) {
	if r.IsFinalized() {
		return nil, poolerr.Wrap(poolerr.State, "Engine.StartDraw", poolerr.ErrDrawInProgress)
	}
	if now < r.TargetEndTime() {
		return nil, poolerr.Wrap(poolerr.State, "Engine.StartDraw", poolerr.ErrRoundNotEnded)
	}

	prizeAmt := book.PrizeYield()
	potential, err := currentPrizePool.Add(prizeAmt)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Invariant, "Engine.StartDraw", err)
	}
	if potential.IsZero() {
		return nil, poolerr.Wrap(poolerr.Resource, "Engine.StartDraw", poolerr.ErrInsufficientPrizePool)
	}

	newPrizePool := currentPrizePool
	var prizeWithdrawn fixedpoint.Amount
	if !prizeAmt.IsZero() {
		vault, err := e.Connector.WithdrawAvailable(prizeAmt)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.External, "Engine.StartDraw", err)
		}
		prizeWithdrawn = vault.Amount
		newPrizePool, err = newPrizePool.Add(prizeWithdrawn)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Engine.StartDraw", err)
		}
	}
	if newPrizePool.IsZero() {
		return nil, poolerr.Wrap(poolerr.Resource, "Engine.StartDraw", poolerr.ErrInsufficientPrizePool)
	}

	feeAmt := book.ProtocolFee()
	var feeWithdrawn fixedpoint.Amount
	if !feeAmt.IsZero() {
		vault, err := e.Connector.WithdrawAvailable(feeAmt)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.External, "Engine.StartDraw", err)
		}
		feeWithdrawn = vault.Amount
	}

	request, err := e.Oracle.Request()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.External, "Engine.StartDraw", err)
	}

	// Every fallible step above succeeded; commit.
	if err := r.MarkDrawStarted(now); err != nil {
		return nil, poolerr.Wrap(poolerr.State, "Engine.StartDraw", err)
	}
	batch := NewBatchSelectionData(registeredCount)
	book.DrainPrizeYield()

	var feeDelivered fixedpoint.Amount
	var forwarded bool
	if !feeAmt.IsZero() {
		book.DrainProtocolFee()
		feeDelivered = feeWithdrawn
		if e.FeeRecipient != nil && e.FeeRecipient.Valid() {
			if err := e.FeeRecipient.Receive(feeDelivered); err == nil {
				forwarded = true
			}
		}
	}

	receipt := &DrawReceipt{PrizeAmount: newPrizePool, Request: request}
	evs := []events.Event{
		events.New(events.KindDrawStarted).WithRound(r.RoundID()).WithAmount(newPrizePool),
	}

	return &StartDrawResult{
		Receipt:      receipt,
		Batch:        batch,
		PrizePool:    newPrizePool,
		FeeDelivered: feeDelivered,
		FeeForwarded: forwarded,
		Events:       evs,
	}, nil
}

// ProcessBatch runs phase 2 over up to limit of the snapshotted receivers
// starting at batch.Cursor. registered must be stable at indices
// [0, batch.SnapshotCount) for the lifetime of the draw — the pool
// enforces this by deferring any swap-and-pop removal until no draw is
// pending. currentShares and bonusWeight are read callbacks rather than
// maps so the pool can serve them straight from its own live state
// without copying it per batch.
func (e *Engine) ProcessBatch(
	limit int,
	receipt *DrawReceipt,
	batch *BatchSelectionData,
	r *round.Round,
	registered []domain.ReceiverID,
	currentShares func(domain.ReceiverID) fixedpoint.Amount,
	bonusWeight func(domain.ReceiverID) fixedpoint.Amount,
	roundEnd domain.Timestamp,
) ([]events.Event, error) {
	if receipt == nil {
		return nil, poolerr.Wrap(poolerr.State, "Engine.ProcessBatch", poolerr.ErrNoDrawInProgress)
	}
	if batch.Complete() {
		return nil, nil
	}

	end := batch.Cursor + limit
	if end > batch.SnapshotCount {
		end = batch.SnapshotCount
	}

	for i := batch.Cursor; i < end; i++ {
		rcv := registered[i]
		twab, err := r.FinalizeTWAB(rcv, currentShares(rcv), roundEnd)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Engine.ProcessBatch", err)
		}
		weight, err := twab.Add(bonusWeight(rcv))
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Engine.ProcessBatch", err)
		}
		if weight.IsZero() {
			continue
		}
		total, err := batch.TotalWeight.Add(weight)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Engine.ProcessBatch", err)
		}
		batch.TotalWeight = total
		batch.ReceiverIDs = append(batch.ReceiverIDs, rcv)
		batch.CumulativeWeights = append(batch.CumulativeWeights, total)
	}
	batch.Cursor = end

	var evs []events.Event
	if batch.TotalWeight.GT(WeightWarningThreshold) {
		evs = append(evs, events.New(events.KindBatchProcessed).
			WithRound(r.RoundID()).
			WithAmount(batch.TotalWeight).
			WithDetail("total weight exceeds warning threshold"))
	}
	return evs, nil
}

// CompleteDraw runs phase 3: fulfill the randomness request, derive a
// seed, select winners, and split the prize into awards. It does not
// touch the ledger, the round's active/intermission state, or the
// connector redeposit path — those are the pool's responsibility, since
// they span collaborators the engine has no business owning.
func (e *Engine) CompleteDraw(receipt *DrawReceipt, batch *BatchSelectionData, roundID uint64) ([]Award, uint64, []events.Event, error) {
	if receipt == nil {
		return nil, 0, nil, poolerr.Wrap(poolerr.State, "Engine.CompleteDraw", poolerr.ErrNoDrawInProgress)
	}
	if !batch.Complete() {
		return nil, 0, nil, poolerr.Wrap(poolerr.State, "Engine.CompleteDraw", poolerr.ErrBatchIncomplete)
	}

	fulfilled, err := e.Oracle.Fulfill(receipt.Request)
	if err != nil {
		return nil, 0, nil, poolerr.Wrap(poolerr.External, "Engine.CompleteDraw", poolerr.ErrRandomnessNotReady)
	}

	seed := deriveSeed(fulfilled, roundID, batch.SnapshotCount)
	winners := selectWinners(batch, e.Distribution.WinnerCount(), seed)

	awards, err := e.Distribution.Distribute(winners, receipt.PrizeAmount)
	if err != nil {
		return nil, 0, nil, poolerr.Wrap(poolerr.Invariant, "Engine.CompleteDraw", err)
	}

	if e.NFTQueue != nil {
		for _, award := range awards {
			for _, nftID := range award.NFTIDs {
				if err := e.NFTQueue.Enqueue(award.Receiver, nftID); err != nil {
					return nil, 0, nil, poolerr.Wrap(poolerr.External, "Engine.CompleteDraw", err)
				}
			}
		}
	}

	evs := []events.Event{
		events.New(events.KindDrawCompleted).WithRound(roundID).WithAmount(receipt.PrizeAmount),
	}
	return awards, seed, evs, nil
}
