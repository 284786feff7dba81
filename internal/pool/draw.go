package pool

import (
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/poolerr"
	"github.com/tos-network/prizepool/internal/round"
)

// StartDraw runs phase 1. Preconditions per spec §4.5: emergency_state
// must be Normal, no draw may already be pending, and the active
// round's target end time must have passed.
func (p *Pool) StartDraw(now domain.Timestamp) ([]events.Event, error) {
	p.checkAutoRecovery(now)
	p.checkAutoTrigger(now)

	if p.State != Normal {
		return nil, poolerr.Wrap(poolerr.State, "Pool.StartDraw", poolerr.ErrDrawsDisabled)
	}
	if p.PendingDraw != nil {
		return nil, poolerr.Wrap(poolerr.State, "Pool.StartDraw", poolerr.ErrDrawInProgress)
	}
	if p.ActiveRound == nil {
		return nil, poolerr.Wrap(poolerr.State, "Pool.StartDraw", poolerr.ErrNoActiveRound)
	}

	eligible := p.eligibleReceivers()
	result, err := p.Engine.StartDraw(now, p.ActiveRound, p.Book, len(eligible), p.PrizePool)
	if err != nil {
		return nil, err
	}

	p.PendingDraw = result.Receipt
	p.PendingSelection = result.Batch
	p.PendingReceivers = eligible
	p.PrizePool = result.PrizePool
	if !result.FeeForwarded {
		p.UnclaimedProtocolFee = p.UnclaimedProtocolFee.SatAdd(result.FeeDelivered)
	}
	return result.Events, nil
}

// ProcessBatch runs phase 2 over up to limit snapshotted receivers.
func (p *Pool) ProcessBatch(limit int) ([]events.Event, error) {
	if p.PendingDraw == nil {
		return nil, poolerr.Wrap(poolerr.State, "Pool.ProcessBatch", poolerr.ErrNoDrawInProgress)
	}
	roundEnd, ok := p.ActiveRound.ActualEndTime()
	if !ok {
		return nil, poolerr.Wrap(poolerr.Invariant, "Pool.ProcessBatch", poolerr.ErrDrawInProgress)
	}
	shares := func(r domain.ReceiverID) fixedpoint.Amount { return p.Ledger.UserShares(r) }
	bonus := func(r domain.ReceiverID) fixedpoint.Amount { return p.ReceiverBonusWeight[r] }
	return p.Engine.ProcessBatch(limit, p.PendingDraw, p.PendingSelection, p.ActiveRound, p.PendingReceivers, shares, bonus, roundEnd)
}

// CompleteDraw runs phase 3: fulfill randomness, select winners,
// auto-compound each award into shares and back into the yield
// connector, record winners with the optional tracker, then retire the
// finalized round and enter intermission.
func (p *Pool) CompleteDraw(now domain.Timestamp) ([]events.Event, error) {
	if p.PendingDraw == nil {
		return nil, poolerr.Wrap(poolerr.State, "Pool.CompleteDraw", poolerr.ErrNoDrawInProgress)
	}
	if !p.PendingSelection.Complete() {
		return nil, poolerr.Wrap(poolerr.State, "Pool.CompleteDraw", poolerr.ErrBatchIncomplete)
	}

	roundID := p.ActiveRound.RoundID()
	awards, _, evs, err := p.Engine.CompleteDraw(p.PendingDraw, p.PendingSelection, roundID)
	if err != nil {
		return nil, err
	}

	for _, award := range awards {
		if award.Amount.IsZero() {
			continue
		}
		if _, err := p.Ledger.Deposit(award.Receiver, award.Amount); err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Pool.CompleteDraw", err)
		}

		vault := capability.Vault{Asset: p.Config.AssetType, Amount: award.Amount}
		if err := p.Reconciler.Connector.DepositCapacity(&vault); err != nil {
			return nil, poolerr.Wrap(poolerr.External, "Pool.CompleteDraw", err)
		}

		// Intermission rule preserved per spec §9: complete_draw always
		// retires active_round below, so there is no new active round
		// for a winner's post-draw TWAB to accrue into here. The awarded
		// shares still exist and will start accumulating once
		// start_next_round is called.

		if p.Config.WinnerTracker != nil {
			if err := p.Config.WinnerTracker.RecordWinner(p.ID, roundID, uint64(award.Receiver), award.Amount, award.NFTIDs); err != nil {
				evs = append(evs, events.New(events.KindWithdrawalFailure).WithReceiver(award.Receiver).WithDetail("winner tracker: "+err.Error()))
			}
		}
	}

	p.LastCompletedRoundID = roundID
	p.PendingDraw = nil
	p.PendingSelection = nil
	p.PendingReceivers = nil
	p.ActiveRound = nil
	p.PrizePool = fixedpoint.Zero
	return evs, nil
}

// StartNextRound opens the next round, due to end draw_interval_seconds
// from now. Intermission ends the moment this is called; until then, no
// TWAB accrues for anyone (spec §9).
func (p *Pool) StartNextRound(now domain.Timestamp) error {
	if p.ActiveRound != nil {
		return poolerr.Wrap(poolerr.State, "Pool.StartNextRound", poolerr.ErrDrawInProgress)
	}
	newRoundID := p.LastCompletedRoundID + 1
	p.ActiveRound = round.New(newRoundID, now, now+domain.Timestamp(p.Config.DrawIntervalSeconds))
	return nil
}
