// Package round implements the normalized time-weighted average balance
// (TWAB) accumulator. Each Round lazily accumulates "share-time" per
// receiver so that prize weight is fair regardless of total value locked,
// round duration, or how late a depositor joined.
package round

import (
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/poolerr"
)

// Scale is the per-update divisor (seconds in a year) that keeps the
// scaled accumulator from overflowing: dividing at each update instead of
// only at finalization bounds the magnitude of user_scaled_twab.
const Scale int64 = 31_536_000

// Round accumulates share-time for every receiver touched during its
// lifetime, from StartTime until ActualEndTime is set exactly once by a
// draw start.
type Round struct {
	roundID        uint64
	startTime      domain.Timestamp
	targetEndTime  domain.Timestamp
	actualEndTime  *domain.Timestamp

	userScaledTWAB         map[domain.ReceiverID]fixedpoint.Amount
	userLastUpdateTime     map[domain.ReceiverID]domain.Timestamp
	userSharesAtLastUpdate map[domain.ReceiverID]fixedpoint.Amount
}

// New creates a round starting now, due to end at targetEnd.
func New(roundID uint64, startTime, targetEnd domain.Timestamp) *Round {
	return &Round{
		roundID:                roundID,
		startTime:              startTime,
		targetEndTime:          targetEnd,
		userScaledTWAB:         make(map[domain.ReceiverID]fixedpoint.Amount),
		userLastUpdateTime:     make(map[domain.ReceiverID]domain.Timestamp),
		userSharesAtLastUpdate: make(map[domain.ReceiverID]fixedpoint.Amount),
	}
}

// RoundID returns the round's identifier.
func (r *Round) RoundID() uint64 { return r.roundID }

// StartTime returns when share-time accumulation began.
func (r *Round) StartTime() domain.Timestamp { return r.startTime }

// TargetEndTime returns the scheduled (not necessarily actual) end.
func (r *Round) TargetEndTime() domain.Timestamp { return r.targetEndTime }

// ActualEndTime returns the time the round was finalized at draw start,
// and whether it has been finalized yet.
func (r *Round) ActualEndTime() (domain.Timestamp, bool) {
	if r.actualEndTime == nil {
		return 0, false
	}
	return *r.actualEndTime, true
}

// IsFinalized reports whether MarkDrawStarted has been called.
func (r *Round) IsFinalized() bool { return r.actualEndTime != nil }

// SetTargetEndTime changes the scheduled end time. Permitted only before
// the round is finalized. Shortening the target must satisfy
// newTarget >= now: otherwise a receiver's already-accumulated
// share-time could exceed the new (shorter) duration, breaking the
// finalize_twab <= shares safety cap.
func (r *Round) SetTargetEndTime(newTarget, now domain.Timestamp) error {
	if r.IsFinalized() {
		return poolerr.Wrap(poolerr.State, "Round.SetTargetEndTime", poolerr.ErrDrawInProgress)
	}
	if newTarget < r.targetEndTime && newTarget < now {
		return poolerr.Wrap(poolerr.Validation, "Round.SetTargetEndTime", poolerr.ErrCannotShortenRound)
	}
	r.targetEndTime = newTarget
	return nil
}

// MarkDrawStarted finalizes the round's actual end time. Idempotent
// re-invocation is rejected: actual_end_time is set exactly once.
func (r *Round) MarkDrawStarted(now domain.Timestamp) error {
	if r.IsFinalized() {
		return poolerr.Wrap(poolerr.State, "Round.MarkDrawStarted", poolerr.ErrDrawInProgress)
	}
	end := now
	r.actualEndTime = &end
	return nil
}

func (r *Round) lastUpdateOf(receiver domain.ReceiverID) domain.Timestamp {
	if t, ok := r.userLastUpdateTime[receiver]; ok {
		return t
	}
	return r.startTime
}

// RecordShareChange accumulates share-time for the interval since the
// receiver's last update using oldShares, then records newShares as the
// balance going forward. Timestamps are capped at the round's actual end
// (once finalized) so deposits/withdrawals that arrive between
// start_draw and complete_draw cannot extend the finalized window.
func (r *Round) RecordShareChange(receiver domain.ReceiverID, oldShares, newShares fixedpoint.Amount, atTime domain.Timestamp) error {
	effectiveTime := atTime
	if end, ok := r.ActualEndTime(); ok && end < effectiveTime {
		effectiveTime = end
	}

	lastUpdate := r.lastUpdateOf(receiver)
	delta := int64(effectiveTime) - int64(lastUpdate)
	if delta > 0 {
		pending, err := fixedpoint.MulDivInt(oldShares, delta, Scale)
		if err != nil {
			return poolerr.Wrap(poolerr.Invariant, "Round.RecordShareChange", err)
		}
		accumulated, err := r.userScaledTWAB[receiver].Add(pending)
		if err != nil {
			return poolerr.Wrap(poolerr.Invariant, "Round.RecordShareChange", err)
		}
		r.userScaledTWAB[receiver] = accumulated
	}

	r.userSharesAtLastUpdate[receiver] = newShares
	r.userLastUpdateTime[receiver] = effectiveTime
	return nil
}

// FinalizeTWAB computes the receiver's prize weight for this round: the
// time-weighted average number of shares held, normalized so a receiver
// holding s shares for the whole round gets weight s, and a receiver
// holding s shares for fraction f of the round gets weight f*s, each up
// to the truncation of the per-update division by Scale (a full-round
// holder may fall short of s by about Scale/duration raw units). The
// result never exceeds the shares on record for the receiver, which is
// the safety cap the normalized accumulator depends on. Pure: it does
// not mutate the round, so process_batch may call it repeatedly.
func (r *Round) FinalizeTWAB(receiver domain.ReceiverID, currentShares fixedpoint.Amount, roundEnd domain.Timestamp) (fixedpoint.Amount, error) {
	accumulated := r.userScaledTWAB[receiver]

	last := r.startTime
	if t, ok := r.userLastUpdateTime[receiver]; ok {
		last = t
	}

	shares := currentShares
	if s, ok := r.userSharesAtLastUpdate[receiver]; ok {
		shares = s
	}

	tail := int64(roundEnd) - int64(last)
	if tail < 0 {
		tail = 0
	}
	pending, err := fixedpoint.MulDivInt(shares, tail, Scale)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "Round.FinalizeTWAB", err)
	}

	total, err := accumulated.Add(pending)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "Round.FinalizeTWAB", err)
	}

	duration := int64(roundEnd) - int64(r.startTime)
	if duration <= 0 {
		return fixedpoint.Zero, nil
	}

	weight, err := fixedpoint.MulDivInt(total, Scale, duration)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "Round.FinalizeTWAB", err)
	}

	return fixedpoint.Min(weight, shares), nil
}
