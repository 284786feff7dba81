// Package allocation implements the three-bucket yield allocation book and
// the deficit waterfall that protects depositor principal when the
// external venue reports a loss.
package allocation

import (
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/ledger"
	"github.com/tos-network/prizepool/internal/poolerr"
)

// Book holds the three non-negative allocation buckets. After a
// reconciliation their sum must equal the external venue's reported
// balance.
type Book struct {
	rewards     fixedpoint.Amount
	prizeYield  fixedpoint.Amount
	protocolFee fixedpoint.Amount
}

// New returns an empty Book.
func New() *Book { return &Book{} }

// Rewards returns the allocated_rewards bucket.
func (b *Book) Rewards() fixedpoint.Amount { return b.rewards }

// PrizeYield returns the allocated_prize_yield bucket.
func (b *Book) PrizeYield() fixedpoint.Amount { return b.prizeYield }

// ProtocolFee returns the allocated_protocol_fee bucket.
func (b *Book) ProtocolFee() fixedpoint.Amount { return b.protocolFee }

// Sum returns the total allocated across all three buckets.
func (b *Book) Sum() (fixedpoint.Amount, error) {
	rp, err := b.rewards.Add(b.prizeYield)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "Book.Sum", err)
	}
	total, err := rp.Add(b.protocolFee)
	if err != nil {
		return fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "Book.Sum", err)
	}
	return total, nil
}

// AddRewards increases the allocated_rewards bucket.
func (b *Book) AddRewards(amount fixedpoint.Amount) error {
	sum, err := b.rewards.Add(amount)
	if err != nil {
		return poolerr.Wrap(poolerr.Invariant, "Book.AddRewards", err)
	}
	b.rewards = sum
	return nil
}

// AddPrizeYield increases the allocated_prize_yield bucket.
func (b *Book) AddPrizeYield(amount fixedpoint.Amount) error {
	sum, err := b.prizeYield.Add(amount)
	if err != nil {
		return poolerr.Wrap(poolerr.Invariant, "Book.AddPrizeYield", err)
	}
	b.prizeYield = sum
	return nil
}

// AddProtocolFee increases the allocated_protocol_fee bucket.
func (b *Book) AddProtocolFee(amount fixedpoint.Amount) error {
	sum, err := b.protocolFee.Add(amount)
	if err != nil {
		return poolerr.Wrap(poolerr.Invariant, "Book.AddProtocolFee", err)
	}
	b.protocolFee = sum
	return nil
}

// DrainPrizeYield zeroes and returns the full allocated_prize_yield
// bucket, for materializing a draw's prize pool.
func (b *Book) DrainPrizeYield() fixedpoint.Amount {
	v := b.prizeYield
	b.prizeYield = fixedpoint.Zero
	return v
}

// DrainProtocolFee zeroes and returns the full allocated_protocol_fee
// bucket, for forwarding or depositing into unclaimed fees.
func (b *Book) DrainProtocolFee() fixedpoint.Amount {
	v := b.protocolFee
	b.protocolFee = fixedpoint.Zero
	return v
}

// WaterfallResult reports what the deficit waterfall actually absorbed
// and whether anything was left unreconciled.
type WaterfallResult struct {
	FromProtocolFee fixedpoint.Amount
	FromPrizeYield  fixedpoint.Amount
	FromRewards     fixedpoint.Amount
	Unreconciled    fixedpoint.Amount
}

// Insolvent reports whether the waterfall could not absorb the full
// deficit: a reported, non-fatal condition per spec §4.3.
func (w WaterfallResult) Insolvent() bool { return !w.Unreconciled.IsZero() }

// Waterfall absorbs a reported external loss of size deficit, in the
// deterministic order fee -> prize -> rewards. Fee and prize are reduced
// directly; the rewards bucket is reduced by socializing the loss through
// the share ledger (ledger.DecreaseTotalAssets), so the loss propagates
// into share price rather than being hidden in an un-backed allocation.
// Any residual deficit after exhausting all three buckets is returned as
// Unreconciled rather than erroring — insolvency is reported, not fatal.
func (b *Book) Waterfall(deficit fixedpoint.Amount, shareLedger *ledger.ShareLedger) WaterfallResult {
	remaining := deficit
	result := WaterfallResult{}

	feeTaken := fixedpoint.Min(remaining, b.protocolFee)
	b.protocolFee = b.protocolFee.SatSub(feeTaken)
	remaining = remaining.SatSub(feeTaken)
	result.FromProtocolFee = feeTaken

	prizeTaken := fixedpoint.Min(remaining, b.prizeYield)
	b.prizeYield = b.prizeYield.SatSub(prizeTaken)
	remaining = remaining.SatSub(prizeTaken)
	result.FromPrizeYield = prizeTaken

	if !remaining.IsZero() {
		rewardsTaken := fixedpoint.Min(remaining, b.rewards)
		shareLedger.DecreaseTotalAssets(rewardsTaken)
		b.rewards = b.rewards.SatSub(rewardsTaken)
		remaining = remaining.SatSub(rewardsTaken)
		result.FromRewards = rewardsTaken
	}

	result.Unreconciled = remaining
	return result
}

// DirectFund re-invokes yield accrual for an admin-sponsored rewards
// top-up that bypasses the reconciler (spec §9 open question: the
// original source routes the virtual-share rounding dust to the protocol
// bucket on this path too, same as the reconciler's excess-yield path;
// that ambiguous behavior is preserved here rather than resolved — see
// DESIGN.md).
func (b *Book) DirectFund(amount fixedpoint.Amount, shareLedger *ledger.ShareLedger) error {
	actual, dust, err := shareLedger.AccrueYield(amount)
	if err != nil {
		return poolerr.Wrap(poolerr.Invariant, "Book.DirectFund", err)
	}
	if err := b.AddRewards(actual); err != nil {
		return err
	}
	if !dust.IsZero() {
		if err := b.AddProtocolFee(dust); err != nil {
			return err
		}
	}
	return nil
}
