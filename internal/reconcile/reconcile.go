// Package reconcile synchronizes the pool's internal allocation book with
// the external yield venue's reported balance, applying newly earned
// yield through a pluggable distribution strategy or absorbing a loss
// through the allocation book's waterfall.
package reconcile

import (
	"github.com/tos-network/prizepool/internal/allocation"
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/ledger"
	"github.com/tos-network/prizepool/internal/poolerr"
)

// MinDistributionThreshold is the dust floor below which a reconciliation
// delta is left to accumulate rather than acted on (1e-6 of a token).
var MinDistributionThreshold = fixedpoint.FromRaw(100)

// DistributionStrategy splits newly observed excess yield into the three
// allocation buckets. The variant set is closed per spec §4.4.
type DistributionStrategy interface {
	// Distribute splits delta into (rewards, prize, fee) summing exactly
	// to delta.
	Distribute(delta fixedpoint.Amount) (rewards, prize, fee fixedpoint.Amount, err error)
}

// FixedPercentage splits every excess by constant shares that must sum to
// exactly 1 in fixed-point. The fee bucket receives whatever residual is
// left after the other two are computed by multiplication, guaranteeing
// exact conservation even under fixed-point rounding.
type FixedPercentage struct {
	RewardsPct fixedpoint.Amount
	PrizePct   fixedpoint.Amount
	FeePct     fixedpoint.Amount
}

// NewFixedPercentage validates that the three shares sum to exactly one
// whole unit before returning the strategy.
func NewFixedPercentage(rewardsPct, prizePct, feePct fixedpoint.Amount) (*FixedPercentage, error) {
	one, _ := fixedpoint.FromWhole(1)
	sum, err := rewardsPct.Add(prizePct)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Validation, "NewFixedPercentage", err)
	}
	sum, err = sum.Add(feePct)
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Validation, "NewFixedPercentage", err)
	}
	if !sum.Equal(one) {
		return nil, poolerr.Wrap(poolerr.Validation, "NewFixedPercentage", poolerr.ErrPercentagesInvalid)
	}
	return &FixedPercentage{RewardsPct: rewardsPct, PrizePct: prizePct, FeePct: feePct}, nil
}

// Distribute implements DistributionStrategy.
func (f *FixedPercentage) Distribute(delta fixedpoint.Amount) (rewards, prize, fee fixedpoint.Amount, err error) {
	one, _ := fixedpoint.FromWhole(1)
	rewards, err = fixedpoint.MulDiv(delta, f.RewardsPct, one)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "FixedPercentage.Distribute", err)
	}
	prize, err = fixedpoint.MulDiv(delta, f.PrizePct, one)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "FixedPercentage.Distribute", err)
	}
	spent, err := rewards.Add(prize)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "FixedPercentage.Distribute", err)
	}
	fee, err = delta.Sub(spent)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, poolerr.Wrap(poolerr.Invariant, "FixedPercentage.Distribute", err)
	}
	return rewards, prize, fee, nil
}

// Reconciler compares the external venue's reported balance against the
// internal allocation book and applies the difference.
type Reconciler struct {
	Ledger     *ledger.ShareLedger
	Book       *allocation.Book
	Connector  capability.YieldConnector
	Strategy   DistributionStrategy
	Threshold  fixedpoint.Amount
}

// New builds a Reconciler with the standard dust threshold.
func New(l *ledger.ShareLedger, b *allocation.Book, conn capability.YieldConnector, strategy DistributionStrategy) *Reconciler {
	return &Reconciler{Ledger: l, Book: b, Connector: conn, Strategy: strategy, Threshold: MinDistributionThreshold}
}

// Reconcile aligns the allocation book to the connector's reported
// balance, returning the structured events emitted along the way.
// Deltas under the dust threshold are left untouched — the caller is not
// required to act on every deposit/withdrawal.
func (r *Reconciler) Reconcile() ([]events.Event, error) {
	balance, err := r.Connector.Available()
	if err != nil {
		return nil, poolerr.Wrap(poolerr.External, "Reconciler.Reconcile", err)
	}
	// allocated_rewards is not a separate pot of money: AccrueYield folds
	// it into ledger.TotalAssets at the same time it records the tally, so
	// counting both here would double-count it. The connector balance is
	// fully explained by principal-plus-recognized-rewards (TotalAssets)
	// plus whatever still sits in the prize and fee buckets awaiting a
	// draw or a sweep.
	withPrize, err := r.Ledger.TotalAssets().Add(r.Book.PrizeYield())
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Invariant, "Reconciler.Reconcile", err)
	}
	allocated, err := withPrize.Add(r.Book.ProtocolFee())
	if err != nil {
		return nil, poolerr.Wrap(poolerr.Invariant, "Reconciler.Reconcile", err)
	}

	if balance.Equal(allocated) {
		return nil, nil
	}

	var out []events.Event

	if balance.GT(allocated) {
		excess := balance.SatSub(allocated)
		if excess.LT(r.Threshold) {
			return nil, nil
		}
		rewards, prize, fee, err := r.Strategy.Distribute(excess)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Reconciler.Reconcile", err)
		}
		actualRewards, dust, err := r.Ledger.AccrueYield(rewards)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Reconciler.Reconcile", err)
		}
		fee, err = fee.Add(dust)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "Reconciler.Reconcile", err)
		}
		if err := r.Book.AddPrizeYield(prize); err != nil {
			return nil, err
		}
		if err := r.Book.AddProtocolFee(fee); err != nil {
			return nil, err
		}
		if err := r.Book.AddRewards(actualRewards); err != nil {
			return nil, err
		}
		out = append(out, events.New(events.KindReconciled).WithAmount(excess))
		return out, nil
	}

	deficit := allocated.SatSub(balance)
	if deficit.LT(r.Threshold) {
		return nil, nil
	}
	result := r.Book.Waterfall(deficit, r.Ledger)
	out = append(out, events.New(events.KindReconciled).WithAmount(deficit))
	if result.Insolvent() {
		out = append(out, events.New(events.KindInsolvencyDetected).WithAmount(result.Unreconciled))
	}
	return out, nil
}
