package reconcile

import (
	"testing"

	"github.com/tos-network/prizepool/internal/allocation"
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/ledger"
)

func whole(n uint64) fixedpoint.Amount {
	a, err := fixedpoint.FromWhole(n)
	if err != nil {
		panic(err)
	}
	return a
}

func pct(raw uint64) fixedpoint.Amount { return fixedpoint.FromRaw(raw) }

// fakeConnector is a minimal in-memory YieldConnector stand-in for
// reconciler tests; it never errors and its balance is set directly.
type fakeConnector struct {
	asset   capability.AssetType
	balance fixedpoint.Amount
}

func (f *fakeConnector) AssetType() capability.AssetType { return f.asset }
func (f *fakeConnector) Available() (fixedpoint.Amount, error) { return f.balance, nil }
func (f *fakeConnector) MinimumCapacity() (fixedpoint.Amount, error) {
	return fixedpoint.Max, nil
}
func (f *fakeConnector) MinimumAvailable() (fixedpoint.Amount, error) { return f.balance, nil }
func (f *fakeConnector) DepositCapacity(v *capability.Vault) error {
	f.balance = f.balance.SatAdd(v.Take())
	return nil
}
func (f *fakeConnector) WithdrawAvailable(max fixedpoint.Amount) (capability.Vault, error) {
	amt := fixedpoint.Min(max, f.balance)
	f.balance = f.balance.SatSub(amt)
	return capability.Vault{Asset: f.asset, Amount: amt}, nil
}

var _ capability.YieldConnector = (*fakeConnector)(nil)

func TestNewFixedPercentageRejectsBadSum(t *testing.T) {
	if _, err := NewFixedPercentage(pct(50_000_000), pct(40_000_000), pct(20_000_000)); err == nil {
		t.Error("expected error: percentages sum to 1.1, not 1")
	}
}

func TestFixedPercentageDistributeConserves(t *testing.T) {
	s, err := NewFixedPercentage(pct(50_000_000), pct(40_000_000), pct(10_000_000))
	if err != nil {
		t.Fatal(err)
	}
	delta := whole(10)
	rewards, prize, fee, err := s.Distribute(delta)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := rewards.Add(prize)
	if err != nil {
		t.Fatal(err)
	}
	sum, err = sum.Add(fee)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(delta) {
		t.Errorf("rewards+prize+fee = %v, want %v (conservation)", sum, delta)
	}
	if !rewards.Equal(whole(5)) || !prize.Equal(whole(4)) || !fee.Equal(whole(1)) {
		t.Errorf("got rewards=%v prize=%v fee=%v, want 5/4/1", rewards, prize, fee)
	}
}

// TestReconcileScenarioS2 reproduces spec S2's reconciliation step: two
// depositors, 10 tokens of yield, 50/40/10 split.
func TestReconcileScenarioS2(t *testing.T) {
	l := ledger.New()
	if _, err := l.Deposit(domain.ReceiverID(1), whole(100)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Deposit(domain.ReceiverID(2), whole(100)); err != nil {
		t.Fatal(err)
	}

	book := allocation.New()
	strategy, err := NewFixedPercentage(pct(50_000_000), pct(40_000_000), pct(10_000_000))
	if err != nil {
		t.Fatal(err)
	}
	conn := &fakeConnector{balance: whole(210)} // 200 principal + 10 yield
	r := New(l, book, conn, strategy)

	if _, err := r.Reconcile(); err != nil {
		t.Fatal(err)
	}

	if !book.PrizeYield().Equal(whole(4)) {
		t.Errorf("prize yield = %v, want 4", book.PrizeYield())
	}
	// The fee bucket holds the 1-token fee share plus the virtual-share
	// dust skimmed off the 5-token rewards share:
	// 5e8 * 1e4 / (200e8 + 1e4) = 249 raw units.
	if !book.ProtocolFee().Equal(fixedpoint.FromRaw(100_000_249)) {
		t.Errorf("protocol fee = %v, want 1.00000249", book.ProtocolFee())
	}
	if book.Rewards().LT(whole(4)) || book.Rewards().GT(whole(5)) {
		t.Errorf("rewards = %v, want ~5 (minus virtual-share dust)", book.Rewards())
	}
}

func TestReconcileSkipsDust(t *testing.T) {
	l := ledger.New()
	if _, err := l.Deposit(domain.ReceiverID(1), whole(100)); err != nil {
		t.Fatal(err)
	}
	book := allocation.New()
	if err := book.AddRewards(whole(100)); err != nil {
		t.Fatal(err)
	}
	strategy, err := NewFixedPercentage(pct(100_000_000), pct(0), pct(0))
	if err != nil {
		t.Fatal(err)
	}
	conn := &fakeConnector{balance: whole(100).SatAdd(fixedpoint.FromRaw(10))} // +1e-7, below threshold
	r := New(l, book, conn, strategy)

	evs, err := r.Reconcile()
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Errorf("expected no events for a sub-threshold delta, got %d", len(evs))
	}
	if !book.Rewards().Equal(whole(100)) {
		t.Errorf("rewards should be untouched by dust, got %v", book.Rewards())
	}
}

// TestReconcileDeficitInvokesWaterfall covers S4 end to end through the
// reconciler.
func TestReconcileDeficitInvokesWaterfall(t *testing.T) {
	l := ledger.New()
	// allocated_rewards tallies a slice of ledger.TotalAssets, never a
	// separate pot, so the pre-state needs a real deposit backing it.
	if _, err := l.Deposit(domain.ReceiverID(1), whole(100)); err != nil {
		t.Fatal(err)
	}
	book := allocation.New()
	if err := book.AddRewards(whole(100)); err != nil {
		t.Fatal(err)
	}
	if err := book.AddPrizeYield(whole(10)); err != nil {
		t.Fatal(err)
	}
	if err := book.AddProtocolFee(whole(5)); err != nil {
		t.Fatal(err)
	}
	strategy, err := NewFixedPercentage(pct(100_000_000), pct(0), pct(0))
	if err != nil {
		t.Fatal(err)
	}
	conn := &fakeConnector{balance: whole(95)}
	r := New(l, book, conn, strategy)

	evs, err := r.Reconcile()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range evs {
		if e.Kind == events.KindInsolvencyDetected {
			t.Error("S4's loss should be fully absorbed, not insolvent")
		}
	}
	if !book.ProtocolFee().IsZero() || !book.PrizeYield().IsZero() {
		t.Error("fee and prize buckets should be fully drained")
	}
	if !book.Rewards().Equal(whole(95)) {
		t.Errorf("rewards = %v, want 95", book.Rewards())
	}
}
