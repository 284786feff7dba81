package ledger

import (
	"testing"

	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

func whole(n uint64) fixedpoint.Amount {
	a, err := fixedpoint.FromWhole(n)
	if err != nil {
		panic(err)
	}
	return a
}

func TestDepositZeroIsNoop(t *testing.T) {
	l := New()
	minted, err := l.Deposit(domain.ReceiverID(1), fixedpoint.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !minted.IsZero() {
		t.Errorf("minted = %v, want zero", minted)
	}
	if !l.TotalShares().IsZero() {
		t.Errorf("total shares = %v, want zero", l.TotalShares())
	}
}

func TestDepositFirstDepositorNoInflation(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	minted, err := l.Deposit(r, whole(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// With virtual offsets, first depositor still gets ~proportional
	// shares (not exactly 1:1, but within the virtual offset's noise),
	// and crucially cannot be diluted to zero by a follow-on attacker.
	if minted.IsZero() {
		t.Fatal("expected nonzero shares minted")
	}
	got, err := l.UserAssetValue(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The virtual offset costs the depositor a small amount of value;
	// they should get back very close to what they put in.
	diff := whole(100).SatSub(got)
	if diff.GT(fixedpoint.FromRaw(1_000_000)) { // > 0.01 token of slippage
		t.Errorf("first depositor lost too much to virtual offset: got %v, want ~100", got)
	}
}

func TestSumOfUserSharesEqualsTotal(t *testing.T) {
	l := New()
	if _, err := l.Deposit(domain.ReceiverID(1), whole(100)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Deposit(domain.ReceiverID(2), whole(250)); err != nil {
		t.Fatal(err)
	}
	sum := l.UserShares(1).SatAdd(l.UserShares(2))
	if !sum.Equal(l.TotalShares()) {
		t.Errorf("sum of user shares = %v, total shares = %v", sum, l.TotalShares())
	}
}

func TestWithdrawSharesExhausted(t *testing.T) {
	l := New()
	_, err := l.Withdraw(domain.ReceiverID(1), whole(1), fixedpoint.Zero)
	if err == nil {
		t.Fatal("expected error for receiver with no shares")
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Withdraw(r, whole(1000), fixedpoint.Zero); err == nil {
		t.Fatal("expected insufficient balance error")
	}
}

func TestWithdrawPartial(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(100)); err != nil {
		t.Fatal(err)
	}
	got, err := l.Withdraw(r, whole(40), fixedpoint.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(whole(40)) {
		t.Errorf("withdrawn = %v, want 40", got)
	}
	if l.UserShares(r).IsZero() {
		t.Error("receiver should still hold shares after partial withdrawal")
	}
}

func TestWithdrawDustBurnsAllShares(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(10)); err != nil {
		t.Fatal(err)
	}
	// Request slightly less than full value so the residual falls
	// under the dust threshold and triggers burn-all.
	dustThreshold := fixedpoint.FromRaw(10_000_000) // 0.1
	value, err := l.UserAssetValue(r)
	if err != nil {
		t.Fatal(err)
	}
	request := value.SatSub(fixedpoint.FromRaw(5_000_000)) // leave 0.05 residual
	withdrawn, err := l.Withdraw(r, request, dustThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !withdrawn.Equal(request) {
		t.Errorf("withdrawn = %v, want requested amount %v", withdrawn, request)
	}
	if !l.UserShares(r).IsZero() {
		t.Errorf("expected all shares burned, got %v remaining", l.UserShares(r))
	}
}

func TestWithdrawFullRemovesReceiver(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(100)); err != nil {
		t.Fatal(err)
	}
	value, err := l.UserAssetValue(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Withdraw(r, value, fixedpoint.Zero); err != nil {
		t.Fatal(err)
	}
	if !l.UserShares(r).IsZero() {
		t.Error("expected zero shares after full withdrawal")
	}
}

func TestAccrueYieldNoSharesIsNoop(t *testing.T) {
	l := New()
	actual, dust, err := l.AccrueYield(whole(10))
	if err != nil {
		t.Fatal(err)
	}
	if !actual.IsZero() || !dust.IsZero() {
		t.Errorf("expected no-op with zero shares, got actual=%v dust=%v", actual, dust)
	}
}

func TestAccrueYieldIncreasesSharePriceMonotonically(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(100)); err != nil {
		t.Fatal(err)
	}
	before, err := l.SharePrice()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.AccrueYield(whole(10)); err != nil {
		t.Fatal(err)
	}
	after, err := l.SharePrice()
	if err != nil {
		t.Fatal(err)
	}
	if !after.GT(before) {
		t.Errorf("share price should strictly increase after positive yield accrual: before=%v after=%v", before, after)
	}
}

func TestAccrueYieldDustRoutedAwayFromAssets(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(100)); err != nil {
		t.Fatal(err)
	}
	actual, dust, err := l.AccrueYield(whole(1))
	if err != nil {
		t.Fatal(err)
	}
	sum, err := actual.Add(dust)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(whole(1)) {
		t.Errorf("actual + dust = %v, want the full accrued amount (1)", sum)
	}
}

func TestDecreaseTotalAssetsCappedAtBalance(t *testing.T) {
	l := New()
	r := domain.ReceiverID(1)
	if _, err := l.Deposit(r, whole(10)); err != nil {
		t.Fatal(err)
	}
	before, err := l.SharePrice()
	if err != nil {
		t.Fatal(err)
	}
	dec := l.DecreaseTotalAssets(whole(1000))
	if !dec.Equal(whole(10)) {
		t.Errorf("decrease = %v, want capped at total assets (10)", dec)
	}
	if !l.TotalAssets().IsZero() {
		t.Errorf("total assets = %v, want zero", l.TotalAssets())
	}
	after, err := l.SharePrice()
	if err != nil {
		t.Fatal(err)
	}
	if after.GT(before) {
		t.Error("decrease_total_assets must never increase share price")
	}
}
