package draw

import (
	"fmt"

	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/poolerr"
)

// PrizeDistribution is the closed variant set of §4.5: given the winners
// selected for a draw, split the prize so the resulting amounts sum
// exactly to the input.
type PrizeDistribution interface {
	// WinnerCount is how many winners select_winners should pick for
	// this distribution to apply to.
	WinnerCount() int

	// Distribute splits prize across winners (len(winners) <=
	// WinnerCount(), fewer only when there weren't enough participants).
	Distribute(winners []domain.ReceiverID, prize fixedpoint.Amount) ([]Award, error)
}

// SingleWinner pays the entire prize to one winner.
type SingleWinner struct{}

// WinnerCount implements PrizeDistribution.
func (SingleWinner) WinnerCount() int { return 1 }

// Distribute implements PrizeDistribution.
func (SingleWinner) Distribute(winners []domain.ReceiverID, prize fixedpoint.Amount) ([]Award, error) {
	if len(winners) == 0 {
		return nil, nil
	}
	return []Award{{Receiver: winners[0], Amount: prize}}, nil
}

// PercentageSplit pays fixed percentages of the prize to each winner
// slot, in order; percentages must sum to exactly one whole unit. If
// fewer winners were actually selected than there are splits (too few
// participants), only the leading splits are used and the last present
// winner receives the conservation remainder.
type PercentageSplit struct {
	Splits []fixedpoint.Amount
}

// NewPercentageSplit validates that splits sum to exactly one.
func NewPercentageSplit(splits []fixedpoint.Amount) (*PercentageSplit, error) {
	if len(splits) == 0 {
		return nil, poolerr.Wrap(poolerr.Validation, "NewPercentageSplit", poolerr.ErrInvalidWinnerCount)
	}
	sum := fixedpoint.Zero
	for _, s := range splits {
		var err error
		sum, err = sum.Add(s)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Validation, "NewPercentageSplit", err)
		}
	}
	one, _ := fixedpoint.FromWhole(1)
	if !sum.Equal(one) {
		return nil, poolerr.Wrap(poolerr.Validation, "NewPercentageSplit", poolerr.ErrPercentagesInvalid)
	}
	return &PercentageSplit{Splits: splits}, nil
}

// WinnerCount implements PrizeDistribution.
func (p *PercentageSplit) WinnerCount() int { return len(p.Splits) }

// Distribute implements PrizeDistribution.
func (p *PercentageSplit) Distribute(winners []domain.ReceiverID, prize fixedpoint.Amount) ([]Award, error) {
	if len(winners) == 0 {
		return nil, nil
	}
	one, _ := fixedpoint.FromWhole(1)
	awards := make([]Award, 0, len(winners))
	assigned := fixedpoint.Zero
	for i, w := range winners {
		if i == len(winners)-1 {
			remainder, err := prize.Sub(assigned)
			if err != nil {
				return nil, poolerr.Wrap(poolerr.Invariant, "PercentageSplit.Distribute", err)
			}
			awards = append(awards, Award{Receiver: w, Amount: remainder})
			break
		}
		amt, err := fixedpoint.MulDiv(prize, p.Splits[i], one)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "PercentageSplit.Distribute", err)
		}
		assigned, err = assigned.Add(amt)
		if err != nil {
			return nil, poolerr.Wrap(poolerr.Invariant, "PercentageSplit.Distribute", err)
		}
		awards = append(awards, Award{Receiver: w, Amount: amt})
	}
	return awards, nil
}

// Tier is one rung of a FixedAmountTiers distribution: count winners each
// receive amount, optionally minting an NFT ID per winner in the tier
// (nftIDPrefix + ordinal) when nftIDPrefix is non-empty.
type Tier struct {
	Amount       fixedpoint.Amount
	Count        int
	NFTIDPrefix  string
}

// FixedAmountTiers pays fixed amounts to successive bands of winners
// (e.g. 1 winner gets 100, next 9 winners get 10 each); the very last
// winner overall receives whatever remainder conservation requires.
type FixedAmountTiers struct {
	Tiers []Tier
}

// WinnerCount implements PrizeDistribution.
func (f *FixedAmountTiers) WinnerCount() int {
	total := 0
	for _, t := range f.Tiers {
		total += t.Count
	}
	return total
}

// Distribute implements PrizeDistribution.
func (f *FixedAmountTiers) Distribute(winners []domain.ReceiverID, prize fixedpoint.Amount) ([]Award, error) {
	if len(winners) == 0 {
		return nil, nil
	}
	awards := make([]Award, 0, len(winners))
	assigned := fixedpoint.Zero
	idx := 0
	for _, tier := range f.Tiers {
		for ordinal := 0; ordinal < tier.Count && idx < len(winners); ordinal++ {
			amt := tier.Amount
			isLast := idx == len(winners)-1
			if isLast {
				remainder, err := prize.Sub(assigned)
				if err != nil {
					return nil, poolerr.Wrap(poolerr.Invariant, "FixedAmountTiers.Distribute", err)
				}
				amt = remainder
			}
			var nftIDs []string
			if tier.NFTIDPrefix != "" {
				nftIDs = []string{fmt.Sprintf("%s-%d", tier.NFTIDPrefix, ordinal)}
			}
			awards = append(awards, Award{Receiver: winners[idx], Amount: amt, NFTIDs: nftIDs})
			var err error
			assigned, err = assigned.Add(amt)
			if err != nil {
				return nil, poolerr.Wrap(poolerr.Invariant, "FixedAmountTiers.Distribute", err)
			}
			idx++
			if isLast {
				return awards, nil
			}
		}
	}
	// Fewer tier slots than winners (shouldn't happen if WinnerCount was
	// used to drive selection): remaining winners get nothing extra, but
	// the last already-assigned award has already absorbed the
	// remainder above, so conservation still holds.
	return awards, nil
}
