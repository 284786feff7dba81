package draw

import (
	"sort"

	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/fixedpoint"
)

// selectWinners deterministically picks up to winnerCount distinct
// receivers from batch, weighted by batch.CumulativeWeights, using seed
// to drive the PRG. Same seed + same batch always produces the same
// winners (spec property 5).
func selectWinners(batch *BatchSelectionData, winnerCount int, seed uint64) []domain.ReceiverID {
	n := len(batch.ReceiverIDs)
	if n == 0 {
		return nil
	}
	if winnerCount > n {
		winnerCount = n
	}

	if batch.TotalWeight.IsZero() {
		// No weight anywhere: fall back to the first k receivers in
		// snapshot order rather than refusing to pick winners at all.
		// ProcessBatch only adds receivers with non-zero weight, so a
		// batch it built never takes this path.
		return append([]domain.ReceiverID(nil), batch.ReceiverIDs[:winnerCount]...)
	}

	prg := newXorshift128Plus(seed)
	selected := make(map[int]bool, winnerCount)
	winners := make([]domain.ReceiverID, 0, winnerCount)

	maxAttempts := 3 * batch.SnapshotCount
	for attempts := 0; len(winners) < winnerCount && attempts < maxAttempts; attempts++ {
		draw := prg.Next() % batch.TotalWeight.Raw()
		idx := searchCumulative(batch.CumulativeWeights, draw)
		if selected[idx] {
			continue
		}
		selected[idx] = true
		winners = append(winners, batch.ReceiverIDs[idx])
	}

	if len(winners) < winnerCount {
		// Deterministic fallback: fill remaining slots from unselected
		// receivers in snapshot order, so the draw always terminates
		// with exactly winnerCount winners (or all participants, if
		// fewer) instead of depending on rejection-sampling luck.
		for i := range batch.ReceiverIDs {
			if len(winners) >= winnerCount {
				break
			}
			if selected[i] {
				continue
			}
			selected[i] = true
			winners = append(winners, batch.ReceiverIDs[i])
		}
	}

	return winners
}

// searchCumulative returns the first index j such that
// cumulativeWeights[j].Raw() > draw, via binary search over the
// monotonically non-decreasing prefix-sum array built by process_batch.
func searchCumulative(cumulativeWeights []fixedpoint.Amount, draw uint64) int {
	return sort.Search(len(cumulativeWeights), func(i int) bool {
		return cumulativeWeights[i].Raw() > draw
	})
}
