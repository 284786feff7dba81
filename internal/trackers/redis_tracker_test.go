package trackers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tos-network/prizepool/internal/fixedpoint"
)

func setupTestTracker(t *testing.T, ringSize int64) (*RedisWinnerTracker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	tracker, err := NewRedisWinnerTracker(mr.Addr(), "", 0, ringSize)
	if err != nil {
		mr.Close()
		t.Fatalf("failed to create tracker: %v", err)
	}
	return tracker, mr
}

func whole(n uint64) fixedpoint.Amount {
	a, err := fixedpoint.FromWhole(n)
	if err != nil {
		panic(err)
	}
	return a
}

func TestNewRedisWinnerTrackerInvalid(t *testing.T) {
	_, err := NewRedisWinnerTracker("127.0.0.1:0", "", 0, 10)
	if err == nil {
		t.Error("expected error connecting to an unreachable redis")
	}
}

func TestRecordWinnerAndRecent(t *testing.T) {
	tracker, mr := setupTestTracker(t, 10)
	defer mr.Close()
	defer tracker.Close()

	if err := tracker.RecordWinner("main", 1, 7, whole(100), nil); err != nil {
		t.Fatalf("RecordWinner() error = %v", err)
	}
	if err := tracker.RecordWinner("main", 2, 9, whole(50), []string{"nft-1"}); err != nil {
		t.Fatalf("RecordWinner() error = %v", err)
	}

	records, err := tracker.RecentWinners(context.Background(), "main", 10)
	if err != nil {
		t.Fatalf("RecentWinners() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// LPUSH means the most recent record is first.
	if records[0].RoundID != 2 || records[0].Receiver != 9 {
		t.Errorf("records[0] = %+v, want round 2 receiver 9", records[0])
	}
	if len(records[0].NFTIDs) != 1 || records[0].NFTIDs[0] != "nft-1" {
		t.Errorf("records[0].NFTIDs = %v, want [nft-1]", records[0].NFTIDs)
	}
}

func TestRecordWinnerRingBounded(t *testing.T) {
	tracker, mr := setupTestTracker(t, 3)
	defer mr.Close()
	defer tracker.Close()

	for i := uint64(1); i <= 5; i++ {
		if err := tracker.RecordWinner("main", i, i, whole(1), nil); err != nil {
			t.Fatalf("RecordWinner(%d) error = %v", i, err)
		}
	}

	records, err := tracker.RecentWinners(context.Background(), "main", 10)
	if err != nil {
		t.Fatalf("RecentWinners() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected ring bounded to 3 records, got %d", len(records))
	}
	// Newest-first: rounds 5, 4, 3 survive; 1 and 2 were trimmed.
	if records[0].RoundID != 5 || records[2].RoundID != 3 {
		t.Errorf("unexpected ring contents: %+v", records)
	}
}

func TestRecordWinnerIsolatesPools(t *testing.T) {
	tracker, mr := setupTestTracker(t, 10)
	defer mr.Close()
	defer tracker.Close()

	tracker.RecordWinner("pool-a", 1, 1, whole(1), nil)
	tracker.RecordWinner("pool-b", 1, 2, whole(1), nil)

	recordsA, _ := tracker.RecentWinners(context.Background(), "pool-a", 10)
	recordsB, _ := tracker.RecentWinners(context.Background(), "pool-b", 10)

	if len(recordsA) != 1 || len(recordsB) != 1 {
		t.Fatalf("expected 1 record per pool, got %d and %d", len(recordsA), len(recordsB))
	}
	if recordsA[0].Receiver != 1 || recordsB[0].Receiver != 2 {
		t.Error("pools should not share winner records")
	}
}
