package draw

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// deriveSeed mixes the oracle's fulfilled randomness with the draw's own
// context (round ID and the frozen participant count) through BLAKE3, so
// the PRG's internal state is decorrelated from the oracle's raw output
// even if the oracle's randomness has structure across requests.
func deriveSeed(fulfilled uint64, roundID uint64, snapshotCount int) uint64 {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], fulfilled)
	binary.BigEndian.PutUint64(buf[8:16], roundID)
	binary.BigEndian.PutUint64(buf[16:24], uint64(snapshotCount))

	h := blake3.New()
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
