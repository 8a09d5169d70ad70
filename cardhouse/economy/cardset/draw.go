package cardset

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// SeedSource yields the raw entropy for one weighted draw. The draw itself
// is a pure function of the seed, so a verifiable-randomness source can be
// swapped in without touching any mint logic.
type SeedSource interface {
	Seed(ctx context.Context) uint64
}

// EntropySource is the default seed source. It hashes the wall clock, a
// rolling digest of prior draws, and a secret salt the admin can rotate.
// This is explicitly NOT cryptographically secure: a caller who knows the
// salt and clock can predict draws. Rotating the salt reduces, not
// eliminates, predictability.
type EntropySource struct {
	mu     sync.Mutex
	salt   []byte
	digest [32]byte
	now    func() time.Time
}

func NewEntropySource(salt string) *EntropySource {
	return &EntropySource{
		salt: []byte(salt),
		now:  time.Now,
	}
}

func (s *EntropySource) Seed(ctx context.Context) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(s.now().UnixNano()))

	h := sha256.New()
	h.Write(s.digest[:])
	h.Write(buf[:])
	h.Write(s.salt)
	sum := h.Sum(nil)
	copy(s.digest[:], sum)

	return binary.BigEndian.Uint64(sum[:8])
}

// Rotate replaces the secret salt.
func (s *EntropySource) Rotate(salt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salt = []byte(salt)
}

// pickIndex walks the cumulative sum of probabilities (basis points, total
// 10000) and returns the first index whose cumulative sum exceeds r, with
// r in [0, 10000). Index 0 is structurally favored when cumulative
// rounding ties occur; that is the defined tie-break, not an accident.
func pickIndex(probabilities []int64, r int64) int {
	var cum int64
	for i, p := range probabilities {
		cum += p
		if cum > r {
			return i
		}
	}
	return len(probabilities) - 1
}
