// Package bloom implements the in-memory membership filter used for fast
// deduplication ahead of the authoritative registry check. No false negatives;
// false positives are bounded by the configured size and hash count (roughly
// 1% at two million bits and seven hashes for 100k fingerprints).
package bloom

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Filter is a fixed-size bloom filter safe for concurrent use. It is not
// persisted; Restore replays previously registered fingerprints at startup.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	size      uint64
	hashCount int
	count     int
}

// New creates a filter with the given bit-array size and hash count.
func New(size uint64, hashCount int) *Filter {
	if size == 0 {
		size = 2_000_000
	}
	if hashCount <= 0 {
		hashCount = 7
	}
	return &Filter{
		bits:      make([]uint64, (size+63)/64),
		size:      size,
		hashCount: hashCount,
	}
}

// positions maps a fingerprint to hashCount bit positions by re-seeding a
// single 64-bit hash.
func (f *Filter) positions(fingerprint string) []uint64 {
	pos := make([]uint64, f.hashCount)
	var seed [8]byte
	for i := 0; i < f.hashCount; i++ {
		binary.LittleEndian.PutUint64(seed[:], uint64(i))
		d := xxhash.New()
		_, _ = d.Write(seed[:])
		_, _ = d.WriteString(fingerprint)
		pos[i] = d.Sum64() % f.size
	}
	return pos
}

// Add sets all bit positions for the fingerprint. Re-adding a fingerprint
// whose bits are all set leaves the occupancy count unchanged, so Count stays
// an estimate of distinct fingerprints rather than add operations.
func (f *Filter) Add(fingerprint string) {
	pos := f.positions(fingerprint)
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := false
	for _, p := range pos {
		word, bit := p/64, uint64(1)<<(p%64)
		if f.bits[word]&bit == 0 {
			f.bits[word] |= bit
			changed = true
		}
	}
	if changed {
		f.count++
	}
}

// ProbablyContains reports whether the fingerprint may have been added.
// A false result is definitive.
func (f *Filter) ProbablyContains(fingerprint string) bool {
	pos := f.positions(fingerprint)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range pos {
		if f.bits[p/64]&(1<<(p%64)) == 0 {
			return false
		}
	}
	return true
}

// Count estimates how many distinct fingerprints were added.
func (f *Filter) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Restore replays a set of fingerprints into the filter.
func (f *Filter) Restore(fingerprints []string) {
	for _, fp := range fingerprints {
		f.Add(fp)
	}
}
