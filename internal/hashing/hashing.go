// Package hashing provides the two independent key hashes used by the join:
// one places a tuple in a hash-table bucket, the other routes it to a
// partition. Both hash the little-endian bytes of the key with a fast
// non-cryptographic hash, each with its own fixed seed, so bucket and
// partition placement are decorrelated from each other and from patterns in
// the raw key values.
package hashing

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/paveg/joinbench/internal/tuple"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/constraints"
)

// Fixed seeds. Changing either one changes every bucket or partition placement.
const (
	BucketSeed    uint64 = 821
	PartitionSeed uint64 = 804
)

// Family names a seeded 64-bit hash function.
type Family string

const (
	XXH3    Family = "xxh3"
	XXHash  Family = "xxhash"
	Murmur3 Family = "murmur3"
)

// Hasher computes bucket and partition hashes with one hash family.
// The zero value uses XXH3.
type Hasher struct {
	family Family
	sum    func(data []byte, seed uint64) uint64
}

// Default is the XXH3 hasher used unless a run configures another family.
var Default = Hasher{family: XXH3, sum: xxh3.HashSeed}

// New returns the hasher for family.
func New(family Family) (Hasher, error) {
	switch family {
	case XXH3, "":
		return Default, nil
	case XXHash:
		return Hasher{family: XXHash, sum: sumXXHash}, nil
	case Murmur3:
		return Hasher{family: Murmur3, sum: sumMurmur3}, nil
	default:
		return Hasher{}, fmt.Errorf("unknown hash family: %q", family)
	}
}

// Family returns the hasher's family.
func (h Hasher) Family() Family {
	if h.sum == nil {
		return XXH3
	}
	return h.family
}

// BucketHash hashes key to choose its hash-table bucket.
func (h Hasher) BucketHash(key tuple.Key) uint64 {
	return h.hash(key, BucketSeed)
}

// PartitionHash hashes key to choose its partition.
func (h Hasher) PartitionHash(key tuple.Key) uint64 {
	return h.hash(key, PartitionSeed)
}

func (h Hasher) hash(key tuple.Key, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	if h.sum == nil {
		return xxh3.HashSeed(buf[:], seed)
	}
	return h.sum(buf[:], seed)
}

// BucketHash hashes key with the default hasher.
func BucketHash(key tuple.Key) uint64 {
	return Default.BucketHash(key)
}

// PartitionHash hashes key with the default hasher.
func PartitionHash(key tuple.Key) uint64 {
	return Default.PartitionHash(key)
}

func sumXXHash(data []byte, seed uint64) uint64 {
	var d xxhash.Digest
	d.ResetWithSeed(seed)
	_, _ = d.Write(data)
	return d.Sum64()
}

// murmur3 takes a 32-bit seed; both fixed seeds fit.
func sumMurmur3(data []byte, seed uint64) uint64 {
	return murmur3.Sum64WithSeed(data, uint32(seed)) //nolint:gosec // seeds are small constants
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo[T constraints.Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// FloorPowerOfTwo returns the largest power of two not greater than n, or 0
// when n < 1.
func FloorPowerOfTwo[T constraints.Integer](n T) T {
	if n < 1 {
		return 0
	}
	p := T(1)
	for p <= n/2 {
		p <<= 1
	}
	return p
}
