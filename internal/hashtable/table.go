// Package hashtable provides the hash tables the join builds and probes:
// Table for single-owner use and ConcurrentTable with one lock per bucket.
// Both index a key by BucketHash(key) & (bucketCount-1), so the bucket count
// must be a power of two.
package hashtable

import (
	"fmt"
	"iter"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/tuple"
)

// Option configures a table.
type Option func(*options)

type options struct {
	hasher hashing.Hasher
}

// WithHasher selects the hash family used for bucket placement.
func WithHasher(h hashing.Hasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

func buildOptions(opts []Option) options {
	o := options{hasher: hashing.Default}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkBucketCount(op string, bucketCount int) error {
	if !hashing.IsPowerOfTwo(bucketCount) {
		return errors.NewConfigurationError(op, "bucket_count",
			fmt.Sprintf("must be a power of two, got %d", bucketCount))
	}
	return nil
}

// Table is a hash table without synchronization. One goroutine may insert;
// after that any number may read.
type Table[B any, PB BucketPtr[B]] struct {
	buckets []B
	mask    uint64
	hasher  hashing.Hasher
}

// NewTable creates a table with bucketCount empty buckets. It fails with an
// error matching errors.ErrConfiguration unless bucketCount is a power of two.
func NewTable[B any, PB BucketPtr[B]](bucketCount int, opts ...Option) (*Table[B, PB], error) {
	if err := checkBucketCount("NewTable", bucketCount); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Table[B, PB]{
		buckets: make([]B, bucketCount),
		mask:    uint64(bucketCount - 1),
		hasher:  o.hasher,
	}, nil
}

func (t *Table[B, PB]) index(key tuple.Key) uint64 {
	return t.hasher.BucketHash(key) & t.mask
}

// Insert pushes tup into the bucket selected by its key.
func (t *Table[B, PB]) Insert(tup tuple.Tuple) {
	PB(&t.buckets[t.index(tup.Key())]).Push(tup)
}

// InsertBatch inserts every tuple of batch in order.
func (t *Table[B, PB]) InsertBatch(batch tuple.Batch) {
	for i := range batch {
		t.Insert(batch[i])
	}
}

// GetMatchingTuples yields every stored tuple whose key equals key. Tuples
// sharing the bucket with a different key are skipped.
func (t *Table[B, PB]) GetMatchingTuples(key tuple.Key) iter.Seq[*tuple.Tuple] {
	return matching(PB(&t.buckets[t.index(key)]), key)
}

// BucketCount returns the number of buckets.
func (t *Table[B, PB]) BucketCount() int {
	return len(t.buckets)
}

// Len returns the number of stored tuples.
func (t *Table[B, PB]) Len() int {
	n := 0
	for i := range t.buckets {
		n += PB(&t.buckets[i]).Len()
	}
	return n
}

// BucketSizes returns the tuple count of every bucket in index order.
func (t *Table[B, PB]) BucketSizes() []int {
	sizes := make([]int, len(t.buckets))
	for i := range t.buckets {
		sizes[i] = PB(&t.buckets[i]).Len()
	}
	return sizes
}

// Occupancy summarizes the bucket sizes.
func (t *Table[B, PB]) Occupancy() Occupancy {
	return SummarizeOccupancy(t.BucketSizes())
}

func matching(b Bucket, key tuple.Key) iter.Seq[*tuple.Tuple] {
	return func(yield func(*tuple.Tuple) bool) {
		for tup := range b.All() {
			if tup.Matches(key) && !yield(tup) {
				return
			}
		}
	}
}
