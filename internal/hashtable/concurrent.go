package hashtable

import (
	"iter"
	"sync"

	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/tuple"
)

type stripe[B any] struct {
	mu     sync.Mutex
	bucket B
}

// ConcurrentTable is a hash table with one mutex per bucket. Inserts lock
// only their target bucket, so inserts into different buckets never contend.
type ConcurrentTable[B any, PB BucketPtr[B]] struct {
	stripes []stripe[B]
	mask    uint64
	hasher  hashing.Hasher
}

// NewConcurrentTable creates a striped table with bucketCount empty buckets.
// It fails with an error matching errors.ErrConfiguration unless bucketCount
// is a power of two.
func NewConcurrentTable[B any, PB BucketPtr[B]](bucketCount int, opts ...Option) (*ConcurrentTable[B, PB], error) {
	if err := checkBucketCount("NewConcurrentTable", bucketCount); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &ConcurrentTable[B, PB]{
		stripes: make([]stripe[B], bucketCount),
		mask:    uint64(bucketCount - 1),
		hasher:  o.hasher,
	}, nil
}

func (t *ConcurrentTable[B, PB]) stripeFor(key tuple.Key) *stripe[B] {
	return &t.stripes[t.hasher.BucketHash(key)&t.mask]
}

// Insert pushes tup into its bucket under that bucket's lock. Safe for
// concurrent use.
func (t *ConcurrentTable[B, PB]) Insert(tup tuple.Tuple) {
	s := t.stripeFor(tup.Key())
	s.mu.Lock()
	PB(&s.bucket).Push(tup)
	s.mu.Unlock()
}

// GetMatchingTuples yields the tuples matching key while holding the
// bucket's lock for the whole iteration. The yield function must not insert
// into the same table.
func (t *ConcurrentTable[B, PB]) GetMatchingTuples(key tuple.Key) iter.Seq[*tuple.Tuple] {
	return func(yield func(*tuple.Tuple) bool) {
		s := t.stripeFor(key)
		s.mu.Lock()
		defer s.mu.Unlock()
		for tup := range matching(PB(&s.bucket), key) {
			if !yield(tup) {
				return
			}
		}
	}
}

// UnsafeGetMatchingTuples reads the bucket without locking. It is only
// correct once every Insert has returned and the caller has synchronized
// with those goroutines (for example by waiting for the build phase).
func (t *ConcurrentTable[B, PB]) UnsafeGetMatchingTuples(key tuple.Key) iter.Seq[*tuple.Tuple] {
	return matching(PB(&t.stripeFor(key).bucket), key)
}

// BucketCount returns the number of buckets.
func (t *ConcurrentTable[B, PB]) BucketCount() int {
	return len(t.stripes)
}

// BucketSizes returns the tuple count of every bucket, locking each in turn.
func (t *ConcurrentTable[B, PB]) BucketSizes() []int {
	sizes := make([]int, len(t.stripes))
	for i := range t.stripes {
		s := &t.stripes[i]
		s.mu.Lock()
		sizes[i] = PB(&s.bucket).Len()
		s.mu.Unlock()
	}
	return sizes
}

// Freeze moves the buckets into a read-only Table with the same layout and
// hasher. The caller must have waited for all inserts to finish; the
// ConcurrentTable is empty afterwards and must not be used again.
func (t *ConcurrentTable[B, PB]) Freeze() *Table[B, PB] {
	buckets := make([]B, len(t.stripes))
	for i := range t.stripes {
		buckets[i] = t.stripes[i].bucket
	}
	frozen := &Table[B, PB]{
		buckets: buckets,
		mask:    t.mask,
		hasher:  t.hasher,
	}
	t.stripes = nil
	return frozen
}
