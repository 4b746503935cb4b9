package hashtable

import (
	"iter"

	"github.com/paveg/joinbench/internal/tuple"
)

// Bucket is the storage behind one hash slot. The zero value must be an
// empty, usable bucket. Push appends; All yields every stored tuple in a
// stable order without consuming anything. There is no removal.
type Bucket interface {
	Push(t tuple.Tuple)
	All() iter.Seq[*tuple.Tuple]
	Len() int
}

// BucketPtr constrains PB to be *B implementing Bucket, so tables can hold
// buckets by value and still call pointer methods on them.
type BucketPtr[B any] interface {
	*B
	Bucket
}

// SliceBucket stores tuples in one contiguous growable slice.
type SliceBucket struct {
	tuples []tuple.Tuple
}

// Push appends t, growing the slice when it is full.
func (b *SliceBucket) Push(t tuple.Tuple) {
	b.tuples = append(b.tuples, t)
}

// All yields the stored tuples in insertion order.
func (b *SliceBucket) All() iter.Seq[*tuple.Tuple] {
	return func(yield func(*tuple.Tuple) bool) {
		for i := range b.tuples {
			if !yield(&b.tuples[i]) {
				return
			}
		}
	}
}

// Len returns the number of stored tuples.
func (b *SliceBucket) Len() int {
	return len(b.tuples)
}

// SegmentSize is the number of tuples held by one SegmentedBucket segment.
const SegmentSize = 32

type segment struct {
	tuples [SegmentSize]tuple.Tuple
	n      int
	next   *segment
}

// SegmentedBucket stores tuples in a chain of fixed-size segments. A stored
// tuple is never moved by later pushes, unlike SliceBucket which copies its
// backing array when it grows.
type SegmentedBucket struct {
	head, tail *segment
	n          int
}

// Push appends t, starting a new segment when the last one is full.
func (b *SegmentedBucket) Push(t tuple.Tuple) {
	if b.tail == nil || b.tail.n == SegmentSize {
		s := &segment{}
		if b.tail == nil {
			b.head = s
		} else {
			b.tail.next = s
		}
		b.tail = s
	}
	b.tail.tuples[b.tail.n] = t
	b.tail.n++
	b.n++
}

// All yields the stored tuples in insertion order.
func (b *SegmentedBucket) All() iter.Seq[*tuple.Tuple] {
	return func(yield func(*tuple.Tuple) bool) {
		for s := b.head; s != nil; s = s.next {
			for i := 0; i < s.n; i++ {
				if !yield(&s.tuples[i]) {
					return
				}
			}
		}
	}
}

// Len returns the number of stored tuples.
func (b *SegmentedBucket) Len() int {
	return b.n
}

// Segments reports how many segments the bucket has allocated.
func (b *SegmentedBucket) Segments() int {
	n := 0
	for s := b.head; s != nil; s = s.next {
		n++
	}
	return n
}
