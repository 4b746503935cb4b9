package hashtable_test

import (
	"testing"

	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/tuple"
	"github.com/stretchr/testify/assert"
)

func TestBuckets(t *testing.T) {
	tests := []struct {
		name   string
		bucket hashtable.Bucket
	}{
		{"slice", &hashtable.SliceBucket{}},
		{"segmented", &hashtable.SegmentedBucket{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0, tt.bucket.Len())
			assert.Empty(t, collectKeys(tt.bucket.All()))

			var want []tuple.Key
			for k := tuple.Key(0); k < 3*hashtable.SegmentSize+5; k++ {
				tt.bucket.Push(tuple.New(k))
				want = append(want, k)
			}
			assert.Equal(t, len(want), tt.bucket.Len())
			assert.Equal(t, want, collectKeys(tt.bucket.All()))
			// Iteration does not consume.
			assert.Equal(t, want, collectKeys(tt.bucket.All()))
		})
	}
}

func TestSegmentedBucket_PointersSurviveGrowth(t *testing.T) {
	var b hashtable.SegmentedBucket
	b.Push(tuple.New(1))
	var first *tuple.Tuple
	for tup := range b.All() {
		first = tup
	}
	for k := tuple.Key(2); k < 200; k++ {
		b.Push(tuple.New(k))
	}
	for tup := range b.All() {
		assert.Same(t, first, tup)
		break
	}
	assert.Equal(t, (200+hashtable.SegmentSize-2)/hashtable.SegmentSize, b.Segments())
}

func TestSummarizeOccupancy(t *testing.T) {
	occ := hashtable.SummarizeOccupancy([]int{0, 2, 4, 2})
	assert.Equal(t, 4, occ.Buckets)
	assert.Equal(t, 8, occ.Tuples)
	assert.Equal(t, 1, occ.Empty)
	assert.Equal(t, 0, occ.Min)
	assert.Equal(t, 4, occ.Max)
	assert.InDelta(t, 2.0, occ.Mean, 1e-9)
	assert.InDelta(t, 2.0, occ.Variance, 1e-9)

	assert.Equal(t, hashtable.Occupancy{}, hashtable.SummarizeOccupancy(nil))
}

func TestNormalizeSizes(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 2, 1}, hashtable.NormalizeSizes([]int{0, 2, 4, 2}))
	assert.Equal(t, []float64{0, 0}, hashtable.NormalizeSizes([]int{0, 0}))
}
