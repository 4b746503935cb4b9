package join

import (
	"fmt"

	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/parallel"
	"github.com/paveg/joinbench/internal/tuple"
)

// Kind names a join strategy.
type Kind string

const (
	KindSequential  Kind = "sequential"
	KindShared      Kind = "shared"
	KindPartitioned Kind = "partitioned"
)

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSequential, KindShared, KindPartitioned:
		return k, nil
	default:
		return "", fmt.Errorf("unknown strategy: %q", s)
	}
}

// BucketKind names a bucket storage implementation.
type BucketKind string

const (
	SliceBuckets     BucketKind = "slice"
	SegmentedBuckets BucketKind = "segmented"
)

// ParseBucketKind converts a configuration value into a BucketKind.
func ParseBucketKind(s string) (BucketKind, error) {
	switch k := BucketKind(s); k {
	case SliceBuckets, SegmentedBuckets:
		return k, nil
	default:
		return "", fmt.Errorf("unknown bucket kind: %q", s)
	}
}

// NewRunner creates a strategy of the given kind and bucket storage over in.
// Sequential ignores pool and opts.Scheduling.
func NewRunner(kind Kind, buckets BucketKind, opts Options, pool *parallel.Pool, in tuple.Inputs) (Runner, error) {
	switch buckets {
	case SliceBuckets, "":
		return newRunner[hashtable.SliceBucket](kind, opts, pool, in)
	case SegmentedBuckets:
		return newRunner[hashtable.SegmentedBucket](kind, opts, pool, in)
	default:
		return nil, fmt.Errorf("unknown bucket kind: %q", buckets)
	}
}

func newRunner[B any, PB hashtable.BucketPtr[B]](kind Kind, opts Options, pool *parallel.Pool, in tuple.Inputs) (Runner, error) {
	if kind != KindSequential && pool == nil {
		return nil, fmt.Errorf("%s strategy needs a worker pool", kind)
	}
	switch kind {
	case KindSequential:
		return NewSequential[B, PB](opts, in), nil
	case KindShared:
		return NewShared[B, PB](opts, pool, in), nil
	case KindPartitioned:
		return NewPartitioned[B, PB](opts, pool, in), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", kind)
	}
}
