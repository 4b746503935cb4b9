package join

import (
	"context"
	"fmt"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/parallel"
	"github.com/paveg/joinbench/internal/tuple"
)

// PartitionIndex routes key to one of partitionCount partitions, which must
// be a power of two. Both relations use it, so matching keys always meet in
// the same partition.
func PartitionIndex(h hashing.Hasher, key tuple.Key, partitionCount int) int {
	return int(h.PartitionHash(key) & uint64(partitionCount-1)) //nolint:gosec // masked below partitionCount
}

// Partition is one hash partition while it is being filled and built.
type Partition[B any, PB hashtable.BucketPtr[B]] struct {
	Inner Buffer
	Outer Buffer
	table *hashtable.Table[B, PB]
}

// ProbePartition is a built partition: its private table and the outer
// tuples routed to it.
type ProbePartition[B any, PB hashtable.BucketPtr[B]] struct {
	outer []tuple.Batch
	table *hashtable.Table[B, PB]
}

// ProbePartitions is the build output of Partitioned.
type ProbePartitions[B any, PB hashtable.BucketPtr[B]] []ProbePartition[B, PB]

// BucketSizes concatenates the occupancy of every partition table.
func (ps ProbePartitions[B, PB]) BucketSizes() []int {
	var sizes []int
	for _, p := range ps {
		sizes = append(sizes, p.table.BucketSizes()...)
	}
	return sizes
}

// Partitioned splits both relations by key hash into independent partitions,
// each with a private single-owner table. No locks are needed after
// partitioning because each partition is handled by one task per phase.
type Partitioned[B any, PB hashtable.BucketPtr[B]] struct {
	inputs
	opts Options
	pool *parallel.Pool
}

// NewPartitioned creates a partitioned join over in, scheduled on pool.
func NewPartitioned[B any, PB hashtable.BucketPtr[B]](opts Options, pool *parallel.Pool, in tuple.Inputs) *Partitioned[B, PB] {
	return &Partitioned[B, PB]{inputs: inputs{in: in}, opts: opts, pool: pool}
}

func (s *Partitioned[B, PB]) Name() string {
	return "partitioned/" + s.opts.Scheduling.String()
}

func (s *Partitioned[B, PB]) newPartitions() ([]*Partition[B, PB], error) {
	count := s.opts.PartitionCount
	if !hashing.IsPowerOfTwo(count) {
		return nil, errors.NewPreconditionError("Partitioned.Partition", "partition_count",
			fmt.Sprintf("must be a power of two, got %d", count))
	}
	if s.opts.BucketCount%count != 0 {
		return nil, errors.NewPreconditionError("Partitioned.Partition", "bucket_count",
			fmt.Sprintf("%d buckets do not divide across %d partitions", s.opts.BucketCount, count))
	}
	parts := make([]*Partition[B, PB], count)
	for i := range parts {
		table, err := hashtable.NewTable[B, PB](s.opts.BucketCount/count, hashtable.WithHasher(s.opts.Hasher))
		if err != nil {
			return nil, err
		}
		parts[i] = &Partition[B, PB]{table: table}
	}
	return parts, nil
}

// Partition routes every inner and outer tuple into its partition's buffer.
// Each task stages its tuples per partition and appends them in one step.
func (s *Partitioned[B, PB]) Partition(ctx context.Context) ([]*Partition[B, PB], error) {
	in, err := s.take("Partitioned.Partition")
	if err != nil {
		return nil, err
	}
	parts, err := s.newPartitions()
	if err != nil {
		return nil, err
	}
	inner := func(p *Partition[B, PB]) *Buffer { return &p.Inner }
	outer := func(p *Partition[B, PB]) *Buffer { return &p.Outer }
	if err := s.scatter(ctx, parts, in.Inner, inner); err != nil {
		return nil, err
	}
	if err := s.scatter(ctx, parts, in.Outer, outer); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *Partitioned[B, PB]) scatter(ctx context.Context, parts []*Partition[B, PB], rel tuple.Relation, side func(*Partition[B, PB]) *Buffer) error {
	count := len(parts)
	for _, batch := range rel {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.opts.Scheduling.run(s.pool, len(batch), func(lo, hi int) {
			staged := make([]tuple.Batch, count)
			for i := lo; i < hi; i++ {
				p := PartitionIndex(s.opts.Hasher, batch[i].Key(), count)
				staged[p] = append(staged[p], batch[i])
			}
			for p, chunk := range staged {
				side(parts[p]).Append(chunk)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Build drains each partition's inner buffer into its table, one task per
// partition.
func (s *Partitioned[B, PB]) Build(ctx context.Context, parts []*Partition[B, PB]) (ProbePartitions[B, PB], error) {
	built, err := parallel.MapIndexed(ctx, s.pool, parts, func(_ int, p *Partition[B, PB]) (ProbePartition[B, PB], error) {
		for _, chunk := range p.Inner.Drain() {
			p.table.InsertBatch(chunk)
		}
		return ProbePartition[B, PB]{outer: p.Outer.Drain(), table: p.table}, nil
	})
	if err != nil {
		return nil, err
	}
	return ProbePartitions[B, PB](built), nil
}

// Probe scans each partition's outer tuples against its own table. The
// policy decides how partitions are assigned to workers.
func (s *Partitioned[B, PB]) Probe(ctx context.Context, parts ProbePartitions[B, PB]) (Result, error) {
	var acc accumulator
	probe := func(lo, hi int) {
		var e Emitter
		for _, p := range parts[lo:hi] {
			if ctx.Err() != nil {
				break
			}
			for _, chunk := range p.outer {
				for i := range chunk {
					for m := range p.table.GetMatchingTuples(chunk[i].Key()) {
						e.ProduceTuple(m)
					}
				}
			}
		}
		acc.flush(&e)
	}

	var err error
	if s.opts.Scheduling == Static {
		err = s.pool.Static(len(parts), probe)
	} else {
		err = s.pool.DynamicWithGrain(len(parts), 1, probe)
	}
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return acc.result(), nil
}

// Run executes the strategy through the pipeline.
func (s *Partitioned[B, PB]) Run(ctx context.Context, opts ...RunOption) (Report, error) {
	return Execute[[]*Partition[B, PB], ProbePartitions[B, PB]](ctx, s, opts...)
}
