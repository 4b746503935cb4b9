package join

import (
	"context"
	"iter"

	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/parallel"
	"github.com/paveg/joinbench/internal/tuple"
)

// Shared has every worker insert into and probe one striped table.
type Shared[B any, PB hashtable.BucketPtr[B]] struct {
	inputs
	opts Options
	pool *parallel.Pool
}

// NewShared creates a shared-table join over in, scheduled on pool.
func NewShared[B any, PB hashtable.BucketPtr[B]](opts Options, pool *parallel.Pool, in tuple.Inputs) *Shared[B, PB] {
	return &Shared[B, PB]{inputs: inputs{in: in}, opts: opts, pool: pool}
}

// probeTable is the read side of a built table.
type probeTable interface {
	GetMatchingTuples(key tuple.Key) iter.Seq[*tuple.Tuple]
	BucketSizes() []int
}

// unlockedView probes a ConcurrentTable without its locks. Valid only after
// the build phase has returned.
type unlockedView[B any, PB hashtable.BucketPtr[B]] struct {
	*hashtable.ConcurrentTable[B, PB]
}

func (v unlockedView[B, PB]) GetMatchingTuples(key tuple.Key) iter.Seq[*tuple.Tuple] {
	return v.UnsafeGetMatchingTuples(key)
}

// SharedBuild is the built shared table plus the outer relation.
type SharedBuild struct {
	table probeTable
	outer tuple.Relation
}

// BucketSizes reports the shared table's occupancy.
func (b *SharedBuild) BucketSizes() []int {
	return b.table.BucketSizes()
}

func (s *Shared[B, PB]) Name() string {
	return "shared/" + s.opts.Scheduling.String()
}

// Partition passes the inputs through.
func (s *Shared[B, PB]) Partition(context.Context) (tuple.Inputs, error) {
	return s.take("Shared.Partition")
}

// Build inserts each inner batch in parallel. Batches are processed one
// after another; the policy decides how a batch is cut into tasks.
func (s *Shared[B, PB]) Build(ctx context.Context, in tuple.Inputs) (*SharedBuild, error) {
	table, err := hashtable.NewConcurrentTable[B, PB](s.opts.BucketCount, hashtable.WithHasher(s.opts.Hasher))
	if err != nil {
		return nil, err
	}
	for _, batch := range in.Inner {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.opts.Scheduling.run(s.pool, len(batch), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				table.Insert(batch[i])
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if s.opts.UnsafeSharedProbe {
		return &SharedBuild{table: unlockedView[B, PB]{table}, outer: in.Outer}, nil
	}
	return &SharedBuild{table: table.Freeze(), outer: in.Outer}, nil
}

func (s *Shared[B, PB]) Probe(ctx context.Context, b *SharedBuild) (Result, error) {
	var acc accumulator
	for _, batch := range b.outer {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		err := s.opts.Scheduling.run(s.pool, len(batch), func(lo, hi int) {
			var e Emitter
			for i := lo; i < hi; i++ {
				for m := range b.table.GetMatchingTuples(batch[i].Key()) {
					e.ProduceTuple(m)
				}
			}
			acc.flush(&e)
		})
		if err != nil {
			return Result{}, err
		}
	}
	return acc.result(), nil
}

// Run executes the strategy through the pipeline.
func (s *Shared[B, PB]) Run(ctx context.Context, opts ...RunOption) (Report, error) {
	return Execute[tuple.Inputs, *SharedBuild](ctx, s, opts...)
}
