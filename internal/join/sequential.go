package join

import (
	"context"

	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/tuple"
)

// Options are the layout settings shared by all strategies.
type Options struct {
	BucketCount    int // total buckets across all tables
	PartitionCount int // Partitioned only
	Scheduling     Scheduling
	Hasher         hashing.Hasher
	// UnsafeSharedProbe makes Shared probe its striped table without locks
	// instead of freezing it into a read-only table first.
	UnsafeSharedProbe bool
}

// inputs hands out a strategy's relations exactly once.
type inputs struct {
	in       tuple.Inputs
	consumed bool
}

func (i *inputs) take(op string) (tuple.Inputs, error) {
	if i.consumed {
		return tuple.Inputs{}, errConsumed(op)
	}
	in := i.in
	i.in = tuple.Inputs{}
	i.consumed = true
	return in, nil
}

// Sequential joins on the calling goroutine with one single-owner table.
// It is the baseline the parallel strategies are checked against.
type Sequential[B any, PB hashtable.BucketPtr[B]] struct {
	inputs
	opts Options
}

// NewSequential creates a sequential join over in.
func NewSequential[B any, PB hashtable.BucketPtr[B]](opts Options, in tuple.Inputs) *Sequential[B, PB] {
	return &Sequential[B, PB]{inputs: inputs{in: in}, opts: opts}
}

// SequentialBuild is the built table plus the outer relation to probe with.
type SequentialBuild[B any, PB hashtable.BucketPtr[B]] struct {
	table *hashtable.Table[B, PB]
	outer tuple.Relation
}

// BucketSizes reports the table's occupancy.
func (b *SequentialBuild[B, PB]) BucketSizes() []int {
	return b.table.BucketSizes()
}

func (s *Sequential[B, PB]) Name() string {
	return "sequential"
}

// Partition passes the inputs through.
func (s *Sequential[B, PB]) Partition(context.Context) (tuple.Inputs, error) {
	return s.take("Sequential.Partition")
}

func (s *Sequential[B, PB]) Build(ctx context.Context, in tuple.Inputs) (*SequentialBuild[B, PB], error) {
	table, err := hashtable.NewTable[B, PB](s.opts.BucketCount, hashtable.WithHasher(s.opts.Hasher))
	if err != nil {
		return nil, err
	}
	for _, batch := range in.Inner {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table.InsertBatch(batch)
	}
	return &SequentialBuild[B, PB]{table: table, outer: in.Outer}, nil
}

func (s *Sequential[B, PB]) Probe(ctx context.Context, b *SequentialBuild[B, PB]) (Result, error) {
	var e Emitter
	for _, batch := range b.outer {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for i := range batch {
			for m := range b.table.GetMatchingTuples(batch[i].Key()) {
				e.ProduceTuple(m)
			}
		}
	}
	return e.Result(), nil
}

// Run executes the strategy through the pipeline.
func (s *Sequential[B, PB]) Run(ctx context.Context, opts ...RunOption) (Report, error) {
	return Execute[tuple.Inputs, *SequentialBuild[B, PB]](ctx, s, opts...)
}
