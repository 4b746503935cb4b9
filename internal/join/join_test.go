package join_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/hashtable"
	"github.com/paveg/joinbench/internal/join"
	"github.com/paveg/joinbench/internal/testutil"
	"github.com/paveg/joinbench/internal/tuple"
	"github.com/paveg/joinbench/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequential_UniformScenario(t *testing.T) {
	in := testutil.Generate(t, 100, 10, 10, workload.Uniform)
	require.Len(t, in.Inner, 10)
	require.Len(t, in.Outer, 100)
	want := testutil.ReferenceResult(in).Checksum

	s := join.NewSequential[hashtable.SliceBucket](join.Options{BucketCount: 64}, in)
	rep, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sequential", rep.Strategy)
	assert.Equal(t, uint64(1000), rep.Result.Matches)
	assert.Equal(t, want, rep.Result.Checksum)
}

func TestStrategies_MatchSequential(t *testing.T) {
	dists := []workload.Distribution{workload.Uniform, workload.LowSkew, workload.HighSkew}
	kinds := []join.Kind{join.KindShared, join.KindPartitioned}
	scheds := []join.Scheduling{join.Static, join.Dynamic}
	buckets := []join.BucketKind{join.SliceBuckets, join.SegmentedBuckets}

	pool := testutil.NewPool(t, 4)

	for _, dist := range dists {
		in := testutil.Generate(t, 512, 4, 64, dist)
		base := join.NewSequential[hashtable.SliceBucket](join.Options{BucketCount: 256}, testutil.Clone(in))
		want, err := base.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(in.Outer.Len()), want.Result.Matches)
		require.Equal(t, testutil.ReferenceResult(in), want.Result)

		for _, kind := range kinds {
			for _, sched := range scheds {
				for _, bk := range buckets {
					name := fmt.Sprintf("%s/%s/%s/%s", dist, kind, sched, bk)
					t.Run(name, func(t *testing.T) {
						opts := join.Options{
							BucketCount:    256,
							PartitionCount: 8,
							Scheduling:     sched,
						}
						r, err := join.NewRunner(kind, bk, opts, pool, testutil.Clone(in))
						require.NoError(t, err)
						assert.Equal(t, string(kind)+"/"+sched.String(), r.Name())

						got, err := r.Run(context.Background())
						require.NoError(t, err)
						assert.Equal(t, want.Result, got.Result)
					})
				}
			}
		}
	}
}

func TestShared_UnsafeProbeMatchesFrozen(t *testing.T) {
	pool := testutil.NewPool(t, 2)
	in := testutil.Generate(t, 256, 8, 32, workload.HighSkew)

	frozen := join.NewShared[hashtable.SliceBucket](join.Options{BucketCount: 128, Scheduling: join.Dynamic}, pool, testutil.Clone(in))
	a, err := frozen.Run(context.Background())
	require.NoError(t, err)

	unlocked := join.NewShared[hashtable.SliceBucket](join.Options{
		BucketCount:       128,
		Scheduling:        join.Static,
		UnsafeSharedProbe: true,
	}, pool, testutil.Clone(in))
	b, err := unlocked.Run(context.Background(), join.WithBucketSizes())
	require.NoError(t, err)

	assert.Equal(t, a.Result, b.Result)
	assert.Len(t, b.BucketSizes, 128)
}

func TestPartitioned_SameKeySamePartition(t *testing.T) {
	pool := testutil.NewPool(t, 2)
	in := testutil.Generate(t, 128, 4, 16, workload.LowSkew)

	s := join.NewPartitioned[hashtable.SliceBucket](join.Options{
		BucketCount:    64,
		PartitionCount: 4,
		Scheduling:     join.Dynamic,
	}, pool, in)
	parts, err := s.Partition(context.Background())
	require.NoError(t, err)
	require.Len(t, parts, 4)

	home := make(map[tuple.Key]int)
	innerTotal, outerTotal := 0, 0
	for i, p := range parts {
		for tup := range p.Inner.All() {
			home[tup.Key()] = i
			assert.Equal(t, i, join.PartitionIndex(hashing.Default, tup.Key(), 4))
		}
		innerTotal += p.Inner.Len()
		outerTotal += p.Outer.Len()
	}
	assert.Equal(t, 128, innerTotal)
	assert.Equal(t, 512, outerTotal)

	for i, p := range parts {
		for tup := range p.Outer.All() {
			assert.Equal(t, home[tup.Key()], i, "key %d", tup.Key())
		}
	}
}

func TestRun_DuplicatesAndMisses(t *testing.T) {
	pool := testutil.NewPool(t, 2)
	in := tuple.Inputs{
		Inner: tuple.FromKeys(2, 1, 1, 2, 3),
		Outer: tuple.FromKeys(2, 1, 2, 9, 10),
	}

	for _, kind := range []join.Kind{join.KindSequential, join.KindShared, join.KindPartitioned} {
		t.Run(string(kind), func(t *testing.T) {
			opts := join.Options{BucketCount: 16, PartitionCount: 2, Scheduling: join.Static}
			r, err := join.NewRunner(kind, join.SliceBuckets, opts, pool, testutil.Clone(in))
			require.NoError(t, err)
			rep, err := r.Run(context.Background())
			require.NoError(t, err)
			// Key 1 matches twice, key 2 once, 9 and 10 not at all.
			assert.Equal(t, join.Result{Matches: 3, Checksum: 4}, rep.Result)
		})
	}
}

func TestRun_InputsAreConsumed(t *testing.T) {
	s := join.NewSequential[hashtable.SliceBucket](join.Options{BucketCount: 8}, tuple.Inputs{
		Inner: tuple.FromKeys(4, 0, 1, 2, 3),
		Outer: tuple.FromKeys(4, 3),
	})
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}

func TestRun_Errors(t *testing.T) {
	pool := testutil.NewPool(t, 4)
	in := tuple.Inputs{
		Inner: tuple.FromKeys(6, 0, 1, 2, 3, 4, 5),
		Outer: tuple.FromKeys(6, 0, 1, 2, 3, 4, 5),
	}

	tests := []struct {
		name   string
		kind   join.Kind
		opts   join.Options
		target error
	}{
		{"bucket count not a power of two", join.KindSequential, join.Options{BucketCount: 10}, errors.ErrConfiguration},
		{"shared bucket count not a power of two", join.KindShared, join.Options{BucketCount: 100, Scheduling: join.Dynamic}, errors.ErrConfiguration},
		{"static batch not divisible", join.KindShared, join.Options{BucketCount: 16, Scheduling: join.Static}, errors.ErrPrecondition},
		{"buckets not divisible by partitions", join.KindPartitioned, join.Options{BucketCount: 16, PartitionCount: 32, Scheduling: join.Dynamic}, errors.ErrPrecondition},
		{"partition count not a power of two", join.KindPartitioned, join.Options{BucketCount: 48, PartitionCount: 3, Scheduling: join.Dynamic}, errors.ErrPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := join.NewRunner(tt.kind, join.SliceBuckets, tt.opts, pool, testutil.Clone(in))
			require.NoError(t, err)
			_, err = r.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := join.NewSequential[hashtable.SliceBucket](join.Options{BucketCount: 8}, tuple.Inputs{
		Inner: tuple.FromKeys(2, 0, 1),
		Outer: tuple.FromKeys(2, 0, 1),
	})
	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingObserver struct {
	mu      sync.Mutex
	phases  []join.Phase
	results []join.Result
}

func (o *recordingObserver) ObservePhase(_ string, phase join.Phase, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func (o *recordingObserver) ObserveResult(_ string, r join.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func TestExecute_ObserverAndBucketSizes(t *testing.T) {
	pool := testutil.NewPool(t, 2)
	in := testutil.Generate(t, 64, 2, 16, workload.Uniform)

	obs := &recordingObserver{}
	p := join.NewPartitioned[hashtable.SegmentedBucket](join.Options{
		BucketCount:    32,
		PartitionCount: 4,
		Scheduling:     join.Static,
	}, pool, in)
	rep, err := p.Run(context.Background(), join.WithObserver(obs), join.WithBucketSizes(), join.WithLogger(nil))
	require.NoError(t, err)

	assert.Equal(t, join.Phases, obs.phases)
	assert.Equal(t, []join.Result{rep.Result}, obs.results)
	require.Len(t, rep.BucketSizes, 32)
	assert.Equal(t, 64, hashtable.SummarizeOccupancy(rep.BucketSizes).Tuples)
	assert.Equal(t, rep.Timings.Partition+rep.Timings.Build+rep.Timings.Probe, rep.Timings.Total())
	assert.Equal(t, rep.Timings.Probe, rep.Timings.Get(join.PhaseProbe))
}

func TestParsers(t *testing.T) {
	s, err := join.ParseScheduling("static")
	require.NoError(t, err)
	assert.Equal(t, join.Static, s)
	s, err = join.ParseScheduling("dynamic")
	require.NoError(t, err)
	assert.Equal(t, join.Dynamic, s)
	_, err = join.ParseScheduling("guided")
	assert.Error(t, err)

	k, err := join.ParseKind("partitioned")
	require.NoError(t, err)
	assert.Equal(t, join.KindPartitioned, k)
	_, err = join.ParseKind("radix")
	assert.Error(t, err)

	b, err := join.ParseBucketKind("segmented")
	require.NoError(t, err)
	assert.Equal(t, join.SegmentedBuckets, b)
	_, err = join.ParseBucketKind("linked")
	assert.Error(t, err)

	_, err = join.NewRunner(join.KindShared, join.SliceBuckets, join.Options{}, nil, tuple.Inputs{})
	assert.Error(t, err)
}
