// Package joinbench runs the parallel equi-join study: it generates a
// workload, runs the selected join strategies over copies of it and checks
// that they all agree.
package joinbench

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/paveg/joinbench/internal/config"
	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/join"
	"github.com/paveg/joinbench/internal/parallel"
	"github.com/paveg/joinbench/internal/tuple"
	"github.com/paveg/joinbench/internal/workload"
)

type (
	// Config holds every run setting.
	Config = config.Config
	// Report is the timed outcome of one strategy run.
	Report = join.Report
	// Result is the match count and checksum of a join.
	Result = join.Result
	// PhaseObserver is notified after every phase of every run.
	PhaseObserver = join.PhaseObserver
)

// Error sentinels, matched with errors.Is.
var (
	ErrConfiguration = errors.ErrConfiguration
	ErrPrecondition  = errors.ErrPrecondition
	ErrInternal      = errors.ErrInternal
)

// NewConfig returns the default configuration.
func NewConfig() Config {
	return config.NewConfig()
}

// Step is one strategy run of a plan.
type Step struct {
	Kind       join.Kind
	Scheduling join.Scheduling
}

func (s Step) String() string {
	if s.Kind == join.KindSequential {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s/%s", s.Kind, s.Scheduling)
}

// Plan lists the runs cfg selects. Strategy "all" runs the sequential
// baseline first, then shared and partitioned under each selected
// scheduling.
func Plan(cfg Config) ([]Step, error) {
	var schedulings []join.Scheduling
	if cfg.Scheduling == "both" {
		schedulings = []join.Scheduling{join.Static, join.Dynamic}
	} else {
		s, err := join.ParseScheduling(cfg.Scheduling)
		if err != nil {
			return nil, err
		}
		schedulings = []join.Scheduling{s}
	}

	var kinds []join.Kind
	if cfg.Strategy == "all" {
		kinds = []join.Kind{join.KindSequential, join.KindShared, join.KindPartitioned}
	} else {
		k, err := join.ParseKind(cfg.Strategy)
		if err != nil {
			return nil, err
		}
		kinds = []join.Kind{k}
	}

	var steps []Step
	for _, k := range kinds {
		if k == join.KindSequential {
			steps = append(steps, Step{Kind: k})
			continue
		}
		for _, s := range schedulings {
			steps = append(steps, Step{Kind: k, Scheduling: s})
		}
	}
	return steps, nil
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	observers   []PhaseObserver
	bucketSizes bool
}

// WithLogger sets the logger for the run.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver adds a phase observer.
func WithObserver(obs PhaseObserver) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithBucketSizes records bucket occupancy for Outcome.BucketSizes.
func WithBucketSizes() Option {
	return func(o *options) {
		o.bucketSizes = true
	}
}

// Outcome is the result of Run.
type Outcome struct {
	Reports []Report
	// BucketSizes is the occupancy of the first run's tables, when requested.
	BucketSizes []int
	Pool        parallel.PoolMetrics
}

// Run validates cfg, generates the workload and runs every planned strategy.
// A precondition violation is reported before any phase runs. Every run must
// produce the same Result; a disagreement is an internal error.
func Run(ctx context.Context, cfg Config, opts ...Option) (*Outcome, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	steps, err := Plan(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := hashing.New(hashing.Family(cfg.HashFamily))
	if err != nil {
		return nil, err
	}
	buckets, err := join.ParseBucketKind(cfg.BucketKind)
	if err != nil {
		return nil, err
	}
	dist, err := workload.ParseDistribution(cfg.Distribution)
	if err != nil {
		return nil, err
	}

	gen, err := workload.NewGenerator(cfg.InnerTupleCount, cfg.OuterRatio, cfg.BatchSize, cfg.Seed)
	if err != nil {
		return nil, err
	}
	in, err := gen.Generate(dist)
	if err != nil {
		return nil, err
	}
	log.Info("workload generated",
		zap.String("distribution", string(dist)),
		zap.Int("inner_tuples", in.Inner.Len()),
		zap.Int("outer_tuples", in.Outer.Len()),
		zap.Int("batch_size", gen.BatchSize()))

	pool, err := parallel.NewPool(parallel.Config{Threads: cfg.Threads, MinSplit: cfg.MinSplit})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	runOpts := []join.RunOption{join.WithLogger(log)}
	for _, obs := range o.observers {
		runOpts = append(runOpts, join.WithObserver(obs))
	}

	out := &Outcome{}
	for i, step := range steps {
		stepIn := in
		if i < len(steps)-1 {
			stepIn = tuple.Inputs{Inner: in.Inner.Clone(), Outer: in.Outer.Clone()}
		}
		jopts := join.Options{
			BucketCount:       cfg.BucketCount,
			PartitionCount:    cfg.PartitionCount,
			Scheduling:        step.Scheduling,
			Hasher:            hasher,
			UnsafeSharedProbe: cfg.UnsafeSharedProbe,
		}
		runner, err := join.NewRunner(step.Kind, buckets, jopts, pool, stepIn)
		if err != nil {
			return nil, err
		}

		stepOpts := runOpts
		if o.bucketSizes && i == 0 {
			stepOpts = append(append([]join.RunOption(nil), runOpts...), join.WithBucketSizes())
		}
		rep, err := runner.Run(ctx, stepOpts...)
		if err != nil {
			return nil, fmt.Errorf("running %s: %w", step, err)
		}
		log.Info("run finished",
			zap.String("strategy", rep.Strategy),
			zap.Duration("partition", rep.Timings.Partition),
			zap.Duration("build", rep.Timings.Build),
			zap.Duration("probe", rep.Timings.Probe),
			zap.Uint64("matches", rep.Result.Matches))

		if i == 0 {
			out.BucketSizes = rep.BucketSizes
		} else if first := out.Reports[0]; rep.Result != first.Result {
			return nil, errors.NewInternalError("Run", fmt.Errorf("%s produced %d matches (checksum %d), %s produced %d (checksum %d)",
				rep.Strategy, rep.Result.Matches, rep.Result.Checksum,
				first.Strategy, first.Result.Matches, first.Result.Checksum))
		}
		rep.BucketSizes = nil
		out.Reports = append(out.Reports, rep)
	}

	out.Pool = pool.Metrics()
	log.Debug("pool statistics",
		zap.Int64("tasks", out.Pool.TotalTasksProcessed),
		zap.Int64("steals", out.Pool.WorkStealingCount),
		zap.Int64("splits", out.Pool.SplitCount))
	return out, nil
}
