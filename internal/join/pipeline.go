// Package join implements the hash-join strategies and the three-phase
// pipeline that drives them.
//
// Every strategy runs partition, build and probe exactly once and in that
// order. Execute times each phase on its own; a phase only starts after the
// previous one has returned, which is the barrier that lets a probe read
// tables without taking their locks.
package join

import (
	"context"
	"fmt"
	"time"

	"github.com/paveg/joinbench/internal/errors"
	"go.uber.org/zap"
)

// Strategy is a join algorithm split into its three phases. P is what the
// partition phase hands to build and B is the read-only structure build
// hands to probe.
type Strategy[P, B any] interface {
	Name() string
	Partition(ctx context.Context) (P, error)
	Build(ctx context.Context, p P) (B, error)
	Probe(ctx context.Context, b B) (Result, error)
}

// Runner runs one strategy instance once.
type Runner interface {
	Name() string
	Run(ctx context.Context, opts ...RunOption) (Report, error)
}

// Phase names a pipeline phase.
type Phase string

const (
	PhasePartition Phase = "partition"
	PhaseBuild     Phase = "build"
	PhaseProbe     Phase = "probe"
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhasePartition, PhaseBuild, PhaseProbe}

// PhaseObserver receives phase timings and results as a run progresses.
type PhaseObserver interface {
	ObservePhase(strategy string, phase Phase, elapsed time.Duration)
	ObserveResult(strategy string, result Result)
}

// Timings holds the wall-clock duration of each phase.
type Timings struct {
	Partition time.Duration
	Build     time.Duration
	Probe     time.Duration
}

// Total returns the sum of all phases.
func (t Timings) Total() time.Duration {
	return t.Partition + t.Build + t.Probe
}

// Get returns the duration of phase.
func (t Timings) Get(phase Phase) time.Duration {
	switch phase {
	case PhasePartition:
		return t.Partition
	case PhaseBuild:
		return t.Build
	case PhaseProbe:
		return t.Probe
	default:
		return 0
	}
}

// Report is the outcome of one run.
type Report struct {
	Strategy    string
	Timings     Timings
	Result      Result
	BucketSizes []int // nil unless requested with WithBucketSizes
}

// RunOption configures Execute.
type RunOption func(*runOptions)

type runOptions struct {
	logger      *zap.Logger
	observers   []PhaseObserver
	bucketSizes bool
}

// WithLogger logs each phase at debug level.
func WithLogger(l *zap.Logger) RunOption {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver adds an observer notified after every phase.
func WithObserver(obs PhaseObserver) RunOption {
	return func(o *runOptions) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithBucketSizes records the built tables' bucket occupancy in the report.
// Collection happens between build and probe and is not timed.
func WithBucketSizes() RunOption {
	return func(o *runOptions) {
		o.bucketSizes = true
	}
}

// bucketSizer is implemented by build outputs that can report occupancy.
type bucketSizer interface {
	BucketSizes() []int
}

// Execute runs the three phases of s in order and times each one.
func Execute[P, B any](ctx context.Context, s Strategy[P, B], opts ...RunOption) (Report, error) {
	o := runOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	name := s.Name()
	log := o.logger.With(zap.String("strategy", name))
	rep := Report{Strategy: name}

	observe := func(phase Phase, elapsed time.Duration) {
		log.Debug("phase finished", zap.String("phase", string(phase)), zap.Duration("elapsed", elapsed))
		for _, obs := range o.observers {
			obs.ObservePhase(name, phase, elapsed)
		}
	}

	start := time.Now()
	p, err := s.Partition(ctx)
	if err != nil {
		return rep, wrapPhase(name, PhasePartition, err)
	}
	rep.Timings.Partition = time.Since(start)
	observe(PhasePartition, rep.Timings.Partition)

	start = time.Now()
	b, err := s.Build(ctx, p)
	if err != nil {
		return rep, wrapPhase(name, PhaseBuild, err)
	}
	rep.Timings.Build = time.Since(start)
	observe(PhaseBuild, rep.Timings.Build)

	if o.bucketSizes {
		if sizer, ok := any(b).(bucketSizer); ok {
			rep.BucketSizes = sizer.BucketSizes()
		}
	}

	start = time.Now()
	res, err := s.Probe(ctx, b)
	if err != nil {
		return rep, wrapPhase(name, PhaseProbe, err)
	}
	rep.Timings.Probe = time.Since(start)
	observe(PhaseProbe, rep.Timings.Probe)

	rep.Result = res
	for _, obs := range o.observers {
		obs.ObserveResult(name, res)
	}
	log.Debug("run finished", zap.Uint64("matches", res.Matches), zap.Duration("total", rep.Timings.Total()))
	return rep, nil
}

func wrapPhase(strategy string, phase Phase, err error) error {
	return fmt.Errorf("%s %s: %w", strategy, phase, err)
}

// errConsumed is returned when a strategy's inputs were already taken by an
// earlier run.
func errConsumed(op string) error {
	return errors.NewPreconditionError(op, "", "inputs already consumed; strategies run once")
}
