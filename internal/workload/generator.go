// Package workload generates join inputs. The inner relation holds the dense
// keys 0..N-1 in order, one tuple per key. The outer relation holds foreign
// keys drawn from [0, N) uniformly or from a Zipf distribution.
package workload

import (
	"fmt"
	"math/rand/v2"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/tuple"
)

// Zipf exponents for the skewed outer relations.
const (
	LowSkewAlpha  = 2.0
	HighSkewAlpha = 1.25
)

// Distribution names how outer keys are drawn.
type Distribution string

const (
	Uniform  Distribution = "uniform"
	LowSkew  Distribution = "low-skew"
	HighSkew Distribution = "high-skew"
)

// ParseDistribution converts a configuration value into a Distribution.
func ParseDistribution(s string) (Distribution, error) {
	switch d := Distribution(s); d {
	case Uniform, LowSkew, HighSkew:
		return d, nil
	default:
		return "", fmt.Errorf("unknown distribution: %q", s)
	}
}

// Generator produces inner and outer relations of a fixed shape.
type Generator struct {
	innerTupleCount int
	innerBatchCount int
	outerBatchCount int
	batchSize       int
	rng             *rand.Rand
}

// NewGenerator creates a generator for innerTupleCount inner tuples and
// innerTupleCount*outerRatio outer tuples, all cut into batches of batchSize.
// innerTupleCount must be a positive multiple of batchSize. A zero seed picks
// a random one.
func NewGenerator(innerTupleCount, outerRatio, batchSize int, seed uint64) (*Generator, error) {
	if batchSize <= 0 || innerTupleCount <= 0 || outerRatio <= 0 {
		return nil, errors.NewPreconditionError("NewGenerator", "",
			fmt.Sprintf("counts must be positive (inner=%d, ratio=%d, batch=%d)",
				innerTupleCount, outerRatio, batchSize))
	}
	if innerTupleCount%batchSize != 0 {
		return nil, errors.NewPreconditionError("NewGenerator", "inner_tuple_count",
			fmt.Sprintf("%d is not a multiple of batch size %d", innerTupleCount, batchSize))
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	innerBatches := innerTupleCount / batchSize
	return &Generator{
		innerTupleCount: innerTupleCount,
		innerBatchCount: innerBatches,
		outerBatchCount: innerBatches * outerRatio,
		batchSize:       batchSize,
		rng:             rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// InnerBatchCount returns the number of inner batches.
func (g *Generator) InnerBatchCount() int { return g.innerBatchCount }

// OuterBatchCount returns the number of outer batches.
func (g *Generator) OuterBatchCount() int { return g.outerBatchCount }

// BatchSize returns the number of tuples per batch.
func (g *Generator) BatchSize() int { return g.batchSize }

// Generate produces a workload with outer keys drawn from d.
func (g *Generator) Generate(d Distribution) (tuple.Inputs, error) {
	switch d {
	case Uniform:
		return g.Uniform(), nil
	case LowSkew:
		return g.LowSkew(), nil
	case HighSkew:
		return g.HighSkew(), nil
	default:
		return tuple.Inputs{}, fmt.Errorf("unknown distribution: %q", d)
	}
}

// Uniform draws every outer key with equal probability.
func (g *Generator) Uniform() tuple.Inputs {
	n := uint64(g.innerTupleCount)
	return tuple.Inputs{
		Inner: g.inner(),
		Outer: g.table(g.outerBatchCount, func(int) tuple.Key {
			return tuple.Key(g.rng.Uint64N(n))
		}),
	}
}

// LowSkew draws outer keys from Zipf(LowSkewAlpha).
func (g *Generator) LowSkew() tuple.Inputs {
	return g.zipf(LowSkewAlpha)
}

// HighSkew draws outer keys from Zipf(HighSkewAlpha).
func (g *Generator) HighSkew() tuple.Inputs {
	return g.zipf(HighSkewAlpha)
}

// zipf samples rank k in [1, N] with P(k) proportional to k^-alpha and emits
// key k-1, so key 0 is the most frequent.
func (g *Generator) zipf(alpha float64) tuple.Inputs {
	inner := g.inner()
	if g.innerTupleCount == 1 {
		return tuple.Inputs{Inner: inner, Outer: g.table(g.outerBatchCount, func(int) tuple.Key { return 0 })}
	}
	z := rand.NewZipf(g.rng, alpha, 1, uint64(g.innerTupleCount-1))
	return tuple.Inputs{
		Inner: inner,
		Outer: g.table(g.outerBatchCount, func(int) tuple.Key {
			return tuple.Key(z.Uint64())
		}),
	}
}

func (g *Generator) inner() tuple.Relation {
	return g.table(g.innerBatchCount, func(i int) tuple.Key { return tuple.Key(i) })
}

// table builds batchCount batches; key maps the global tuple index to a key.
func (g *Generator) table(batchCount int, key func(i int) tuple.Key) tuple.Relation {
	r := make(tuple.Relation, batchCount)
	for b := range r {
		batch := make(tuple.Batch, g.batchSize)
		for i := range batch {
			batch[i] = tuple.New(key(b*g.batchSize + i))
		}
		r[b] = batch
	}
	return r
}
