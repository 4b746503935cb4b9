// Package testutil provides common testing utilities for the join packages:
// pool setup with automatic cleanup, reproducible workloads and a reference
// join to check strategies against.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paveg/joinbench/internal/join"
	"github.com/paveg/joinbench/internal/parallel"
	"github.com/paveg/joinbench/internal/tuple"
	"github.com/paveg/joinbench/internal/workload"
)

// Seed is the generator seed used by Generate.
const Seed = 99

// NewPool creates a pool with a small split floor and closes it when the
// test ends.
func NewPool(tb testing.TB, threads int) *parallel.Pool {
	tb.Helper()
	pool, err := parallel.NewPool(parallel.Config{Threads: threads, MinSplit: 2})
	require.NoError(tb, err)
	tb.Cleanup(pool.Close)
	return pool
}

// Generate builds a reproducible workload.
func Generate(tb testing.TB, inner, ratio, batch int, dist workload.Distribution) tuple.Inputs {
	tb.Helper()
	g, err := workload.NewGenerator(inner, ratio, batch, Seed)
	require.NoError(tb, err)
	in, err := g.Generate(dist)
	require.NoError(tb, err)
	return in
}

// Clone deep-copies both relations so that several strategies can consume
// the same workload.
func Clone(in tuple.Inputs) tuple.Inputs {
	return tuple.Inputs{Inner: in.Inner.Clone(), Outer: in.Outer.Clone()}
}

// ReferenceResult joins in with a map and no hashing or batching, giving the
// Result every strategy must reproduce.
func ReferenceResult(in tuple.Inputs) join.Result {
	counts := make(map[tuple.Key]uint64)
	for t := range in.Inner.All() {
		counts[t.Key()]++
	}

	var r join.Result
	for t := range in.Outer.All() {
		n := counts[t.Key()]
		r.Matches += n
		r.Checksum += n * uint64(t.Key())
	}
	return r
}
