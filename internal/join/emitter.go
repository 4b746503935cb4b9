package join

import (
	"sync/atomic"

	"github.com/paveg/joinbench/internal/tuple"
)

// Result is what a probe phase produced: the number of matches and the
// wrapping sum of every matched key. Both are independent of the order in
// which matches were produced.
type Result struct {
	Matches  uint64
	Checksum uint64
}

// Add combines two partial results.
func (r Result) Add(o Result) Result {
	return Result{Matches: r.Matches + o.Matches, Checksum: r.Checksum + o.Checksum}
}

// Emitter stands in for the downstream consumer of join output. Each probe
// task owns one and calls ProduceTuple once per match.
type Emitter struct {
	matches  uint64
	checksum uint64
}

// ProduceTuple emits one matched tuple.
//
//go:noinline
func (e *Emitter) ProduceTuple(t *tuple.Tuple) {
	e.matches++
	e.checksum += uint64(t.Key())
}

// Result returns what the emitter has produced so far.
func (e *Emitter) Result() Result {
	return Result{Matches: e.matches, Checksum: e.checksum}
}

// accumulator merges emitters from concurrent tasks.
type accumulator struct {
	matches  atomic.Uint64
	checksum atomic.Uint64
}

func (a *accumulator) flush(e *Emitter) {
	a.matches.Add(e.matches)
	a.checksum.Add(e.checksum)
	*e = Emitter{}
}

func (a *accumulator) result() Result {
	return Result{Matches: a.matches.Load(), Checksum: a.checksum.Load()}
}
