package join

import (
	"iter"
	"sync"

	"github.com/paveg/joinbench/internal/tuple"
)

// Buffer is an append-only tuple buffer safe for concurrent appends.
// Writers hand over whole chunks, so the lock is taken once per chunk
// rather than once per tuple.
type Buffer struct {
	mu     sync.Mutex
	chunks []tuple.Batch
	n      int
}

// Append takes ownership of chunk. The caller must not modify it afterwards.
func (b *Buffer) Append(chunk tuple.Batch) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.n += len(chunk)
	b.mu.Unlock()
}

// Len returns the number of buffered tuples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Drain removes and returns every chunk. The buffer is empty afterwards.
func (b *Buffer) Drain() []tuple.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	chunks := b.chunks
	b.chunks = nil
	b.n = 0
	return chunks
}

// All yields every buffered tuple without draining, for inspecting a
// partition after the partition phase. Not safe to call during appends.
func (b *Buffer) All() iter.Seq[*tuple.Tuple] {
	return tuple.Relation(b.chunks).All()
}
