// Package tuple defines the join inputs: keys, tuples, batches and relations.
//
// A Tuple is identified by one 64-bit key and padded to 16 bytes so that
// tuples never straddle a cache line when stored contiguously. Relations are
// ordered sequences of fixed-size batches; the inner relation carries one
// tuple per key (a primary key) and the outer relation carries foreign keys.
package tuple

import "iter"

// Key is the join key.
type Key uint64

// Tuple is an immutable join-input record.
type Tuple struct {
	key Key
	_   uint64 // pads the tuple to 16 bytes
}

// New creates a tuple with the given key.
func New(key Key) Tuple {
	return Tuple{key: key}
}

// Key returns the tuple's join key.
func (t *Tuple) Key() Key {
	return t.key
}

// Matches reports whether the tuple's key equals key.
func (t *Tuple) Matches(key Key) bool {
	return t.key == key
}

// Batch is a fixed-size ordered sequence of tuples.
type Batch []Tuple

// Relation is an ordered sequence of batches.
type Relation []Batch

// Len returns the total number of tuples in the relation.
func (r Relation) Len() int {
	n := 0
	for _, b := range r {
		n += len(b)
	}
	return n
}

// All yields every tuple of the relation in order.
func (r Relation) All() iter.Seq[*Tuple] {
	return func(yield func(*Tuple) bool) {
		for _, b := range r {
			for i := range b {
				if !yield(&b[i]) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy of the relation. Strategies consume their inputs,
// so running several strategies over the same workload needs one copy each.
func (r Relation) Clone() Relation {
	out := make(Relation, len(r))
	for i, b := range r {
		out[i] = append(Batch(nil), b...)
	}
	return out
}

// FromKeys builds a relation from keys, cutting it into batches of batchSize.
// The final batch is shorter when len(keys) is not a multiple of batchSize.
func FromKeys(batchSize int, keys ...Key) Relation {
	if batchSize <= 0 {
		batchSize = len(keys)
	}
	var r Relation
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		b := make(Batch, 0, end-start)
		for _, k := range keys[start:end] {
			b = append(b, New(k))
		}
		r = append(r, b)
	}
	return r
}

// Inputs bundles the two sides of one join run.
type Inputs struct {
	Inner Relation
	Outer Relation
}
