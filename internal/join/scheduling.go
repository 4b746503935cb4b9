package join

import (
	"fmt"

	"github.com/paveg/joinbench/internal/parallel"
)

// Scheduling selects how a phase spreads its work over the pool.
type Scheduling int

const (
	// Static splits the work into one equal contiguous slice per thread.
	// The work size must be a multiple of the thread count.
	Static Scheduling = iota
	// Dynamic hands the work to work-stealing workers that split ranges
	// at run time.
	Dynamic
)

// ParseScheduling converts "static" or "dynamic" into a Scheduling.
func ParseScheduling(s string) (Scheduling, error) {
	switch s {
	case "static":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	default:
		return 0, fmt.Errorf("unknown scheduling: %q", s)
	}
}

func (s Scheduling) String() string {
	switch s {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("Scheduling(%d)", int(s))
	}
}

// run spreads [0, n) over pool according to s.
func (s Scheduling) run(pool *parallel.Pool, n int, fn func(lo, hi int)) error {
	if s == Static {
		return pool.Static(n, fn)
	}
	return pool.Dynamic(n, fn)
}
