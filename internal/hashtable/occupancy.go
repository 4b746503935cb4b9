package hashtable

// Occupancy summarizes how tuples are spread across buckets.
type Occupancy struct {
	Buckets  int
	Tuples   int
	Empty    int
	Min      int
	Max      int
	Mean     float64
	Variance float64
}

// SummarizeOccupancy computes occupancy statistics over bucket sizes.
// Variance is the population variance.
func SummarizeOccupancy(sizes []int) Occupancy {
	occ := Occupancy{Buckets: len(sizes)}
	if len(sizes) == 0 {
		return occ
	}
	occ.Min = sizes[0]
	for _, s := range sizes {
		occ.Tuples += s
		if s == 0 {
			occ.Empty++
		}
		occ.Min = min(occ.Min, s)
		occ.Max = max(occ.Max, s)
	}
	occ.Mean = float64(occ.Tuples) / float64(len(sizes))
	var sq float64
	for _, s := range sizes {
		d := float64(s) - occ.Mean
		sq += d * d
	}
	occ.Variance = sq / float64(len(sizes))
	return occ
}

// NormalizeSizes divides every size by the mean size, so a perfectly even
// table normalizes to all ones. An empty table normalizes to all zeros.
func NormalizeSizes(sizes []int) []float64 {
	out := make([]float64, len(sizes))
	mean := SummarizeOccupancy(sizes).Mean
	if mean == 0 {
		return out
	}
	for i, s := range sizes {
		out[i] = float64(s) / mean
	}
	return out
}
