package workcell

// BinID identifies one of the two fixed destination bins.
type BinID int

const (
	// BinPass receives pieces classified as passing.
	BinPass BinID = iota
	// BinFail receives pieces classified as NG.
	BinFail
)

func (b BinID) String() string {
	if b == BinPass {
		return "bin_pass"
	}
	return "bin_fail"
}

// SelectBin maps a classification result to its destination bin. Pure and
// side-effect free: Pass always routes to BinPass, Fail always to BinFail.
func SelectBin(r Result) BinID {
	if r == ResultPass {
		return BinPass
	}
	return BinFail
}

// Stats accumulates per-cell processing counters. It is a value type updated
// by a pure reducer so a reset can swap it atomically.
type Stats struct {
	TotalProcessed int
	PassCount      int
	NGCount        int
	YieldRate      float64
}

// Record returns the statistics updated with one completed piece. YieldRate
// is recomputed on every update and defined as 0 for an empty history.
func (s Stats) Record(r Result) Stats {
	s.TotalProcessed++
	if r == ResultPass {
		s.PassCount++
	} else {
		s.NGCount++
	}
	s.YieldRate = float64(s.PassCount) / float64(s.TotalProcessed)
	return s
}
