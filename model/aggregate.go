package model

// Aggregate accumulates per-testcase contributions into the submission-level
// case_points / case_total / time / memory / result totals, honoring the
// batch-collapsing rule from spec §3 and §9 Open Questions:
//
//	batch-points = min(case.points) over the batch
//	batch-total  = max(case.total)  over the batch
//
// A batch therefore adds its single max(total) to case_total, not the sum
// of its cases' totals. That is preserved intentionally, per spec §9 — it
// is not a bug to "fix".
type Aggregate struct {
	CasePoints float64
	CaseTotal  float64
	MaxTime    float64
	MaxMemory  int64
	Results    []Result

	batches map[int]*batchAccumulator
	order   []int
}

type batchAccumulator struct {
	minPoints float64
	maxTotal  float64
	seen      bool
}

// NewAggregate returns an Aggregate ready to accumulate testcases.
func NewAggregate() *Aggregate {
	return &Aggregate{batches: make(map[int]*batchAccumulator)}
}

// Add folds one testcase result into the aggregate. Standalone cases (nil
// BatchID) contribute directly; batched cases are accumulated per batch and
// only folded into the totals once, via Finish.
func (a *Aggregate) Add(tc TestCase) {
	if tc.Time > a.MaxTime {
		a.MaxTime = tc.Time
	}
	if tc.Memory > a.MaxMemory {
		a.MaxMemory = tc.Memory
	}
	a.Results = append(a.Results, tc.Status)

	if tc.BatchID == nil {
		a.CasePoints += tc.Points
		a.CaseTotal += tc.Total
		return
	}

	var id = *tc.BatchID
	var b, ok = a.batches[id]
	if !ok {
		b = &batchAccumulator{}
		a.batches[id] = b
		a.order = append(a.order, id)
	}
	if !b.seen || tc.Points < b.minPoints {
		b.minPoints = tc.Points
	}
	if tc.Total > b.maxTotal {
		b.maxTotal = tc.Total
	}
	b.seen = true
}

// Finish folds accumulated batch contributions into CasePoints/CaseTotal and
// returns the final aggregate values; call it after all testcases have been
// Added. Each batch is folded in once, so a repeated call with no Add in
// between returns the same values.
func (a *Aggregate) Finish() (casePoints, caseTotal, maxTime float64, maxMemory int64, result Result) {
	for _, id := range a.order {
		var b = a.batches[id]
		a.CasePoints += b.minPoints
		a.CaseTotal += b.maxTotal
	}
	a.order = nil
	a.batches = map[int]*batchAccumulator{}
	return a.CasePoints, a.CaseTotal, a.MaxTime, a.MaxMemory, HighestResult(a.Results)
}
