// Package model defines the domain types exchanged between the judge
// session, the scheduler, and the submission projection store.
package model

import "time"

// Status is the lifecycle state of a Submission.
type Status string

const (
	StatusQueued       Status = "QU"
	StatusProcessing   Status = "P"
	StatusGrading      Status = "G"
	StatusDone         Status = "D"
	StatusCompileError Status = "CE"
	StatusInternalErr  Status = "IE"
	StatusAborted      Status = "AB"
)

// Result is the verdict alphabet reported on a Submission or TestCase.
// The zero value Result("") represents "no result yet" (SQL NULL).
type Result string

const (
	ResultNone Result = ""
	ResultAC   Result = "AC"
	ResultWA   Result = "WA"
	ResultTLE  Result = "TLE"
	ResultMLE  Result = "MLE"
	ResultOLE  Result = "OLE"
	ResultIR   Result = "IR"
	ResultRTE  Result = "RTE"
	ResultCE   Result = "CE"
	ResultIE   Result = "IE"
	ResultSC   Result = "SC"
	ResultAB   Result = "AB"
)

// resultPrecedence fixes the total order used to reduce a set of testcase
// results to a single overall result, per spec §3: SC < AC < WA < MLE < TLE
// < IR < RTE < OLE. Results outside this table (CE, IE, AB, none) are never
// produced by test-case-status and are not ranked here.
var resultPrecedence = map[Result]int{
	ResultSC:  0,
	ResultAC:  1,
	ResultWA:  2,
	ResultMLE: 3,
	ResultTLE: 4,
	ResultIR:  5,
	ResultRTE: 6,
	ResultOLE: 7,
}

// HighestResult returns the alphabet-max of results under the fixed
// precedence table. An empty input returns ResultNone.
func HighestResult(results []Result) Result {
	var (
		best      = ResultNone
		bestRank  = -1
		sawRanked bool
	)
	for _, r := range results {
		rank, ok := resultPrecedence[r]
		if !ok {
			continue
		}
		if !sawRanked || rank > bestRank {
			best, bestRank, sawRanked = r, rank, true
		}
	}
	return best
}

// Submission is the judge platform's durable record of a single graded
// attempt. The bridge mutates it exclusively while it owns the attempt; see
// package session.
type Submission struct {
	ID              int64
	ProblemID       string
	UserID          int64
	LanguageKey     string
	Source          string // inline source text, empty if FileOnly and stored externally
	SourceURL       string // populated when FileOnly; absolute URL to the artifact
	TimeLimit       time.Duration
	MemoryLimitKB   int64
	ShortCircuit    bool
	PretestsOnly    bool
	ParticipationID *int64
	Virtual         bool
	FileOnly        bool
	FileSizeLimit   int64
	AttemptNo       int // populated once at admission time, never recomputed by the session

	Status Status
	Result Result

	CasePoints      float64
	CaseTotal       float64
	Points          float64
	Time            float64
	Memory          int64
	CurrentTestCase int
	Batched         bool
	BatchID         int

	JudgedOn   string
	JudgedDate time.Time
	Error      string

	LockedAfter time.Time
}

// Problem is the narrow, read-only projection of problem metadata the
// bridge needs to compute points and gate testcase visibility. The full
// problem/contest domain lives outside this module's scope.
type Problem struct {
	Code               string
	Points             float64
	PartialScoring     bool
	TestCaseVisibility TestCaseVisibility
}

// TestCaseVisibility controls whether per-testcase events are published to
// subscribers at all (spec §4.5).
type TestCaseVisibility int

const (
	VisibilityAll TestCaseVisibility = iota
	VisibilityNone
)

// ComputePoints implements the points invariant from spec §3:
//
//	points = round(case_points / case_total * problem.points, 3)
//
// clamped to 0 if case_total is 0, or if the problem disallows partial
// scoring and the computed value isn't the full point value.
func ComputePoints(casePoints, caseTotal float64, problem Problem) float64 {
	if caseTotal <= 0 {
		return 0
	}
	var raw = casePoints / caseTotal * problem.Points
	raw = roundTo(raw, 3)
	if !problem.PartialScoring && raw != problem.Points {
		return 0
	}
	return raw
}

func roundTo(v float64, places int) float64 {
	var shift = 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	if v >= 0 {
		return float64(int64(v*shift+0.5)) / shift
	}
	return float64(int64(v*shift-0.5)) / shift
}
