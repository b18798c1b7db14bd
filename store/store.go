// Package store defines the submission projection store: the durable
// record of submissions, testcases, and worker credentials the bridge
// reads and writes. ProjectionStore is consumed by admission, and by
// session through that package's narrower Store and WorkerDirectory
// interfaces; cmd/ only ever constructs a concrete implementation and
// passes it through by interface (SPEC_FULL §6).
package store

import (
	"github.com/tranngoclamm/oj-bridge/model"
)

// ProjectionStore is the full read/write surface the bridge needs from
// the durable submission store. It is satisfied by both *Postgres and
// *Memory, and is a superset of the session package's narrower Store and
// WorkerDirectory interfaces.
type ProjectionStore interface {
	// Problem returns the minimal projection needed to gate testcase
	// visibility and compute points.
	Problem(problemID string) (model.Problem, error)
	// AllProblemCodes returns every known problem code, used under
	// ignore-problems-packet mode.
	AllProblemCodes() ([]string, error)

	// AuthenticateWorker returns a worker's expected key, tier, and
	// disabled flag by name.
	AuthenticateWorker(workerID string) (key string, tier int, disabled bool, err error)

	// EnqueueSubmission inserts a new submission row in Queued status.
	EnqueueSubmission(sub *model.Submission) error
	// AttemptNo counts prior non-CE/IE submissions by the same
	// (user, problem, participation) tuple (SPEC_FULL §3, "added attempt
	// accounting").
	AttemptNo(userID int64, problemID string, participationID *int64) (int, error)
	// LoadSubmission fetches a submission row by id.
	LoadSubmission(id int64) (*model.Submission, error)
	// RequeueSubmission resets a submission back to Queued, for an
	// external rejudge action.
	RequeueSubmission(id int64) error

	// MarkProcessing transitions a dispatched, acknowledged submission to
	// Processing.
	MarkProcessing(submissionID int64, judgedOn string) error
	// ReplaceTestCases deletes all existing testcase rows for a fresh
	// grading attempt.
	ReplaceTestCases(submissionID int64) error
	// InsertTestCases bulk-inserts newly reported testcase rows.
	InsertTestCases(submissionID int64, cases []model.TestCase) error
	// FinishGrading writes the final aggregate and marks Done.
	FinishGrading(submissionID int64, result model.Result, casePoints, caseTotal, points, maxTime float64, maxMemory int64) error
	// FailCompile marks CompileError/CE.
	FailCompile(submissionID int64, log string) error
	// FailInternal marks InternalErr/IE.
	FailInternal(submissionID int64, message string) error
	// Terminate marks Aborted/AB with zero points.
	Terminate(submissionID int64) error
}
