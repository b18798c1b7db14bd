package session

import "github.com/tranngoclamm/oj-bridge/model"

// Store is the narrow slice of the submission projection store a session
// needs while it owns a submission in flight. It is expressed as a Go
// interface consumed only by the session package (SPEC_FULL §6); the
// concrete implementations live in package store.
type Store interface {
	// Problem returns the minimal projection needed to gate testcase
	// visibility and compute points.
	Problem(problemID string) (model.Problem, error)
	// MarkProcessing transitions a dispatched submission to Processing
	// once it has been acknowledged by the worker.
	MarkProcessing(submissionID int64, judgedOn string) error
	// ReplaceTestCases deletes all existing testcase rows for a fresh
	// grading attempt (spec §4.3, grading-begin).
	ReplaceTestCases(submissionID int64) error
	// InsertTestCases bulk-inserts newly reported testcase rows.
	InsertTestCases(submissionID int64, cases []model.TestCase) error
	// FinishGrading writes the final aggregate and marks the submission
	// Done.
	FinishGrading(submissionID int64, result model.Result, casePoints, caseTotal, points, maxTime float64, maxMemory int64) error
	// FailCompile marks a submission CompileError/CE with the given log.
	FailCompile(submissionID int64, log string) error
	// FailInternal marks a submission InternalErr/IE with the given
	// message.
	FailInternal(submissionID int64, message string) error
	// Terminate marks a submission Aborted/AB with zero points.
	Terminate(submissionID int64) error
}

// Publisher broadcasts a named event for a submission to its subscriber
// topics. Payload is whatever the session handler received or produced;
// it is the publisher's job (package events) to encode and rate-limit it.
type Publisher interface {
	Publish(submissionID int64, eventName string, payload interface{})
}

// WorkerDirectory resolves a worker's expected authentication key and
// cached attributes at handshake time, and the platform-wide problem set
// used under ignore-problems-packet mode.
type WorkerDirectory interface {
	AuthenticateWorker(workerID string) (key string, tier int, disabled bool, err error)
	AllProblemCodes() ([]string, error)
}
