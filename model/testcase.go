package model

// TestCase is one input/output evaluation within a submission's grading.
// Rows are deleted and recreated at the start of each grading attempt;
// ordinals (Position) are dense from 1.
type TestCase struct {
	SubmissionID int64
	Position     int

	Status Result
	Time   float64
	Memory int64

	Points float64
	Total  float64

	// BatchID is nil when the case stands alone (outside any batch).
	BatchID *int

	Feedback         string // truncated to the platform's max length (spec §4.3)
	ExtendedFeedback string
	Output           string
}

const maxFeedbackLength = 50

// TruncateFeedback enforces the platform's short-feedback length cap.
func TruncateFeedback(feedback string) string {
	var runes = []rune(feedback)
	if len(runes) <= maxFeedbackLength {
		return feedback
	}
	return string(runes[:maxFeedbackLength])
}

// WorkerStatusBit is the bitmask alphabet a worker reports per testcase in
// a test-case-status packet (spec §4.3).
type WorkerStatusBit int

const (
	WorkerStatusAC  WorkerStatusBit = 0
	WorkerStatusWA  WorkerStatusBit = 1
	WorkerStatusRTE WorkerStatusBit = 2
	WorkerStatusTLE WorkerStatusBit = 4
	WorkerStatusMLE WorkerStatusBit = 8
	WorkerStatusIR  WorkerStatusBit = 16
	WorkerStatusSC  WorkerStatusBit = 32
	WorkerStatusOLE WorkerStatusBit = 64
)

// workerStatusPriority fixes the bit->result mapping priority from spec
// §4.3: TLE(4) > MLE(8) > OLE(64) > RTE(2) > IR(16) > WA(1) > SC(32) >
// AC(0). Multiple bits may be set simultaneously; the highest-priority bit
// present determines the reported Result.
var workerStatusPriority = []struct {
	bit    WorkerStatusBit
	result Result
}{
	{WorkerStatusTLE, ResultTLE},
	{WorkerStatusMLE, ResultMLE},
	{WorkerStatusOLE, ResultOLE},
	{WorkerStatusRTE, ResultRTE},
	{WorkerStatusIR, ResultIR},
	{WorkerStatusWA, ResultWA},
	{WorkerStatusSC, ResultSC},
}

// DecodeWorkerStatus maps a worker-reported status bitmask to a Result,
// per the fixed priority table in spec §4.3.
func DecodeWorkerStatus(mask int) Result {
	for _, entry := range workerStatusPriority {
		if mask&int(entry.bit) != 0 {
			return entry.result
		}
	}
	return ResultAC
}
