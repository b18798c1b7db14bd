// Package protocol defines the judge wire protocol: a set of JSON packets
// discriminated by a "name" field, exchanged over the framed transport
// (see package transport). It mirrors the teacher's message.Framing
// contract (marshal/unpack/unmarshal as a pluggable seam) but fixes a
// single concrete envelope, since spec §4.1 pins the wire format exactly.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Packet names, Worker -> Server.
const (
	NameHandshake              = "handshake"
	NameSubmissionAcknowledged = "submission-acknowledged"
	NameGradingBegin           = "grading-begin"
	NameGradingEnd             = "grading-end"
	NameCompileError           = "compile-error"
	NameCompileMessage         = "compile-message"
	NameBatchBegin             = "batch-begin"
	NameBatchEnd               = "batch-end"
	NameTestCaseStatus         = "test-case-status"
	NameInternalError          = "internal-error"
	NameSubmissionTerminated   = "submission-terminated"
	NamePingResponse           = "ping-response"
	NameSupportedProblems      = "supported-problems"
	NameExecutors              = "executors"
	NameTestCaseIDE            = "testcase-ide"
)

// Packet names, Server -> Worker.
const (
	NameHandshakeSuccess     = "handshake-success"
	NameSubmissionRequest    = "submission-request"
	NameTerminateSubmission  = "terminate-submission"
	NamePing                 = "ping"
	NameDisconnect           = "disconnect"
)

// Envelope is the minimal shape every packet shares: a discriminator. It is
// decoded first so the concrete payload type can be chosen before a second,
// typed unmarshal.
type Envelope struct {
	Name string `json:"name"`
}

// ExecutorEntry is one (runtime name, version) pair reported for a language
// key in handshake/executors packets.
type ExecutorEntry struct {
	Name    string
	Version []int
}

// UnmarshalJSON accepts the worker's ["Name",[v,e,r]] tuple encoding.
func (e *ExecutorEntry) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.Name); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &e.Version)
}

// MarshalJSON emits the ["Name",[v,e,r]] tuple encoding.
func (e ExecutorEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.Name, e.Version})
}

// decodeProblemTuples extracts the first element of each single-element
// array in the worker's "problems" encoding, e.g. [["p1"],["p2"]] -> ["p1",
// "p2"].
func decodeProblemTuples(raw []json.RawMessage) ([]string, error) {
	var out = make([]string, 0, len(raw))
	for _, r := range raw {
		var tuple []string
		if err := json.Unmarshal(r, &tuple); err != nil {
			return nil, err
		}
		if len(tuple) == 0 {
			return nil, errors.New("protocol: empty problem tuple")
		}
		out = append(out, tuple[0])
	}
	return out, nil
}

func encodeProblemTuples(problems []string) [][]string {
	var out = make([][]string, len(problems))
	for i, p := range problems {
		out[i] = []string{p}
	}
	return out
}

// Handshake is the first frame a worker must send (Worker->Server). The
// wire encodes "problems" as a list of single-element tuples (e.g.
// [["p1"]]), not a flat string array -- see {Un,}MarshalJSON below.
type Handshake struct {
	Name      string                     `json:"name"`
	ID        string                     `json:"id"`
	Key       string                     `json:"key"`
	Problems  []string                   `json:"problems"`
	Executors map[string][]ExecutorEntry `json:"executors"`
}

// UnmarshalJSON decodes "problems" from its [["p1"],["p2"]] tuple encoding.
func (h *Handshake) UnmarshalJSON(data []byte) error {
	type alias Handshake
	var shadow struct {
		alias
		Problems []json.RawMessage `json:"problems"`
	}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	problems, err := decodeProblemTuples(shadow.Problems)
	if err != nil {
		return errors.Wrap(err, "protocol: decode handshake problems")
	}
	*h = Handshake(shadow.alias)
	h.Problems = problems
	return nil
}

// MarshalJSON emits "problems" in its [["p1"],["p2"]] tuple encoding.
func (h Handshake) MarshalJSON() ([]byte, error) {
	type alias Handshake
	return json.Marshal(struct {
		alias
		Problems [][]string `json:"problems"`
	}{alias: alias(h), Problems: encodeProblemTuples(h.Problems)})
}

// HandshakeSuccess acknowledges a valid handshake (Server->Worker).
type HandshakeSuccess struct {
	Name string `json:"name"`
}

// SubmissionMeta carries auxiliary dispatch context (Server->Worker, nested
// in SubmissionRequest).
type SubmissionMeta struct {
	PretestsOnly bool   `json:"pretests-only"`
	InContest    bool   `json:"in-contest"`
	AttemptNo    int    `json:"attempt-no"`
	User         string `json:"user"`
	FileOnly     bool   `json:"file-only"`
	FileSizeLimit int64 `json:"file-size-limit"`
	IDEInput     string `json:"ide_input,omitempty"`
}

// SubmissionRequest dispatches one submission to an Idle worker
// (Server->Worker).
type SubmissionRequest struct {
	Name         string         `json:"name"`
	SubmissionID int64          `json:"submission-id"`
	ProblemID    string         `json:"problem-id"`
	Language     string         `json:"language"`
	Source       string         `json:"source,omitempty"`
	SourceURL    string         `json:"source-url,omitempty"`
	TimeLimit    float64        `json:"time-limit"`
	MemoryLimit  int64          `json:"memory-limit"`
	ShortCircuit bool           `json:"short-circuit"`
	Meta         SubmissionMeta `json:"meta"`
}

// SubmissionAcknowledged confirms receipt of a SubmissionRequest
// (Worker->Server).
type SubmissionAcknowledged struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// TerminateSubmission asks the worker to abort its in-flight submission
// (Server->Worker).
type TerminateSubmission struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// GradingBegin marks the start of grading (Worker->Server).
type GradingBegin struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// CompileMessage carries a non-terminal compiler log line (Worker->Server).
type CompileMessage struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
	Log          string `json:"log"`
}

// CompileError is terminal: the submission failed to compile
// (Worker->Server).
type CompileError struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
	Log          string `json:"log"`
}

// BatchBegin opens a batch of testcases (Worker->Server).
type BatchBegin struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// BatchEnd closes the currently open batch (Worker->Server).
type BatchEnd struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// TestCaseResult is one element of a TestCaseStatus packet's "cases" array.
type TestCaseResult struct {
	Position         int     `json:"position"`
	Status           int     `json:"status"`
	Time             float64 `json:"time"`
	Memory           int64   `json:"memory"`
	Points           float64 `json:"points"`
	TotalPoints      float64 `json:"total-points"`
	Feedback         string  `json:"feedback"`
	ExtendedFeedback string  `json:"extended-feedback"`
	Output           string  `json:"output"`
}

// TestCaseStatus batches one or more per-testcase results (Worker->Server).
type TestCaseStatus struct {
	Name         string           `json:"name"`
	SubmissionID int64            `json:"submission-id"`
	Cases        []TestCaseResult `json:"cases"`
}

// GradingEnd is terminal: grading completed (Worker->Server).
type GradingEnd struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// InternalError is terminal: the worker hit an internal fault
// (Worker->Server).
type InternalError struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
	Message      string `json:"message"`
}

// SubmissionTerminated is terminal: the worker honored a
// terminate-submission request (Worker->Server).
type SubmissionTerminated struct {
	Name         string `json:"name"`
	SubmissionID int64  `json:"submission-id"`
}

// Ping is sent periodically by the server to measure round-trip and clock
// skew (Server->Worker).
type Ping struct {
	Name string  `json:"name"`
	When float64 `json:"when"`
}

// PingResponse answers a Ping (Worker->Server).
type PingResponse struct {
	Name string  `json:"name"`
	When float64 `json:"when"`
	Time float64 `json:"time"`
	Load float64 `json:"load"`
}

// SupportedProblems replaces the worker's problem set (Worker->Server).
// "problems" uses the same [["p1"],["p2"]] tuple encoding as Handshake.
type SupportedProblems struct {
	Name     string   `json:"name"`
	Problems []string `json:"problems"`
}

// UnmarshalJSON decodes "problems" from its [["p1"],["p2"]] tuple encoding.
func (s *SupportedProblems) UnmarshalJSON(data []byte) error {
	type alias SupportedProblems
	var shadow struct {
		alias
		Problems []json.RawMessage `json:"problems"`
	}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	problems, err := decodeProblemTuples(shadow.Problems)
	if err != nil {
		return errors.Wrap(err, "protocol: decode supported-problems")
	}
	*s = SupportedProblems(shadow.alias)
	s.Problems = problems
	return nil
}

// MarshalJSON emits "problems" in its [["p1"],["p2"]] tuple encoding.
func (s SupportedProblems) MarshalJSON() ([]byte, error) {
	type alias SupportedProblems
	return json.Marshal(struct {
		alias
		Problems [][]string `json:"problems"`
	}{alias: alias(s), Problems: encodeProblemTuples(s.Problems)})
}

// Executors replaces the worker's executor map (Worker->Server).
type Executors struct {
	Name      string                     `json:"name"`
	Executors map[string][]ExecutorEntry `json:"executors"`
}

// TestCaseIDEResult is the nested envelope of a TestCaseIDE packet; note
// its submission identity is CurrentSubmissionID, distinct from any outer
// submission-id field -- preserved per spec §9 Open Questions.
type TestCaseIDEResult struct {
	CurrentSubmissionID int64 `json:"current_submission_id"`
}

// TestCaseIDE is an interactive-IDE passthrough packet, published without
// persistence (Worker->Server).
type TestCaseIDE struct {
	Name   string            `json:"name"`
	Result TestCaseIDEResult `json:"result"`
	Raw    json.RawMessage   `json:"-"`
}

// Disconnect asks the worker to close the connection (Server->Worker).
type Disconnect struct {
	Name string `json:"name"`
}
