package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tranngoclamm/oj-bridge/model"
)

// ErrNotFound is returned when a submission, problem, or worker lookup
// fails.
var ErrNotFound = errors.New("store: not found")

type workerRecord struct {
	key      string
	tier     int
	disabled bool
}

// Memory is an in-memory ProjectionStore, used by tests. It carries the
// same interface contract as Postgres but never round-trips through a
// driver.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	submissions map[int64]*model.Submission
	testcases   map[int64][]model.TestCase
	problems    map[string]model.Problem
	workers     map[string]workerRecord
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		submissions: make(map[int64]*model.Submission),
		testcases:   make(map[int64][]model.TestCase),
		problems:    make(map[string]model.Problem),
		workers:     make(map[string]workerRecord),
	}
}

// SeedProblem registers a problem projection, for test/example setup.
func (m *Memory) SeedProblem(p model.Problem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problems[p.Code] = p
}

// SeedWorker registers a worker's expected credentials, for test/example
// setup.
func (m *Memory) SeedWorker(name, key string, tier int, disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[name] = workerRecord{key: key, tier: tier, disabled: disabled}
}

func (m *Memory) Problem(problemID string) (model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[problemID]
	if !ok {
		return model.Problem{}, errors.Wrapf(ErrNotFound, "problem=%s", problemID)
	}
	return p, nil
}

func (m *Memory) AllProblemCodes() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out = make([]string, 0, len(m.problems))
	for code := range m.problems {
		out = append(out, code)
	}
	return out, nil
}

func (m *Memory) AuthenticateWorker(workerID string) (string, int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		return "", 0, false, errors.Wrapf(ErrNotFound, "worker=%s", workerID)
	}
	return w.key, w.tier, w.disabled, nil
}

func (m *Memory) EnqueueSubmission(sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == 0 {
		m.nextID++
		sub.ID = m.nextID
	}
	sub.Status = model.StatusQueued
	var cp = *sub
	m.submissions[sub.ID] = &cp
	return nil
}

func (m *Memory) AttemptNo(userID int64, problemID string, participationID *int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, sub := range m.submissions {
		if sub.UserID != userID || sub.ProblemID != problemID {
			continue
		}
		if !samePtr(sub.ParticipationID, participationID) {
			continue
		}
		if sub.Result == model.ResultCE || sub.Result == model.ResultIE {
			continue
		}
		n++
	}
	return n, nil
}

func samePtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Memory) LoadSubmission(id int64) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "submission=%d", id)
	}
	var cp = *sub
	return &cp, nil
}

func (m *Memory) RequeueSubmission(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", id)
	}
	sub.Status = model.StatusQueued
	sub.Result = model.ResultNone
	delete(m.testcases, id)
	return nil
}

func (m *Memory) MarkProcessing(submissionID int64, judgedOn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", submissionID)
	}
	sub.Status = model.StatusProcessing
	sub.JudgedOn = judgedOn
	return nil
}

func (m *Memory) ReplaceTestCases(submissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.testcases, submissionID)
	return nil
}

func (m *Memory) InsertTestCases(submissionID int64, cases []model.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testcases[submissionID] = append(m.testcases[submissionID], cases...)
	return nil
}

func (m *Memory) FinishGrading(submissionID int64, result model.Result, casePoints, caseTotal, points, maxTime float64, maxMemory int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", submissionID)
	}
	sub.Status = model.StatusDone
	sub.Result = result
	sub.CasePoints = casePoints
	sub.CaseTotal = caseTotal
	sub.Points = points
	sub.Time = maxTime
	sub.Memory = maxMemory
	sub.JudgedDate = time.Now()
	return nil
}

func (m *Memory) FailCompile(submissionID int64, log string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", submissionID)
	}
	sub.Status = model.StatusCompileError
	sub.Result = model.ResultCE
	sub.Error = log
	return nil
}

func (m *Memory) FailInternal(submissionID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", submissionID)
	}
	sub.Status = model.StatusInternalErr
	sub.Result = model.ResultIE
	sub.Error = message
	return nil
}

func (m *Memory) Terminate(submissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "submission=%d", submissionID)
	}
	sub.Status = model.StatusAborted
	sub.Result = model.ResultAB
	sub.Points = 0
	return nil
}
