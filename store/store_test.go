package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranngoclamm/oj-bridge/model"
)

func TestMemoryEnqueueAndLoadRoundTrips(t *testing.T) {
	m := NewMemory()
	sub := &model.Submission{ProblemID: "aplusb", UserID: 1, LanguageKey: "CPP17"}
	require.NoError(t, m.EnqueueSubmission(sub))
	assert.NotZero(t, sub.ID)

	loaded, err := m.LoadSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, loaded.Status)
	assert.Equal(t, "aplusb", loaded.ProblemID)
}

func TestMemoryLoadSubmissionUnknownIDFails(t *testing.T) {
	m := NewMemory()
	_, err := m.LoadSubmission(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAttemptNoExcludesCompileAndInternalErrors(t *testing.T) {
	m := NewMemory()
	part := int64(7)

	mk := func(result model.Result) {
		sub := &model.Submission{ProblemID: "aplusb", UserID: 1, ParticipationID: &part}
		require.NoError(t, m.EnqueueSubmission(sub))
		if result != model.ResultNone {
			require.NoError(t, m.FinishGrading(sub.ID, result, 0, 1, 0, 0, 0))
			if result == model.ResultCE {
				require.NoError(t, m.FailCompile(sub.ID, "boom"))
			}
			if result == model.ResultIE {
				require.NoError(t, m.FailInternal(sub.ID, "boom"))
			}
		}
	}
	mk(model.ResultAC)
	mk(model.ResultWA)
	mk(model.ResultCE)
	mk(model.ResultIE)

	n, err := m.AttemptNo(1, "aplusb", &part)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryAttemptNoScopesByParticipation(t *testing.T) {
	m := NewMemory()
	a, b := int64(1), int64(2)
	require.NoError(t, m.EnqueueSubmission(&model.Submission{ProblemID: "x", UserID: 1, ParticipationID: &a}))
	require.NoError(t, m.EnqueueSubmission(&model.Submission{ProblemID: "x", UserID: 1, ParticipationID: &b}))
	require.NoError(t, m.EnqueueSubmission(&model.Submission{ProblemID: "x", UserID: 1}))

	n, err := m.AttemptNo(1, "x", &a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.AttemptNo(1, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryFinishGradingSetsDoneFields(t *testing.T) {
	m := NewMemory()
	sub := &model.Submission{ProblemID: "x", UserID: 1}
	require.NoError(t, m.EnqueueSubmission(sub))

	require.NoError(t, m.FinishGrading(sub.ID, model.ResultWA, 3, 6, 50, 1.2, 1024))
	loaded, err := m.LoadSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, loaded.Status)
	assert.Equal(t, model.ResultWA, loaded.Result)
	assert.Equal(t, 3.0, loaded.CasePoints)
	assert.Equal(t, 6.0, loaded.CaseTotal)
	assert.Equal(t, 50.0, loaded.Points)
	assert.False(t, loaded.JudgedDate.IsZero())
}

func TestMemoryRequeueClearsResultAndTestCases(t *testing.T) {
	m := NewMemory()
	sub := &model.Submission{ProblemID: "x", UserID: 1}
	require.NoError(t, m.EnqueueSubmission(sub))
	require.NoError(t, m.InsertTestCases(sub.ID, []model.TestCase{{SubmissionID: sub.ID, Position: 1}}))
	require.NoError(t, m.FinishGrading(sub.ID, model.ResultAC, 1, 1, 100, 0.1, 10))

	require.NoError(t, m.RequeueSubmission(sub.ID))
	loaded, err := m.LoadSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, loaded.Status)
	assert.Equal(t, model.ResultNone, loaded.Result)
	assert.Empty(t, m.testcases[sub.ID])
}

func TestMemoryTerminateZeroesPoints(t *testing.T) {
	m := NewMemory()
	sub := &model.Submission{ProblemID: "x", UserID: 1}
	require.NoError(t, m.EnqueueSubmission(sub))
	require.NoError(t, m.FinishGrading(sub.ID, model.ResultAC, 1, 1, 100, 0.1, 10))

	require.NoError(t, m.Terminate(sub.ID))
	loaded, err := m.LoadSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, loaded.Status)
	assert.Equal(t, model.ResultAB, loaded.Result)
	assert.Zero(t, loaded.Points)
}

func TestMemoryAuthenticateWorkerReturnsSeededCredentials(t *testing.T) {
	m := NewMemory()
	m.SeedWorker("worker-1", "secretkey", 2, false)

	key, tier, disabled, err := m.AuthenticateWorker("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "secretkey", key)
	assert.Equal(t, 2, tier)
	assert.False(t, disabled)

	_, _, _, err = m.AuthenticateWorker("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProblemAndAllProblemCodes(t *testing.T) {
	m := NewMemory()
	m.SeedProblem(model.Problem{Code: "aplusb", Points: 100, PartialScoring: true})
	m.SeedProblem(model.Problem{Code: "bsubc", Points: 50})

	p, err := m.Problem("aplusb")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Points)

	codes, err := m.AllProblemCodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aplusb", "bsubc"}, codes)

	_, err = m.Problem("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryInsertTestCasesAppends(t *testing.T) {
	m := NewMemory()
	sub := &model.Submission{ProblemID: "x", UserID: 1}
	require.NoError(t, m.EnqueueSubmission(sub))

	require.NoError(t, m.InsertTestCases(sub.ID, []model.TestCase{{Position: 1}, {Position: 2}}))
	require.NoError(t, m.InsertTestCases(sub.ID, []model.TestCase{{Position: 3}}))
	assert.Len(t, m.testcases[sub.ID], 3)

	require.NoError(t, m.ReplaceTestCases(sub.ID))
	assert.Empty(t, m.testcases[sub.ID])
}
