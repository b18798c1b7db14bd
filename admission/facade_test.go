package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranngoclamm/oj-bridge/events"
	"github.com/tranngoclamm/oj-bridge/model"
	"github.com/tranngoclamm/oj-bridge/registry"
	"github.com/tranngoclamm/oj-bridge/store"
	"github.com/tranngoclamm/oj-bridge/taskgroup"
)

type fakeHandle struct {
	name         string
	mu           sync.Mutex
	dispatched   []*model.Submission
	aborted      int
	disconnected []bool
}

func (f *fakeHandle) Name() string { return f.name }

func (f *fakeHandle) Dispatch(submission interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, submission.(*model.Submission))
	return nil
}

func (f *fakeHandle) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	return nil
}

func (f *fakeHandle) Disconnect(force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, force)
	return nil
}

func newFacade(t *testing.T) (*Facade, *store.Memory, *registry.Registry) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedProblem(model.Problem{Code: "aplusb", Points: 100, PartialScoring: true})
	reg := registry.New()
	pub := events.NewPublisher([]byte("secret"))
	return New(mem, reg, pub), mem, reg
}

func TestSubmitDispatchesImmediatelyToEligibleIdleWorker(t *testing.T) {
	f, _, reg := newFacade(t)
	w := &fakeHandle{name: "w1"}
	_, err := reg.Register(w, registry.WorkerInfo{
		Problems:  problemSet("aplusb"),
		Executors: problemSet("CPP17"),
	})
	require.NoError(t, err)

	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	ok, err := f.Submit(sub)
	require.NoError(t, err)
	assert.True(t, ok)

	f.scheduleOnce()
	require.Len(t, w.dispatched, 1)
	assert.Equal(t, sub.ID, w.dispatched[0].ID)
	assert.Empty(t, f.pending)
}

func TestSubmitStaysPendingWithNoEligibleWorker(t *testing.T) {
	f, _, _ := newFacade(t)
	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	ok, err := f.Submit(sub)
	require.NoError(t, err)
	assert.True(t, ok)

	f.scheduleOnce()
	assert.Len(t, f.pending, 1)
}

func TestAbortQueuedSubmissionTerminatesDirectly(t *testing.T) {
	f, mem, _ := newFacade(t)
	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	_, err := f.Submit(sub)
	require.NoError(t, err)

	ok, err := f.Abort(sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.pending)

	loaded, err := mem.LoadSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, loaded.Status)
}

func TestAbortDispatchedSubmissionCallsRegistryAbort(t *testing.T) {
	f, mem, reg := newFacade(t)
	w := &fakeHandle{name: "w1"}
	_, err := reg.Register(w, registry.WorkerInfo{
		Problems:  problemSet("aplusb"),
		Executors: problemSet("CPP17"),
	})
	require.NoError(t, err)

	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	_, err = f.Submit(sub)
	require.NoError(t, err)
	f.scheduleOnce()
	require.Len(t, w.dispatched, 1)

	require.NoError(t, mem.MarkProcessing(sub.ID, "w1"))

	ok, err := f.Abort(sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, w.aborted)
}

func TestAbortUnknownSubmissionReturnsError(t *testing.T) {
	f, _, _ := newFacade(t)
	_, err := f.Abort(999)
	assert.Error(t, err)
}

func TestAbortSubmissionWithNoOwningWorkerReturnsFalse(t *testing.T) {
	f, mem, _ := newFacade(t)
	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	require.NoError(t, mem.EnqueueSubmission(sub))
	// Not tracked in f.pending (as if admitted by another process) and
	// never marked processing: JudgedOn is empty.

	ok, err := f.Abort(sub.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnectUnknownWorkerReturnsFalseNoError(t *testing.T) {
	f, _, _ := newFacade(t)
	ok, err := f.Disconnect("ghost", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnectKnownWorkerForwardsForceFlag(t *testing.T) {
	f, _, reg := newFacade(t)
	w := &fakeHandle{name: "w1"}
	_, err := reg.Register(w, registry.WorkerInfo{})
	require.NoError(t, err)

	ok, err := f.Disconnect("w1", true)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, w.disconnected, 1)
	assert.True(t, w.disconnected[0])
}

func TestDisableTogglesRegistryFlag(t *testing.T) {
	f, _, reg := newFacade(t)
	w := &fakeHandle{name: "w1"}
	_, err := reg.Register(w, registry.WorkerInfo{
		Problems:  problemSet("aplusb"),
		Executors: problemSet("CPP17"),
	})
	require.NoError(t, err)

	ok, err := f.Disable("w1", true)
	require.NoError(t, err)
	assert.True(t, ok)

	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	_, err = f.Submit(sub)
	require.NoError(t, err)
	f.scheduleOnce()
	assert.Empty(t, w.dispatched, "a disabled worker must not receive undirected dispatch")
}

func TestQueueTasksSchedulesOnSubmitAndStopsOnContextCancel(t *testing.T) {
	f, _, reg := newFacade(t)
	w := &fakeHandle{name: "w1"}
	_, err := reg.Register(w, registry.WorkerInfo{
		Problems:  problemSet("aplusb"),
		Executors: problemSet("CPP17"),
	})
	require.NoError(t, err)

	tasks := taskgroup.New(context.Background())
	f.QueueTasks(tasks)

	sub := &model.Submission{ProblemID: "aplusb", LanguageKey: "CPP17", UserID: 1}
	_, err = f.Submit(sub)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.dispatched) == 1
	}, time.Second, 5*time.Millisecond)

	tasks.Cancel(nil)
	require.Eventually(t, func() bool {
		select {
		case <-f.Stopping():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, tasks.Wait())
}

func problemSet(ids ...string) map[string]struct{} {
	var m = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
