// Package admission is the bridge's in-process submission API: the
// narrow façade a producer (the web layer, out of scope) calls to enqueue
// submissions or act on in-flight ones. Generalized from the teacher's
// consumer/service.go Service, which similarly exposes a small set of
// methods over its resolver and owns the process's graceful-shutdown
// signal (Stopping).
package admission

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tranngoclamm/oj-bridge/events"
	"github.com/tranngoclamm/oj-bridge/model"
	"github.com/tranngoclamm/oj-bridge/registry"
	"github.com/tranngoclamm/oj-bridge/store"
	"github.com/tranngoclamm/oj-bridge/taskgroup"
)

// Facade is the admission entry point: Submit, Abort, Disconnect, Disable
// (SPEC_FULL §6).
type Facade struct {
	store store.ProjectionStore
	reg   *registry.Registry
	pub   *events.Publisher

	mu      sync.Mutex
	pending []*model.Submission
	changed chan struct{}

	stoppingCh chan struct{}
}

// New constructs a Facade over an already-built store, registry, and
// publisher.
func New(st store.ProjectionStore, reg *registry.Registry, pub *events.Publisher) *Facade {
	return &Facade{
		store:      st,
		reg:        reg,
		pub:        pub,
		changed:    make(chan struct{}, 1),
		stoppingCh: make(chan struct{}),
	}
}

func (f *Facade) notify() {
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Stopping returns a channel closed once QueueTasks's scheduler loop has
// been asked to shut down, for collaborators with their own cleanup to
// perform.
func (f *Facade) Stopping() <-chan struct{} { return f.stoppingCh }

// Submit enqueues a new submission for grading: writes a Queued row,
// stamps its attempt number, and queues it for the scheduler's next pass.
// Returns false only when enqueuing itself fails (a store error); a
// submission with no currently-eligible worker still returns true and
// stays queued.
func (f *Facade) Submit(sub *model.Submission) (bool, error) {
	attemptNo, err := f.store.AttemptNo(sub.UserID, sub.ProblemID, sub.ParticipationID)
	if err != nil {
		return false, errors.Wrap(err, "admission: count attempts")
	}
	sub.AttemptNo = attemptNo

	if err := f.store.EnqueueSubmission(sub); err != nil {
		return false, errors.Wrap(err, "admission: enqueue submission")
	}

	f.mu.Lock()
	f.pending = append(f.pending, sub)
	f.mu.Unlock()
	f.notify()

	return true, nil
}

// Abort locates the owning worker for a submission (if it has one) and
// asks it to terminate the submission; if the submission is still
// queued (never dispatched), it is removed from the pending list and
// terminated directly. Returns false with a nil error if the submission
// was never dispatched to a worker (its judged-on column is empty), and
// false with an error if the submission is unknown to the store.
func (f *Facade) Abort(submissionID int64) (bool, error) {
	if f.removePending(submissionID) {
		if err := f.store.Terminate(submissionID); err != nil {
			return false, errors.Wrap(err, "admission: terminate queued submission")
		}
		return true, nil
	}

	sub, err := f.store.LoadSubmission(submissionID)
	if err != nil {
		return false, errors.Wrap(err, "admission: load submission")
	}
	if sub.JudgedOn == "" {
		return false, nil
	}
	if err := f.reg.Abort(sub.JudgedOn); err != nil {
		return false, errors.Wrap(err, "admission: abort")
	}
	return true, nil
}

func (f *Facade) removePending(submissionID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.pending {
		if sub.ID == submissionID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Disconnect asks a named worker's session to close its connection.
// Returns false if the worker is not currently registered.
func (f *Facade) Disconnect(workerName string, force bool) (bool, error) {
	// An unknown worker is a normal "not found" result (ok=false), not a
	// fault worth returning as an error.
	if err := f.reg.Disconnect(workerName, force); err != nil {
		return false, nil
	}
	return true, nil
}

// Disable toggles a worker's disabled flag. Returns false if the worker is
// not currently registered.
func (f *Facade) Disable(workerName string, disabled bool) (bool, error) {
	return f.reg.Disable(workerName, disabled), nil
}

// QueueTasks registers the scheduler loop with tasks: on every registry
// Wake signal or local pending-list change, it attempts to dispatch every
// still-queued submission, leaving ineligible ones in place for the next
// wake. Mirrors the teacher's Service.QueueTasks wiring a watch loop into
// a task.Group, generalized from "watch an etcd key space" to "watch two
// in-process wake channels".
func (f *Facade) QueueTasks(tasks *taskgroup.Group) {
	tasks.Queue("admission.Schedule", func() error {
		return f.scheduleLoop(tasks.Context())
	})
	tasks.Queue("admission.GracefulStop", func() error {
		<-tasks.Context().Done()
		close(f.stoppingCh)
		return nil
	})
}

func (f *Facade) scheduleLoop(ctx context.Context) error {
	for {
		f.scheduleOnce()
		select {
		case <-f.reg.Wake():
		case <-f.changed:
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *Facade) scheduleOnce() {
	f.mu.Lock()
	var snapshot = make([]*model.Submission, len(f.pending))
	copy(snapshot, f.pending)
	f.mu.Unlock()

	var stillPending []*model.Submission
	var dispatched = make(map[int64]struct{})
	for _, sub := range snapshot {
		err := f.reg.Dispatch(registry.DispatchCriteria{
			ProblemID: sub.ProblemID,
			Language:  sub.LanguageKey,
		}, sub)
		if err == nil {
			dispatched[sub.ID] = struct{}{}
			continue
		}
		if errors.Is(err, registry.ErrNoEligibleWorker) {
			stillPending = append(stillPending, sub)
			continue
		}
		log.WithFields(log.Fields{"submission_id": sub.ID, "error": err}).
			Warn("admission: dispatch attempt failed, will retry")
		stillPending = append(stillPending, sub)
	}

	f.mu.Lock()
	f.pending = mergeStillQueued(stillPending, f.pending, dispatched)
	f.mu.Unlock()
}

// mergeStillQueued keeps any submission newly added to pending (by Submit)
// while scheduleOnce ran, in addition to the submissions scheduleOnce
// itself left unqueued. Submissions dispatched during the pass are dropped.
func mergeStillQueued(unscheduled, current []*model.Submission, dispatched map[int64]struct{}) []*model.Submission {
	var seen = make(map[int64]struct{}, len(unscheduled)+len(dispatched))
	var out = make([]*model.Submission, 0, len(unscheduled)+len(current))
	out = append(out, unscheduled...)
	for _, sub := range unscheduled {
		seen[sub.ID] = struct{}{}
	}
	for id := range dispatched {
		seen[id] = struct{}{}
	}
	for _, sub := range current {
		if _, ok := seen[sub.ID]; ok {
			continue
		}
		out = append(out, sub)
		seen[sub.ID] = struct{}{}
	}
	return out
}
