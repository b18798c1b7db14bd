// Package registry is the live-session directory and submission scheduler.
// It generalizes the teacher's consumer/resolver.go Resolver -- a
// mutex-guarded map of live entities reached through an Observer-style
// wakeup -- from "watch an etcd key space of shard assignments" to "watch
// in-process worker registration and capability mutation".
package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type entry struct {
	handle    SessionHandle
	tier      int
	disabled  bool
	idle      bool
	problems  map[string]struct{}
	executors map[string]struct{}
	load      float64
	latency   float64
}

// Registry is the set of live judge sessions. It holds no network
// resources of its own -- only cached eligibility/health state and a
// callback handle per session -- per SPEC_FULL §5, "the registry is the
// only shared mutable structure".
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wake    chan struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// Wake returns the coalescing channel signaled on any mutation that could
// make a previously-ineligible submission dispatchable: registration,
// capability update, or a session becoming Idle (SPEC_FULL §4.4, "added
// wake signal").
func (r *Registry) Wake() <-chan struct{} { return r.wake }

func (r *Registry) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// ErrAlreadyRegistered is returned by Register when the worker name is
// already present.
var ErrAlreadyRegistered = errors.New("registry: worker name already registered")

// Register adds a newly-handshaken session and returns its Handle. It is
// an error to register a name already present -- the caller (session)
// must Release a stale entry first, e.g. a reconnect racing a still-open
// prior connection from the same worker.
func (r *Registry) Register(handle SessionHandle, info WorkerInfo) (*Handle, error) {
	var name = handle.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return nil, errors.Wrapf(ErrAlreadyRegistered, "name=%s", name)
	}
	r.entries[name] = &entry{
		handle:    handle,
		tier:      info.Tier,
		disabled:  info.Disabled,
		idle:      true,
		problems:  info.Problems,
		executors: info.Executors,
		load:      info.Load,
		latency:   info.Latency,
	}
	r.notify()
	return &Handle{name: name, reg: r}, nil
}

func (r *Registry) unregister(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) setIdle(name string, idle bool) {
	r.mu.Lock()
	if e, ok := r.entries[name]; ok {
		e.idle = idle
	}
	r.mu.Unlock()
	if idle {
		r.notify()
	}
}

func (r *Registry) updateCapabilities(name string, info WorkerInfo) {
	r.mu.Lock()
	if e, ok := r.entries[name]; ok {
		e.tier = info.Tier
		e.disabled = info.Disabled
		if info.Problems != nil {
			e.problems = info.Problems
		}
		if info.Executors != nil {
			e.executors = info.Executors
		}
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) updateLoadLatency(name string, load, latency float64) {
	r.mu.Lock()
	if e, ok := r.entries[name]; ok {
		e.load = load
		e.latency = latency
	}
	r.mu.Unlock()
}

// DispatchCriteria describes a submission awaiting assignment.
type DispatchCriteria struct {
	ProblemID string
	Language  string
	// TargetName, if non-empty, restricts selection to that single worker
	// and bypasses its disabled flag (directed rejudge, SPEC_FULL §4.4).
	TargetName string
}

// ErrNoEligibleWorker is returned by Dispatch when no Idle session
// currently satisfies criteria. The caller (admission façade) should
// leave the submission queued and retry on the next Wake signal.
var ErrNoEligibleWorker = errors.New("registry: no eligible idle worker")

// Dispatch selects the best eligible Idle session for criteria and hands
// it submission via the session's Dispatch callback. Selection and the
// optimistic idle->busy flip happen under the registry's lock; the
// actual handoff runs with the lock released -- SPEC_FULL §4.4 requires
// dispatch be synchronous from the scheduler's viewpoint, but it must
// never hold the registry lock across a call into session code.
//
// Preference order, per SPEC_FULL §4.4: lowest tier, then lowest load,
// then lowest latency; ties broken by name.
func (r *Registry) Dispatch(criteria DispatchCriteria, submission interface{}) error {
	var chosen *entry
	var chosenName string

	r.mu.Lock()
	if criteria.TargetName != "" {
		if e, ok := r.entries[criteria.TargetName]; ok && e.idle && eligible(e, criteria, true) {
			chosen, chosenName = e, criteria.TargetName
		}
	} else {
		var candidates []string
		for name, e := range r.entries {
			if e.idle && eligible(e, criteria, false) {
				candidates = append(candidates, name)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			var a, b = r.entries[candidates[i]], r.entries[candidates[j]]
			if a.tier != b.tier {
				return a.tier < b.tier
			}
			if a.load != b.load {
				return a.load < b.load
			}
			if a.latency != b.latency {
				return a.latency < b.latency
			}
			return candidates[i] < candidates[j]
		})
		if len(candidates) > 0 {
			chosenName = candidates[0]
			chosen = r.entries[chosenName]
		}
	}
	if chosen != nil {
		chosen.idle = false
	}
	r.mu.Unlock()

	if chosen == nil {
		return errors.Wrapf(ErrNoEligibleWorker, "problem=%s language=%s", criteria.ProblemID, criteria.Language)
	}

	if err := chosen.handle.Dispatch(submission); err != nil {
		log.WithFields(log.Fields{"worker": chosenName, "error": err}).
			Warn("registry: dispatch to selected worker failed, reverting to idle")
		r.setIdle(chosenName, true)
		return errors.Wrapf(err, "registry: dispatch to %s", chosenName)
	}
	return nil
}

func eligible(e *entry, c DispatchCriteria, directed bool) bool {
	if !directed && e.disabled {
		return false
	}
	if _, ok := e.problems[c.ProblemID]; !ok {
		return false
	}
	if _, ok := e.executors[c.Language]; !ok {
		return false
	}
	return true
}

// Abort asks the named worker's session to terminate its current
// submission. The caller is responsible for knowing which worker owns a
// given submission (the store's "judged-on" column); the registry itself
// tracks no submission-to-worker mapping.
func (r *Registry) Abort(workerName string) error {
	r.mu.Lock()
	e, ok := r.entries[workerName]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("registry: unknown worker %q", workerName)
	}
	return e.handle.Abort()
}

// Disconnect asks the named worker's session to close its connection,
// for the admission façade's Disconnect operation.
func (r *Registry) Disconnect(workerName string, force bool) error {
	r.mu.Lock()
	e, ok := r.entries[workerName]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("registry: unknown worker %q", workerName)
	}
	return e.handle.Disconnect(force)
}

// Disable toggles a worker's disabled flag by name, for the admission
// façade's Disable operation. It returns false if the worker is not
// currently registered.
func (r *Registry) Disable(workerName string, disabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workerName]
	if !ok {
		return false
	}
	e.disabled = disabled
	return true
}

// Snapshot returns a read-only copy of every registered worker's cached
// state, for admin/diagnostic use.
func (r *Registry) Snapshot() map[string]WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out = make(map[string]WorkerInfo, len(r.entries))
	for name, e := range r.entries {
		out[name] = WorkerInfo{
			Tier:      e.tier,
			Disabled:  e.disabled,
			Problems:  e.problems,
			Executors: e.executors,
			Load:      e.load,
			Latency:   e.latency,
		}
	}
	return out
}
