package registry

// SessionHandle is implemented by the session package. The registry never
// owns session resources; it only calls back through this interface to
// hand work to a session or ask it to abort, mirroring the teacher's
// separation between Resolver (owns resolution state) and Replica (owns
// the actual shard resources) in consumer/resolver.go.
type SessionHandle interface {
	// Name is the worker's registered identity; used as the registry map
	// key and as the scheduler's final tie-break.
	Name() string
	// Dispatch hands the submission to the session. Called with the
	// registry's lock released; implementations must not block
	// indefinitely.
	Dispatch(submission interface{}) error
	// Abort asks the session's current in-flight submission to terminate.
	Abort() error
	// Disconnect asks the worker to close its connection. If force is
	// true the session closes its own connection immediately rather than
	// waiting for the worker to comply.
	Disconnect(force bool) error
}

// WorkerInfo is a snapshot of a worker's capabilities and health. The
// registry copies the struct under its own mutex on every read or write
// (SPEC_FULL §9, "Clock skew": externally visible snapshots copied under
// the registry's mutex). The Problems and Executors maps are not cloned:
// the registry stores and returns the same map values the caller passed.
type WorkerInfo struct {
	Tier      int
	Disabled  bool
	Problems  map[string]struct{}
	Executors map[string]struct{}
	Load      float64
	Latency   float64
}

// Handle is the reference returned to a session on registration, through
// which the session reports its own state transitions back. The session
// owns its wire handle, outbound queue, and in-flight submission slot; the
// registry's own non-owning reference to the session is the SessionHandle
// it was registered with, used for Dispatch/Abort/Disconnect (SPEC_FULL
// §9, "Session identity vs ownership").
type Handle struct {
	name string
	reg  *Registry
}

// Name returns the worker identity this handle was registered under.
func (h *Handle) Name() string { return h.name }

// SetIdle reports the session's own state-machine transition into or out
// of Idle. The registry caches this flag for eligibility; it never
// inspects session state directly.
func (h *Handle) SetIdle(idle bool) { h.reg.setIdle(h.name, idle) }

// UpdateCapabilities replaces the cached tier/disabled/problem/executor
// state, e.g. after a supported-problems or executors packet.
func (h *Handle) UpdateCapabilities(info WorkerInfo) { h.reg.updateCapabilities(h.name, info) }

// UpdateLoadLatency records a fresh ping-derived measurement.
func (h *Handle) UpdateLoadLatency(load, latency float64) { h.reg.updateLoadLatency(h.name, load, latency) }

// Release removes the session's entry entirely, e.g. on disconnect.
func (h *Handle) Release() { h.reg.unregister(h.name) }
