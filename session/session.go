// Package session drives one judge worker connection's lifecycle: the
// AwaitingHandshake -> Idle -> Dispatched -> Acknowledged -> Grading ->
// Idle state machine, generalized from the teacher's appendFSM
// (broker/append_fsm.go) -- typed string states, a serial dispatch loop
// reading from a channel fed by a pump goroutine, and a mustState
// invariant guard -- to the judge wire protocol instead of journal
// appends.
package session

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tranngoclamm/oj-bridge/model"
	"github.com/tranngoclamm/oj-bridge/protocol"
	"github.com/tranngoclamm/oj-bridge/registry"
	"github.com/tranngoclamm/oj-bridge/transport"
)

// Config carries a session's timeouts and options, loaded once by
// cmd/judge-bridge and passed by value -- no package-level config
// globals outside cmd/ (SPEC_FULL §6, "added config loading").
type Config struct {
	HandshakeTimeout     time.Duration
	IdleTimeout          time.Duration
	AckTimeout           time.Duration
	PingInterval         time.Duration
	MaxFrameBytes        int
	IgnoreProblemsPacket bool
}

// DefaultConfig returns the spec's documented default timeouts
// (SPEC_FULL §6).
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 15 * time.Second,
		IdleTimeout:      60 * time.Second,
		AckTimeout:       20 * time.Second,
		PingInterval:     10 * time.Second,
		MaxFrameBytes:    transport.DefaultMaxFrameBytes,
	}
}

// Session drives one worker connection. It owns the connection's wire
// handle, outbound queue (via transport.Conn), and in-flight submission
// slot; the registry refers to it only as a non-owning
// registry.SessionHandle, and the session keeps the *registry.Handle that
// Register returned (SPEC_FULL §9, "session identity vs ownership").
type Session struct {
	cfg   Config
	conn  *transport.Conn
	store Store
	pub   Publisher
	dir   WorkerDirectory
	reg   *registry.Registry

	mu        sync.Mutex
	state     State
	workerID  string
	tier      int
	disabled  bool
	problems  map[string]struct{}
	executors map[string][]model.RuntimeVersion

	handle *registry.Handle

	current      *model.Submission
	currentAgg   *model.Aggregate
	currentBatch *int
	batchSeq     int
	inBatch      bool

	ackTimer   *time.Timer
	pingSentAt float64
	pingRTT    rollingMean
	pingSkew   rollingMean

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Session around an already-accepted transport
// connection. Run must be called to drive it to completion.
func New(cfg Config, conn *transport.Conn, store Store, pub Publisher, dir WorkerDirectory, reg *registry.Registry) *Session {
	return &Session{
		cfg:    cfg,
		conn:   conn,
		store:  store,
		pub:    pub,
		dir:    dir,
		reg:    reg,
		state:  StateAwaitingHandshake,
		closed: make(chan struct{}),
	}
}

// Name implements registry.SessionHandle.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerID
}

// Dispatch implements registry.SessionHandle; it is called by the
// registry with its own lock released, potentially from a goroutine other
// than the one running Run.
func (s *Session) Dispatch(submission interface{}) error {
	sub, ok := submission.(*model.Submission)
	if !ok {
		return errors.Errorf("session: Dispatch called with unexpected type %T", submission)
	}
	return s.dispatch(sub)
}

// Abort implements registry.SessionHandle.
func (s *Session) Abort() error {
	s.mu.Lock()
	var cur = s.current
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	return s.send(protocol.TerminateSubmission{
		Name:         protocol.NameTerminateSubmission,
		SubmissionID: cur.ID,
	})
}

// Disconnect implements registry.SessionHandle. force=false sends a
// disconnect packet and lets the worker close on its own; force=true
// drops the connection immediately from this side.
func (s *Session) Disconnect(force bool) error {
	if force {
		s.Close()
		return nil
	}
	return s.send(protocol.Disconnect{Name: protocol.NameDisconnect})
}

func (s *Session) dispatch(sub *model.Submission) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.Errorf("session: dispatch called while not idle (state=%s)", s.state)
	}
	s.state = StateDispatched
	s.current = sub
	s.currentAgg = model.NewAggregate()
	s.currentBatch = nil
	s.inBatch = false
	s.mu.Unlock()

	var req = protocol.SubmissionRequest{
		Name:         protocol.NameSubmissionRequest,
		SubmissionID: sub.ID,
		ProblemID:    sub.ProblemID,
		Language:     sub.LanguageKey,
		TimeLimit:    sub.TimeLimit.Seconds(),
		MemoryLimit:  sub.MemoryLimitKB,
		ShortCircuit: sub.ShortCircuit,
		Meta: protocol.SubmissionMeta{
			PretestsOnly:  sub.PretestsOnly,
			InContest:     sub.ParticipationID != nil,
			AttemptNo:     sub.AttemptNo,
			FileOnly:      sub.FileOnly,
			FileSizeLimit: sub.FileSizeLimit,
		},
	}
	if sub.FileOnly {
		req.SourceURL = sub.SourceURL
	} else {
		req.Source = sub.Source
	}

	if err := s.send(req); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.current = nil
		s.mu.Unlock()
		return errors.Wrap(err, "session: send submission-request")
	}

	s.armAckWatchdog(sub.ID)
	return nil
}

// Run drives the session to completion: handshake, then the inbound
// packet dispatch loop, until the connection closes or ctx is cancelled.
// A mustState panic (a programming-error guard, never a protocol error) is
// recovered here so one session's bug closes only that connection.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"worker": s.Name(), "panic": r}).
				Error("session: recovered from panic, closing connection")
			s.Close()
		}
	}()

	if !s.awaitHandshake() {
		return
	}

	go s.runPingLoop(ctx)

	type inbound struct {
		payload []byte
		err     error
	}
	var frameCh = make(chan inbound, 1)
	go func() {
		for {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			payload, err := s.conn.ReadFrame()
			select {
			case frameCh <- inbound{payload, err}:
			case <-s.closed:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case f := <-frameCh:
			if f.err != nil {
				log.WithFields(log.Fields{"worker": s.Name(), "error": f.err}).
					Info("session: connection read failed, closing")
				return
			}
			s.handleFrame(f.payload)
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) awaitHandshake() bool {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	payload, err := s.conn.ReadFrame()
	if err != nil {
		log.WithField("error", err).Info("session: handshake read failed")
		return false
	}

	name, v, err := protocol.Decode(payload)
	if err != nil || name != protocol.NameHandshake {
		log.WithFields(log.Fields{"name": name, "error": err}).
			Warn("session: first frame was not a valid handshake, closing")
		return false
	}
	var hs = v.(protocol.Handshake)

	expectedKey, tier, disabled, err := s.dir.AuthenticateWorker(hs.ID)
	if err != nil {
		log.WithFields(log.Fields{"worker": hs.ID, "error": err}).
			Warn("session: unknown worker, closing")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(hs.Key), []byte(expectedKey)) != 1 {
		log.WithField("worker", hs.ID).Warn("session: handshake key mismatch, closing")
		return false
	}

	var problems = hs.Problems
	if s.cfg.IgnoreProblemsPacket {
		var allProblems, err = s.dir.AllProblemCodes()
		if err != nil {
			log.WithField("error", err).Warn("session: failed to load platform problem set, closing")
			return false
		}
		problems = allProblems
	}

	s.mu.Lock()
	s.mustState(StateAwaitingHandshake)
	s.workerID = hs.ID
	s.tier = tier
	s.disabled = disabled
	s.problems = toSet(problems)
	s.executors = toRuntimeMap(hs.Executors)
	s.state = StateIdle
	var info = registry.WorkerInfo{
		Tier:      tier,
		Disabled:  disabled,
		Problems:  s.problems,
		Executors: toLangSet(s.executors),
	}
	s.mu.Unlock()

	handle, err := s.reg.Register(s, info)
	if err != nil {
		log.WithFields(log.Fields{"worker": hs.ID, "error": err}).
			Warn("session: registration failed, closing")
		return false
	}
	s.handle = handle

	if err := s.send(protocol.HandshakeSuccess{Name: protocol.NameHandshakeSuccess}); err != nil {
		log.WithField("error", err).Warn("session: failed to send handshake-success")
		return false
	}
	return true
}

func (s *Session) handleFrame(payload []byte) {
	name, v, err := protocol.Decode(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownPacket) {
			log.WithFields(log.Fields{"worker": s.Name(), "packet": name}).
				Debug("session: ignoring unknown packet")
			return
		}
		log.WithFields(log.Fields{"worker": s.Name(), "error": err}).
			Warn("session: malformed packet, ignoring")
		return
	}
	s.dispatchPacket(name, v)
}

func (s *Session) dispatchPacket(name string, v interface{}) {
	var h, ok = packetHandlers[name]
	if !ok {
		return
	}
	h(s, v)
}

// currentFor returns the in-flight submission if it matches submissionID,
// or nil (logging the mismatch) otherwise. Submission fields are mutated
// only by the session's own dispatch-loop goroutine, so the returned
// pointer is safe to write without further locking from that goroutine.
func (s *Session) currentFor(submissionID int64) *model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID != submissionID {
		log.WithFields(log.Fields{
			"worker": s.workerID, "packet_submission_id": submissionID,
		}).Debug("session: packet for submission not currently owned, ignoring")
		return nil
	}
	return s.current
}

func (s *Session) freeSession() {
	s.mu.Lock()
	s.state = StateIdle
	s.current = nil
	s.currentAgg = nil
	s.inBatch = false
	s.currentBatch = nil
	s.mu.Unlock()
	if s.handle != nil {
		s.handle.SetIdle(true)
	}
}

func (s *Session) send(v interface{}) error {
	b, err := protocol.Encode(v)
	if err != nil {
		return errors.Wrap(err, "session: encode outbound packet")
	}
	return s.conn.Send(b)
}

// Close signals the dispatch loop and ping loop to exit. It is idempotent
// and safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) teardown() {
	s.Close()
	if s.handle != nil {
		s.handle.Release()
	}
	_ = s.conn.Close()
	s.cancelAckWatchdog()

	s.mu.Lock()
	var cur = s.current
	var wasIdleOrHandshaking = s.state == StateIdle || s.state == StateAwaitingHandshake
	s.state = StateClosed
	s.mu.Unlock()

	// Disconnect handling, SPEC_FULL §4.2: a session that drops while
	// holding a submission forces it to InternalError with empty text; an
	// Idle (or pre-handshake) disconnect is silent.
	if cur != nil && !wasIdleOrHandshaking {
		if err := s.store.FailInternal(cur.ID, ""); err != nil {
			log.WithFields(log.Fields{"submission_id": cur.ID, "error": err}).
				Error("session: failed to mark disconnected submission as internal error")
		}
		s.pub.Publish(cur.ID, "internal-error", protocol.InternalError{
			Name:         protocol.NameInternalError,
			SubmissionID: cur.ID,
		})
	}
}

func toSet(items []string) map[string]struct{} {
	var m = make(map[string]struct{}, len(items))
	for _, item := range items {
		m[item] = struct{}{}
	}
	return m
}

func toRuntimeMap(in map[string][]protocol.ExecutorEntry) map[string][]model.RuntimeVersion {
	var out = make(map[string][]model.RuntimeVersion, len(in))
	for lang, entries := range in {
		var versions = make([]model.RuntimeVersion, len(entries))
		for i, e := range entries {
			versions[i] = model.RuntimeVersion{Name: e.Name, Version: e.Version}
		}
		out[lang] = versions
	}
	return out
}

func toLangSet(m map[string][]model.RuntimeVersion) map[string]struct{} {
	var out = make(map[string]struct{}, len(m))
	for lang := range m {
		out[lang] = struct{}{}
	}
	return out
}
