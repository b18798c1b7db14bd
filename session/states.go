package session

import log "github.com/sirupsen/logrus"

// State is a typed judge-session state, per the teacher's appendState
// (broker/append_fsm.go).
type State string

const (
	StateAwaitingHandshake State = "awaiting-handshake"
	StateIdle              State = "idle"
	StateDispatched        State = "dispatched"
	StateAcknowledged      State = "acknowledged"
	StateGrading           State = "grading"
	StateClosed            State = "closed"
)

// mustState panics (recovered by the per-connection goroutine's top-level
// recover in Run) if the session is not in the expected state. This is a
// programming-error guard, not a protocol-error path -- protocol errors
// never panic, per SPEC_FULL §4.2 and the teacher's appendFSM.mustState.
func (s *Session) mustState(expect State) {
	if s.state != expect {
		log.WithFields(log.Fields{
			"worker": s.workerID,
			"expect": expect,
			"actual": s.state,
		}).Panic("session: unexpected state")
	}
}
