package session

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// armAckWatchdog starts (or restarts) a single-shot timer that closes the
// connection if submission-acknowledged for submissionID doesn't arrive
// within the configured ack timeout (SPEC_FULL §4.2).
func (s *Session) armAckWatchdog(submissionID int64) {
	s.mu.Lock()
	if s.ackTimer != nil {
		s.ackTimer.Stop()
	}
	s.ackTimer = time.AfterFunc(s.cfg.AckTimeout, func() { s.onAckTimeout(submissionID) })
	s.mu.Unlock()
}

// cancelAckWatchdog stops a pending watchdog timer; a completed ack
// cancels it.
func (s *Session) cancelAckWatchdog() {
	s.mu.Lock()
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	s.mu.Unlock()
}

func (s *Session) onAckTimeout(submissionID int64) {
	s.mu.Lock()
	var stillWaiting = s.state == StateDispatched && s.current != nil && s.current.ID == submissionID
	s.mu.Unlock()
	if !stillWaiting {
		return
	}

	log.WithFields(log.Fields{"worker": s.Name(), "submission_id": submissionID}).
		Warn("session: ack watchdog expired, closing connection")
	s.Close()
}
