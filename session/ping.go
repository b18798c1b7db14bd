package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tranngoclamm/oj-bridge/protocol"
)

// pingRollingWindow bounds the number of round-trip samples averaged for
// latency and clock-skew estimates (SPEC_FULL §4.6).
const pingRollingWindow = 6

// rollingMean is a bounded rolling mean over at most pingRollingWindow
// samples. The session's samples are added by handlePingResponse, which
// runs on the dispatch-loop goroutine and holds the session's mutex while
// it does so.
type rollingMean struct {
	samples []float64
	next    int
	filled  bool
}

func (r *rollingMean) add(v float64) float64 {
	if r.samples == nil {
		r.samples = make([]float64, pingRollingWindow)
	}
	r.samples[r.next] = v
	r.next = (r.next + 1) % pingRollingWindow
	if r.next == 0 {
		r.filled = true
	}

	var n = r.next
	if r.filled {
		n = pingRollingWindow
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += r.samples[i]
	}
	return sum / float64(n)
}

func (s *Session) runPingLoop(ctx context.Context) {
	var ticker = time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendPing()
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) sendPing() {
	var now = float64(time.Now().UnixNano()) / 1e9

	s.mu.Lock()
	s.pingSentAt = now
	s.mu.Unlock()

	if err := s.send(protocol.Ping{Name: protocol.NamePing, When: now}); err != nil {
		log.WithFields(log.Fields{"worker": s.Name(), "error": err}).
			Warn("session: ping send failed, closing connection")
		s.Close()
	}
}

func (s *Session) handlePingResponse(v interface{}) {
	var pr = v.(protocol.PingResponse)
	var now = float64(time.Now().UnixNano()) / 1e9

	s.mu.Lock()
	if s.pingSentAt == 0 || pr.When != s.pingSentAt {
		s.mu.Unlock()
		return
	}
	var rtt = now - s.pingSentAt
	// Clock skew estimate: the midpoint of our send/receive timestamps
	// minus the worker's self-reported clock time.
	var skew = (now+pr.When)/2 - pr.Time
	var rttMean = s.pingRTT.add(rtt)
	s.pingSkew.add(skew)
	s.pingSentAt = 0
	s.mu.Unlock()

	if s.handle != nil {
		s.handle.UpdateLoadLatency(pr.Load, rttMean)
	}
}
