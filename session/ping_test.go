package session

import (
	"testing"
	"time"

	"github.com/tranngoclamm/oj-bridge/protocol"
)

func TestRollingMeanAveragesBoundedWindow(t *testing.T) {
	var rm rollingMean

	var got float64
	for i := 1; i <= pingRollingWindow; i++ {
		got = rm.add(float64(i))
	}
	// mean of 1..6 = 3.5
	if got != 3.5 {
		t.Fatalf("expected 3.5, got %v", got)
	}

	// A 7th sample overwrites the oldest (1), leaving 2..7: mean = 4.5.
	got = rm.add(7)
	if got != 4.5 {
		t.Fatalf("expected 4.5 after wraparound, got %v", got)
	}
}

func TestRollingMeanPartialWindow(t *testing.T) {
	var rm rollingMean
	got := rm.add(10)
	if got != 10 {
		t.Fatalf("expected 10 with a single sample, got %v", got)
	}
	got = rm.add(20)
	if got != 15 {
		t.Fatalf("expected 15, got %v", got)
	}
}

// TestHandlePingResponseComputesMidpointClockSkew guards against the skew
// estimate collapsing to "roughly pingSentAt" -- rtt/2-pr.Time is off by
// the size of the absolute Unix timestamp itself, not a rounding error.
func TestHandlePingResponseComputesMidpointClockSkew(t *testing.T) {
	var s = &Session{pingSentAt: 1_700_000_000.0}
	var pr = protocol.PingResponse{When: s.pingSentAt, Time: s.pingSentAt + 0.2, Load: 0}

	before := float64(time.Now().UnixNano()) / 1e9
	s.handlePingResponse(pr)
	after := float64(time.Now().UnixNano()) / 1e9

	var lo = (before+pr.When)/2 - pr.Time
	var hi = (after+pr.When)/2 - pr.Time
	var got = s.pingSkew.samples[0]
	if got < lo-1e-6 || got > hi+1e-6 {
		t.Fatalf("skew %v outside expected midpoint-formula range [%v, %v]", got, lo, hi)
	}
}
