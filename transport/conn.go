package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultOutboundQueueSize bounds the number of frames buffered for send
// before Send blocks the caller, implementing the back-pressure described
// in spec §5: a saturated outbound queue blocks the dispatcher, which in
// turn frees the scheduler to pick another worker.
const DefaultOutboundQueueSize = 64

// ErrConnClosed is returned by Send once the connection has been closed.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn wraps a net.Conn with the judge wire framing and a single writer
// goroutine owning the send side, mirroring the teacher's pipeline
// ownership model (broker/append_fsm.go: exactly one owner of the send
// side at a time).
type Conn struct {
	raw           net.Conn
	maxFrameBytes int

	outbound chan []byte
	done     chan struct{}
	closeErr error

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConn starts a Conn's writer goroutine and returns it. Callers must
// call Close when finished to release the writer goroutine.
func NewConn(raw net.Conn, maxFrameBytes int, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultOutboundQueueSize
	}
	var c = &Conn{
		raw:           raw,
		maxFrameBytes: maxFrameBytes,
		outbound:      make(chan []byte, queueSize),
		done:          make(chan struct{}),
	}
	c.wg.Add(1)
	go c.runWriter()
	return c
}

// ReadFrame reads and decompresses the next frame from the peer.
func (c *Conn) ReadFrame() ([]byte, error) {
	return ReadFrame(c.raw, c.maxFrameBytes)
}

// Send enqueues payload for the writer goroutine. It blocks if the
// outbound queue is saturated (the intended back-pressure), and returns
// ErrConnClosed if the connection has already been closed.
func (c *Conn) Send(payload []byte) error {
	select {
	case c.outbound <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

func (c *Conn) runWriter() {
	defer c.wg.Done()
	for {
		select {
		case payload := <-c.outbound:
			if err := WriteFrame(c.raw, payload); err != nil {
				log.WithFields(log.Fields{
					"remote_addr": c.raw.RemoteAddr(),
					"error":       err,
				}).Warn("transport: write frame failed, closing connection")
				c.closeLocked()
				return
			}
		case <-c.done:
			return
		}
	}
}

// closeLocked closes the done signal and the underlying socket, without
// waiting on the writer goroutine -- safe to call from runWriter itself.
func (c *Conn) closeLocked() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.raw.Close()
	})
}

// Close closes the connection and blocks until its writer goroutine has
// exited. It is idempotent and safe to call from any goroutine other than
// the writer goroutine itself.
func (c *Conn) Close() error {
	c.closeLocked()
	c.wg.Wait()
	return c.closeErr
}

// RemoteAddr returns the peer address as recorded on the underlying
// net.Conn (already adjusted for PROXY protocol, if applicable -- see
// proxyproto.go).
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// SetReadDeadline forwards to the underlying net.Conn. Callers reset this
// before each ReadFrame call to implement the session's handshake/idle
// read timeouts (SPEC_FULL §4.2).
func (c *Conn) SetReadDeadline(t time.Time) error { return c.raw.SetReadDeadline(t) }
