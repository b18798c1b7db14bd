package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnSendAndReadFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConn(server, 0, 0)
	defer conn.Close()

	payload := []byte(`{"name":"ping"}`)
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Send(payload) }()

	got, err := ReadFrame(client, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-errCh)
}

func TestConnCloseIsIdempotentAndDoesNotDeadlock(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConn(server, 0, 0)

	done := make(chan struct{})
	go func() {
		_ = conn.Close()
		_ = conn.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close deadlocked")
	}
}

func TestConnSendAfterCloseReturnsErrConnClosed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConn(server, 0, 0)
	require.NoError(t, conn.Close())

	err := conn.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConnWriterClosesOnUnderlyingWriteError(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(server, 0, 0)
	defer conn.Close()

	// Closing the peer end causes the writer goroutine's WriteFrame call
	// to fail, which must self-close without deadlocking runWriter.
	require.NoError(t, client.Close())

	done := make(chan struct{})
	go func() {
		_ = conn.Send([]byte("x"))
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after underlying write failure")
	}
}
