// Package transport implements the judge bridge's wire framing: a
// big-endian 4-byte length prefix followed by that many bytes of
// zlib-compressed UTF-8 JSON (spec §4.1). It generalizes the teacher's
// pluggable message.Framing contract (Marshal/Unpack/Unmarshal) to a single
// concrete framing, since the wire format itself is normative here.
package transport

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// DefaultMaxFrameBytes is used when a transport is constructed without an
// explicit limit.
const DefaultMaxFrameBytes = 64 << 20

// ErrFrameTooLarge is returned when a received frame's declared length
// exceeds the configured maximum. Per spec §4.1, this is a protocol fault
// that terminates the session.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

// ErrProtocolFault wraps framing-level errors (bad length, decompression
// failure) that must close the session per spec §7.
var ErrProtocolFault = errors.New("transport: protocol fault")

// ReadFrame reads one length-prefixed, zlib-compressed frame from r and
// returns its decompressed payload. maxFrameBytes bounds the declared
// (compressed) length; a value <= 0 uses DefaultMaxFrameBytes.
func ReadFrame(r io.Reader, maxFrameBytes int) ([]byte, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "transport: read length prefix")
	}
	var n = binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > maxFrameBytes {
		return nil, errors.Wrapf(ErrFrameTooLarge, "declared=%d max=%d", n, maxFrameBytes)
	}

	var compressed = make([]byte, n)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, errors.Wrap(err, "transport: read frame body")
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrapf(ErrProtocolFault, "zlib open: %s", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrapf(ErrProtocolFault, "zlib decompress: %s", err)
	}
	return payload, nil
}

// WriteFrame zlib-compresses payload and writes it to w as one
// length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "transport: zlib compress")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "transport: zlib close")
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(buf.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "transport: write length prefix")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "transport: write frame body")
	}
	return nil
}
