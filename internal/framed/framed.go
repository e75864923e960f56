// Package framed implements the sans-I/O byte accumulator every
// sequence reads its input through, generalizing the teacher's
// bufio.Reader-over-net.Conn pairing into a driver-fed Buffer that
// never performs I/O itself.
package framed

import (
	"errors"

	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// MaxPDUSize is the hard ceiling on any single frame. A hint reporting
// a complete length beyond this is treated as PduTooLarge rather than
// trusted, bounding memory even against a hostile or buggy peer.
const MaxPDUSize = 16 * 1024 * 1024

var (
	// ErrIncomplete is returned by ReadExact/ReadByHint when fewer
	// bytes are buffered than requested.
	ErrIncomplete = errors.New("framed: incomplete")

	// ErrInvalidFrame is returned by ReadByHint when the hint reports
	// the buffered prefix can never become a valid frame.
	ErrInvalidFrame = errors.New("framed: invalid frame")

	// ErrPduTooLarge is returned when a hint or caller-requested
	// length exceeds MaxPDUSize.
	ErrPduTooLarge = errors.New("framed: pdu exceeds maximum size")
)

// Buffer is a single-producer byte accumulator. Bytes are appended at
// the tail by the driver and consumed only from the head by sequence
// code; append never reorders previously buffered bytes.
type Buffer struct {
	data []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds bytes to the tail of the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len reports the number of buffered, unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Peek returns a non-consuming view of the buffered bytes. The
// returned slice is only valid until the next Append or read call.
func (b *Buffer) Peek() []byte {
	return b.data
}

// ReadExact removes and returns exactly n bytes from the head of the
// buffer, or ErrIncomplete if fewer than n bytes are buffered.
func (b *Buffer) ReadExact(n int) ([]byte, error) {
	if n > MaxPDUSize {
		return nil, ErrPduTooLarge
	}
	if len(b.data) < n {
		return nil, ErrIncomplete
	}

	out := make([]byte, n)
	copy(out, b.data[:n])
	b.compact(n)

	return out, nil
}

// ReadByHint repeatedly applies hint to the buffered bytes and, once it
// reports Complete, removes and returns the complete frame. It returns
// ErrIncomplete while the hint still needs more bytes, and
// ErrInvalidFrame if the hint reports the buffered prefix is malformed.
func (b *Buffer) ReadByHint(hint sequence.Hint) ([]byte, error) {
	detection := hint.Detect(b.data)

	switch detection.Status {
	case sequence.NeedMore:
		return nil, ErrIncomplete
	case sequence.Invalid:
		return nil, ErrInvalidFrame
	}

	if detection.Length > MaxPDUSize {
		return nil, ErrPduTooLarge
	}

	return b.ReadExact(detection.Length)
}

// compact drops the first n consumed bytes from the head, reusing the
// backing array rather than reallocating on every read.
func (b *Buffer) compact(n int) {
	remaining := len(b.data) - n
	copy(b.data, b.data[n:])
	b.data = b.data[:remaining]
}
