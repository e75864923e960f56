// Package sequence defines the shared vocabulary every sans-I/O state
// machine in this module is built from: the PDU hint a sequence is
// waiting on, the outcome of feeding it a step, and the Sequence
// contract itself (ClientConnector, ServerAcceptor, CredSSP's
// sequence all implement it).
package sequence

import "fmt"

// DetectionStatus is the outcome of applying a Hint to buffered bytes.
type DetectionStatus int

const (
	NeedMore DetectionStatus = iota
	Complete
	Invalid
)

// Detection is the result of Hint.Detect: either more bytes are needed,
// the frame is complete at Length bytes, or the buffered prefix is
// malformed and can never become a valid frame.
type Detection struct {
	Status DetectionStatus
	Length int
}

func NeedMoreBytes() Detection       { return Detection{Status: NeedMore} }
func CompleteAt(length int) Detection { return Detection{Status: Complete, Length: length} }
func InvalidFrame() Detection        { return Detection{Status: Invalid} }

// Hint inspects a sequence's current buffered bytes and reports whether
// a complete frame is present yet. A sequence exposes at most one
// active Hint at a time, or none when the state is output-only.
type Hint interface {
	Detect(buffered []byte) Detection
}

// HintFunc adapts a plain function to the Hint interface.
type HintFunc func(buffered []byte) Detection

func (f HintFunc) Detect(buffered []byte) Detection { return f(buffered) }

// Written reports how many bytes Step/StepNoInput placed at the start
// of the caller-supplied output buffer. A zero value means nothing was
// produced.
type Written struct {
	N int
}

func Nothing() Written       { return Written{} }
func Bytes(n int) Written    { return Written{N: n} }
func (w Written) IsEmpty() bool { return w.N == 0 }

// State is the tagged current state of a sequence.
type State interface {
	fmt.Stringer
	Terminal() bool
}

// Sequence is the universal contract shared by ClientConnector,
// ServerAcceptor, and the CredSSP sequence.
type Sequence interface {
	// NextPDUHint reports what shape of input, if any, the sequence
	// needs before it can advance. A nil Hint means the sequence
	// should be driven with StepNoInput instead.
	NextPDUHint() Hint

	// Step consumes a matched input PDU, writes zero or more bytes
	// into out, and transitions internal state.
	Step(input []byte, out []byte) (Written, error)

	// StepNoInput advances the sequence when NextPDUHint returns nil.
	StepNoInput(out []byte) (Written, error)

	// State returns the sequence's current tagged state.
	State() State
}
