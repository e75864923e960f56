package credssp

import (
	"errors"

	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// Role distinguishes which side of the exchange a Sequence plays; pubKeyAuth
// validation and who speaks first on the NegoToken round both depend on it.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// StateTag enumerates the CredSSP state machine's states (spec'd initial
// state NegoToken, terminals Finished and Errored).
type StateTag int

const (
	StateNegoToken StateTag = iota
	StatePubKeyAuth
	StateAuthInfo
	StateFinished
	StateErrored
)

var stateTagNames = map[StateTag]string{
	StateNegoToken:  "NegoToken",
	StatePubKeyAuth: "PubKeyAuth",
	StateAuthInfo:   "AuthInfo",
	StateFinished:   "Finished",
	StateErrored:    "Errored",
}

// State is the tagged current state of a CredSSP Sequence, implementing
// sequence.State.
type State struct {
	Tag StateTag
	Err *Failure
}

func (s State) String() string {
	if name, ok := stateTagNames[s.Tag]; ok {
		return name
	}
	return "unknown"
}

func (s State) Terminal() bool { return s.Tag == StateFinished || s.Tag == StateErrored }

// ErrNeedsNetworkClient is returned by Step/StepNoInput when the credential
// provider suspended pending an out-of-band network exchange (MS-CSSP's
// provider talking to a KDC, typically). The caller retrieves the request
// via PendingNetworkRequest, performs it, and calls Resume with the
// response bytes before driving the sequence further.
var ErrNeedsNetworkClient = errors.New("credssp: needs network client")

// ErrAwaitingResume is returned by Step/StepNoInput when called while a
// network request from a prior suspension has not yet been resolved.
var ErrAwaitingResume = errors.New("credssp: awaiting resume")

// Config controls version negotiation and replay-testability.
type Config struct {
	// RequestedVersion is the TSRequest version this side proposes.
	// Defaults to 6 (the current MS-CSSP revision) when zero.
	RequestedVersion int

	// MinAcceptableVersion rejects a peer advertising anything lower,
	// surfacing FailureVersionTooLow. Defaults to MinVersion when zero.
	MinAcceptableVersion int

	// ClientNonce is the 32-byte nonce sent with pubKeyAuth for
	// TSRequest version 5+; tests inject a fixed value here for
	// byte-identical output. This package never generates one: when it
	// is nil, no nonce is sent and pubKeyAuth carries the raw public key
	// even at version 5+.
	ClientNonce []byte
}

// Sequence is the sans-I/O CredSSP/NLA state machine, implementing
// sequence.Sequence plus the Resume escape hatch for provider suspension.
type Sequence struct {
	role       Role
	targetName string
	serverKey  []byte
	provider   CredentialProvider
	cfg        Config

	ctx     Ctx
	version int
	tag     StateTag
	err     *Failure

	pending    *NetworkRequest
	clientAuth []byte // client role: the value this side sent; server role: the value received from the client
	peerNonce  []byte // server role only: the ClientNonce received alongside clientAuth
	authInfo   []byte

	// awaitingPubKeyEcho is true once the client has sent its pubKeyAuth
	// and is waiting on the server's echo, at which point NextPDUHint
	// switches from nil (send) to the DER hint (receive) within the
	// same StatePubKeyAuth tag.
	awaitingPubKeyEcho bool
}

// New builds a Sequence for an authentication attempt against targetName,
// binding to the peer's TLS public key serverKey, driven by provider.
func New(cfg Config, targetName string, serverKey []byte, provider CredentialProvider) *Sequence {
	if cfg.RequestedVersion == 0 {
		cfg.RequestedVersion = 6
	}
	if cfg.MinAcceptableVersion == 0 {
		cfg.MinAcceptableVersion = MinVersion
	}

	return &Sequence{
		role:       RoleClient,
		targetName: targetName,
		serverKey:  serverKey,
		provider:   provider,
		cfg:        cfg,
		version:    cfg.RequestedVersion,
		tag:        StateNegoToken,
	}
}

// NewServer builds a Sequence playing the server/acceptor role: it waits
// for the client's first NegoToken TSRequest instead of emitting one.
func NewServer(cfg Config, clientName string, serverKey []byte, provider CredentialProvider) *Sequence {
	s := New(cfg, clientName, serverKey, provider)
	s.role = RoleServer
	return s
}

// State returns the sequence's current tagged state.
func (s *Sequence) State() sequence.State { return State{Tag: s.tag, Err: s.err} }

// NextPDUHint reports the DER-framing hint for whichever state expects
// input next. Output-only states (initial NegoToken on the client side,
// PubKeyAuth/AuthInfo sends) report nil; the driver calls StepNoInput.
func (s *Sequence) NextPDUHint() sequence.Hint {
	if s.tag == StateFinished || s.tag == StateErrored {
		return nil
	}
	if s.tag == StateNegoToken && s.role == RoleClient && s.ctx == nil {
		return nil
	}
	if s.tag == StatePubKeyAuth {
		if s.role == RoleClient && !s.awaitingPubKeyEcho {
			return nil
		}
		if s.role == RoleServer && s.clientAuth != nil {
			return nil
		}
	}
	if s.tag == StateAuthInfo && s.role == RoleClient {
		return nil
	}
	return sequence.HintFunc(derFrameHint)
}

// PendingNetworkRequest returns the provider's outstanding suspension
// request, if any.
func (s *Sequence) PendingNetworkRequest() (NetworkRequest, bool) {
	if s.pending == nil {
		return NetworkRequest{}, false
	}
	return *s.pending, true
}

// Resume feeds the out-of-band exchange's response back into the
// suspended provider and clears the pending request, writing into out
// whatever token the provider is now ready to emit.
func (s *Sequence) Resume(response []byte, out []byte) (sequence.Written, error) {
	if s.pending == nil {
		return sequence.Nothing(), errors.New("credssp: no pending network request to resume")
	}
	s.pending = nil

	step, err := s.provider.Process(s.ctx, response)
	if err != nil {
		return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
	}
	return s.handleNegoStep(step, out)
}

// StepNoInput drives the sequence when NextPDUHint is nil: the client's
// opening NegoToken round, and every PubKeyAuth/AuthInfo send.
func (s *Sequence) StepNoInput(out []byte) (sequence.Written, error) {
	if s.pending != nil {
		return sequence.Nothing(), ErrAwaitingResume
	}

	switch s.tag {
	case StateNegoToken:
		if s.role != RoleClient || s.ctx != nil {
			return sequence.Nothing(), nil
		}

		ctx, err := s.provider.Initialize(s.targetName, s.version >= 5)
		if err != nil {
			return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
		}
		s.ctx = ctx

		step, err := s.provider.Process(s.ctx, nil)
		if err != nil {
			return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
		}
		return s.handleNegoStep(step, out)

	case StatePubKeyAuth:
		if s.role == RoleClient {
			if s.awaitingPubKeyEcho {
				return sequence.Nothing(), nil
			}
			return s.sendPubKeyAuth(out)
		}
		if s.clientAuth == nil {
			return sequence.Nothing(), nil // still waiting on the client's pubKeyAuth
		}
		return s.sendServerPubKeyEcho(out)

	case StateAuthInfo:
		return s.sendAuthInfo(out)
	}

	return sequence.Nothing(), nil
}

// Step consumes one TSRequest PDU and advances the sequence.
func (s *Sequence) Step(input []byte, out []byte) (sequence.Written, error) {
	if s.pending != nil {
		return sequence.Nothing(), ErrAwaitingResume
	}

	req, err := DecodeTSRequest(input)
	if err != nil {
		return sequence.Nothing(), s.fail(FailureTransport, 0, err)
	}

	if req.HasErrorCode() {
		return sequence.Nothing(), s.fail(FailureAuthRejected, req.ErrorCode, nil)
	}

	if req.Version < s.cfg.MinAcceptableVersion {
		return sequence.Nothing(), s.fail(FailureVersionTooLow, 0, nil)
	}
	if req.Version < s.version {
		s.version = req.Version
	}

	switch s.tag {
	case StateNegoToken:
		if s.role == RoleServer && s.ctx == nil {
			ctx, err := s.provider.Initialize(s.targetName, s.version >= 5)
			if err != nil {
				return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
			}
			s.ctx = ctx
		}

		var incoming []byte
		if len(req.NegoTokens) > 0 {
			incoming = req.NegoTokens[0]
		}

		step, err := s.provider.Process(s.ctx, incoming)
		if err != nil {
			return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
		}
		return s.handleNegoStep(step, out)

	case StatePubKeyAuth:
		if s.role == RoleClient {
			return s.verifyPubKeyAuth(req)
		}
		s.clientAuth = req.PubKeyAuth
		s.peerNonce = req.ClientNonce
		return sequence.Nothing(), nil

	case StateAuthInfo:
		s.authInfo = req.AuthInfo
		s.tag = StateFinished
		return sequence.Nothing(), nil
	}

	return sequence.Nothing(), s.fail(FailureTransport, 0, errors.New("unexpected TSRequest in terminal state"))
}

func (s *Sequence) handleNegoStep(step Step, out []byte) (sequence.Written, error) {
	switch step.Kind {
	case StepSuspend:
		s.pending = &step.Request
		return sequence.Nothing(), ErrNeedsNetworkClient

	case StepEmit:
		req := TSRequest{Version: s.version, NegoTokens: [][]byte{step.Token}}
		encoded := req.Encode()
		n := copy(out, encoded)

		if step.Done {
			s.advanceFromNegoToken()
		}
		return sequence.Bytes(n), nil

	case StepCompleted:
		s.advanceFromNegoToken()
		return sequence.Nothing(), nil
	}

	return sequence.Nothing(), s.fail(FailureAuthRejected, 0, errors.New("credential provider returned an unknown step"))
}

func (s *Sequence) advanceFromNegoToken() {
	s.tag = StatePubKeyAuth
}

// sendPubKeyAuth is the client-role send of the opening pubKeyAuth message,
// binding to the server's TLS public key. The sequence stays in
// StatePubKeyAuth, now awaiting the server's echo.
func (s *Sequence) sendPubKeyAuth(out []byte) (sequence.Written, error) {
	nonce := s.cfg.ClientNonce
	if s.version < 5 {
		nonce = nil
	}

	bound := BindPublicKey(s.version, s.serverKey, nonce)
	s.clientAuth = bound

	req := TSRequest{Version: s.version, PubKeyAuth: bound, ClientNonce: nonce}
	encoded := req.Encode()
	n := copy(out, encoded)

	s.awaitingPubKeyEcho = true
	return sequence.Bytes(n), nil
}

// sendServerPubKeyEcho is the server-role reply once the client's
// pubKeyAuth has been received: echo the same public key back, bound the
// way VerifyServerBinding expects the client to check it.
func (s *Sequence) sendServerPubKeyEcho(out []byte) (sequence.Written, error) {
	echoed := EchoPublicKey(s.version, s.serverKey, s.peerNonce)

	req := TSRequest{Version: s.version, PubKeyAuth: echoed}
	encoded := req.Encode()
	n := copy(out, encoded)

	s.tag = StateAuthInfo
	return sequence.Bytes(n), nil
}

func (s *Sequence) verifyPubKeyAuth(req TSRequest) (sequence.Written, error) {
	nonce := s.cfg.ClientNonce
	if s.version < 5 {
		nonce = nil
	}

	if !VerifyServerBinding(s.version, req.PubKeyAuth, s.clientAuth, nonce) {
		return sequence.Nothing(), s.fail(FailureMitmSuspected, 0, nil)
	}

	s.tag = StateAuthInfo
	return sequence.Nothing(), nil
}

func (s *Sequence) sendAuthInfo(out []byte) (sequence.Written, error) {
	sealed, err := s.provider.AuthInfo(s.ctx)
	if err != nil {
		return sequence.Nothing(), s.fail(FailureAuthRejected, 0, err)
	}
	s.authInfo = sealed

	req := TSRequest{Version: s.version, AuthInfo: sealed}
	encoded := req.Encode()
	n := copy(out, encoded)

	if s.role == RoleClient {
		s.tag = StateFinished
	}
	return sequence.Bytes(n), nil
}

// AuthInfo returns the sealed credentials carried by the final TSRequest,
// valid once State().Terminal() reports Finished.
func (s *Sequence) AuthInfo() []byte { return s.authInfo }

func (s *Sequence) fail(kind FailureKind, code uint32, _ error) error {
	s.err = &Failure{Kind: kind, Code: code}
	s.tag = StateErrored
	return s.err
}

// derFrameHint detects a complete top-level DER SEQUENCE (CredSSP never
// frames anything else at this layer): tag 0x30 followed by a definite
// length in short or long form.
func derFrameHint(buffered []byte) sequence.Detection {
	if len(buffered) < 2 {
		return sequence.NeedMoreBytes()
	}
	if buffered[0] != 0x30 {
		return sequence.InvalidFrame()
	}

	lenByte := buffered[1]
	if lenByte < 128 {
		total := 2 + int(lenByte)
		if len(buffered) < total {
			return sequence.NeedMoreBytes()
		}
		return sequence.CompleteAt(total)
	}

	numBytes := int(lenByte & 0x7F)
	if numBytes == 0 || numBytes > 4 {
		return sequence.InvalidFrame()
	}
	if len(buffered) < 2+numBytes {
		return sequence.NeedMoreBytes()
	}

	length := 0
	for i := 0; i < numBytes; i++ {
		length = (length << 8) | int(buffered[2+i])
	}

	total := 2 + numBytes + length
	if len(buffered) < total {
		return sequence.NeedMoreBytes()
	}
	return sequence.CompleteAt(total)
}
