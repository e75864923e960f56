package credssp

import "errors"

// Ctx is an opaque, provider-owned authentication context handed back by
// Initialize and threaded through every subsequent Process call. It is the
// only object in this package permitted to hold real syscall-backed state
// (a GSS-API handle, an open socket to a KDC); the sequence itself never
// inspects it.
type Ctx any

// StepKind discriminates the outcome of CredentialProvider.Process.
type StepKind int

const (
	// StepEmit produces an outgoing token; Done reports whether the
	// provider's side of the negotiation is now complete.
	StepEmit StepKind = iota
	// StepSuspend means the provider needs to exchange bytes with an
	// external party (a KDC, typically) before it can continue; the
	// driver must perform that exchange and resume with the response.
	StepSuspend
	// StepCompleted means the negotiation is over and Final carries the
	// credentials/authentication info ready to seal into authInfo.
	StepCompleted
)

// NetworkRequest describes the out-of-band exchange a provider needs the
// driver to perform on StepSuspend.
type NetworkRequest struct {
	// Target is the address or principal the driver should contact
	// (e.g. a KDC hostname), as the provider requires.
	Target string
	// Payload is the request body the driver should send.
	Payload []byte
}

// Step is the tagged outcome of CredentialProvider.Process.
type Step struct {
	Kind StepKind

	// Valid when Kind == StepEmit.
	Token []byte
	Done  bool

	// Valid when Kind == StepSuspend.
	Request NetworkRequest

	// Valid when Kind == StepCompleted.
	Final []byte
}

// Emit builds a StepEmit outcome.
func Emit(token []byte, done bool) Step { return Step{Kind: StepEmit, Token: token, Done: done} }

// Suspend builds a StepSuspend outcome.
func Suspend(request NetworkRequest) Step { return Step{Kind: StepSuspend, Request: request} }

// Completed builds a StepCompleted outcome.
func Completed(final []byte) Step { return Step{Kind: StepCompleted, Final: final} }

// CredentialProvider is the pluggable capability that drives the NegoToken
// exchange and, once negotiation completes, supplies the encrypted
// TSCredentials placed in the final TSRequest's authInfo. Implementations
// range from classic SSPI on Windows to a pure Go NTLM provider
// (internal/credssp/ntlm) to a scripted test double (credssptest).
type CredentialProvider interface {
	// Initialize starts a fresh negotiation against targetName.
	// clientNonceRequired is true when the negotiated TSRequest version
	// is 5 or higher and a ClientNonce must accompany pubKeyAuth.
	Initialize(targetName string, clientNonceRequired bool) (Ctx, error)

	// Process advances the negotiation. incoming is nil on the very
	// first call (the client typically speaks first).
	Process(ctx Ctx, incoming []byte) (Step, error)

	// AuthInfo seals the credentials to place in the final TSRequest's
	// authInfo field, using the session key negotiated into ctx.
	AuthInfo(ctx Ctx) ([]byte, error)
}

// ErrProviderNotReady is returned when AuthInfo is invoked before the
// provider has reached StepCompleted.
var ErrProviderNotReady = errors.New("credssp: credential provider has not completed negotiation")
