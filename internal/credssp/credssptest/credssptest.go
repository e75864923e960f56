// Package credssptest provides a scripted credssp.CredentialProvider double,
// grounded on the teacher's internal/auth/auth_test.go fixtures, for driving
// a credssp.Sequence in tests without a real NTLM/Kerberos exchange.
package credssptest

import (
	"errors"

	"github.com/rcarmo/rdp-handshake/internal/credssp"
)

// Provider replays a fixed script of outgoing tokens and returns a fixed
// sealed authInfo blob, recording every incoming token it was fed for
// assertions.
type Provider struct {
	// Tokens are emitted in order, one per Process call; the last one
	// is marked Done.
	Tokens [][]byte

	// Sealed is returned verbatim by AuthInfo.
	Sealed []byte

	// SuspendOn, if non-negative, makes the Process call at that index
	// (0-based) return StepSuspend with SuspendRequest instead of
	// emitting the next token.
	SuspendOn      int
	SuspendRequest credssp.NetworkRequest

	// Received records every incoming token Process was called with,
	// in order (including a leading nil for the opening call).
	Received [][]byte
}

type ctx struct {
	calls   int
	resumed bool
}

// NewAccepting builds a Provider that emits tokens in sequence and
// completes after the last one, with no suspension.
func NewAccepting(tokens [][]byte, sealed []byte) *Provider {
	return &Provider{Tokens: tokens, Sealed: sealed, SuspendOn: -1}
}

func (p *Provider) Initialize(targetName string, clientNonceRequired bool) (credssp.Ctx, error) {
	return &ctx{}, nil
}

func (p *Provider) Process(c credssp.Ctx, incoming []byte) (credssp.Step, error) {
	state, ok := c.(*ctx)
	if !ok {
		return credssp.Step{}, errors.New("credssptest: wrong context type")
	}

	p.Received = append(p.Received, incoming)

	if state.calls == p.SuspendOn && !state.resumed {
		state.resumed = true
		return credssp.Suspend(p.SuspendRequest), nil
	}

	if state.calls >= len(p.Tokens) {
		return credssp.Completed(p.Sealed), nil
	}

	token := p.Tokens[state.calls]
	state.calls++
	done := state.calls >= len(p.Tokens)

	return credssp.Emit(token, done), nil
}

func (p *Provider) AuthInfo(c credssp.Ctx) ([]byte, error) {
	return p.Sealed, nil
}
