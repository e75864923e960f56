package credssp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/credssp/credssptest"
)

func TestSequenceHappyPath(t *testing.T) {
	serverKey := []byte{0x10, 0x20, 0x30, 0x40}

	clientProvider := credssptest.NewAccepting([][]byte{[]byte("nego1"), []byte("nego2")}, []byte("sealed-creds"))
	client := credssp.New(credssp.Config{RequestedVersion: 4}, "target", serverKey, clientProvider)

	out := make([]byte, 4096)

	written, err := client.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, credssp.State{Tag: credssp.StateNegoToken}, client.State())

	firstNego := append([]byte{}, out[:written.N]...)

	// Simulate a server echoing a TSRequest with the second nego token,
	// completing the negotiation round on the client's side.
	serverNego := credssp.TSRequest{Version: 4, NegoTokens: [][]byte{[]byte("server-nego")}}
	written, err = client.Step(serverNego.Encode(), out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, credssp.StatePubKeyAuth, client.State().(credssp.State).Tag)
	require.NotEmpty(t, firstNego)

	written, err = client.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, credssp.StatePubKeyAuth, client.State().(credssp.State).Tag)

	pubKeyEcho := credssp.TSRequest{Version: 4, PubKeyAuth: append([]byte{serverKey[0] + 1}, serverKey[1:]...)}
	written, err = client.Step(pubKeyEcho.Encode(), out)
	require.NoError(t, err)
	require.True(t, written.IsEmpty())
	require.Equal(t, credssp.StateAuthInfo, client.State().(credssp.State).Tag)

	written, err = client.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.True(t, client.State().Terminal())
	require.Equal(t, credssp.StateFinished, client.State().(credssp.State).Tag)
	require.Equal(t, []byte("sealed-creds"), client.AuthInfo())
}

func TestSequenceMitmSuspected(t *testing.T) {
	serverKey := []byte{0x10, 0x20, 0x30, 0x40}
	provider := credssptest.NewAccepting([][]byte{[]byte("nego1"), []byte("nego2")}, nil)
	client := credssp.New(credssp.Config{RequestedVersion: 4}, "target", serverKey, provider)

	out := make([]byte, 4096)
	_, err := client.StepNoInput(out)
	require.NoError(t, err)

	done := credssp.TSRequest{Version: 4}
	_, err = client.Step(done.Encode(), out)
	require.NoError(t, err)
	require.Equal(t, credssp.StatePubKeyAuth, client.State().(credssp.State).Tag)

	_, err = client.StepNoInput(out)
	require.NoError(t, err)

	// Server echoes the client's own key unmodified instead of +1.
	unmodified := credssp.TSRequest{Version: 4, PubKeyAuth: serverKey}
	_, err = client.Step(unmodified.Encode(), out)
	require.Error(t, err)

	state := client.State().(credssp.State)
	require.Equal(t, credssp.StateErrored, state.Tag)
	require.Equal(t, credssp.FailureMitmSuspected, state.Err.Kind)
}

func TestSequenceErrorCodeIsFatal(t *testing.T) {
	provider := credssptest.NewAccepting(nil, nil)
	client := credssp.New(credssp.Config{RequestedVersion: 4}, "target", []byte{0x01}, provider)

	out := make([]byte, 256)
	_, err := client.StepNoInput(out)
	require.NoError(t, err)

	failure := credssp.TSRequest{Version: 4, ErrorCode: 0x80090308}
	_, err = client.Step(failure.Encode(), out)
	require.Error(t, err)

	state := client.State().(credssp.State)
	require.Equal(t, credssp.StateErrored, state.Tag)
	require.Equal(t, credssp.FailureAuthRejected, state.Err.Kind)
}

func TestSequenceSuspendAndResume(t *testing.T) {
	provider := &credssptest.Provider{
		Tokens:    [][]byte{[]byte("nego1"), []byte("nego2")},
		Sealed:    []byte("sealed"),
		SuspendOn: 0,
		SuspendRequest: credssp.NetworkRequest{
			Target:  "kdc.example.com",
			Payload: []byte("as-req"),
		},
	}
	client := credssp.New(credssp.Config{RequestedVersion: 4}, "target", []byte{0x01}, provider)

	out := make([]byte, 256)
	_, err := client.StepNoInput(out)
	require.ErrorIs(t, err, credssp.ErrNeedsNetworkClient)

	req, ok := client.PendingNetworkRequest()
	require.True(t, ok)
	require.Equal(t, "kdc.example.com", req.Target)

	_, err = client.StepNoInput(out)
	require.ErrorIs(t, err, credssp.ErrAwaitingResume)

	written, err := client.Resume([]byte("as-rep"), out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	_, ok = client.PendingNetworkRequest()
	require.False(t, ok)
}
