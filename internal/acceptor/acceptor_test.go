package acceptor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-handshake/internal/acceptor"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/credssp/credssptest"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
)

func baseAcceptorConfig() acceptor.Config {
	return acceptor.Config{
		SupportedProtocols: pdu.NegotiationProtocolRDP,
		AllowPlainRDP:      true,
		DesktopWidth:       1024,
		DesktopHeight:      768,
		ColorDepth:         32,
	}
}

// clientConnectionRequestFrame builds the tpkt-framed X.224 Connection
// Request carrying the given negotiation request, as a client would send it
// to open the handshake.
func clientConnectionRequestFrame(t *testing.T, protocols pdu.NegotiationProtocol) []byte {
	t.Helper()

	neg := pdu.ClientNegotiation{Cookie: "alice", Request: pdu.NegotiationRequest{RequestedProtocols: protocols}}
	cr := pdu.NewConnectionRequest(neg.Serialize())
	frame, err := pdu.EncodeTPKT(cr.Serialize())
	require.NoError(t, err)
	return frame
}

// clientConnectInitialFrame builds the tpkt+X.224-Data frame carrying the
// MCS Connect-Initial wrapping a GCC Conference-Create-Request with the
// given selected protocol and requested static channels.
func clientConnectInitialFrame(t *testing.T, selectedProtocol uint32, channelNames []string) []byte {
	t.Helper()

	clientData := pdu.NewClientUserDataSet(selectedProtocol, 1024, 768, 32, channelNames)
	ccr := pdu.ConferenceCreateRequest{UserData: clientData.Serialize()}
	connectPDU := pdu.NewClientConnectPDU(ccr.Serialize())

	frame, err := pdu.WrapTPKTX224Data(connectPDU.Serialize())
	require.NoError(t, err)
	return frame
}

func domainFrame(t *testing.T, domainPDU pdu.DomainPDU) []byte {
	t.Helper()

	frame, err := pdu.WrapTPKTX224Data(domainPDU.Serialize())
	require.NoError(t, err)
	return frame
}

// driveToChannelJoin advances a from New() through MCS Connect-Response and
// Erect-Domain/Attach-User, stopping once the Attach-User-Confirm has been
// sent and the acceptor is waiting on the first Channel-Join-Request, for a
// bare-RDP (no TLS, no CredSSP) handshake.
func driveToChannelJoin(t *testing.T, a *acceptor.ServerAcceptor, channelNames []string) {
	t.Helper()

	out := make([]byte, 8192)

	_, err := a.Step(clientConnectionRequestFrame(t, pdu.NegotiationProtocolRDP), out)
	require.NoError(t, err)
	require.Equal(t, acceptor.ConnectionInitiationSendResponse, a.State().(acceptor.State).Tag)

	written, err := a.StepNoInput(out) // connection confirm
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, acceptor.BasicSettingsExchangeWaitInitial, a.State().(acceptor.State).Tag)

	_, err = a.Step(clientConnectInitialFrame(t, uint32(pdu.NegotiationProtocolRDP), channelNames), out)
	require.NoError(t, err)
	require.Equal(t, acceptor.BasicSettingsExchangeSendResponse, a.State().(acceptor.State).Tag)

	written, err = a.StepNoInput(out) // mcs connect response
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, acceptor.ChannelConnection, a.State().(acceptor.State).Tag)

	_, err = a.Step(domainFrame(t, pdu.NewErectDomainRequest()), out)
	require.NoError(t, err)

	_, err = a.Step(domainFrame(t, pdu.NewAttachUserRequest()), out)
	require.NoError(t, err)

	written, err = a.StepNoInput(out) // attach user confirm
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
}

func TestServerAcceptorNegotiationFailureEmitsFailureFrame(t *testing.T) {
	cfg := baseAcceptorConfig()
	cfg.SupportedProtocols = pdu.NegotiationProtocolHybrid
	cfg.AllowPlainRDP = false

	a := acceptor.New(cfg, []byte("server-cert-pubkey"), credssptest.NewAccepting(nil, nil))

	out := make([]byte, 4096)

	_, err := a.Step(clientConnectionRequestFrame(t, pdu.NegotiationProtocolRDP), out)
	require.NoError(t, err)
	require.Equal(t, acceptor.ConnectionInitiationSendResponse, a.State().(acceptor.State).Tag)

	written, err := a.StepNoInput(out)
	require.Error(t, err)
	require.False(t, written.IsEmpty()) // the RDP_NEG_FAILURE frame is still flushed
	require.True(t, a.State().Terminal())
	require.Equal(t, acceptor.Errored, a.State().(acceptor.State).Tag)
}

func TestServerAcceptorFullHandshakeReachesConnected(t *testing.T) {
	cfg := baseAcceptorConfig()
	a := acceptor.New(cfg, []byte("server-cert-pubkey"), credssptest.NewAccepting(nil, nil))

	const (
		channelName   = "rdpdr"
		rdpdrID       = uint16(1003)
		userChannelID = uint16(1004)
		ioChannelID   = uint16(1005)
	)

	out := make([]byte, 16384)

	driveToChannelJoin(t, a, []string{channelName})

	for _, channelID := range []uint16{userChannelID, ioChannelID, rdpdrID} {
		_, err := a.Step(domainFrame(t, pdu.NewChannelJoinRequest(userChannelID, channelID)), out)
		require.NoError(t, err)

		written, err := a.StepNoInput(out)
		require.NoError(t, err)
		require.False(t, written.IsEmpty())
	}

	require.Equal(t, acceptor.SecureSettingsExchange, a.State().(acceptor.State).Tag)

	info := pdu.NewClientInfo("EXAMPLE", "alice", "hunter2")
	clientInfoBody := info.Serialize(false) // bare RDP: RDP Basic Security Header still applies

	_, err := a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, clientInfoBody)), out)
	require.NoError(t, err)
	require.Equal(t, acceptor.ConnectionFinalization, a.State().(acceptor.State).Tag)

	written, err := a.StepNoInput(out) // licensing
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.False(t, a.State().Terminal())

	written, err = a.StepNoInput(out) // demand active
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	confirm := pdu.NewClientConfirmActive(0x00010000+uint32(userChannelID), userChannelID, 1024, 768, false)
	_, err = a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, confirm.Serialize())), out)
	require.NoError(t, err)
	require.False(t, a.State().Terminal())

	shareID := uint32(0x00010000 + uint32(userChannelID))

	_, err = a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, pdu.NewSynchronize(shareID, userChannelID).Serialize())), out)
	require.NoError(t, err)
	require.False(t, a.State().Terminal())

	_, err = a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, pdu.NewControl(shareID, userChannelID, pdu.ControlActionCooperate).Serialize())), out)
	require.NoError(t, err)
	require.False(t, a.State().Terminal())

	_, err = a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, pdu.NewControl(shareID, userChannelID, pdu.ControlActionRequestControl).Serialize())), out)
	require.NoError(t, err)
	require.False(t, a.State().Terminal())

	_, err = a.Step(domainFrame(t, pdu.NewSendDataRequest(userChannelID, ioChannelID, pdu.NewFontList(shareID, userChannelID).Serialize())), out)
	require.NoError(t, err)
	require.False(t, a.State().Terminal())

	written, err = a.StepNoInput(out) // server synchronize, control(granted), font map
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.True(t, a.State().Terminal())
	require.Equal(t, acceptor.Connected, a.State().(acceptor.State).Tag)

	result, err := a.ConsumeResult()
	require.NoError(t, err)
	require.Equal(t, userChannelID, result.UserID)
	require.Equal(t, ioChannelID, result.IOChannelID)
	require.Equal(t, shareID, result.ShareID)
	require.Equal(t, rdpdrID, result.Channels[channelName])
	require.NotEmpty(t, result.Capabilities)
	require.Equal(t, "alice", result.ClientInfo.UserName)
	require.Equal(t, "EXAMPLE", result.ClientInfo.Domain)
}

func TestServerAcceptorRejectedChannelJoinIsTolerated(t *testing.T) {
	cfg := baseAcceptorConfig()
	a := acceptor.New(cfg, []byte("server-cert-pubkey"), credssptest.NewAccepting(nil, nil))

	const (
		userChannelID = uint16(1004)
		ioChannelID   = uint16(1005)
		rdpdrID       = uint16(1003)
		bogusID       = uint16(9999)
	)

	out := make([]byte, 16384)

	driveToChannelJoin(t, a, []string{"rdpdr"})

	// user channel and io channel join cleanly.
	for _, channelID := range []uint16{userChannelID, ioChannelID} {
		_, err := a.Step(domainFrame(t, pdu.NewChannelJoinRequest(userChannelID, channelID)), out)
		require.NoError(t, err)

		written, err := a.StepNoInput(out)
		require.NoError(t, err)
		require.False(t, written.IsEmpty())
	}

	// the client asks to join a channel id this acceptor never allocated;
	// the join is rejected but the sequence is not aborted.
	_, err := a.Step(domainFrame(t, pdu.NewChannelJoinRequest(userChannelID, bogusID)), out)
	require.NoError(t, err)

	written, err := a.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.False(t, a.State().Terminal())

	// rdpdr, the third and final expected join, completes channel connection.
	_, err = a.Step(domainFrame(t, pdu.NewChannelJoinRequest(userChannelID, rdpdrID)), out)
	require.NoError(t, err)

	written, err = a.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, acceptor.SecureSettingsExchange, a.State().(acceptor.State).Tag)
}

func TestServerAcceptorCredSSPDelegatesThroughToBasicSettingsExchange(t *testing.T) {
	cfg := baseAcceptorConfig()
	cfg.SupportedProtocols = pdu.NegotiationProtocolHybrid

	provider := credssptest.NewAccepting([][]byte{[]byte("server-nego-reply")}, []byte("sealed-creds"))
	a := acceptor.New(cfg, []byte{0xAA, 0xBB, 0xCC, 0xDD}, provider)

	out := make([]byte, 4096)

	_, err := a.Step(clientConnectionRequestFrame(t, pdu.NegotiationProtocolHybrid), out)
	require.NoError(t, err)

	written, err := a.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.True(t, a.ShouldPerformSecurityUpgrade())
	require.True(t, a.ShouldPerformCredSSP())

	require.NoError(t, a.MarkSecurityUpgradeAsDone())
	require.Equal(t, acceptor.Credssp, a.State().(acceptor.State).Tag)

	// the client's opening NegoToken round; the single-token provider
	// script completes it in one reply (Done=true), moving the nested
	// sequence straight to PubKeyAuth.
	clientNego := credssp.TSRequest{Version: 6, NegoTokens: [][]byte{[]byte("client-nego")}}
	written, err = a.Step(clientNego.Encode(), out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, acceptor.Credssp, a.State().(acceptor.State).Tag)

	// the client's pubKeyAuth, bound to the server's public key; the
	// acceptor records it without itself verifying the binding.
	clientPubKeyAuth := credssp.TSRequest{Version: 6, PubKeyAuth: []byte{0x01, 0x02, 0x03, 0x04}}
	written, err = a.Step(clientPubKeyAuth.Encode(), out)
	require.NoError(t, err)
	require.True(t, written.IsEmpty())

	written, err = a.StepNoInput(out) // server's pubKeyAuth echo
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	clientAuthInfo := credssp.TSRequest{Version: 6, AuthInfo: []byte("client-sealed-creds")}
	written, err = a.Step(clientAuthInfo.Encode(), out)
	require.NoError(t, err)
	require.True(t, written.IsEmpty())

	require.Equal(t, acceptor.BasicSettingsExchangeWaitInitial, a.State().(acceptor.State).Tag)
}
