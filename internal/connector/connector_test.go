package connector_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-handshake/internal/connector"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/credssp/credssptest"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
)

func baseConfig() connector.Config {
	return connector.Config{
		TargetName:         "rdp.example.com",
		Username:           "alice",
		Domain:             "EXAMPLE",
		Password:           "hunter2",
		DesktopWidth:       1024,
		DesktopHeight:      768,
		ColorDepth:         32,
		RequestedProtocols: pdu.NegotiationProtocolRDP,
		Channels:           []string{"rdpdr"},
	}
}

// serverNegotiationFrame builds the tpkt-framed X.224 Connection Confirm
// carrying the given negotiation response/failure, as a server would send
// it in reply to the client's Connection Request.
func serverNegotiationFrame(t *testing.T, neg pdu.ServerNegotiation) []byte {
	t.Helper()

	cc := pdu.NewConnectionConfirm(neg.Serialize())
	frame, err := pdu.EncodeTPKT(cc.Serialize())
	require.NoError(t, err)
	return frame
}

// serverConnectResponseFrame builds the tpkt+X.224-Data frame carrying the
// MCS Connect-Response wrapping a GCC Conference-Create-Response with the
// given server core/network data.
func serverConnectResponseFrame(t *testing.T, ioChannelID uint16, channelIDs []uint16) []byte {
	t.Helper()

	serverData := pdu.ServerUserData{
		ServerCoreData:    &pdu.ServerCoreData{Version: 0x00080004},
		ServerNetworkData: &pdu.ServerNetworkData{MCSChannelId: ioChannelID, ChannelCount: uint16(len(channelIDs)), ChannelIdArray: channelIDs},
	}

	ccr := pdu.ConferenceCreateResponse{UserData: serverData.Serialize()}
	connectPDU := pdu.NewServerConnectPDU(ccr.Serialize())

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

// validClientLicenseBody builds the security-header-wrapped ERROR_ALERT
// license PDU a server sends when it has already licensed the client: the
// STATUS_VALID_CLIENT/ST_NO_TRANSITION pair connector.recvLicensing accepts
// in place of an actual NEW_LICENSE.
func validClientLicenseBody() []byte {
	body := new(bytes.Buffer)
	body.Write([]byte{0xFF, 0x03, 0x00, 0x00}) // preamble: ERROR_ALERT, flags, msgSize (unchecked)
	body.Write([]byte{0x07, 0x00, 0x00, 0x00}) // ErrorCode = STATUS_VALID_CLIENT
	body.Write([]byte{0x02, 0x00, 0x00, 0x00}) // StateTransition = ST_NO_TRANSITION
	body.Write([]byte{0x00, 0x00, 0x00, 0x00}) // empty ErrorInfo blob

	return pdu.WrapSecurityHeader(0x0080, body.Bytes())
}

func demandActiveBody(t *testing.T, shareID uint32) []byte {
	t.Helper()

	demand := pdu.NewServerDemandActive(shareID, []pdu.CapabilitySet{
		pdu.NewGeneralCapabilitySet(),
		pdu.NewBitmapCapabilitySet(1024, 768),
		pdu.NewOrderCapabilitySet(),
		pdu.NewPointerCapabilitySet(),
		pdu.NewInputCapabilitySet(),
	})
	return demand.Serialize()
}

func synchronizeBody(shareID uint32) []byte {
	return pdu.NewSynchronize(shareID, pdu.ServerChannelID).Serialize()
}

func controlGrantedBody(shareID uint32) []byte {
	return pdu.NewControl(shareID, pdu.ServerChannelID, pdu.ControlActionGrantedControl).Serialize()
}

func fontMapBody(shareID uint32) []byte {
	header := pdu.ShareDataHeader{
		ShareControlHeader: pdu.ShareControlHeader{PDUType: pdu.TypeData, PDUSource: pdu.ServerChannelID},
		ShareID:            shareID,
		StreamID:           1,
		PDUType2:           pdu.Type2Fontmap,
	}

	buf := header.Serialize()
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0) // numberEntries, totalNumEntries, mapFlags, entrySize

	return buf
}

// driveToChannelJoin advances c from New() through MCS Connect-Response,
// using the given client user id, io channel id, and static channel ids
// (in join order), for a bare-RDP (no TLS, no CredSSP) handshake.
func driveToChannelJoin(t *testing.T, c *connector.ClientConnector, userID, ioChannelID uint16, staticChannelIDs []uint16) {
	t.Helper()

	out := make([]byte, 8192)

	written, err := c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, connector.ConnectionInitiationWaitConfirm, c.State().(connector.State).Tag)

	neg := pdu.NewServerNegotiationResponse(0, pdu.NegotiationProtocolRDP)
	_, err = c.Step(serverNegotiationFrame(t, neg), out)
	require.NoError(t, err)
	require.Equal(t, connector.BasicSettingsExchangeSendInitial, c.State().(connector.State).Tag)

	written, err = c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, connector.BasicSettingsExchangeWaitResponse, c.State().(connector.State).Tag)

	_, err = c.Step(serverConnectResponseFrame(t, ioChannelID, staticChannelIDs), out)
	require.NoError(t, err)
	require.Equal(t, connector.ChannelConnection, c.State().(connector.State).Tag)

	written, err = c.StepNoInput(out) // erect domain + attach user request
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	_, err = c.Step(domainFrame(t, pdu.NewAttachUserConfirm(0, userID)), out)
	require.NoError(t, err)
}

func TestClientConnectorNegotiationFailureRetriesAtBareRDP(t *testing.T) {
	cfg := baseConfig()
	cfg.RequestedProtocols = pdu.NegotiationProtocolHybrid
	c := connector.New(cfg, credssptest.NewAccepting(nil, nil))

	out := make([]byte, 4096)

	_, err := c.StepNoInput(out)
	require.NoError(t, err)
	require.Equal(t, connector.ConnectionInitiationWaitConfirm, c.State().(connector.State).Tag)

	failure := pdu.NewServerNegotiationFailure(pdu.NegotiationFailureCodeHybridRequired)
	written, err := c.Step(serverNegotiationFrame(t, failure), out)
	require.NoError(t, err)
	require.True(t, written.IsEmpty())
	require.Equal(t, connector.ConnectionInitiationSendRequest, c.State().(connector.State).Tag)

	// The retry request now carries NegotiationProtocolRDP; the second
	// failure is therefore fatal rather than triggering another retry.
	written, err = c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	_, err = c.Step(serverNegotiationFrame(t, pdu.NewServerNegotiationFailure(pdu.NegotiationFailureCodeSSLRequired)), out)
	require.Error(t, err)
	require.True(t, c.State().Terminal())
	require.Equal(t, connector.Errored, c.State().(connector.State).Tag)
}

func TestClientConnectorFullHandshakeReachesConnected(t *testing.T) {
	cfg := baseConfig()
	c := connector.New(cfg, credssptest.NewAccepting(nil, nil))

	const (
		userID      = uint16(1007)
		ioChannelID = uint16(1003)
		rdpdrID     = uint16(1004)
		shareID     = uint32(0x4242)
	)

	out := make([]byte, 16384)

	driveToChannelJoin(t, c, userID, ioChannelID, []uint16{rdpdrID})
	require.Equal(t, connector.ChannelConnection, c.State().(connector.State).Tag)

	// Join queue: user channel, io channel, then the one granted static channel.
	for _, channelID := range []uint16{userID, ioChannelID, rdpdrID} {
		written, err := c.StepNoInput(out)
		require.NoError(t, err)
		require.False(t, written.IsEmpty())

		_, err = c.Step(domainFrame(t, pdu.NewChannelJoinConfirm(0, userID, channelID, channelID)), out)
		require.NoError(t, err)
	}

	require.Equal(t, connector.SecureSettingsExchange, c.State().(connector.State).Tag)

	written, err := c.StepNoInput(out) // client info
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, connector.ConnectionFinalization, c.State().(connector.State).Tag)

	_, err = c.Step(domainFrame(t, pdu.NewSendDataIndication(pdu.ServerChannelID, ioChannelID, validClientLicenseBody())), out)
	require.NoError(t, err)
	require.False(t, c.State().Terminal())

	written, err = c.StepNoInput(out) // synchronize, control(cooperate), control(request), font list
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	written, err = c.Step(domainFrame(t, pdu.NewSendDataIndication(pdu.ServerChannelID, ioChannelID, demandActiveBody(t, shareID))), out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty()) // confirm active reply
	require.False(t, c.State().Terminal())

	_, err = c.Step(domainFrame(t, pdu.NewSendDataIndication(pdu.ServerChannelID, ioChannelID, synchronizeBody(shareID))), out)
	require.NoError(t, err)

	_, err = c.Step(domainFrame(t, pdu.NewSendDataIndication(pdu.ServerChannelID, ioChannelID, controlGrantedBody(shareID))), out)
	require.NoError(t, err)
	require.False(t, c.State().Terminal())

	_, err = c.Step(domainFrame(t, pdu.NewSendDataIndication(pdu.ServerChannelID, ioChannelID, fontMapBody(shareID))), out)
	require.NoError(t, err)
	require.True(t, c.State().Terminal())
	require.Equal(t, connector.Connected, c.State().(connector.State).Tag)

	result, err := c.ConsumeResult()
	require.NoError(t, err)
	require.Equal(t, userID, result.UserID)
	require.Equal(t, ioChannelID, result.IOChannelID)
	require.Equal(t, shareID, result.ShareID)
	require.Equal(t, uint16(rdpdrID), result.Channels["rdpdr"])
	require.Empty(t, result.RejectedChannels)
	require.NotEmpty(t, result.Capabilities)
}

func TestClientConnectorRejectedChannelJoinIsTolerated(t *testing.T) {
	cfg := baseConfig()
	cfg.Channels = []string{"rdpdr", "cliprdr"}
	c := connector.New(cfg, credssptest.NewAccepting(nil, nil))

	const (
		userID      = uint16(1007)
		ioChannelID = uint16(1003)
		rdpdrID     = uint16(1004)
		cliprdrID   = uint16(1005)
	)

	out := make([]byte, 16384)

	driveToChannelJoin(t, c, userID, ioChannelID, []uint16{rdpdrID, cliprdrID})

	// user channel and io channel join cleanly.
	for _, channelID := range []uint16{userID, ioChannelID} {
		written, err := c.StepNoInput(out)
		require.NoError(t, err)
		require.False(t, written.IsEmpty())

		_, err = c.Step(domainFrame(t, pdu.NewChannelJoinConfirm(0, userID, channelID, channelID)), out)
		require.NoError(t, err)
	}

	// rdpdr joins, cliprdr is rejected by the server (rslt != rt-successful).
	written, err := c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	_, err = c.Step(domainFrame(t, pdu.NewChannelJoinConfirm(0, userID, rdpdrID, rdpdrID)), out)
	require.NoError(t, err)

	written, err = c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	_, err = c.Step(domainFrame(t, pdu.NewChannelJoinConfirm(1, userID, cliprdrID, 0)), out)
	require.NoError(t, err)

	require.Equal(t, connector.SecureSettingsExchange, c.State().(connector.State).Tag)
}

func TestClientConnectorCredSSPDelegatesThroughToBasicSettingsExchange(t *testing.T) {
	cfg := baseConfig()
	cfg.RequestedProtocols = pdu.NegotiationProtocolHybrid

	provider := credssptest.NewAccepting([][]byte{[]byte("nego1")}, []byte("sealed-creds"))
	c := connector.New(cfg, provider)

	out := make([]byte, 4096)

	_, err := c.StepNoInput(out)
	require.NoError(t, err)

	neg := pdu.NewServerNegotiationResponse(0, pdu.NegotiationProtocolHybrid)
	_, err = c.Step(serverNegotiationFrame(t, neg), out)
	require.NoError(t, err)
	require.True(t, c.ShouldPerformSecurityUpgrade())
	require.True(t, c.ShouldPerformCredSSP())

	require.NoError(t, c.MarkSecurityUpgradeAsDone([]byte{0xAA, 0xBB, 0xCC, 0xDD}))
	require.Equal(t, connector.Credssp, c.State().(connector.State).Tag)

	// Single-token provider script: the opening NegoToken round completes
	// in one emit (Done=true), moving the nested sequence straight to
	// PubKeyAuth without any server round trip.
	written, err := c.StepNoInput(out)
	require.NoError(t, err)
	require.False(t, written.IsEmpty())
	require.Equal(t, connector.Credssp, c.State().(connector.State).Tag)

	written, err = c.StepNoInput(out) // client pubKeyAuth, bound to the server's public key
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	// No client nonce is configured, so binding falls back to the raw
	// public key and the server echo increments its first byte.
	pubKeyEcho := credssp.TSRequest{Version: 6, PubKeyAuth: []byte{0xAB, 0xBB, 0xCC, 0xDD}}
	_, err = c.Step(pubKeyEcho.Encode(), out)
	require.NoError(t, err)

	written, err = c.StepNoInput(out) // sealed auth info, completing the nested sequence
	require.NoError(t, err)
	require.False(t, written.IsEmpty())

	require.Equal(t, connector.BasicSettingsExchangeSendInitial, c.State().(connector.State).Tag)
}

func TestClientConnectorAttachStaticChannelBeforeNegotiation(t *testing.T) {
	cfg := baseConfig()
	cfg.Channels = nil
	c := connector.New(cfg, credssptest.NewAccepting(nil, nil))

	c.AttachStaticChannel("rdpsnd")
	c.AttachStaticChannel("rdpsnd") // duplicate, ignored

	out := make([]byte, 16384)
	driveToChannelJoin(t, c, 1007, 1003, []uint16{1004})

	c.AttachStaticChannel("ignored-too-late")
}
