// Package acceptor implements the server side of the RDP handshake: the
// mirror of internal/connector's sans-I/O machine, carrying a connection
// from the inbound X.224 negotiation through CredSSP, MCS settings
// exchange, channel join, and capability negotiation with producer and
// consumer roles swapped throughout - where the connector sends a
// Connection Request, the acceptor waits for one; where the connector
// waits for Demand Active, the acceptor sends it.
package acceptor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/rcarmo/rdp-handshake/internal/arbiter"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// StateTag enumerates the server acceptor's states, in the order a
// successful connection moves through them. Names mirror connector.StateTag
// exactly; only the direction of each state's traffic is reversed.
type StateTag int

const (
	ConnectionInitiationWaitRequest StateTag = iota
	ConnectionInitiationSendResponse
	EnhancedSecurityUpgrade
	Credssp
	BasicSettingsExchangeWaitInitial
	BasicSettingsExchangeSendResponse
	ChannelConnection
	SecureSettingsExchange
	ConnectionFinalization
	Connected
	Errored
)

var stateTagNames = map[StateTag]string{
	ConnectionInitiationWaitRequest:   "ConnectionInitiationWaitRequest",
	ConnectionInitiationSendResponse:  "ConnectionInitiationSendResponse",
	EnhancedSecurityUpgrade:           "EnhancedSecurityUpgrade",
	Credssp:                           "Credssp",
	BasicSettingsExchangeWaitInitial:  "BasicSettingsExchangeWaitInitial",
	BasicSettingsExchangeSendResponse: "BasicSettingsExchangeSendResponse",
	ChannelConnection:                 "ChannelConnection",
	SecureSettingsExchange:            "SecureSettingsExchange",
	ConnectionFinalization:            "ConnectionFinalization",
	Connected:                         "Connected",
	Errored:                           "Errored",
}

func (t StateTag) String() string {
	if name, ok := stateTagNames[t]; ok {
		return name
	}
	return "unknown"
}

// State is the tagged current state of a ServerAcceptor, implementing
// sequence.State.
type State struct {
	Tag StateTag
	Err error
}

func (s State) String() string { return s.Tag.String() }
func (s State) Terminal() bool { return s.Tag == Connected || s.Tag == Errored }

// Config carries the immutable parameters a ServerAcceptor is built from:
// the protocols it is willing to negotiate and the display/session
// defaults it advertises once a client has connected.
type Config struct {
	// SupportedProtocols is the set of security protocols the server is
	// willing to select among those the client offers.
	SupportedProtocols pdu.NegotiationProtocol

	// AllowPlainRDP permits falling back to unencrypted RDP Standard
	// Security when the client offers nothing SupportedProtocols accepts.
	// NegotiationProtocolRDP is the zero value, so this cannot be expressed
	// as a bit in SupportedProtocols itself.
	AllowPlainRDP bool

	DesktopWidth  uint16
	DesktopHeight uint16
	ColorDepth    int
	RemoteApp     bool

	CredSSP credssp.Config
}

// ConnectionResult is the outcome exposed once the acceptor reaches
// Connected: the negotiated protocol, the channels it granted, the
// effective (intersected) capability set, and the client's logon info.
type ConnectionResult struct {
	SelectedProtocol pdu.NegotiationProtocol

	UserID      uint16
	IOChannelID uint16
	ShareID     uint32

	Channels     arbiter.ChannelSet
	Capabilities []pdu.CapabilitySet
	ClientInfo   pdu.InfoPacket
}

type channelPhase int

const (
	channelPhaseWaitErectDomain channelPhase = iota
	channelPhaseWaitAttachUser
	channelPhaseSendAttachConfirm
	channelPhaseWaitJoin
	channelPhaseSendJoinConfirm
)

type finalizationPhase int

const (
	finalizationPhaseLicensingSend finalizationPhase = iota
	finalizationPhaseDemandActiveSend
	finalizationPhaseConfirmActiveWait
	finalizationPhaseClientFinalizeWait
	finalizationPhaseServerFinalizeSend
)

// ServerAcceptor is the sans-I/O server-side handshake state machine,
// implementing sequence.Sequence.
type ServerAcceptor struct {
	cfg          Config
	tlsPublicKey []byte
	provider     credssp.CredentialProvider

	tag StateTag
	err error

	clientOfferedProtocols  pdu.NegotiationProtocol
	selectedProtocol        pdu.NegotiationProtocol
	negotiationFailed       bool
	negotiationFailureCode  pdu.NegotiationFailureCode

	credsspSeq *credssp.Sequence

	requestedChannels []string
	channelIDs        []uint16
	userChannelID     uint16
	ioChannelID       uint16
	channels          arbiter.ChannelSet

	channelPhase channelPhase
	pendingJoin  *pdu.ClientChannelJoinRequest
	joinsExpected int
	joinsDone     int

	clientInfo pdu.InfoPacket

	finalizationPhase finalizationPhase
	shareID           uint32

	receivedSynchronize            bool
	receivedControlCooperate       bool
	receivedControlRequestControl  bool
	receivedFontList                bool
	effectiveCapabilities           []pdu.CapabilitySet

	result *ConnectionResult
}

// New builds a ServerAcceptor ready to drive a handshake against an
// inbound connection, presenting tlsPublicKey to CredSSP's channel binding
// when the negotiated protocol requires it. Unlike a client connector,
// whose server public key only becomes known mid-handshake, the acceptor's
// own certificate is known up front.
func New(cfg Config, tlsPublicKey []byte, provider credssp.CredentialProvider) *ServerAcceptor {
	return &ServerAcceptor{cfg: cfg, tlsPublicKey: tlsPublicKey, provider: provider, tag: ConnectionInitiationWaitRequest}
}

// ShouldPerformSecurityUpgrade reports whether the acceptor is parked at
// EnhancedSecurityUpgrade, waiting for the driver to perform a TLS upgrade
// on the underlying transport.
func (a *ServerAcceptor) ShouldPerformSecurityUpgrade() bool {
	return a.tag == EnhancedSecurityUpgrade
}

// ShouldPerformCredSSP reports whether the negotiated protocol requires a
// CredSSP exchange once the security upgrade is done.
func (a *ServerAcceptor) ShouldPerformCredSSP() bool {
	return a.selectedProtocol.RequiresCredSSP()
}

// MarkSecurityUpgradeAsDone is called by the driver once it has completed
// the TLS handshake on the underlying transport. The acceptor already
// holds its own certificate's public key from construction, so unlike
// connector.MarkSecurityUpgradeAsDone this takes no argument.
func (a *ServerAcceptor) MarkSecurityUpgradeAsDone() error {
	if a.tag != EnhancedSecurityUpgrade {
		return fmt.Errorf("acceptor: security upgrade not pending in state %s", a.tag)
	}

	if a.selectedProtocol.RequiresCredSSP() {
		a.credsspSeq = credssp.NewServer(a.cfg.CredSSP, "", a.tlsPublicKey, a.provider)
		a.tag = Credssp
		return nil
	}

	a.tag = BasicSettingsExchangeWaitInitial
	return nil
}

// PendingNetworkRequest exposes the nested CredSSP sequence's suspension
// request, if any, while the acceptor is in the Credssp state.
func (a *ServerAcceptor) PendingNetworkRequest() (credssp.NetworkRequest, bool) {
	if a.credsspSeq == nil {
		return credssp.NetworkRequest{}, false
	}
	return a.credsspSeq.PendingNetworkRequest()
}

// Resume feeds a suspended CredSSP provider's out-of-band response back in,
// mirroring credssp.Sequence.Resume.
func (a *ServerAcceptor) Resume(response []byte, out []byte) (sequence.Written, error) {
	if a.credsspSeq == nil {
		return sequence.Nothing(), errors.New("acceptor: no credssp sequence active")
	}

	written, err := a.credsspSeq.Resume(response, out)
	if err != nil {
		return written, a.handleCredSSPError(err)
	}
	a.afterCredSSPStep()
	return written, nil
}

// ConsumeResult returns the connection outcome once Connected has been
// reached.
func (a *ServerAcceptor) ConsumeResult() (*ConnectionResult, error) {
	if a.tag != Connected {
		return nil, fmt.Errorf("acceptor: result not available in state %s", a.tag)
	}
	return a.result, nil
}

// State returns the acceptor's current tagged state.
func (a *ServerAcceptor) State() sequence.State { return State{Tag: a.tag, Err: a.err} }

// tpktHint detects a complete tpkt-framed TPDU, the shape every wait state
// in this acceptor expects.
var tpktHint = sequence.HintFunc(func(buffered []byte) sequence.Detection {
	total, err := pdu.DetectTPKT(buffered)
	if err != nil {
		return sequence.InvalidFrame()
	}
	if total == 0 {
		return sequence.NeedMoreBytes()
	}
	return sequence.CompleteAt(total)
})

// NextPDUHint reports what shape of input, if any, the current state
// expects before it can advance.
func (a *ServerAcceptor) NextPDUHint() sequence.Hint {
	switch a.tag {
	case ConnectionInitiationWaitRequest, BasicSettingsExchangeWaitInitial:
		return tpktHint

	case Credssp:
		return a.credsspSeq.NextPDUHint()

	case ChannelConnection:
		switch a.channelPhase {
		case channelPhaseWaitErectDomain, channelPhaseWaitAttachUser, channelPhaseWaitJoin:
			return tpktHint
		default:
			return nil
		}

	case SecureSettingsExchange:
		return tpktHint

	case ConnectionFinalization:
		switch a.finalizationPhase {
		case finalizationPhaseConfirmActiveWait, finalizationPhaseClientFinalizeWait:
			return tpktHint
		default:
			return nil
		}

	default:
		return nil
	}
}

// StepNoInput advances the acceptor when NextPDUHint reports nil: every
// send-only transition.
func (a *ServerAcceptor) StepNoInput(out []byte) (sequence.Written, error) {
	if a.tag == Errored {
		return sequence.Nothing(), fmt.Errorf("acceptor: step_no_input called on errored sequence: %v", a.err)
	}

	switch a.tag {
	case ConnectionInitiationSendResponse:
		return a.sendConnectionResponse(out)

	case EnhancedSecurityUpgrade:
		return sequence.Nothing(), nil

	case Credssp:
		written, err := a.credsspSeq.StepNoInput(out)
		if err != nil {
			return written, a.handleCredSSPError(err)
		}
		a.afterCredSSPStep()
		return written, nil

	case BasicSettingsExchangeSendResponse:
		return a.sendBasicSettingsResponse(out)

	case ChannelConnection:
		switch a.channelPhase {
		case channelPhaseSendAttachConfirm:
			return a.sendAttachConfirm(out)
		case channelPhaseSendJoinConfirm:
			return a.sendJoinConfirm(out)
		default:
			return sequence.Nothing(), nil
		}

	case ConnectionFinalization:
		switch a.finalizationPhase {
		case finalizationPhaseLicensingSend:
			return a.sendLicensing(out)
		case finalizationPhaseDemandActiveSend:
			return a.sendDemandActive(out)
		case finalizationPhaseServerFinalizeSend:
			return a.sendServerFinalization(out)
		default:
			return sequence.Nothing(), nil
		}

	default:
		return sequence.Nothing(), nil
	}
}

// Step consumes one matched input PDU and advances the acceptor.
func (a *ServerAcceptor) Step(input []byte, out []byte) (sequence.Written, error) {
	if a.tag == Errored {
		return sequence.Nothing(), fmt.Errorf("acceptor: step called on errored sequence: %v", a.err)
	}

	switch a.tag {
	case ConnectionInitiationWaitRequest:
		return a.recvConnectionRequest(input)

	case Credssp:
		written, err := a.credsspSeq.Step(input, out)
		if err != nil {
			return written, a.handleCredSSPError(err)
		}
		a.afterCredSSPStep()
		return written, nil

	case BasicSettingsExchangeWaitInitial:
		return a.recvBasicSettingsInitial(input)

	case ChannelConnection:
		switch a.channelPhase {
		case channelPhaseWaitErectDomain:
			return a.recvErectDomain(input)
		case channelPhaseWaitAttachUser:
			return a.recvAttachUser(input)
		case channelPhaseWaitJoin:
			return a.recvChannelJoin(input)
		}

	case SecureSettingsExchange:
		return a.recvClientInfo(input)

	case ConnectionFinalization:
		switch a.finalizationPhase {
		case finalizationPhaseConfirmActiveWait:
			return a.recvConfirmActive(input)
		case finalizationPhaseClientFinalizeWait:
			return a.recvClientFinalization(input)
		}
	}

	return sequence.Nothing(), fmt.Errorf("acceptor: unexpected input in state %s", a.tag)
}

func (a *ServerAcceptor) fail(err error) error {
	a.err = err
	a.tag = Errored
	return err
}

func (a *ServerAcceptor) handleCredSSPError(err error) error {
	if errors.Is(err, credssp.ErrNeedsNetworkClient) {
		return err
	}
	return a.fail(fmt.Errorf("acceptor: credssp: %w", err))
}

func (a *ServerAcceptor) afterCredSSPStep() {
	state, ok := a.credsspSeq.State().(credssp.State)
	if !ok || !state.Terminal() {
		return
	}

	if state.Tag == credssp.StateErrored {
		a.fail(fmt.Errorf("acceptor: credssp failed: %v", state.Err))
		return
	}

	a.tag = BasicSettingsExchangeWaitInitial
}

// selectProtocol picks the strongest protocol both the server's
// configuration and the client's offer agree on, preferring Hybrid-Ex over
// Hybrid over RDSTLS over SSL over plain RDP. NegotiationProtocolRDP is the
// zero value and so cannot appear as a bit in supported, hence the
// separate allowPlainRDP escape hatch.
func selectProtocol(supported pdu.NegotiationProtocol, allowPlainRDP bool, offered pdu.NegotiationProtocol) (pdu.NegotiationProtocol, pdu.NegotiationFailureCode, bool) {
	common := supported & offered

	switch {
	case common&pdu.NegotiationProtocolHybridEx != 0:
		return pdu.NegotiationProtocolHybridEx, 0, true
	case common&pdu.NegotiationProtocolHybrid != 0:
		return pdu.NegotiationProtocolHybrid, 0, true
	case common&pdu.NegotiationProtocolRDSTLS != 0:
		return pdu.NegotiationProtocolRDSTLS, 0, true
	case common&pdu.NegotiationProtocolSSL != 0:
		return pdu.NegotiationProtocolSSL, 0, true
	}

	if allowPlainRDP {
		return pdu.NegotiationProtocolRDP, 0, true
	}

	if supported.RequiresCredSSP() {
		return 0, pdu.NegotiationFailureCodeHybridRequired, false
	}
	return 0, pdu.NegotiationFailureCodeSSLRequired, false
}

// recvConnectionRequest parses the X.224 Connection Request and the
// negotiation request it carries, and picks the protocol to reply with. A
// request this server cannot satisfy is not rejected immediately: the
// failure code is recorded and ConnectionInitiationSendResponse emits
// RDP_NEG_FAILURE before the sequence ends in Errored, so the client
// receives a reason rather than a dropped connection.
func (a *ServerAcceptor) recvConnectionRequest(input []byte) (sequence.Written, error) {
	inner, err := pdu.DecodeTPKT(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var cr pdu.ConnectionRequest
	if err := cr.Deserialize(bytes.NewReader(inner)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var neg pdu.ClientNegotiation
	if err := neg.Deserialize(cr.UserData); err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	a.clientOfferedProtocols = neg.Request.RequestedProtocols

	protocol, failureCode, ok := selectProtocol(a.cfg.SupportedProtocols, a.cfg.AllowPlainRDP, a.clientOfferedProtocols)
	if !ok {
		a.negotiationFailed = true
		a.negotiationFailureCode = failureCode
		a.tag = ConnectionInitiationSendResponse
		return sequence.Nothing(), nil
	}

	a.selectedProtocol = protocol
	a.tag = ConnectionInitiationSendResponse
	return sequence.Nothing(), nil
}

// sendConnectionResponse emits the X.224 Connection Confirm carrying either
// RDP_NEG_RSP or, when negotiation could not be satisfied,
// RDP_NEG_FAILURE. The failure frame is still written to out so the client
// learns why before the acceptor settles into Errored.
func (a *ServerAcceptor) sendConnectionResponse(out []byte) (sequence.Written, error) {
	var negPayload []byte
	if a.negotiationFailed {
		negPayload = pdu.NewServerNegotiationFailure(a.negotiationFailureCode).Serialize()
	} else {
		negPayload = pdu.NewServerNegotiationResponse(0, a.selectedProtocol).Serialize()
	}

	cc := pdu.NewConnectionConfirm(negPayload)
	frame, err := pdu.EncodeTPKT(cc.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)

	if a.negotiationFailed {
		a.err = fmt.Errorf("acceptor: negotiation failed: %s", a.negotiationFailureCode)
		a.tag = Errored
		return sequence.Bytes(n), a.err
	}

	if a.selectedProtocol.RequiresTLS() {
		a.tag = EnhancedSecurityUpgrade
	} else {
		a.tag = BasicSettingsExchangeWaitInitial
	}

	return sequence.Bytes(n), nil
}

// recvBasicSettingsInitial parses the MCS Connect-Initial and the GCC
// Conference-Create-Request it carries, learning the client's requested
// static channels. Channel ids follow the fixed allocation scheme: static
// channels take 1003+index, the MCS user channel takes the next id, and
// the I/O channel the one after that.
func (a *ServerAcceptor) recvBasicSettingsInitial(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var connectPDU pdu.ConnectPDU
	if err := connectPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if connectPDU.ClientConnectInitial == nil {
		return sequence.Nothing(), a.fail(errors.New("acceptor: expected mcs connect initial"))
	}

	var ccr pdu.ConferenceCreateRequest
	if err := ccr.Deserialize(bytes.NewReader(connectPDU.ClientConnectInitial.UserData())); err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var clientData pdu.ClientUserDataSet
	if err := clientData.Deserialize(bytes.NewReader(ccr.UserData)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	if clientData.ClientNetworkData != nil {
		a.requestedChannels = make([]string, len(clientData.ClientNetworkData.ChannelDefArray))
		for i, def := range clientData.ClientNetworkData.ChannelDefArray {
			a.requestedChannels[i] = strings.TrimRight(string(def.Name[:]), "\x00")
		}
	}

	a.channelIDs = make([]uint16, len(a.requestedChannels))
	for i := range a.channelIDs {
		a.channelIDs[i] = 1003 + uint16(i)
	}
	a.userChannelID = 1003 + uint16(len(a.requestedChannels))
	a.ioChannelID = a.userChannelID + 1

	a.tag = BasicSettingsExchangeSendResponse
	return sequence.Nothing(), nil
}

// sendBasicSettingsResponse emits the MCS Connect-Response wrapping the GCC
// Conference-Create-Response built from the server's core/security/net
// data blocks, announcing every channel id allocated for this session.
func (a *ServerAcceptor) sendBasicSettingsResponse(out []byte) (sequence.Written, error) {
	channelIDs := make([]uint16, len(a.channelIDs))
	copy(channelIDs, a.channelIDs)

	serverData := pdu.ServerUserData{
		ServerCoreData: &pdu.ServerCoreData{
			Version:                  0x00080004, // RDP 8.0, the same floor the client advertises
			ClientRequestedProtocols: uint32(a.clientOfferedProtocols),
		},
		ServerSecurityData: pdu.NewServerSecurityData(),
		ServerNetworkData: &pdu.ServerNetworkData{
			MCSChannelId:   a.ioChannelID,
			ChannelCount:   uint16(len(channelIDs)),
			ChannelIdArray: channelIDs,
		},
	}

	ccr := pdu.ConferenceCreateResponse{UserData: serverData.Serialize()}
	connectPDU := pdu.NewServerConnectPDU(ccr.Serialize())

	frame, err := pdu.WrapTPKTX224Data(connectPDU.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)
	a.tag = ChannelConnection
	a.channelPhase = channelPhaseWaitErectDomain
	return sequence.Bytes(n), nil
}

// recvErectDomain waits for the client's Erect-Domain-Request, which
// carries no information this layer needs beyond its arrival.
func (a *ServerAcceptor) recvErectDomain(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientErectDomainRequest == nil {
		return sequence.Nothing(), nil
	}

	a.channelPhase = channelPhaseWaitAttachUser
	return sequence.Nothing(), nil
}

// recvAttachUser waits for the client's Attach-User-Request, sent
// immediately after Erect-Domain-Request with no reply expected in
// between, the same back-to-back pairing the connector emits from
// sendErectAttach.
func (a *ServerAcceptor) recvAttachUser(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientAttachUserRequest == nil {
		return sequence.Nothing(), nil
	}

	a.channelPhase = channelPhaseSendAttachConfirm
	return sequence.Nothing(), nil
}

// sendAttachConfirm grants the client its MCS user id and primes the join
// counter: one join expected for the user channel, one for the I/O
// channel, and one per requested static channel.
func (a *ServerAcceptor) sendAttachConfirm(out []byte) (sequence.Written, error) {
	confirm := pdu.NewAttachUserConfirm(0, a.userChannelID)
	frame, err := pdu.WrapTPKTX224Data(confirm.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)
	a.joinsExpected = len(a.requestedChannels) + 2
	a.joinsDone = 0
	a.channelPhase = channelPhaseWaitJoin
	return sequence.Bytes(n), nil
}

// recvChannelJoin waits for one Channel-Join-Request.
func (a *ServerAcceptor) recvChannelJoin(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientChannelJoinRequest == nil {
		return sequence.Nothing(), nil
	}

	a.pendingJoin = domainPDU.ClientChannelJoinRequest
	a.channelPhase = channelPhaseSendJoinConfirm
	return sequence.Nothing(), nil
}

// isKnownChannel reports whether id is one this acceptor actually
// allocated: the user channel, the I/O channel, or a requested static
// channel.
func (a *ServerAcceptor) isKnownChannel(id uint16) bool {
	if id == a.userChannelID || id == a.ioChannelID {
		return true
	}
	for _, known := range a.channelIDs {
		if known == id {
			return true
		}
	}
	return false
}

// sendJoinConfirm replies to the pending Channel-Join-Request, rejecting a
// request for any channel id this acceptor never allocated. Once every
// expected join has been confirmed, the granted static channels are
// recorded and the sequence moves on to Secure Settings Exchange.
func (a *ServerAcceptor) sendJoinConfirm(out []byte) (sequence.Written, error) {
	req := a.pendingJoin

	var result uint8
	if !a.isKnownChannel(req.ChannelId) {
		result = 1 // rt-unspecified-failure
	}

	confirm := pdu.NewChannelJoinConfirm(result, req.Initiator, req.ChannelId, req.ChannelId)
	frame, err := pdu.WrapTPKTX224Data(confirm.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)
	a.pendingJoin = nil
	if result == 0 {
		a.joinsDone++
	}

	if a.joinsDone < a.joinsExpected {
		a.channelPhase = channelPhaseWaitJoin
		return sequence.Bytes(n), nil
	}

	a.channels = make(arbiter.ChannelSet, len(a.requestedChannels))
	for i, name := range a.requestedChannels {
		a.channels[name] = a.channelIDs[i]
	}

	a.tag = SecureSettingsExchange
	return sequence.Bytes(n), nil
}

// usesEnhancedSecurity reports whether the negotiated protocol already
// protects the channel, so the RDP Basic Security Header is omitted from
// the Client Info PDU. Licensing PDUs carry that header either way.
func (a *ServerAcceptor) usesEnhancedSecurity() bool {
	return a.selectedProtocol.IsSSL() || a.selectedProtocol.IsHybrid() || a.selectedProtocol.IsHybridEx()
}

// recvClientInfo decodes the Client Info PDU, the sole message of Secure
// Settings Exchange, and assigns the share id this session will use for
// every subsequent share control/data header.
func (a *ServerAcceptor) recvClientInfo(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientSendDataRequest == nil {
		return sequence.Nothing(), nil
	}

	var info pdu.InfoPacket
	if err := info.Deserialize(bytes.NewReader(domainPDU.ClientSendDataRequest.Data), a.usesEnhancedSecurity()); err != nil {
		return sequence.Nothing(), a.fail(fmt.Errorf("acceptor: client info: %w", err))
	}

	a.clientInfo = info
	a.shareID = 0x00010000 + uint32(a.userChannelID)
	a.tag = ConnectionFinalization
	a.finalizationPhase = finalizationPhaseLicensingSend
	return sequence.Nothing(), nil
}

// sendLicensing emits the Server License Error PDU announcing
// STATUS_VALID_CLIENT/ST_NO_TRANSITION, the same no-license-required
// outcome connector.recvLicensing accepts; issuing a real license
// (MS-RDPELE's NEW_LICENSE/PLATFORM_CHALLENGE round trip) is out of scope.
func (a *ServerAcceptor) sendLicensing(out []byte) (sequence.Written, error) {
	body := pdu.NewServerLicenseValidClient().Serialize()

	sendData := pdu.NewSendDataIndication(a.ioChannelID, a.userChannelID, body)
	frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)
	a.finalizationPhase = finalizationPhaseDemandActiveSend
	return sequence.Bytes(n), nil
}

// localCapabilities is the capability set the server is prepared to
// advertise, the same default list NewClientConfirmActive builds for a
// client connector.
func (a *ServerAcceptor) localCapabilities() []pdu.CapabilitySet {
	local := pdu.NewClientConfirmActive(a.shareID, a.userChannelID, a.cfg.DesktopWidth, a.cfg.DesktopHeight, a.cfg.RemoteApp)
	return local.CapabilitySets
}

// sendDemandActive emits the server's Demand Active PDU, opening the
// capabilities exchange.
func (a *ServerAcceptor) sendDemandActive(out []byte) (sequence.Written, error) {
	demand := pdu.NewServerDemandActive(a.shareID, a.localCapabilities())

	sendData := pdu.NewSendDataIndication(a.ioChannelID, a.userChannelID, demand.Serialize())
	frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	n := copy(out, frame)
	a.finalizationPhase = finalizationPhaseConfirmActiveWait
	return sequence.Bytes(n), nil
}

// recvConfirmActive decodes the client's Confirm Active PDU and computes
// the effective capability set against the server's own demand.
func (a *ServerAcceptor) recvConfirmActive(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientSendDataRequest == nil {
		return sequence.Nothing(), nil
	}

	body := domainPDU.ClientSendDataRequest.Data
	if len(body) < 4 || !pdu.Type(binary.LittleEndian.Uint16(body[2:4])).IsConfirmActive() {
		return sequence.Nothing(), nil
	}

	var confirm pdu.ConfirmActive
	if err := confirm.Deserialize(bytes.NewReader(body)); err != nil {
		return sequence.Nothing(), a.fail(fmt.Errorf("acceptor: confirm active: %w", err))
	}

	a.effectiveCapabilities = arbiter.IntersectCapabilities(confirm.CapabilitySets, a.localCapabilities())
	a.finalizationPhase = finalizationPhaseClientFinalizeWait
	return sequence.Nothing(), nil
}

// recvClientFinalization tallies the client's Synchronize,
// Control(Cooperate), Control(RequestControl), and Font-List PDUs, the
// mirror of the four the connector sends from sendFinalization. Once all
// four have arrived the acceptor moves on to send its own reply triad.
func (a *ServerAcceptor) recvClientFinalization(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), a.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), a.fail(err)
	}
	if domainPDU.ClientSendDataRequest == nil {
		return sequence.Nothing(), nil
	}

	var data pdu.Data
	if err := data.Deserialize(bytes.NewReader(domainPDU.ClientSendDataRequest.Data)); err != nil {
		if errors.Is(err, pdu.ErrDeactivateAll) {
			return sequence.Nothing(), nil
		}
		return sequence.Nothing(), a.fail(fmt.Errorf("acceptor: finalization data: %w", err))
	}

	switch {
	case data.SynchronizePDUData != nil:
		a.receivedSynchronize = true
	case data.ControlPDUData != nil && data.ControlPDUData.Action == pdu.ControlActionCooperate:
		a.receivedControlCooperate = true
	case data.ControlPDUData != nil && data.ControlPDUData.Action == pdu.ControlActionRequestControl:
		a.receivedControlRequestControl = true
	case data.FontListPDUData != nil:
		a.receivedFontList = true
	}

	if a.receivedSynchronize && a.receivedControlCooperate && a.receivedControlRequestControl && a.receivedFontList {
		a.finalizationPhase = finalizationPhaseServerFinalizeSend
	}
	return sequence.Nothing(), nil
}

// sendServerFinalization emits Synchronize, Control(granted), and Font-Map
// back to back, completing finalization and exposing the connection
// result.
func (a *ServerAcceptor) sendServerFinalization(out []byte) (sequence.Written, error) {
	messages := [][]byte{
		pdu.NewServerSynchronize(a.shareID, a.userChannelID).Serialize(),
		pdu.NewServerControl(a.shareID, pdu.ControlActionGrantedControl, a.userChannelID, uint32(a.userChannelID)).Serialize(),
		pdu.NewFontMap(a.shareID).Serialize(),
	}

	n := 0
	for _, msg := range messages {
		sendData := pdu.NewSendDataIndication(a.ioChannelID, a.userChannelID, msg)
		frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
		if err != nil {
			return sequence.Nothing(), a.fail(err)
		}
		n += copy(out[n:], frame)
	}

	a.tag = Connected
	a.result = &ConnectionResult{
		SelectedProtocol: a.selectedProtocol,
		UserID:           a.userChannelID,
		IOChannelID:      a.ioChannelID,
		ShareID:          a.shareID,
		Channels:         a.channels,
		Capabilities:     a.effectiveCapabilities,
		ClientInfo:       a.clientInfo,
	}
	return sequence.Bytes(n), nil
}
