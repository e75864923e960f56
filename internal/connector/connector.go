// Package connector implements the client side of the RDP handshake: the
// ten-state sans-I/O machine that carries a connection from the initial
// X.224 negotiation through CredSSP, MCS settings exchange, channel join,
// and capability negotiation, generalizing the teacher's imperative
// connect.go sequence (connectionInitiation -> basicSettingsExchange ->
// channelConnection -> secureSettingsExchange -> licensing ->
// capabilitiesExchange -> connectionFinalization) into discrete states
// driven by Step/StepNoInput instead of direct conn.Write calls.
package connector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rcarmo/rdp-handshake/internal/arbiter"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// StateTag enumerates the client connector's states, in the order a
// successful connection moves through them.
type StateTag int

const (
	ConnectionInitiationSendRequest StateTag = iota
	ConnectionInitiationWaitConfirm
	EnhancedSecurityUpgrade
	Credssp
	BasicSettingsExchangeSendInitial
	BasicSettingsExchangeWaitResponse
	ChannelConnection
	SecureSettingsExchange
	ConnectionFinalization
	Connected
	Errored
)

var stateTagNames = map[StateTag]string{
	ConnectionInitiationSendRequest:   "ConnectionInitiationSendRequest",
	ConnectionInitiationWaitConfirm:   "ConnectionInitiationWaitConfirm",
	EnhancedSecurityUpgrade:           "EnhancedSecurityUpgrade",
	Credssp:                           "Credssp",
	BasicSettingsExchangeSendInitial:  "BasicSettingsExchangeSendInitial",
	BasicSettingsExchangeWaitResponse: "BasicSettingsExchangeWaitResponse",
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

// State is the tagged current state of a ClientConnector, implementing
// sequence.State.
type State struct {
	Tag StateTag
	Err error
}

func (s State) String() string { return s.Tag.String() }
func (s State) Terminal() bool { return s.Tag == Connected || s.Tag == Errored }

// Config carries the immutable connection parameters a ClientConnector is
// built from: user identity, desired protocols, display parameters, and
// the static channels to request, mirroring the Connection Config data
// model.
type Config struct {
	// TargetName is the server's hostname or SPN, used as CredSSP's
	// target name. The negotiation cookie carries Username only.
	TargetName string

	Username string
	Domain   string
	Password string

	DesktopWidth  uint16
	DesktopHeight uint16
	ColorDepth    int

	// RequestedProtocols is the set of security protocols offered in the
	// opening negotiation request.
	RequestedProtocols pdu.NegotiationProtocol

	Channels         []string
	AutologonCookie  []byte
	PerformanceFlags uint32
	RemoteApp        bool

	CredSSP credssp.Config
}

// ConnectionResult is the outcome exposed once the connector reaches
// Connected: the negotiated protocol, channel assignments, and the
// effective (intersected) capability set.
type ConnectionResult struct {
	SelectedProtocol pdu.NegotiationProtocol
	NegotiationFlags pdu.NegotiationResponseFlag

	UserID      uint16
	IOChannelID uint16
	ShareID     uint32

	Channels         arbiter.ChannelSet
	RejectedChannels []arbiter.RejectedChannel
	Capabilities     []pdu.CapabilitySet
}

type channelPhase int

const (
	channelPhaseErectAttachSend channelPhase = iota
	channelPhaseAttachWait
	channelPhaseJoinSend
	channelPhaseJoinWait
)

type finalizationPhase int

const (
	finalizationPhaseLicensingWait finalizationPhase = iota
	finalizationPhaseSend
	finalizationPhaseWait
)

type joinTarget struct {
	name      string
	channelID uint16
}

// ClientConnector is the sans-I/O client-side handshake state machine,
// implementing sequence.Sequence.
type ClientConnector struct {
	cfg      Config
	provider credssp.CredentialProvider

	tag StateTag
	err error

	negotiationRetried     bool
	selectedProtocol       pdu.NegotiationProtocol
	serverNegotiationFlags pdu.NegotiationResponseFlag

	serverPublicKey []byte
	credsspSeq      *credssp.Sequence

	serverNetworkData pdu.ServerNetworkData
	ioChannelID       uint16
	channels          arbiter.ChannelSet
	rejectedChannels  []arbiter.RejectedChannel

	userID       uint16
	joinQueue    []joinTarget
	joinIndex    int
	channelPhase channelPhase

	finalizationPhase finalizationPhase
	shareID           uint32

	receivedDemandActive   bool
	receivedSynchronize    bool
	receivedControlGranted bool
	receivedFontMap        bool
	effectiveCapabilities  []pdu.CapabilitySet

	result *ConnectionResult
}

// New builds a ClientConnector ready to drive a handshake against cfg,
// authenticating through provider when the negotiated protocol requires
// CredSSP.
func New(cfg Config, provider credssp.CredentialProvider) *ClientConnector {
	return &ClientConnector{cfg: cfg, provider: provider, tag: ConnectionInitiationSendRequest}
}

// AttachStaticChannel adds a static channel request before the connector
// has sent its Basic Settings Exchange; a channel already present is
// ignored. Calling it once channel negotiation is underway has no effect,
// since the requested set is already baked into the client network data
// the server has (or is about to) respond to.
func (c *ClientConnector) AttachStaticChannel(name string) {
	if c.tag != ConnectionInitiationSendRequest && c.tag != ConnectionInitiationWaitConfirm &&
		c.tag != EnhancedSecurityUpgrade && c.tag != Credssp {
		return
	}
	for _, existing := range c.cfg.Channels {
		if existing == name {
			return
		}
	}
	c.cfg.Channels = append(c.cfg.Channels, name)
}

// ShouldPerformSecurityUpgrade reports whether the connector is parked at
// EnhancedSecurityUpgrade, waiting for the driver to perform a TLS upgrade
// on the underlying transport.
func (c *ClientConnector) ShouldPerformSecurityUpgrade() bool {
	return c.tag == EnhancedSecurityUpgrade
}

// ShouldPerformCredSSP reports whether the negotiated protocol requires a
// CredSSP exchange once the security upgrade is done.
func (c *ClientConnector) ShouldPerformCredSSP() bool {
	return c.selectedProtocol.RequiresCredSSP()
}

// MarkSecurityUpgradeAsDone is called by the driver once it has completed
// the TLS handshake on the underlying transport, handing back the server's
// certificate public key (needed for CredSSP's channel binding) even when
// CredSSP itself is not required.
func (c *ClientConnector) MarkSecurityUpgradeAsDone(serverPublicKey []byte) error {
	if c.tag != EnhancedSecurityUpgrade {
		return fmt.Errorf("connector: security upgrade not pending in state %s", c.tag)
	}

	c.serverPublicKey = serverPublicKey

	if c.selectedProtocol.RequiresCredSSP() {
		c.credsspSeq = credssp.New(c.cfg.CredSSP, c.cfg.TargetName, serverPublicKey, c.provider)
		c.tag = Credssp
		return nil
	}

	c.tag = BasicSettingsExchangeSendInitial
	return nil
}

// PendingNetworkRequest exposes the nested CredSSP sequence's suspension
// request, if any, while the connector is in the Credssp state.
func (c *ClientConnector) PendingNetworkRequest() (credssp.NetworkRequest, bool) {
	if c.credsspSeq == nil {
		return credssp.NetworkRequest{}, false
	}
	return c.credsspSeq.PendingNetworkRequest()
}

// Resume feeds a suspended CredSSP provider's out-of-band response back in,
// mirroring credssp.Sequence.Resume.
func (c *ClientConnector) Resume(response []byte, out []byte) (sequence.Written, error) {
	if c.credsspSeq == nil {
		return sequence.Nothing(), errors.New("connector: no credssp sequence active")
	}

	written, err := c.credsspSeq.Resume(response, out)
	if err != nil {
		return written, c.handleCredSSPError(err)
	}
	c.afterCredSSPStep()
	return written, nil
}

// ConsumeResult returns the connection outcome once Connected has been
// reached.
func (c *ClientConnector) ConsumeResult() (*ConnectionResult, error) {
	if c.tag != Connected {
		return nil, fmt.Errorf("connector: result not available in state %s", c.tag)
	}
	return c.result, nil
}

// State returns the connector's current tagged state.
func (c *ClientConnector) State() sequence.State { return State{Tag: c.tag, Err: c.err} }

// tpktHint detects a complete tpkt-framed TPDU, the shape every post-CR/CC
// wait state in this connector expects.
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
func (c *ClientConnector) NextPDUHint() sequence.Hint {
	switch c.tag {
	case ConnectionInitiationWaitConfirm, BasicSettingsExchangeWaitResponse:
		return tpktHint

	case Credssp:
		return c.credsspSeq.NextPDUHint()

	case ChannelConnection:
		if c.channelPhase == channelPhaseAttachWait || c.channelPhase == channelPhaseJoinWait {
			return tpktHint
		}
		return nil

	case ConnectionFinalization:
		if c.finalizationPhase == finalizationPhaseSend {
			return nil
		}
		return tpktHint

	default:
		return nil
	}
}

// StepNoInput advances the connector when NextPDUHint reports nil: every
// send-only transition.
func (c *ClientConnector) StepNoInput(out []byte) (sequence.Written, error) {
	if c.tag == Errored {
		return sequence.Nothing(), fmt.Errorf("connector: step_no_input called on errored sequence: %v", c.err)
	}

	switch c.tag {
	case ConnectionInitiationSendRequest:
		return c.sendConnectionInitiation(out)

	case EnhancedSecurityUpgrade:
		return sequence.Nothing(), nil

	case Credssp:
		written, err := c.credsspSeq.StepNoInput(out)
		if err != nil {
			return written, c.handleCredSSPError(err)
		}
		c.afterCredSSPStep()
		return written, nil

	case BasicSettingsExchangeSendInitial:
		return c.sendBasicSettingsExchange(out)

	case ChannelConnection:
		switch c.channelPhase {
		case channelPhaseErectAttachSend:
			return c.sendErectAttach(out)
		case channelPhaseJoinSend:
			return c.sendChannelJoin(out)
		default:
			return sequence.Nothing(), nil
		}

	case SecureSettingsExchange:
		return c.sendClientInfo(out)

	case ConnectionFinalization:
		if c.finalizationPhase == finalizationPhaseSend {
			return c.sendFinalization(out)
		}
		return sequence.Nothing(), nil

	default:
		return sequence.Nothing(), nil
	}
}

// Step consumes one matched input PDU and advances the connector.
func (c *ClientConnector) Step(input []byte, out []byte) (sequence.Written, error) {
	if c.tag == Errored {
		return sequence.Nothing(), fmt.Errorf("connector: step called on errored sequence: %v", c.err)
	}

	switch c.tag {
	case ConnectionInitiationWaitConfirm:
		return c.recvConnectionConfirm(input)

	case Credssp:
		written, err := c.credsspSeq.Step(input, out)
		if err != nil {
			return written, c.handleCredSSPError(err)
		}
		c.afterCredSSPStep()
		return written, nil

	case BasicSettingsExchangeWaitResponse:
		return c.recvBasicSettingsResponse(input)

	case ChannelConnection:
		switch c.channelPhase {
		case channelPhaseAttachWait:
			return c.recvAttachUserConfirm(input)
		case channelPhaseJoinWait:
			return c.recvChannelJoinConfirm(input)
		}

	case ConnectionFinalization:
		switch c.finalizationPhase {
		case finalizationPhaseLicensingWait:
			return c.recvLicensing(input)
		case finalizationPhaseWait:
			return c.recvFinalizationPDU(input, out)
		}
	}

	return sequence.Nothing(), fmt.Errorf("connector: unexpected input in state %s", c.tag)
}

func (c *ClientConnector) fail(err error) error {
	c.err = err
	c.tag = Errored
	return err
}

func (c *ClientConnector) handleCredSSPError(err error) error {
	if errors.Is(err, credssp.ErrNeedsNetworkClient) {
		return err
	}
	return c.fail(fmt.Errorf("connector: credssp: %w", err))
}

func (c *ClientConnector) afterCredSSPStep() {
	state, ok := c.credsspSeq.State().(credssp.State)
	if !ok || !state.Terminal() {
		return
	}

	if state.Tag == credssp.StateErrored {
		c.fail(fmt.Errorf("connector: credssp failed: %v", state.Err))
		return
	}

	c.tag = BasicSettingsExchangeSendInitial
}

// sendConnectionInitiation emits the opening X.224 Connection Request
// carrying the negotiation request; the cookie carries the username when
// one is configured.
func (c *ClientConnector) sendConnectionInitiation(out []byte) (sequence.Written, error) {
	neg := pdu.ClientNegotiation{
		Cookie:  c.cfg.Username,
		Request: pdu.NegotiationRequest{RequestedProtocols: c.cfg.RequestedProtocols},
	}

	cr := pdu.NewConnectionRequest(neg.Serialize())
	frame, err := pdu.EncodeTPKT(cr.Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, frame)
	c.tag = ConnectionInitiationWaitConfirm
	return sequence.Bytes(n), nil
}

// recvConnectionConfirm parses the X.224 Connection Confirm and the
// negotiation response/failure that follows it. A failure with a
// selectable fallback (the client offered more than bare RDP) is retried
// once at the lowest protocol before being treated as fatal.
func (c *ClientConnector) recvConnectionConfirm(input []byte) (sequence.Written, error) {
	inner, err := pdu.DecodeTPKT(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	wire := bytes.NewReader(inner)

	var cc pdu.ConnectionConfirm
	if err := cc.Deserialize(wire); err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var neg pdu.ServerNegotiation
	if err := neg.Deserialize(wire); err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	if neg.Type.IsFailure() {
		if !c.negotiationRetried && c.cfg.RequestedProtocols != pdu.NegotiationProtocolRDP {
			c.negotiationRetried = true
			c.cfg.RequestedProtocols = pdu.NegotiationProtocolRDP
			c.tag = ConnectionInitiationSendRequest
			return sequence.Nothing(), nil
		}
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: negotiation failure: %s", neg.FailureCode()))
	}

	c.serverNegotiationFlags = neg.Flags
	c.selectedProtocol = neg.SelectedProtocol()

	if c.selectedProtocol.RequiresTLS() {
		c.tag = EnhancedSecurityUpgrade
	} else {
		c.tag = BasicSettingsExchangeSendInitial
	}

	return sequence.Nothing(), nil
}

// sendBasicSettingsExchange emits the MCS Connect-Initial wrapping the GCC
// Conference-Create-Request built from the client's core/security/net data
// blocks.
func (c *ClientConnector) sendBasicSettingsExchange(out []byte) (sequence.Written, error) {
	userData := new(bytes.Buffer)
	userData.Write(pdu.NewClientCoreData(uint32(c.selectedProtocol), c.cfg.DesktopWidth, c.cfg.DesktopHeight, c.cfg.ColorDepth).Serialize())
	userData.Write(pdu.NewClientSecurityData().Serialize())
	userData.Write(arbiter.ComposeClientNetBlock(c.cfg.Channels))

	ccr := pdu.ConferenceCreateRequest{UserData: userData.Bytes()}
	connectPDU := pdu.NewClientConnectPDU(ccr.Serialize())

	frame, err := pdu.WrapTPKTX224Data(connectPDU.Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, frame)
	c.tag = BasicSettingsExchangeWaitResponse
	return sequence.Bytes(n), nil
}

// recvBasicSettingsResponse parses the MCS Connect-Response and the GCC
// Conference-Create-Response it carries, recording the server's assigned
// channel ids.
func (c *ClientConnector) recvBasicSettingsResponse(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var connectPDU pdu.ConnectPDU
	if err := connectPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}
	if connectPDU.ServerConnectResponse == nil {
		return sequence.Nothing(), c.fail(errors.New("connector: expected mcs connect response"))
	}

	var ccr pdu.ConferenceCreateResponse
	if err := ccr.Deserialize(bytes.NewReader(connectPDU.ServerConnectResponse.UserData)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var serverData pdu.ServerUserData
	if err := serverData.Deserialize(bytes.NewReader(ccr.UserData)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}
	if serverData.ServerNetworkData == nil {
		return sequence.Nothing(), c.fail(errors.New("connector: server omitted network data"))
	}

	c.serverNetworkData = *serverData.ServerNetworkData
	c.ioChannelID = c.serverNetworkData.MCSChannelId

	c.tag = ChannelConnection
	c.channelPhase = channelPhaseErectAttachSend
	return sequence.Nothing(), nil
}

// sendErectAttach emits Erect-Domain-Request and Attach-User-Request back
// to back; neither expects an individual response, so both are written
// into the same output buffer before the connector starts waiting.
func (c *ClientConnector) sendErectAttach(out []byte) (sequence.Written, error) {
	erect, err := pdu.WrapTPKTX224Data(pdu.NewErectDomainRequest().Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}
	attach, err := pdu.WrapTPKTX224Data(pdu.NewAttachUserRequest().Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, erect)
	n += copy(out[n:], attach)

	c.channelPhase = channelPhaseAttachWait
	return sequence.Bytes(n), nil
}

// recvAttachUserConfirm parses Attach-User-Confirm, learns the client's MCS
// user id, and builds the queue of channels to join: the user channel, the
// I/O channel, then every static channel the server actually granted.
func (c *ClientConnector) recvAttachUserConfirm(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	if domainPDU.ServerAttachUserConfirm == nil {
		return sequence.Nothing(), nil
	}

	confirm := domainPDU.ServerAttachUserConfirm
	if confirm.Result != 0 {
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: attach-user-request rejected: result=%d", confirm.Result))
	}

	c.userID = confirm.Initiator
	c.buildJoinQueue()
	c.channelPhase = channelPhaseJoinSend
	return sequence.Nothing(), nil
}

// buildJoinQueue reconciles the server's SC_NET response against the
// requested static channels via arbiter.ReconcileServerNetBlock, then
// queues the user channel, the I/O channel, and every granted static
// channel for Channel-Join-Request/Confirm.
func (c *ClientConnector) buildJoinQueue() {
	joined, rejected := arbiter.ReconcileServerNetBlock(c.cfg.Channels, c.serverNetworkData)
	c.channels = joined
	c.rejectedChannels = rejected

	c.joinQueue = []joinTarget{
		{name: "user", channelID: c.userID},
		{name: "global", channelID: c.ioChannelID},
	}
	for _, name := range c.cfg.Channels {
		if id, ok := joined[name]; ok {
			c.joinQueue = append(c.joinQueue, joinTarget{name: name, channelID: id})
		}
	}
	c.joinIndex = 0
}

func (c *ClientConnector) sendChannelJoin(out []byte) (sequence.Written, error) {
	target := c.joinQueue[c.joinIndex]

	req := pdu.NewChannelJoinRequest(c.userID, target.channelID)
	frame, err := pdu.WrapTPKTX224Data(req.Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, frame)
	c.channelPhase = channelPhaseJoinWait
	return sequence.Bytes(n), nil
}

// recvChannelJoinConfirm handles one Channel-Join-Confirm. A rejected join
// (rslt != rt-successful) is recorded but does not abort the sequence; once
// every queued channel has been attempted, the connector moves on.
func (c *ClientConnector) recvChannelJoinConfirm(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	if domainPDU.ServerChannelJoinConfirm == nil {
		return sequence.Nothing(), nil
	}

	confirm := domainPDU.ServerChannelJoinConfirm
	if confirm.Result != 0 {
		target := c.joinQueue[c.joinIndex]
		c.rejectedChannels = append(c.rejectedChannels, arbiter.RejectedChannel{
			Name:   target.name,
			Reason: fmt.Sprintf("channel join rejected: result=%d", confirm.Result),
		})
	}

	c.joinIndex++
	if c.joinIndex < len(c.joinQueue) {
		c.channelPhase = channelPhaseJoinSend
		return sequence.Nothing(), nil
	}

	c.tag = SecureSettingsExchange
	return sequence.Nothing(), nil
}

// sendClientInfo emits the Client Info PDU carrying logon credentials and
// session preferences, the sole message of Secure Settings Exchange.
func (c *ClientConnector) sendClientInfo(out []byte) (sequence.Written, error) {
	info := pdu.NewClientInfo(c.cfg.Domain, c.cfg.Username, c.cfg.Password)
	info.AutologonCookie = c.cfg.AutologonCookie
	info.PerfFlags = c.cfg.PerformanceFlags
	if c.cfg.RemoteApp {
		info.Flags |= pdu.InfoFlagRail
	}

	useEnhancedSecurity := c.usesEnhancedSecurity()
	body := info.Serialize(useEnhancedSecurity)

	sendData := pdu.NewSendDataRequest(c.userID, c.ioChannelID, body)
	frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, frame)
	c.tag = ConnectionFinalization
	c.finalizationPhase = finalizationPhaseLicensingWait
	return sequence.Bytes(n), nil
}

func (c *ClientConnector) usesEnhancedSecurity() bool {
	return c.selectedProtocol.IsSSL() || c.selectedProtocol.IsHybrid() || c.selectedProtocol.IsHybridEx()
}

// recvLicensing accepts the server's licensing response: an outright
// NEW_LICENSE, or an ERROR_ALERT carrying the STATUS_VALID_CLIENT/
// ST_NO_TRANSITION pair a licensed server sends instead of actually
// issuing a license. Full new-license-request/platform-challenge
// negotiation is not implemented, matching the teacher's own licensing()
// scope.
func (c *ClientConnector) recvLicensing(input []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}
	if domainPDU.ServerSendDataIndication == nil {
		return sequence.Nothing(), nil
	}

	var lic pdu.ServerLicenseError
	if err := lic.Deserialize(bytes.NewReader(domainPDU.ServerSendDataIndication.Data), c.usesEnhancedSecurity()); err != nil {
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: licensing: %w", err))
	}

	switch lic.Preamble.MsgType {
	case 0x03: // NEW_LICENSE
	case 0xFF: // ERROR_ALERT
		if lic.ValidClientMessage.ErrorCode != 0x00000007 || lic.ValidClientMessage.StateTransition != 0x00000002 {
			return sequence.Nothing(), c.fail(fmt.Errorf("connector: licensing denied: code=0x%08X transition=0x%08X",
				lic.ValidClientMessage.ErrorCode, lic.ValidClientMessage.StateTransition))
		}
	default:
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: unexpected license message type 0x%02X", lic.Preamble.MsgType))
	}

	c.finalizationPhase = finalizationPhaseSend
	return sequence.Nothing(), nil
}

// sendFinalization emits Synchronize, Control(cooperate),
// Control(request-control), and Font-List back to back; the share id is
// still unknown at this point (the server assigns it in Demand-Active) so
// the PDUs carry the zero value, matching MS-RDPBCGR's finalization order
// where these four precede the server's Demand-Active on the wire.
func (c *ClientConnector) sendFinalization(out []byte) (sequence.Written, error) {
	messages := [][]byte{
		pdu.NewSynchronize(c.shareID, c.userID).Serialize(),
		pdu.NewControl(c.shareID, c.userID, pdu.ControlActionCooperate).Serialize(),
		pdu.NewControl(c.shareID, c.userID, pdu.ControlActionRequestControl).Serialize(),
		pdu.NewFontList(c.shareID, c.userID).Serialize(),
	}

	n := 0
	for _, msg := range messages {
		sendData := pdu.NewSendDataRequest(c.userID, c.ioChannelID, msg)
		frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
		if err != nil {
			return sequence.Nothing(), c.fail(err)
		}
		n += copy(out[n:], frame)
	}

	c.finalizationPhase = finalizationPhaseWait
	return sequence.Bytes(n), nil
}

// recvFinalizationPDU dispatches one incoming frame during finalization: a
// Demand-Active triggers the capability exchange, a share-data PDU is
// tallied against the four the connector is waiting for, and anything else
// is dropped rather than treated as an error, tolerating the
// deactivate-reactivate rewind a server may initiate mid-stream.
func (c *ClientConnector) recvFinalizationPDU(input []byte, out []byte) (sequence.Written, error) {
	payload, err := pdu.UnwrapTPKTX224Data(input)
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	var domainPDU pdu.DomainPDU
	if err := domainPDU.Deserialize(bytes.NewReader(payload)); err != nil {
		return sequence.Nothing(), c.fail(err)
	}
	if domainPDU.ServerSendDataIndication == nil {
		return sequence.Nothing(), nil
	}

	body := domainPDU.ServerSendDataIndication.Data
	if len(body) < 4 {
		return sequence.Nothing(), nil
	}

	switch pduType := pdu.Type(binary.LittleEndian.Uint16(body[2:4])); {
	case pduType.IsDemandActive():
		return c.handleDemandActive(body, out)
	case pduType.IsData():
		return c.handleFinalizationData(body)
	default:
		return sequence.Nothing(), nil
	}
}

// handleDemandActive computes the effective capability set against the
// server's demand and synchronously replies with Confirm-Active.
func (c *ClientConnector) handleDemandActive(body []byte, out []byte) (sequence.Written, error) {
	var demand pdu.DemandActive
	if err := demand.Deserialize(bytes.NewReader(body)); err != nil {
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: demand active: %w", err))
	}

	c.shareID = demand.ShareID
	c.effectiveCapabilities = arbiter.IntersectCapabilities(demand.CapabilitySets, c.localCapabilities())
	c.receivedDemandActive = true

	confirm := pdu.NewClientConfirmActive(c.shareID, c.userID, c.cfg.DesktopWidth, c.cfg.DesktopHeight, c.cfg.RemoteApp)
	confirm.CapabilitySets = c.effectiveCapabilities

	sendData := pdu.NewSendDataRequest(c.userID, c.ioChannelID, confirm.Serialize())
	frame, err := pdu.WrapTPKTX224Data(sendData.Serialize())
	if err != nil {
		return sequence.Nothing(), c.fail(err)
	}

	n := copy(out, frame)
	c.checkFinalizationComplete()
	return sequence.Bytes(n), nil
}

// localCapabilities is the capability set the client is prepared to
// advertise, the same default list NewClientConfirmActive builds.
func (c *ClientConnector) localCapabilities() []pdu.CapabilitySet {
	local := pdu.NewClientConfirmActive(c.shareID, c.userID, c.cfg.DesktopWidth, c.cfg.DesktopHeight, c.cfg.RemoteApp)
	return local.CapabilitySets
}

func (c *ClientConnector) handleFinalizationData(body []byte) (sequence.Written, error) {
	var data pdu.Data
	if err := data.Deserialize(bytes.NewReader(body)); err != nil {
		if errors.Is(err, pdu.ErrDeactivateAll) {
			return sequence.Nothing(), nil
		}
		return sequence.Nothing(), c.fail(fmt.Errorf("connector: finalization data: %w", err))
	}

	switch {
	case data.SynchronizePDUData != nil:
		c.receivedSynchronize = true
	case data.ControlPDUData != nil && data.ControlPDUData.Action == pdu.ControlActionGrantedControl:
		c.receivedControlGranted = true
	case data.FontMapPDUData != nil:
		c.receivedFontMap = true
	}

	c.checkFinalizationComplete()
	return sequence.Nothing(), nil
}

func (c *ClientConnector) checkFinalizationComplete() {
	if !c.receivedDemandActive || !c.receivedSynchronize || !c.receivedControlGranted || !c.receivedFontMap {
		return
	}

	c.tag = Connected
	c.result = &ConnectionResult{
		SelectedProtocol: c.selectedProtocol,
		NegotiationFlags: c.serverNegotiationFlags,
		UserID:           c.userID,
		IOChannelID:      c.ioChannelID,
		ShareID:          c.shareID,
		Channels:         c.channels,
		RejectedChannels: c.rejectedChannels,
		Capabilities:     c.effectiveCapabilities,
	}
}
