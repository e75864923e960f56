package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// NegotiationType is the type field of an RDP negotiation structure
// (MS-RDPBCGR 2.2.1.1).
type NegotiationType uint8

const (
	NegotiationTypeRequest  NegotiationType = 0x01
	NegotiationTypeResponse NegotiationType = 0x02
	NegotiationTypeFailure  NegotiationType = 0x03
)

func (t NegotiationType) IsRequest() bool  { return t == NegotiationTypeRequest }
func (t NegotiationType) IsResponse() bool { return t == NegotiationTypeResponse }
func (t NegotiationType) IsFailure() bool  { return t == NegotiationTypeFailure }

// NegotiationRequestFlag carries the RDP_NEG_REQ flags field.
type NegotiationRequestFlag uint8

const (
	NegReqFlagRestrictedAdminModeRequired          NegotiationRequestFlag = 0x01
	NegReqFlagRedirectedAuthenticationModeRequired NegotiationRequestFlag = 0x02
	NegReqFlagCorrelationInfoPresent               NegotiationRequestFlag = 0x08
)

func (f NegotiationRequestFlag) IsCorrelationInfoPresent() bool {
	return f&NegReqFlagCorrelationInfoPresent == NegReqFlagCorrelationInfoPresent
}

// NegotiationProtocol is the selected/requested security protocol bitset.
type NegotiationProtocol uint32

const (
	NegotiationProtocolRDP      NegotiationProtocol = 0x00000000
	NegotiationProtocolSSL      NegotiationProtocol = 0x00000001
	NegotiationProtocolHybrid   NegotiationProtocol = 0x00000002
	NegotiationProtocolRDSTLS   NegotiationProtocol = 0x00000004
	NegotiationProtocolHybridEx NegotiationProtocol = 0x00000008
	NegotiationProtocolRDSAAD   NegotiationProtocol = 0x00000010
)

func (p NegotiationProtocol) IsRDP() bool      { return p == NegotiationProtocolRDP }
func (p NegotiationProtocol) IsSSL() bool      { return p&NegotiationProtocolSSL != 0 }
func (p NegotiationProtocol) IsHybrid() bool   { return p&NegotiationProtocolHybrid != 0 }
func (p NegotiationProtocol) IsRDSTLS() bool   { return p&NegotiationProtocolRDSTLS != 0 }
func (p NegotiationProtocol) IsHybridEx() bool { return p&NegotiationProtocolHybridEx != 0 }
func (p NegotiationProtocol) IsRDSAAD() bool   { return p&NegotiationProtocolRDSAAD != 0 }

// RequiresTLS reports whether the negotiated protocol requires the driver
// to perform a TLS upgrade on the underlying transport before the
// connector can proceed past EnhancedSecurityUpgrade.
func (p NegotiationProtocol) RequiresTLS() bool {
	return p.IsSSL() || p.IsHybrid() || p.IsHybridEx() || p.IsRDSTLS()
}

// RequiresCredSSP reports whether the negotiated protocol requires a
// CredSSP/NLA exchange before MCS Connect-Initial.
func (p NegotiationProtocol) RequiresCredSSP() bool {
	return p.IsHybrid() || p.IsHybridEx()
}

// NegotiationRequest is RDP_NEG_REQ.
type NegotiationRequest struct {
	Flags              NegotiationRequestFlag
	RequestedProtocols NegotiationProtocol
}

// Serialize encodes the fixed 8-byte RDP_NEG_REQ structure.
func (r NegotiationRequest) Serialize() []byte {
	const negReqLen = uint16(8)

	buf := bytes.NewBuffer(make([]byte, 0, negReqLen))
	buf.Write([]byte{byte(NegotiationTypeRequest), byte(r.Flags)})
	_ = binary.Write(buf, binary.LittleEndian, negReqLen)
	_ = binary.Write(buf, binary.LittleEndian, r.RequestedProtocols)

	return buf.Bytes()
}

// CorrelationInfo is RDP_NEG_CORRELATION_INFO, an optional 36-byte
// structure used for tracing a connection attempt across proxies.
type CorrelationInfo struct {
	CorrelationID []byte
}

// Serialize encodes the fixed 36-byte correlation info structure.
func (i CorrelationInfo) Serialize() []byte {
	const corrInfoLen = uint16(36)

	buf := bytes.NewBuffer(make([]byte, 0, corrInfoLen))
	buf.Write([]byte{0x06, 0x00})
	_ = binary.Write(buf, binary.LittleEndian, corrInfoLen)

	if i.CorrelationID == nil {
		buf.Write(make([]byte, 16))
	} else {
		buf.Write(i.CorrelationID)
	}

	buf.Write(make([]byte, 16))

	return buf.Bytes()
}

// NegotiationResponseFlag carries the RDP_NEG_RSP flags field.
type NegotiationResponseFlag uint8

const (
	NegotiationResponseFlagECDBSupported      NegotiationResponseFlag = 0x01
	NegotiationResponseFlagGFXSupported       NegotiationResponseFlag = 0x02
	NegotiationResponseFlagAdminModeSupported NegotiationResponseFlag = 0x08
	NegotiationResponseFlagAuthModeSupported  NegotiationResponseFlag = 0x10
)

// NegotiationFailureCode is the failureCode field of RDP_NEG_FAILURE.
type NegotiationFailureCode uint32

const (
	NegotiationFailureCodeSSLRequired             NegotiationFailureCode = 0x00000001
	NegotiationFailureCodeSSLNotAllowed           NegotiationFailureCode = 0x00000002
	NegotiationFailureCodeSSLCertNotOnServer      NegotiationFailureCode = 0x00000003
	NegotiationFailureCodeInconsistentFlags       NegotiationFailureCode = 0x00000004
	NegotiationFailureCodeHybridRequired          NegotiationFailureCode = 0x00000005
	NegotiationFailureCodeSSLWithUserAuthRequired NegotiationFailureCode = 0x00000006
)

var negotiationFailureCodeNames = map[NegotiationFailureCode]string{
	NegotiationFailureCodeSSLRequired:             "SSL_REQUIRED_BY_SERVER",
	NegotiationFailureCodeSSLNotAllowed:           "SSL_NOT_ALLOWED_BY_SERVER",
	NegotiationFailureCodeSSLCertNotOnServer:      "SSL_CERT_NOT_ON_SERVER",
	NegotiationFailureCodeInconsistentFlags:       "INCONSISTENT_FLAGS",
	NegotiationFailureCodeHybridRequired:          "HYBRID_REQUIRED_BY_SERVER",
	NegotiationFailureCodeSSLWithUserAuthRequired: "SSL_WITH_USER_AUTH_REQUIRED_BY_SERVER",
}

func (c NegotiationFailureCode) String() string { return negotiationFailureCodeNames[c] }

// ClientNegotiation is the payload carried inside an X.224 Connection
// Request: an optional cookie/routing token line followed by RDP_NEG_REQ
// and an optional correlation info block.
type ClientNegotiation struct {
	RoutingToken    string
	Cookie          string
	Request         NegotiationRequest
	CorrelationInfo CorrelationInfo
}

// Serialize encodes the full negotiation payload that becomes the X.224
// Connection Request's UserData.
func (n ClientNegotiation) Serialize() []byte {
	const crlf = "\r\n"

	buf := new(bytes.Buffer)

	switch {
	case n.RoutingToken != "":
		buf.WriteString(trimCRLF(n.RoutingToken) + crlf)
	case n.Cookie != "":
		buf.WriteString("Cookie: mstshash=" + trimCRLF(n.Cookie) + crlf)
	}

	buf.Write(n.Request.Serialize())

	if n.Request.Flags.IsCorrelationInfoPresent() {
		buf.Write(n.CorrelationInfo.Serialize())
	}

	return buf.Bytes()
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\r' || s[len(s)-1] == '\n') {
		s = s[:len(s)-1]
	}
	return s
}

const negReqWireLen = 8

// Deserialize decodes the X.224 CR UserData a server acceptor received: an
// optional cookie/routing-token line followed by RDP_NEG_REQ. A client with
// no negotiation support (pre-5.1) sends only the cookie line; that client
// is treated as requesting NegotiationProtocolRDP.
func (n *ClientNegotiation) Deserialize(userData []byte) error {
	if len(userData) < negReqWireLen || NegotiationType(userData[len(userData)-negReqWireLen]) != NegotiationTypeRequest {
		n.Cookie = extractCookie(userData)
		n.Request = NegotiationRequest{RequestedProtocols: NegotiationProtocolRDP}
		return nil
	}

	line := userData[:len(userData)-negReqWireLen]
	n.Cookie = extractCookie(line)

	negBytes := userData[len(userData)-negReqWireLen:]
	n.Request.Flags = NegotiationRequestFlag(negBytes[1])
	n.Request.RequestedProtocols = NegotiationProtocol(binary.LittleEndian.Uint32(negBytes[4:8]))

	return nil
}

// extractCookie pulls the mstshash value out of a "Cookie: mstshash=xxxx\r\n"
// line, returning the line verbatim if it doesn't match that shape.
func extractCookie(line []byte) string {
	const prefix = "Cookie: mstshash="

	s := trimCRLF(string(line))
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}

	return s
}

// ServerNegotiation is RDP_NEG_RSP or RDP_NEG_FAILURE, distinguished by
// Type. It is the payload carried by the X.224 Connection Confirm.
type ServerNegotiation struct {
	Type   NegotiationType
	Flags  NegotiationResponseFlag
	length uint16
	data   uint32
}

// SelectedProtocol returns the negotiated security protocol. Valid only
// when Type.IsResponse().
func (n *ServerNegotiation) SelectedProtocol() NegotiationProtocol {
	return NegotiationProtocol(n.data)
}

// FailureCode returns the negotiation failure reason. Valid only when
// Type.IsFailure().
func (n *ServerNegotiation) FailureCode() NegotiationFailureCode {
	return NegotiationFailureCode(n.data)
}

// Deserialize decodes the fixed 8-byte RDP_NEG_RSP/RDP_NEG_FAILURE
// structure, whichever Type indicates.
func (n *ServerNegotiation) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &n.Type); err != nil {
		return errTruncated("negotiation response type")
	}

	if err := binary.Read(wire, binary.LittleEndian, &n.Flags); err != nil {
		return errTruncated("negotiation response flags")
	}

	if err := binary.Read(wire, binary.LittleEndian, &n.length); err != nil {
		return errTruncated("negotiation response length")
	}

	if err := binary.Read(wire, binary.LittleEndian, &n.data); err != nil {
		return errTruncated("negotiation response data")
	}

	if !n.Type.IsResponse() && !n.Type.IsFailure() {
		return errUnknownDiscriminant("negotiation response type")
	}

	return nil
}

// Serialize encodes an RDP_NEG_RSP or RDP_NEG_FAILURE, whichever Type
// indicates (used by a server acceptor).
func (n ServerNegotiation) Serialize() []byte {
	const length = uint16(8)

	buf := bytes.NewBuffer(make([]byte, 0, length))
	buf.WriteByte(byte(n.Type))
	buf.WriteByte(byte(n.Flags))
	_ = binary.Write(buf, binary.LittleEndian, length)
	_ = binary.Write(buf, binary.LittleEndian, n.data)

	return buf.Bytes()
}

// NewServerNegotiationResponse builds an RDP_NEG_RSP announcing the
// selected protocol.
func NewServerNegotiationResponse(flags NegotiationResponseFlag, selected NegotiationProtocol) ServerNegotiation {
	return ServerNegotiation{Type: NegotiationTypeResponse, Flags: flags, data: uint32(selected)}
}

// NewServerNegotiationFailure builds an RDP_NEG_FAILURE.
func NewServerNegotiationFailure(code NegotiationFailureCode) ServerNegotiation {
	return ServerNegotiation{Type: NegotiationTypeFailure, data: uint32(code)}
}
