package pdu

import (
	"bytes"
	"errors"
	"io"

	"github.com/rcarmo/rdp-handshake/internal/pdu/encoding"
)

// ConnectPDUApplication is the BER application tag distinguishing the four
// Connect-* GCC/MCS PDUs (ITU-T T.125 7.1).
type ConnectPDUApplication uint8

const (
	connectInitial    ConnectPDUApplication = 101
	connectResponse   ConnectPDUApplication = 102
	connectAdditional ConnectPDUApplication = 103
	connectResult     ConnectPDUApplication = 104
)

var ErrUnknownConnectApplication = errors.New("mcs: unknown connect PDU application")

// domainParameters is the DomainParameters sequence carried three times
// (target/minimum/maximum) in Connect-Initial (T.125 7.1).
type domainParameters struct {
	maxChannelIds   int
	maxUserIds      int
	maxTokenIds     int
	numPriorities   int
	minThroughput   int
	maxHeight       int
	maxMCSPDUsize   int
	protocolVersion int
}

func (p *domainParameters) Serialize() []byte {
	buf := new(bytes.Buffer)
	encoding.BerWriteInteger(p.maxChannelIds, buf)
	encoding.BerWriteInteger(p.maxUserIds, buf)
	encoding.BerWriteInteger(p.maxTokenIds, buf)
	encoding.BerWriteInteger(p.numPriorities, buf)
	encoding.BerWriteInteger(p.minThroughput, buf)
	encoding.BerWriteInteger(p.maxHeight, buf)
	encoding.BerWriteInteger(p.maxMCSPDUsize, buf)
	encoding.BerWriteInteger(p.protocolVersion, buf)
	return buf.Bytes()
}

func (p *domainParameters) Deserialize(wire io.Reader) (err error) {
	if p.maxChannelIds, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.maxUserIds, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.maxTokenIds, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.numPriorities, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.minThroughput, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.maxHeight, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	if p.maxMCSPDUsize, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}
	p.protocolVersion, err = encoding.BerReadInteger(wire)
	return err
}

func serializeDomainParametersSequence(p *domainParameters) []byte {
	buf := new(bytes.Buffer)
	encoding.BerWriteSequence(p.Serialize(), buf)
	return buf.Bytes()
}

func deserializeDomainParametersSequence(p *domainParameters, wire io.Reader) error {
	ok, err := encoding.BerReadUniversalTag(encoding.TagSequence, true, wire)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidLength("mcs: expected domain parameters sequence tag")
	}

	if _, err = encoding.BerReadLength(wire); err != nil {
		return err
	}

	return p.Deserialize(wire)
}

// ClientMCSConnectInitial is the MCS Connect-Initial PDU (T.125 7.1),
// carrying the GCC Conference-Create-Request as opaque userData.
type ClientMCSConnectInitial struct {
	calledDomainSelector  []byte
	callingDomainSelector []byte
	upwardFlag            bool
	targetParameters      domainParameters
	minimumParameters     domainParameters
	maximumParameters     domainParameters
	userData              []byte
}

// UserData returns the GCC Conference-Create-Request payload carried by
// the Connect-Initial, used by a server acceptor after Deserialize.
func (c *ClientMCSConnectInitial) UserData() []byte { return c.userData }

// NewClientMCSConnectInitial builds a Connect-Initial with the fixed
// domain parameter triple used throughout RDP (MS-RDPBCGR 2.2.1.3).
func NewClientMCSConnectInitial(userData []byte) *ClientMCSConnectInitial {
	return &ClientMCSConnectInitial{
		calledDomainSelector:  []byte{0x01},
		callingDomainSelector: []byte{0x01},
		upwardFlag:            true,
		targetParameters: domainParameters{
			maxChannelIds: 34, maxUserIds: 2, maxTokenIds: 0, numPriorities: 1,
			minThroughput: 0, maxHeight: 1, maxMCSPDUsize: 65535, protocolVersion: 2,
		},
		minimumParameters: domainParameters{
			maxChannelIds: 1, maxUserIds: 1, maxTokenIds: 1, numPriorities: 1,
			minThroughput: 0, maxHeight: 1, maxMCSPDUsize: 1056, protocolVersion: 2,
		},
		maximumParameters: domainParameters{
			maxChannelIds: 65535, maxUserIds: 65535, maxTokenIds: 65535, numPriorities: 1,
			minThroughput: 0, maxHeight: 1, maxMCSPDUsize: 65535, protocolVersion: 2,
		},
		userData: userData,
	}
}

// Deserialize decodes the BER SEQUENCE body of Connect-Initial, used by a
// server acceptor reading what a client sent.
func (c *ClientMCSConnectInitial) Deserialize(wire io.Reader) error {
	var err error

	if c.calledDomainSelector, err = berReadOctetString(wire); err != nil {
		return err
	}

	if c.callingDomainSelector, err = berReadOctetString(wire); err != nil {
		return err
	}

	if c.upwardFlag, err = berReadBoolean(wire); err != nil {
		return err
	}

	if err = deserializeDomainParametersSequence(&c.targetParameters, wire); err != nil {
		return err
	}

	if err = deserializeDomainParametersSequence(&c.minimumParameters, wire); err != nil {
		return err
	}

	if err = deserializeDomainParametersSequence(&c.maximumParameters, wire); err != nil {
		return err
	}

	c.userData, err = berReadOctetString(wire)
	return err
}

// Serialize encodes the BER SEQUENCE body of Connect-Initial (without the
// enclosing application tag, added by ConnectPDU.Serialize).
func (c *ClientMCSConnectInitial) Serialize() []byte {
	buf := new(bytes.Buffer)

	encoding.BerWriteOctetString(c.calledDomainSelector, buf)
	encoding.BerWriteOctetString(c.callingDomainSelector, buf)
	encoding.BerWriteBoolean(c.upwardFlag, buf)
	buf.Write(serializeDomainParametersSequence(&c.targetParameters))
	buf.Write(serializeDomainParametersSequence(&c.minimumParameters))
	buf.Write(serializeDomainParametersSequence(&c.maximumParameters))
	encoding.BerWriteOctetString(c.userData, buf)

	return buf.Bytes()
}

// ServerConnectResponse is the MCS Connect-Response PDU (T.125 7.1).
type ServerConnectResponse struct {
	Result          uint8
	CalledConnectId int
	Parameters      domainParameters
	UserData        []byte
}

// Serialize encodes the BER SEQUENCE body of Connect-Response, used by a
// server acceptor.
func (s *ServerConnectResponse) Serialize() []byte {
	buf := new(bytes.Buffer)

	buf.WriteByte(0x0A) // tag ENUMERATED
	encoding.BerWriteLength(1, buf)
	buf.WriteByte(s.Result)

	encoding.BerWriteInteger(s.CalledConnectId, buf)
	buf.Write(serializeDomainParametersSequence(&s.Parameters))
	encoding.BerWriteOctetString(s.UserData, buf)

	return buf.Bytes()
}

// Deserialize decodes the BER SEQUENCE body of Connect-Response.
func (s *ServerConnectResponse) Deserialize(wire io.Reader) error {
	var err error

	if s.Result, err = encoding.BerReadEnumerated(wire); err != nil {
		return err
	}

	if s.CalledConnectId, err = encoding.BerReadInteger(wire); err != nil {
		return err
	}

	if err = deserializeDomainParametersSequence(&s.Parameters, wire); err != nil {
		return err
	}

	s.UserData, err = berReadOctetString(wire)
	return err
}

// ConnectPDU is the BER application-tagged envelope around Connect-Initial
// or Connect-Response.
type ConnectPDU struct {
	Application ConnectPDUApplication

	ClientConnectInitial  *ClientMCSConnectInitial
	ServerConnectResponse *ServerConnectResponse
}

// NewClientConnectPDU wraps a Connect-Initial carrying the GCC
// Conference-Create-Request userData, used by a client connector.
func NewClientConnectPDU(userData []byte) ConnectPDU {
	return ConnectPDU{Application: connectInitial, ClientConnectInitial: NewClientMCSConnectInitial(userData)}
}

// NewServerConnectPDU wraps a Connect-Response carrying the GCC
// Conference-Create-Response userData, used by a server acceptor.
func NewServerConnectPDU(userData []byte) ConnectPDU {
	return ConnectPDU{
		Application: connectResponse,
		ServerConnectResponse: &ServerConnectResponse{
			Result:     0, // rt-successful
			Parameters: domainParameters{maxChannelIds: 34, maxUserIds: 2, maxTokenIds: 0, numPriorities: 1, minThroughput: 0, maxHeight: 1, maxMCSPDUsize: 65535, protocolVersion: 2},
			UserData:   userData,
		},
	}
}

// Serialize wraps the active alternative in its BER application tag.
func (pdu ConnectPDU) Serialize() []byte {
	var body []byte

	switch {
	case pdu.ClientConnectInitial != nil:
		body = pdu.ClientConnectInitial.Serialize()
	case pdu.ServerConnectResponse != nil:
		body = pdu.ServerConnectResponse.Serialize()
	}

	buf := new(bytes.Buffer)
	encoding.BerWriteApplicationTag(uint8(pdu.Application), len(body), buf)
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize reads the application tag and dispatches to the matching
// alternative's decoder. A client connector expects connectResponse; a
// server acceptor expects connectInitial.
func (pdu *ConnectPDU) Deserialize(wire io.Reader) error {
	tag, err := encoding.BerReadApplicationTag(wire)
	if err != nil {
		return err
	}

	pdu.Application = ConnectPDUApplication(tag)

	if _, err = encoding.BerReadLength(wire); err != nil {
		return err
	}

	switch pdu.Application {
	case connectResponse:
		pdu.ServerConnectResponse = &ServerConnectResponse{}
		return pdu.ServerConnectResponse.Deserialize(wire)
	case connectInitial:
		pdu.ClientConnectInitial = &ClientMCSConnectInitial{}
		return pdu.ClientConnectInitial.Deserialize(wire)
	default:
		return ErrUnknownConnectApplication
	}
}

// berReadOctetString reads a universal OCTET STRING (tag 0x04).
func berReadOctetString(wire io.Reader) ([]byte, error) {
	ok, err := encoding.BerReadUniversalTag(encoding.TagOctetString, false, wire)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidLength("mcs: expected octet string tag")
	}

	length, err := encoding.BerReadLength(wire)
	if err != nil {
		return nil, err
	}

	out := make([]byte, length)
	_, err = io.ReadFull(wire, out)
	return out, err
}

// berReadBoolean reads a universal BOOLEAN (tag 0x01).
func berReadBoolean(wire io.Reader) (bool, error) {
	ok, err := encoding.BerReadUniversalTag(encoding.TagBoolean, false, wire)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errInvalidLength("mcs: expected boolean tag")
	}

	if _, err = encoding.BerReadLength(wire); err != nil {
		return false, err
	}

	var b [1]byte
	if _, err = io.ReadFull(wire, b[:]); err != nil {
		return false, err
	}

	return b[0] != 0, nil
}
