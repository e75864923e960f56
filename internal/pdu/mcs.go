package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/rcarmo/rdp-handshake/internal/pdu/encoding"
)

// MCS (T.125) domain application discriminants, as carried in the single
// leading PER CHOICE byte of a DomainMCSPDU.
const (
	mcsErectDomainRequest           uint8 = 0x04
	mcsDisconnectProviderUltimatum  uint8 = 0x20
	mcsAttachUserRequest            uint8 = 0x28
	mcsAttachUserConfirm            uint8 = 0x2e
	mcsChannelJoinRequest           uint8 = 0x38
	mcsChannelJoinConfirm           uint8 = 0x3e
	mcsSendDataRequest              uint8 = 0x64
	mcsSendDataIndication           uint8 = 0x68
)

// mcsChannelInitiator is the base added to every MCS user id/initiator per
// T.125 8.4.2 (user ids are allocated starting at 1001).
const mcsChannelInitiator uint16 = 1001

var (
	ErrDisconnectUltimatum     = errors.New("mcs: server sent disconnect provider ultimatum")
	ErrUnknownDomainApplication = errors.New("mcs: unknown domain MCSPDU application")
)

// ClientErectDomainRequest is Erect-Domain-Request (T.125 7.2).
type ClientErectDomainRequest struct{}

func (r *ClientErectDomainRequest) Serialize() []byte {
	buf := new(bytes.Buffer)
	encoding.PerWriteInteger(0, buf)
	encoding.PerWriteInteger(0, buf)
	return buf.Bytes()
}

func (r *ClientErectDomainRequest) Deserialize(wire io.Reader) error {
	if _, err := encoding.PerReadInteger(wire); err != nil {
		return err
	}
	_, err := encoding.PerReadInteger(wire)
	return err
}

// ClientAttachUserRequest is Attach-User-Request (T.125 7.3); it has no body.
type ClientAttachUserRequest struct{}

func (r *ClientAttachUserRequest) Serialize() []byte { return nil }

func (r *ClientAttachUserRequest) Deserialize(wire io.Reader) error { return nil }

// ServerAttachUserConfirm is Attach-User-Confirm (T.125 7.3).
type ServerAttachUserConfirm struct {
	Result    uint8
	Initiator uint16
}

func (c *ServerAttachUserConfirm) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &c.Result); err != nil {
		return err
	}

	var err error
	c.Initiator, err = encoding.PerReadInteger16(mcsChannelInitiator, wire)
	return err
}

func (c *ServerAttachUserConfirm) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(c.Result)
	encoding.PerWriteInteger16(c.Initiator, mcsChannelInitiator, buf)
	return buf.Bytes()
}

// ClientChannelJoinRequest is Channel-Join-Request (T.125 7.5).
type ClientChannelJoinRequest struct {
	Initiator uint16
	ChannelId uint16
}

func (r *ClientChannelJoinRequest) Serialize() []byte {
	buf := new(bytes.Buffer)
	encoding.PerWriteInteger16(r.Initiator, mcsChannelInitiator, buf)
	encoding.PerWriteInteger16(r.ChannelId, 0, buf)
	return buf.Bytes()
}

func (r *ClientChannelJoinRequest) Deserialize(wire io.Reader) error {
	var err error
	if r.Initiator, err = encoding.PerReadInteger16(mcsChannelInitiator, wire); err != nil {
		return err
	}
	r.ChannelId, err = encoding.PerReadInteger16(0, wire)
	return err
}

// ServerChannelJoinConfirm is Channel-Join-Confirm (T.125 7.5). ChannelId
// is an optional field, absent on join failure.
type ServerChannelJoinConfirm struct {
	Result    uint8
	Initiator uint16
	Requested uint16
	ChannelId uint16
}

func (c *ServerChannelJoinConfirm) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &c.Result); err != nil {
		return err
	}

	var err error
	if c.Initiator, err = encoding.PerReadInteger16(mcsChannelInitiator, wire); err != nil {
		return err
	}

	if c.Requested, err = encoding.PerReadInteger16(0, wire); err != nil {
		return err
	}

	if c.ChannelId, err = encoding.PerReadInteger16(0, wire); err != nil {
		// The confirmed channel id is absent when the join failed; the
		// caller inspects Result to tell a genuine truncation apart.
		c.ChannelId = 0
	}

	return nil
}

func (c *ServerChannelJoinConfirm) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(c.Result)
	encoding.PerWriteInteger16(c.Initiator, mcsChannelInitiator, buf)
	encoding.PerWriteInteger16(c.Requested, 0, buf)
	if c.Result == 0 {
		encoding.PerWriteInteger16(c.ChannelId, 0, buf)
	}
	return buf.Bytes()
}

// ClientSendDataRequest is Send-Data-Request (T.125 7.7), the carrier for
// every higher-layer PDU (GCC, Client Info, Demand/Confirm Active, ...).
type ClientSendDataRequest struct {
	Initiator uint16
	ChannelId uint16
	Data      []byte
}

func (d *ClientSendDataRequest) Serialize() []byte {
	buf := new(bytes.Buffer)
	encoding.PerWriteInteger16(d.Initiator, mcsChannelInitiator, buf)
	encoding.PerWriteInteger16(d.ChannelId, 0, buf)
	buf.WriteByte(0x70) // dataPriority|segmentation, always complete+high in this layer
	encoding.BerWriteLength(len(d.Data), buf)
	buf.Write(d.Data)
	return buf.Bytes()
}

// Deserialize reads the Send-Data-Request header and then the declared
// payload bytes into Data.
func (d *ClientSendDataRequest) Deserialize(wire io.Reader) error {
	var err error

	if d.Initiator, err = encoding.PerReadInteger16(mcsChannelInitiator, wire); err != nil {
		return err
	}

	if d.ChannelId, err = encoding.PerReadInteger16(0, wire); err != nil {
		return err
	}

	var magic uint8
	if err = binary.Read(wire, binary.LittleEndian, &magic); err != nil {
		return err
	}

	length, err := encoding.BerReadLength(wire)
	if err != nil {
		return err
	}

	d.Data = make([]byte, length)
	_, err = io.ReadFull(wire, d.Data)
	return err
}

// ServerSendDataIndication is Send-Data-Indication (T.125 7.8), the server's
// carrier for higher-layer PDUs (Demand Active, licensing, ...).
type ServerSendDataIndication struct {
	Initiator uint16
	ChannelId uint16
	Data      []byte
}

func (d *ServerSendDataIndication) Deserialize(wire io.Reader) error {
	var err error

	if d.Initiator, err = encoding.PerReadInteger16(mcsChannelInitiator, wire); err != nil {
		return err
	}

	if d.ChannelId, err = encoding.PerReadInteger16(0, wire); err != nil {
		return err
	}

	if _, err = encoding.PerReadEnumerates(wire); err != nil {
		return err
	}

	length, err := encoding.BerReadLength(wire)
	if err != nil {
		return err
	}

	d.Data = make([]byte, length)
	_, err = io.ReadFull(wire, d.Data)
	return err
}

func (d *ServerSendDataIndication) Serialize() []byte {
	buf := new(bytes.Buffer)
	encoding.PerWriteInteger16(d.Initiator, mcsChannelInitiator, buf)
	encoding.PerWriteInteger16(d.ChannelId, 0, buf)
	buf.WriteByte(0x70) // dataPriority|segmentation, always complete+high in this layer
	encoding.BerWriteLength(len(d.Data), buf)
	buf.Write(d.Data)
	return buf.Bytes()
}

// DomainPDU is the tagged union over every DomainMCSPDU alternative this
// layer understands. Exactly one of the pointer fields is set.
type DomainPDU struct {
	Application uint8

	ClientErectDomainRequest *ClientErectDomainRequest
	ClientAttachUserRequest  *ClientAttachUserRequest
	ClientChannelJoinRequest *ClientChannelJoinRequest
	ClientSendDataRequest    *ClientSendDataRequest

	ServerAttachUserConfirm  *ServerAttachUserConfirm
	ServerChannelJoinConfirm *ServerChannelJoinConfirm
	ServerSendDataIndication *ServerSendDataIndication
}

// Serialize encodes whichever alternative is set. Both client-originated and
// server-originated alternatives are supported, since an acceptor sends the
// server side of the exchange.
func (pdu DomainPDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(pdu.Application)

	switch {
	case pdu.ClientErectDomainRequest != nil:
		buf.Write(pdu.ClientErectDomainRequest.Serialize())
	case pdu.ClientAttachUserRequest != nil:
		buf.Write(pdu.ClientAttachUserRequest.Serialize())
	case pdu.ClientChannelJoinRequest != nil:
		buf.Write(pdu.ClientChannelJoinRequest.Serialize())
	case pdu.ClientSendDataRequest != nil:
		buf.Write(pdu.ClientSendDataRequest.Serialize())
	case pdu.ServerAttachUserConfirm != nil:
		buf.Write(pdu.ServerAttachUserConfirm.Serialize())
	case pdu.ServerChannelJoinConfirm != nil:
		buf.Write(pdu.ServerChannelJoinConfirm.Serialize())
	case pdu.ServerSendDataIndication != nil:
		buf.Write(pdu.ServerSendDataIndication.Serialize())
	}

	return buf.Bytes()
}

// Deserialize reads the discriminant byte and dispatches to the matching
// alternative's decoder. Both client-originated and server-originated
// alternatives are supported, since an acceptor receives the client side of
// the exchange.
func (pdu *DomainPDU) Deserialize(wire io.Reader) error {
	application, err := encoding.PerReadChoice(wire)
	if err != nil {
		return err
	}

	pdu.Application = application

	switch application {
	case mcsDisconnectProviderUltimatum:
		return ErrDisconnectUltimatum
	case mcsErectDomainRequest:
		pdu.ClientErectDomainRequest = &ClientErectDomainRequest{}
		return pdu.ClientErectDomainRequest.Deserialize(wire)
	case mcsAttachUserRequest:
		pdu.ClientAttachUserRequest = &ClientAttachUserRequest{}
		return pdu.ClientAttachUserRequest.Deserialize(wire)
	case mcsAttachUserConfirm:
		pdu.ServerAttachUserConfirm = &ServerAttachUserConfirm{}
		return pdu.ServerAttachUserConfirm.Deserialize(wire)
	case mcsChannelJoinRequest:
		pdu.ClientChannelJoinRequest = &ClientChannelJoinRequest{}
		return pdu.ClientChannelJoinRequest.Deserialize(wire)
	case mcsChannelJoinConfirm:
		pdu.ServerChannelJoinConfirm = &ServerChannelJoinConfirm{}
		return pdu.ServerChannelJoinConfirm.Deserialize(wire)
	case mcsSendDataIndication:
		pdu.ServerSendDataIndication = &ServerSendDataIndication{}
		return pdu.ServerSendDataIndication.Deserialize(wire)
	case mcsSendDataRequest:
		pdu.ClientSendDataRequest = &ClientSendDataRequest{}
		return pdu.ClientSendDataRequest.Deserialize(wire)
	default:
		return errUnknownDiscriminant("mcs domain application")
	}
}

// NewErectDomainRequest builds a client Erect-Domain-Request DomainPDU.
func NewErectDomainRequest() DomainPDU {
	return DomainPDU{Application: mcsErectDomainRequest, ClientErectDomainRequest: &ClientErectDomainRequest{}}
}

// NewAttachUserRequest builds a client Attach-User-Request DomainPDU.
func NewAttachUserRequest() DomainPDU {
	return DomainPDU{Application: mcsAttachUserRequest, ClientAttachUserRequest: &ClientAttachUserRequest{}}
}

// NewChannelJoinRequest builds a client Channel-Join-Request DomainPDU.
func NewChannelJoinRequest(initiator, channelID uint16) DomainPDU {
	return DomainPDU{
		Application:              mcsChannelJoinRequest,
		ClientChannelJoinRequest: &ClientChannelJoinRequest{Initiator: initiator, ChannelId: channelID},
	}
}

// NewSendDataRequest builds a client Send-Data-Request DomainPDU wrapping
// an arbitrary higher-layer payload.
func NewSendDataRequest(initiator, channelID uint16, data []byte) DomainPDU {
	return DomainPDU{
		Application: mcsSendDataRequest,
		ClientSendDataRequest: &ClientSendDataRequest{
			Initiator: initiator,
			ChannelId: channelID,
			Data:      data,
		},
	}
}

// NewAttachUserConfirm builds a server Attach-User-Confirm DomainPDU.
func NewAttachUserConfirm(result uint8, initiator uint16) DomainPDU {
	return DomainPDU{
		Application:             mcsAttachUserConfirm,
		ServerAttachUserConfirm: &ServerAttachUserConfirm{Result: result, Initiator: initiator},
	}
}

// NewChannelJoinConfirm builds a server Channel-Join-Confirm DomainPDU.
// channelID is ignored when result signals failure.
func NewChannelJoinConfirm(result uint8, initiator, requested, channelID uint16) DomainPDU {
	return DomainPDU{
		Application: mcsChannelJoinConfirm,
		ServerChannelJoinConfirm: &ServerChannelJoinConfirm{
			Result:    result,
			Initiator: initiator,
			Requested: requested,
			ChannelId: channelID,
		},
	}
}

// NewSendDataIndication builds a server Send-Data-Indication DomainPDU
// wrapping an arbitrary higher-layer payload.
func NewSendDataIndication(initiator, channelID uint16, data []byte) DomainPDU {
	return DomainPDU{
		Application: mcsSendDataIndication,
		ServerSendDataIndication: &ServerSendDataIndication{
			Initiator: initiator,
			ChannelId: channelID,
			Data:      data,
		},
	}
}
