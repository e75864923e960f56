package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// LicensingBinaryBlob represents a LICENSE_BINARY_BLOB structure (MS-RDPELE 2.2.2.4).
type LicensingBinaryBlob struct {
	BlobType uint16
	BlobLen  uint16
	BlobData []byte
}

// licenseBinaryBlobTypeError is BB_ERROR_BLOB (MS-RDPELE 2.2.1.12.1.2), the
// only blob type a server needs when it skips real licensing altogether.
const licenseBinaryBlobTypeError uint16 = 0x0001

func (b LicensingBinaryBlob) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, b.BlobType)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(b.BlobData)))
	buf.Write(b.BlobData)
	return buf.Bytes()
}

func (b *LicensingBinaryBlob) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &b.BlobType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &b.BlobLen); err != nil {
		return err
	}

	if b.BlobLen == 0 {
		return nil
	}

	b.BlobData = make([]byte, b.BlobLen)
	_, err := io.ReadFull(wire, b.BlobData)
	return err
}

// LicensingErrorMessage represents a LICENSE_ERROR_MESSAGE structure (MS-RDPELE 2.2.1.12).
type LicensingErrorMessage struct {
	ErrorCode       uint32
	StateTransition uint32
	ErrorInfo       LicensingBinaryBlob
}

func (m LicensingErrorMessage) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, m.ErrorCode)
	_ = binary.Write(buf, binary.LittleEndian, m.StateTransition)
	buf.Write(m.ErrorInfo.Serialize())
	return buf.Bytes()
}

func (m *LicensingErrorMessage) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &m.ErrorCode); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &m.StateTransition); err != nil {
		return err
	}

	return m.ErrorInfo.Deserialize(wire)
}

// LicensingPreamble represents a LICENSE_PREAMBLE structure (MS-RDPELE 2.2.2.1).
type LicensingPreamble struct {
	MsgType uint8
	Flags   uint8
	MsgSize uint16
}

func (p LicensingPreamble) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(p.MsgType)
	buf.WriteByte(p.Flags)
	_ = binary.Write(buf, binary.LittleEndian, p.MsgSize)
	return buf.Bytes()
}

func (p *LicensingPreamble) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &p.MsgType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &p.Flags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &p.MsgSize)
}

// secLicensePkt is the SEC_LICENSE_PKT security header flag (MS-RDPBCGR 2.2.8.1.1.2.1).
const secLicensePkt = 0x0080

// Licensing preamble message types (MS-RDPELE 2.2.2.1).
const (
	licensePreambleErrorAlert uint8 = 0xFF
)

// STATUS_VALID_CLIENT error code and ST_NO_TRANSITION state, the pairing a
// client treats as "licensing is not required, proceed" (MS-RDPELE 2.2.1.12).
const (
	errorCodeValidClient          uint32 = 0x00000007
	stateTransitionNoTransition   uint32 = 0x00000002
)

// ServerLicenseError represents a Server License Error PDU (MS-RDPBCGR 2.2.1.12).
type ServerLicenseError struct {
	Preamble           LicensingPreamble
	ValidClientMessage LicensingErrorMessage
}

// Deserialize parses the server license response. Some servers tag the
// licensing PDU with SEC_LICENSE_PKT even once TLS/CredSSP has taken over
// encryption, so the security header is always unwrapped first regardless
// of useEnhancedSecurity.
func (pdu *ServerLicenseError) Deserialize(wire io.Reader, useEnhancedSecurity bool) error {
	securityFlag, err := UnwrapSecurityHeader(wire)
	if err != nil {
		return err
	}

	if securityFlag&secLicensePkt == 0 {
		return errors.New("pdu: bad license header")
	}

	if err = pdu.Preamble.Deserialize(wire); err != nil {
		return err
	}

	return pdu.ValidClientMessage.Deserialize(wire)
}

// NewServerLicenseValidClient builds the Server License Error PDU a server
// acceptor sends to tell the client no further licensing exchange is
// needed (STATUS_VALID_CLIENT/ST_NO_TRANSITION), the simplest licensing
// outcome and the only one this layer implements; real license issuance
// (MS-RDPELE's NEW_LICENSE/PLATFORM_CHALLENGE round trip) is out of scope.
func NewServerLicenseValidClient() ServerLicenseError {
	return ServerLicenseError{
		Preamble: LicensingPreamble{MsgType: licensePreambleErrorAlert},
		ValidClientMessage: LicensingErrorMessage{
			ErrorCode:       errorCodeValidClient,
			StateTransition: stateTransitionNoTransition,
		},
	}
}

// Serialize encodes the Server License Error PDU, prefixed with the RDP
// Basic Security Header flagged SEC_LICENSE_PKT even when TLS/CredSSP is in
// effect, matching what Deserialize already tolerates on the client side.
func (pdu ServerLicenseError) Serialize() []byte {
	body := pdu.ValidClientMessage.Serialize()
	pdu.Preamble.MsgSize = uint16(4 + len(body))

	buf := new(bytes.Buffer)
	buf.Write(pdu.Preamble.Serialize())
	buf.Write(body)

	return WrapSecurityHeader(secLicensePkt, buf.Bytes())
}
