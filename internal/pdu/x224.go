package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// X.224 TPDU codes (ITU-T X.224 13.x), upper nibble identifies the TPDU.
const (
	x224CodeCR uint8 = 0xE0 // Connection Request
	x224CodeCC uint8 = 0xD0 // Connection Confirm (upper nibble 0xD)
	x224CodeDT uint8 = 0xF0 // Data
)

const x224NREOTEOT uint8 = 0x80 // NR/EOT: single, complete data unit

var (
	// ErrSmallConnectionConfirmLength is returned when a CC (or CR) TPDU's
	// length indicator is below the 6-byte fixed header; longer values are
	// accepted.
	ErrSmallConnectionConfirmLength = errors.New("x224: connection confirm length indicator out of range")

	// ErrWrongConnectionConfirmCode is returned when the CC TPDU code's
	// upper nibble is not 0xD, or a CR TPDU code's upper nibble is not 0xE.
	ErrWrongConnectionConfirmCode = errors.New("x224: connection confirm code is not CC (0xDx)")

	// ErrWrongDataLength is returned when a DT TPDU's length indicator is
	// not the fixed 2 bytes (DTROA + NREOT) this layer expects.
	ErrWrongDataLength = errors.New("x224: data TPDU length indicator must be 2")
)

// ConnectionRequest is the X.224 Connection Request TPDU (CR) used to carry
// the RDP cookie/routing token and the RDP Negotiation Request.
type ConnectionRequest struct {
	CRCDT        uint8 // always x224CodeCR
	DSTREF       uint16
	SRCREF       uint16
	ClassOption  uint8
	VariablePart []byte
	UserData     []byte
}

// NewConnectionRequest builds a client CR TPDU wrapping userData (the RDP
// cookie/routing token plus RDP_NEG_REQ payload).
func NewConnectionRequest(userData []byte) ConnectionRequest {
	return ConnectionRequest{CRCDT: x224CodeCR, UserData: userData}
}

// Serialize encodes the connection request, computing LI (the length
// indicator, the byte count of everything following it) automatically.
func (r ConnectionRequest) Serialize() []byte {
	buf := new(bytes.Buffer)

	fixed := []byte{r.CRCDT, byte(r.DSTREF >> 8), byte(r.DSTREF), byte(r.SRCREF >> 8), byte(r.SRCREF), r.ClassOption}
	fixed = append(fixed, r.VariablePart...)

	li := len(fixed) + len(r.UserData)
	if li > 0xFF {
		li = 0xFF
	}

	buf.WriteByte(byte(li))
	buf.Write(fixed)
	buf.Write(r.UserData)

	return buf.Bytes()
}

// Deserialize decodes a CR TPDU, used by a server acceptor reading what a
// client sent. The cookie/routing-token line and RDP_NEG_REQ payload are
// left on UserData for the negotiation-layer decoder.
func (r *ConnectionRequest) Deserialize(wire io.Reader) error {
	var li uint8
	if err := binary.Read(wire, binary.BigEndian, &li); err != nil {
		return err
	}

	if li < 6 {
		return ErrSmallConnectionConfirmLength
	}

	if err := binary.Read(wire, binary.BigEndian, &r.CRCDT); err != nil {
		return err
	}

	if r.CRCDT&0xF0 != x224CodeCR {
		return ErrWrongConnectionConfirmCode
	}

	if err := binary.Read(wire, binary.BigEndian, &r.DSTREF); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.BigEndian, &r.SRCREF); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.BigEndian, &r.ClassOption); err != nil {
		return err
	}

	r.UserData = make([]byte, int(li)-6)
	_, err := io.ReadFull(wire, r.UserData)
	return err
}

// ConnectionConfirm is the X.224 Connection Confirm TPDU (CC). Deserialize
// consumes exactly the fixed CC header; any bytes past the 6-byte fixed
// part declared by LI (the RDP Negotiation Response/Failure payload) are
// left unread on wire for the negotiation-layer decoder to consume next.
type ConnectionConfirm struct {
	LI          uint8
	CCCDT       uint8
	DSTREF      uint16
	SRCREF      uint16
	ClassOption uint8
	UserData    []byte
}

// NewConnectionConfirm builds a server CC TPDU wrapping userData (the RDP
// negotiation response/failure payload), used by a server acceptor.
func NewConnectionConfirm(userData []byte) ConnectionConfirm {
	return ConnectionConfirm{CCCDT: x224CodeCC, UserData: userData}
}

// Serialize encodes the connection confirm, computing LI automatically.
func (c ConnectionConfirm) Serialize() []byte {
	buf := new(bytes.Buffer)

	fixed := []byte{c.CCCDT, byte(c.DSTREF >> 8), byte(c.DSTREF), byte(c.SRCREF >> 8), byte(c.SRCREF), c.ClassOption}

	li := len(fixed) + len(c.UserData)
	if li > 0xFF {
		li = 0xFF
	}

	buf.WriteByte(byte(li))
	buf.Write(fixed)
	buf.Write(c.UserData)

	return buf.Bytes()
}

// Deserialize decodes a CC TPDU header from wire.
func (c *ConnectionConfirm) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &c.LI); err != nil {
		return err
	}

	if c.LI < 6 {
		return ErrSmallConnectionConfirmLength
	}

	if err := binary.Read(wire, binary.BigEndian, &c.CCCDT); err != nil {
		return err
	}

	if c.CCCDT&0xF0 != x224CodeCC {
		return ErrWrongConnectionConfirmCode
	}

	if err := binary.Read(wire, binary.BigEndian, &c.DSTREF); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.BigEndian, &c.SRCREF); err != nil {
		return err
	}

	return binary.Read(wire, binary.BigEndian, &c.ClassOption)
}

// X224Data is the X.224 Data TPDU (DT) that carries every post-negotiation PDU
// (MCS, Client Info, Demand/Confirm Active, and so on).
type X224Data struct {
	LI       uint8
	DTROA    uint8 // always x224CodeDT, low bits are ROA (unused, always 0)
	NREOT    uint8 // NR (7 bits, unused here) | EOT (bit 8)
	UserData []byte
}

// NewX224Data builds a single-TPDU Data PDU wrapping payload.
func NewX224Data(payload []byte) X224Data {
	return X224Data{LI: 2, DTROA: x224CodeDT, NREOT: x224NREOTEOT, UserData: payload}
}

// Serialize encodes the data TPDU as given; LI is NOT recomputed, matching
// the teacher's behavior of trusting a caller-supplied length indicator.
func (d X224Data) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(d.LI)
	buf.WriteByte(d.DTROA)
	buf.WriteByte(d.NREOT)
	buf.Write(d.UserData)
	return buf.Bytes()
}

// Deserialize decodes a data TPDU header and leaves the remaining bytes on
// wire available to the caller (UserData is not populated here; the caller
// reads exactly the frame length already known from tpkt/X.224 framing).
func (d *X224Data) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &d.LI); err != nil {
		return err
	}

	if d.LI != 2 {
		return ErrWrongDataLength
	}

	if err := binary.Read(wire, binary.BigEndian, &d.DTROA); err != nil {
		return err
	}

	return binary.Read(wire, binary.BigEndian, &d.NREOT)
}

// WrapTPKTX224Data frames payload as a single X.224 Data TPDU inside a TPKT
// header, the envelope every post-negotiation PDU (MCS, Client Info,
// Demand/Confirm Active, licensing) travels in, in both directions.
func WrapTPKTX224Data(payload []byte) ([]byte, error) {
	return EncodeTPKT(NewX224Data(payload).Serialize())
}

// UnwrapTPKTX224Data strips a complete TPKT+X.224-Data frame (as detected by
// DetectTPKT) and returns the inner payload.
func UnwrapTPKTX224Data(frame []byte) ([]byte, error) {
	inner, err := DecodeTPKT(frame)
	if err != nil {
		return nil, err
	}

	wire := bytes.NewReader(inner)
	var data X224Data
	if err := data.Deserialize(wire); err != nil {
		return nil, err
	}

	rest := make([]byte, wire.Len())
	if _, err := io.ReadFull(wire, rest); err != nil {
		return nil, err
	}

	return rest, nil
}
