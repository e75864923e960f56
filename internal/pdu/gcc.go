package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/rcarmo/rdp-handshake/internal/pdu/encoding"
)

// GCC (T.124) Conference-Create-Request/Response wrap the MCS
// Connect-Initial/Response userData with a PER-encoded conference name
// and an H.221 key identifying the payload as an RDP client/server data
// block (MS-RDPBCGR 2.2.1.3, 2.2.1.4).
var (
	t124_02_98_oid = [6]byte{0, 0, 20, 124, 0, 1}
	h221CSKey      = "Duca"
	h221SCKey      = "McDn"
)

var errGCCBadKey = errors.New("gcc: h221 key mismatch")

// ConferenceCreateRequest wraps the client GCC user data blocks.
type ConferenceCreateRequest struct {
	UserData []byte
}

func (r *ConferenceCreateRequest) Serialize() []byte {
	buf := new(bytes.Buffer)

	encoding.PerWriteChoice(0, buf)
	encoding.PerWriteObjectIdentifier(t124_02_98_oid, buf)
	encoding.PerWriteLength(uint16(14+len(r.UserData)), buf)

	encoding.PerWriteChoice(0, buf)
	encoding.PerWriteSelection(0x08, buf)

	encoding.PerWriteNumericString("1", 1, buf)
	encoding.PerWritePadding(1, buf)
	encoding.PerWriteNumberOfSet(1, buf)
	encoding.PerWriteChoice(0xc0, buf)
	encoding.PerWriteOctetStream(h221CSKey, 4, buf)
	encoding.PerWriteOctetStream(string(r.UserData), 0, buf)

	return buf.Bytes()
}

// Deserialize unwraps a Conference-Create-Request, returning the raw
// client user data blocks on UserData. Used by a server acceptor.
func (r *ConferenceCreateRequest) Deserialize(wire io.Reader) error {
	if _, err := encoding.PerReadChoice(wire); err != nil {
		return err
	}

	if ok, err := encoding.PerReadObjectIdentifier(t124_02_98_oid, wire); err != nil {
		return err
	} else if !ok {
		return errGCCBadKey
	}

	if _, err := encoding.PerReadLength(wire); err != nil {
		return err
	}

	if _, err := encoding.PerReadChoice(wire); err != nil {
		return err
	}

	var selection uint8
	if err := binary.Read(wire, binary.BigEndian, &selection); err != nil {
		return err
	}

	// numericString "1" (conference name), 1-byte padding, numberOfSet,
	// choice, then the h221 key and the octet stream we actually want.
	if _, err := encoding.PerReadLength(wire); err != nil {
		return err
	}
	var nameByte uint8
	if err := binary.Read(wire, binary.BigEndian, &nameByte); err != nil {
		return err
	}

	var padding uint8
	if err := binary.Read(wire, binary.BigEndian, &padding); err != nil {
		return err
	}

	if _, err := encoding.PerReadNumberOfSet(wire); err != nil {
		return err
	}

	if _, err := encoding.PerReadChoice(wire); err != nil {
		return err
	}

	key := make([]byte, 4)
	keyLen, err := encoding.PerReadLength(wire)
	if err != nil {
		return err
	}
	if keyLen != 0 {
		return errGCCBadKey
	}
	if _, err = io.ReadFull(wire, key); err != nil {
		return err
	}
	if string(key) != h221CSKey {
		return errGCCBadKey
	}

	dataLen, err := encoding.PerReadLength(wire)
	if err != nil {
		return err
	}

	r.UserData = make([]byte, dataLen)
	_, err = io.ReadFull(wire, r.UserData)
	return err
}

// ConferenceCreateResponse wraps the server GCC user data blocks, encoded
// by a server acceptor and decoded by a client connector.
type ConferenceCreateResponse struct {
	UserData []byte
}

func (r *ConferenceCreateResponse) Serialize() []byte {
	buf := new(bytes.Buffer)

	encoding.PerWriteChoice(0x08, buf) // result: rt-successful
	encoding.PerWriteInteger(0, buf)   // calledConnectId

	encoding.PerWriteNumberOfSet(1, buf)
	encoding.PerWriteChoice(0xc0, buf)
	encoding.PerWriteOctetStream(h221SCKey, 4, buf)
	encoding.PerWriteOctetStream(string(r.UserData), 0, buf)

	return buf.Bytes()
}

func (r *ConferenceCreateResponse) Deserialize(wire io.Reader) error {
	if _, err := encoding.PerReadChoice(wire); err != nil {
		return err
	}

	if _, err := encoding.PerReadInteger(wire); err != nil {
		return err
	}

	if _, err := encoding.PerReadNumberOfSet(wire); err != nil {
		return err
	}

	if _, err := encoding.PerReadChoice(wire); err != nil {
		return err
	}

	key := make([]byte, 4)
	keyLen, err := encoding.PerReadLength(wire)
	if err != nil {
		return err
	}
	if keyLen != 0 {
		return errGCCBadKey
	}
	if _, err = io.ReadFull(wire, key); err != nil {
		return err
	}
	if string(key) != h221SCKey {
		return errGCCBadKey
	}

	dataLen, err := encoding.PerReadLength(wire)
	if err != nil {
		return err
	}

	r.UserData = make([]byte, dataLen)
	_, err = io.ReadFull(wire, r.UserData)
	return err
}
