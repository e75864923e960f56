package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// MessageType represents the type of synchronization message.
type MessageType uint16

const MessageTypeSync MessageType = 1

// ServerChannelID is the default MCS channel ID for the server (IO Channel).
const ServerChannelID uint16 = 1002

// SynchronizePDUData represents the TS_SYNCHRONIZE_PDU structure (MS-RDPBCGR 2.2.1.14).
type SynchronizePDUData struct {
	MessageType MessageType
	TargetUser  uint16
}

// NewSynchronize creates a new Client Synchronize PDU (MS-RDPBCGR 2.2.1.14),
// always targeting the server's static channel.
func NewSynchronize(shareID uint32, userId uint16) *Data {
	return &Data{
		ShareDataHeader:    *newShareDataHeader(shareID, userId, TypeData, Type2Synchronize),
		SynchronizePDUData: &SynchronizePDUData{MessageType: MessageTypeSync, TargetUser: ServerChannelID},
	}
}

// NewServerSynchronize creates the server's Synchronize PDU, the mirror of
// NewSynchronize sent by a server acceptor once it has processed the
// client's own Synchronize/Control/FontList triad.
func NewServerSynchronize(shareID uint32, targetUser uint16) *Data {
	return &Data{
		ShareDataHeader:    *newShareDataHeader(shareID, ServerChannelID, TypeData, Type2Synchronize),
		SynchronizePDUData: &SynchronizePDUData{MessageType: MessageTypeSync, TargetUser: targetUser},
	}
}

func (pdu *SynchronizePDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(pdu.MessageType))
	_ = binary.Write(buf, binary.LittleEndian, pdu.TargetUser)

	return buf.Bytes()
}

func (pdu *SynchronizePDUData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &pdu.MessageType); err != nil {
		return err
	}

	return binary.Read(wire, binary.LittleEndian, &pdu.TargetUser)
}

// ControlAction represents the action field in a Control PDU (MS-RDPBCGR 2.2.1.15).
type ControlAction uint16

const (
	ControlActionRequestControl ControlAction = 0x0001
	ControlActionGrantedControl ControlAction = 0x0002
	ControlActionDetach         ControlAction = 0x0003
	ControlActionCooperate      ControlAction = 0x0004
)

// ControlPDUData represents the TS_CONTROL_PDU structure (MS-RDPBCGR 2.2.1.15).
type ControlPDUData struct {
	Action    ControlAction
	GrantID   uint16
	ControlID uint32
}

// NewControl creates a new Client Control PDU (MS-RDPBCGR 2.2.1.15).
func NewControl(shareID uint32, userId uint16, action ControlAction) *Data {
	return &Data{
		ShareDataHeader: *newShareDataHeader(shareID, userId, TypeData, Type2Control),
		ControlPDUData:  &ControlPDUData{Action: action},
	}
}

// NewServerControl creates the server's Control PDU, the mirror of
// NewControl sent by a server acceptor. grantID/controlID are non-zero only
// for ControlActionGrantedControl, where grantID is the client's user
// channel id and controlID identifies the interactive session.
func NewServerControl(shareID uint32, action ControlAction, grantID uint16, controlID uint32) *Data {
	return &Data{
		ShareDataHeader: *newShareDataHeader(shareID, ServerChannelID, TypeData, Type2Control),
		ControlPDUData:  &ControlPDUData{Action: action, GrantID: grantID, ControlID: controlID},
	}
}

func (pdu *ControlPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(pdu.Action))
	_ = binary.Write(buf, binary.LittleEndian, pdu.GrantID)
	_ = binary.Write(buf, binary.LittleEndian, pdu.ControlID)

	return buf.Bytes()
}

func (pdu *ControlPDUData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &pdu.Action); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pdu.GrantID); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &pdu.ControlID)
}

// FontListPDUData represents the TS_FONT_LIST_PDU structure (MS-RDPBCGR 2.2.1.18).
type FontListPDUData struct{}

// NewFontList creates a new Client Font List PDU (MS-RDPBCGR 2.2.1.18).
func NewFontList(shareID uint32, userId uint16) *Data {
	return &Data{
		ShareDataHeader: *newShareDataHeader(shareID, userId, TypeData, Type2Fontlist),
		FontListPDUData: &FontListPDUData{},
	}
}

func (pdu *FontListPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // numberFonts
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // totalNumFonts
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0003)) // listFlags = FONTLIST_FIRST | FONTLIST_LAST
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0032)) // entrySize

	return buf.Bytes()
}

// Deserialize discards the client's font list contents; a server acceptor
// only needs to know the PDU arrived, not which fonts the client has.
func (pdu *FontListPDUData) Deserialize(wire io.Reader) error {
	var numberFonts, totalNumFonts, listFlags, entrySize uint16

	if err := binary.Read(wire, binary.LittleEndian, &numberFonts); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &totalNumFonts); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &listFlags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &entrySize)
}

// FontMapPDUData represents the TS_FONT_MAP_PDU structure (MS-RDPBCGR 2.2.1.22).
type FontMapPDUData struct{}

// NewFontMap creates the server's Font Map PDU, the reply to the client's
// Font List PDU that completes Finalization.
func NewFontMap(shareID uint32) *Data {
	return &Data{
		ShareDataHeader: *newShareDataHeader(shareID, ServerChannelID, TypeData, Type2Fontmap),
		FontMapPDUData:  &FontMapPDUData{},
	}
}

// Serialize encodes an empty font map, the conventional reply every server
// sends regardless of what fonts the client listed.
func (pdu *FontMapPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // numberEntries
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // totalNumEntries
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0003)) // mapFlags = FONTMAP_FIRST | FONTMAP_LAST
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0004)) // entrySize

	return buf.Bytes()
}

func (pdu *FontMapPDUData) Deserialize(wire io.Reader) error {
	var numberEntries, totalNumEntries, mapFlags, entrySize uint16

	if err := binary.Read(wire, binary.LittleEndian, &numberEntries); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &totalNumEntries); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &mapFlags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &entrySize)
}
