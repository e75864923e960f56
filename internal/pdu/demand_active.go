package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// originatorIDServer is the fixed originatorId carried by every Confirm
// Active PDU (MS-RDPBCGR 2.2.1.13.2.1): the server's static MCS channel ID.
const originatorIDServer uint16 = 1002

// DemandActive represents the TS_DEMAND_ACTIVE_PDU structure
// (MS-RDPBCGR 2.2.1.13.1.1), sent by the server to advertise its drawing
// capabilities and request the client's in a Confirm Active PDU.
type DemandActive struct {
	ShareControlHeader ShareControlHeader
	ShareID            uint32
	SourceDescriptor   []byte
	CapabilitySets     []CapabilitySet
	SessionID          uint32
}

func (pdu *DemandActive) Deserialize(wire io.Reader) error {
	if err := pdu.ShareControlHeader.Deserialize(wire); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &pdu.ShareID); err != nil {
		return err
	}

	var lengthSourceDescriptor, lengthCombinedCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	pdu.SourceDescriptor = make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, pdu.SourceDescriptor); err != nil {
		return err
	}

	var numberCapabilities, pad2Octets uint16
	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad2Octets); err != nil {
		return err
	}

	pdu.CapabilitySets = make([]CapabilitySet, 0, numberCapabilities)
	for i := uint16(0); i < numberCapabilities; i++ {
		var set CapabilitySet
		if err := set.Deserialize(wire); err != nil {
			return err
		}
		pdu.CapabilitySets = append(pdu.CapabilitySets, set)
	}

	return binary.Read(wire, binary.LittleEndian, &pdu.SessionID)
}

// NewServerDemandActive builds the server's Demand Active PDU advertising
// capabilitySets, the mirror of NewClientConfirmActive used by a server
// acceptor.
func NewServerDemandActive(shareID uint32, capabilitySets []CapabilitySet) *DemandActive {
	return &DemandActive{
		ShareControlHeader: *newShareControlHeader(TypeDemandActive, originatorIDServer),
		ShareID:            shareID,
		SourceDescriptor:   []byte("RDP"),
		CapabilitySets:     capabilitySets,
		SessionID:          1,
	}
}

// Serialize encodes the TS_DEMAND_ACTIVE_PDU structure, used by a server
// acceptor.
func (pdu *DemandActive) Serialize() []byte {
	capBuf := new(bytes.Buffer)
	for _, set := range pdu.CapabilitySets {
		capBuf.Write(set.Serialize())
	}

	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, pdu.ShareID)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(pdu.SourceDescriptor)))
	_ = binary.Write(body, binary.LittleEndian, uint16(4+capBuf.Len()))
	body.Write(pdu.SourceDescriptor)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(pdu.CapabilitySets)))
	_ = binary.Write(body, binary.LittleEndian, uint16(0)) // pad2Octets
	body.Write(capBuf.Bytes())
	_ = binary.Write(body, binary.LittleEndian, pdu.SessionID)

	pdu.ShareControlHeader.TotalLength = uint16(6 + body.Len())

	buf := new(bytes.Buffer)
	buf.Write(pdu.ShareControlHeader.Serialize())
	buf.Write(body.Bytes())

	return buf.Bytes()
}

// ConfirmActive represents the TS_CONFIRM_ACTIVE_PDU structure
// (MS-RDPBCGR 2.2.1.13.2.1), the client's reply to a Demand Active PDU
// carrying the capability sets it supports.
type ConfirmActive struct {
	ShareControlHeader ShareControlHeader
	ShareID            uint32
	OriginatorID       uint16
	SourceDescriptor   []byte
	CapabilitySets     []CapabilitySet
}

// ClientConfirmActive is the client-originated Confirm Active PDU.
type ClientConfirmActive = ConfirmActive

// NewClientConfirmActive builds the client's Confirm Active PDU with the
// standard set of capabilities this layer supports. remoteApp additionally
// advertises the Rail and Window List capability sets.
func NewClientConfirmActive(shareID uint32, userId uint16, width uint16, height uint16, remoteApp bool) ClientConfirmActive {
	sets := []CapabilitySet{
		NewGeneralCapabilitySet(),
		NewBitmapCapabilitySet(width, height),
		NewOrderCapabilitySet(),
		NewBitmapCacheCapabilitySetRev2(),
		{CapabilitySetType: CapabilitySetTypeColorCache, ColorCacheCapabilitySet: &ColorCacheCapabilitySet{ColorTableCacheSize: 6}},
		{CapabilitySetType: CapabilitySetTypeControl, ControlCapabilitySet: &ControlCapabilitySet{}},
		{CapabilitySetType: CapabilitySetTypeActivation, WindowActivationCapabilitySet: &WindowActivationCapabilitySet{}},
		NewPointerCapabilitySet(),
		{CapabilitySetType: CapabilitySetTypeShare, ShareCapabilitySet: &ShareCapabilitySet{}},
		NewInputCapabilitySet(),
		NewSoundCapabilitySet(),
		NewBrushCapabilitySet(),
		NewGlyphCacheCapabilitySet(),
		NewOffscreenBitmapCacheCapabilitySet(),
		NewVirtualChannelCapabilitySet(),
		NewMultifragmentUpdateCapabilitySet(),
		NewSurfaceCommandsCapabilitySet(),
		NewBitmapCodecsCapabilitySet(),
		NewFrameAcknowledgeCapabilitySet(),
	}

	if remoteApp {
		sets = append(sets, NewRailCapabilitySet(), NewWindowListCapabilitySet())
	}

	return ConfirmActive{
		ShareControlHeader: *newShareControlHeader(TypeConfirmActive, userId),
		ShareID:            shareID,
		OriginatorID:       originatorIDServer,
		SourceDescriptor:   []byte("rdp-handshake"),
		CapabilitySets:     sets,
	}
}

func (pdu *ConfirmActive) Serialize() []byte {
	capBuf := new(bytes.Buffer)
	for _, set := range pdu.CapabilitySets {
		capBuf.Write(set.Serialize())
	}

	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, pdu.ShareID)
	_ = binary.Write(body, binary.LittleEndian, pdu.OriginatorID)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(pdu.SourceDescriptor)))
	_ = binary.Write(body, binary.LittleEndian, uint16(4+capBuf.Len()))
	body.Write(pdu.SourceDescriptor)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(pdu.CapabilitySets)))
	_ = binary.Write(body, binary.LittleEndian, uint16(0)) // pad2Octets
	body.Write(capBuf.Bytes())

	pdu.ShareControlHeader.TotalLength = uint16(6 + body.Len())

	buf := new(bytes.Buffer)
	buf.Write(pdu.ShareControlHeader.Serialize())
	buf.Write(body.Bytes())

	return buf.Bytes()
}

func (pdu *ConfirmActive) Deserialize(wire io.Reader) error {
	if err := pdu.ShareControlHeader.Deserialize(wire); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &pdu.ShareID); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pdu.OriginatorID); err != nil {
		return err
	}

	var lengthSourceDescriptor, lengthCombinedCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	pdu.SourceDescriptor = make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, pdu.SourceDescriptor); err != nil {
		return err
	}

	var numberCapabilities, pad2Octets uint16
	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad2Octets); err != nil {
		return err
	}

	pdu.CapabilitySets = make([]CapabilitySet, 0, numberCapabilities)
	for i := uint16(0); i < numberCapabilities; i++ {
		var set CapabilitySet
		if err := set.Deserialize(wire); err != nil {
			return err
		}
		pdu.CapabilitySets = append(pdu.CapabilitySets, set)
	}

	return nil
}
