package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// GeneralCapabilitySet represents the General Capability Set (MS-RDPBCGR 2.2.7.1.1).
type GeneralCapabilitySet struct {
	OSMajorType           uint16
	OSMinorType           uint16
	ExtraFlags            uint16
	RefreshRectSupport    uint8
	SuppressOutputSupport uint8
}

// NewGeneralCapabilitySet creates a General Capability Set with default client values.
func NewGeneralCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeGeneral,
		GeneralCapabilitySet: &GeneralCapabilitySet{
			OSMajorType:           0x000A,
			OSMinorType:           0x0000,
			ExtraFlags:            0x0001 | 0x0004 | 0x0400 | 0x0080 | 0x0100,
			RefreshRectSupport:    1,
			SuppressOutputSupport: 1,
		},
	}
}

func (s *GeneralCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.OSMajorType)
	_ = binary.Write(buf, binary.LittleEndian, s.OSMinorType)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0200)) // protocolVersion
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // padding
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // compressionTypes
	_ = binary.Write(buf, binary.LittleEndian, s.ExtraFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // updateCapabilityFlag
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // remoteUnshareFlag
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0000)) // compressionLevel
	_ = binary.Write(buf, binary.LittleEndian, s.RefreshRectSupport)
	_ = binary.Write(buf, binary.LittleEndian, s.SuppressOutputSupport)

	return buf.Bytes()
}

func (s *GeneralCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		protocolVersion, padding, compressionTypes uint16
		updateCapabilityFlag, remoteUnshareFlag    uint16
		compressionLevel                           uint16
		err                                         error
	)

	if err = binary.Read(wire, binary.LittleEndian, &s.OSMajorType); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.OSMinorType); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &protocolVersion); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &compressionTypes); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.ExtraFlags); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &updateCapabilityFlag); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &remoteUnshareFlag); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &compressionLevel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.RefreshRectSupport); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.SuppressOutputSupport)
}
