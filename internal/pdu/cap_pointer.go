package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// PointerCapabilitySet represents the Pointer Capability Set (MS-RDPBCGR 2.2.7.1.5).
type PointerCapabilitySet struct {
	ColorPointerFlag      uint16
	ColorPointerCacheSize uint16
	PointerCacheSize      uint16
	lengthCapability      uint16
}

// NewPointerCapabilitySet creates a Pointer Capability Set with default client values.
func NewPointerCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypePointer,
		PointerCapabilitySet: &PointerCapabilitySet{
			ColorPointerFlag: 1,
			PointerCacheSize: 25,
		},
	}
}

func (s *PointerCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.ColorPointerFlag)
	_ = binary.Write(buf, binary.LittleEndian, s.ColorPointerCacheSize)
	_ = binary.Write(buf, binary.LittleEndian, s.PointerCacheSize)

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format. Some servers
// advertise a 4-byte-bodied pointer capability set with no pointerCacheSize
// field; lengthCapability (the TS_CAPS_SET length including its 4-byte
// header, set by CapabilitySet.Deserialize) distinguishes the two shapes.
func (s *PointerCapabilitySet) Deserialize(wire io.Reader) error {
	var err error

	if err = binary.Read(wire, binary.LittleEndian, &s.ColorPointerFlag); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.ColorPointerCacheSize); err != nil {
		return err
	}

	if s.lengthCapability == 8 {
		return nil
	}

	return binary.Read(wire, binary.LittleEndian, &s.PointerCacheSize)
}
