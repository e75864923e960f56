package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// VirtualChannelCapabilitySet represents the TS_VIRTUALCHANNEL_CAPABILITYSET
// structure (MS-RDPBCGR 2.2.7.1.10).
type VirtualChannelCapabilitySet struct {
	Flags       uint32
	VCChunkSize uint32
}

// NewVirtualChannelCapabilitySet creates a new VirtualChannelCapabilitySet.
func NewVirtualChannelCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:           CapabilitySetTypeVirtualChannel,
		VirtualChannelCapabilitySet: &VirtualChannelCapabilitySet{},
	}
}

func (s *VirtualChannelCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.Flags)
	_ = binary.Write(buf, binary.LittleEndian, s.VCChunkSize)

	return buf.Bytes()
}

func (s *VirtualChannelCapabilitySet) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.Flags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.VCChunkSize)
}
