package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// SoundCapabilitySet represents the Sound Capability Set (MS-RDPBCGR 2.2.7.1.11).
type SoundCapabilitySet struct {
	SoundFlags uint16
}

// NewSoundCapabilitySet creates a Sound Capability Set with default values.
func NewSoundCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:  CapabilitySetTypeSound,
		SoundCapabilitySet: &SoundCapabilitySet{},
	}
}

func (s *SoundCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.SoundFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))

	return buf.Bytes()
}

func (s *SoundCapabilitySet) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.SoundFlags); err != nil {
		return err
	}

	var padding uint16
	return binary.Read(wire, binary.LittleEndian, &padding)
}
