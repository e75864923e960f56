package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// InputCapabilitySet represents the Input Capability Set (MS-RDPBCGR 2.2.7.1.6).
type InputCapabilitySet struct {
	InputFlags          uint16
	KeyboardLayout      uint32
	KeyboardType        uint32
	KeyboardSubType     uint32
	KeyboardFunctionKey uint32
	ImeFileName         [64]byte
}

// NewInputCapabilitySet creates an Input Capability Set with default client values.
func NewInputCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeInput,
		InputCapabilitySet: &InputCapabilitySet{
			InputFlags:          0x0001 | 0x0004 | 0x0010 | 0x0020,
			KeyboardLayout:      0x00000409,
			KeyboardType:        keyboardTypeIBM101or102Keys,
			KeyboardFunctionKey: 12,
		},
	}
}

func (s *InputCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.InputFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // padding
	_ = binary.Write(buf, binary.LittleEndian, s.KeyboardLayout)
	_ = binary.Write(buf, binary.LittleEndian, s.KeyboardType)
	_ = binary.Write(buf, binary.LittleEndian, s.KeyboardSubType)
	_ = binary.Write(buf, binary.LittleEndian, s.KeyboardFunctionKey)
	_ = binary.Write(buf, binary.LittleEndian, s.ImeFileName)

	return buf.Bytes()
}

func (s *InputCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		padding uint16
		err     error
	)

	if err = binary.Read(wire, binary.LittleEndian, &s.InputFlags); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.KeyboardLayout); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.KeyboardType); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.KeyboardSubType); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.KeyboardFunctionKey); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.ImeFileName)
}
