package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// BrushSupportLevel indicates the level of brush support as defined in MS-RDPBCGR section 2.2.7.1.7.
type BrushSupportLevel uint32

const (
	BrushSupportLevelDefault  BrushSupportLevel = 0
	BrushSupportLevelColor8x8 BrushSupportLevel = 1
	BrushSupportLevelFull     BrushSupportLevel = 2
)

// BrushCapabilitySet advertises brush capabilities as defined in MS-RDPBCGR section 2.2.7.1.7.
type BrushCapabilitySet struct {
	BrushSupportLevel BrushSupportLevel
}

// NewBrushCapabilitySet creates a BrushCapabilitySet with default values.
func NewBrushCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:  CapabilitySetTypeBrush,
		BrushCapabilitySet: &BrushCapabilitySet{},
	}
}

func (s *BrushCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(s.BrushSupportLevel))
	return buf.Bytes()
}

func (s *BrushCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.BrushSupportLevel)
}

// CacheDefinition describes a glyph cache entry as defined in MS-RDPBCGR section 2.2.7.1.8.
type CacheDefinition struct {
	CacheEntries         uint16
	CacheMaximumCellSize uint16
}

func (d *CacheDefinition) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, d.CacheEntries)
	_ = binary.Write(buf, binary.LittleEndian, d.CacheMaximumCellSize)
	return buf.Bytes()
}

func (d *CacheDefinition) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.CacheEntries); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &d.CacheMaximumCellSize)
}
