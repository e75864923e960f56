package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// GlyphSupportLevel specifies the level of glyph caching support (MS-RDPBCGR 2.2.7.1.8).
type GlyphSupportLevel uint16

const (
	GlyphSupportLevelNone    GlyphSupportLevel = 0
	GlyphSupportLevelPartial GlyphSupportLevel = 1
	GlyphSupportLevelFull    GlyphSupportLevel = 2
	GlyphSupportLevelEncode  GlyphSupportLevel = 3
)

// GlyphCacheCapabilitySet represents the Glyph Cache Capability Set (MS-RDPBCGR 2.2.7.1.8).
type GlyphCacheCapabilitySet struct {
	GlyphCache        [10]CacheDefinition
	FragCache         uint32
	GlyphSupportLevel GlyphSupportLevel
}

// NewGlyphCacheCapabilitySet creates a Glyph Cache Capability Set with default values.
func NewGlyphCacheCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:       CapabilitySetTypeGlyphCache,
		GlyphCacheCapabilitySet: &GlyphCacheCapabilitySet{},
	}
}

func (s *GlyphCacheCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	for i := range s.GlyphCache {
		buf.Write(s.GlyphCache[i].Serialize())
	}

	_ = binary.Write(buf, binary.LittleEndian, s.FragCache)
	_ = binary.Write(buf, binary.LittleEndian, s.GlyphSupportLevel)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // padding

	return buf.Bytes()
}

func (s *GlyphCacheCapabilitySet) Deserialize(wire io.Reader) error {
	for i := range s.GlyphCache {
		if err := s.GlyphCache[i].Deserialize(wire); err != nil {
			return err
		}
	}

	if err := binary.Read(wire, binary.LittleEndian, &s.FragCache); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.GlyphSupportLevel); err != nil {
		return err
	}

	var padding uint16
	return binary.Read(wire, binary.LittleEndian, &padding)
}
