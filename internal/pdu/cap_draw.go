package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// DrawNineGridCacheCapabilitySet represents the TS_DRAW_NINEGRID_CAPABILITYSET
// structure (MS-RDPBCGR 2.2.7.2.8).
type DrawNineGridCacheCapabilitySet struct {
	drawNineGridSupportLevel uint32
	drawNineGridCacheSize    uint16
	drawNineGridCacheEntries uint16
}

func (s *DrawNineGridCacheCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.drawNineGridSupportLevel)
	_ = binary.Write(buf, binary.LittleEndian, s.drawNineGridCacheSize)
	_ = binary.Write(buf, binary.LittleEndian, s.drawNineGridCacheEntries)

	return buf.Bytes()
}

func (s *DrawNineGridCacheCapabilitySet) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.drawNineGridSupportLevel); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.drawNineGridCacheSize); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.drawNineGridCacheEntries)
}

// GDICacheEntries contains GDI+ cache entry counts for the DrawGDIPlus capability set.
type GDICacheEntries struct {
	GdipGraphicsCacheEntries        uint16
	GdipBrushCacheEntries           uint16
	GdipPenCacheEntries             uint16
	GdipImageCacheEntries           uint16
	GdipImageAttributesCacheEntries uint16
}

func (e *GDICacheEntries) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, e.GdipGraphicsCacheEntries)
	_ = binary.Write(buf, binary.LittleEndian, e.GdipBrushCacheEntries)
	_ = binary.Write(buf, binary.LittleEndian, e.GdipPenCacheEntries)
	_ = binary.Write(buf, binary.LittleEndian, e.GdipImageCacheEntries)
	_ = binary.Write(buf, binary.LittleEndian, e.GdipImageAttributesCacheEntries)

	return buf.Bytes()
}

func (e *GDICacheEntries) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &e.GdipGraphicsCacheEntries); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &e.GdipBrushCacheEntries); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &e.GdipPenCacheEntries); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &e.GdipImageCacheEntries); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &e.GdipImageAttributesCacheEntries)
}

// GDICacheChunkSize contains GDI+ cache chunk sizes for the DrawGDIPlus capability set.
type GDICacheChunkSize struct {
	GdipGraphicsCacheChunkSize              uint16
	GdipObjectBrushCacheChunkSize           uint16
	GdipObjectPenCacheChunkSize             uint16
	GdipObjectImageAttributesCacheChunkSize uint16
}

func (s *GDICacheChunkSize) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.GdipGraphicsCacheChunkSize)
	_ = binary.Write(buf, binary.LittleEndian, s.GdipObjectBrushCacheChunkSize)
	_ = binary.Write(buf, binary.LittleEndian, s.GdipObjectPenCacheChunkSize)
	_ = binary.Write(buf, binary.LittleEndian, s.GdipObjectImageAttributesCacheChunkSize)

	return buf.Bytes()
}

func (s *GDICacheChunkSize) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.GdipGraphicsCacheChunkSize); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.GdipObjectBrushCacheChunkSize); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.GdipObjectPenCacheChunkSize); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.GdipObjectImageAttributesCacheChunkSize)
}

// GDIImageCacheProperties contains GDI+ image cache properties for the DrawGDIPlus capability set.
type GDIImageCacheProperties struct {
	GdipObjectImageCacheChunkSize uint16
	GdipObjectImageCacheTotalSize uint16
	GdipObjectImageCacheMaxSize   uint16
}

func (p *GDIImageCacheProperties) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, p.GdipObjectImageCacheChunkSize)
	_ = binary.Write(buf, binary.LittleEndian, p.GdipObjectImageCacheTotalSize)
	_ = binary.Write(buf, binary.LittleEndian, p.GdipObjectImageCacheMaxSize)

	return buf.Bytes()
}

func (p *GDIImageCacheProperties) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &p.GdipObjectImageCacheChunkSize); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &p.GdipObjectImageCacheTotalSize); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &p.GdipObjectImageCacheMaxSize)
}

// DrawGDIPlusCapabilitySet represents the TS_DRAW_GDIPLUS_CAPABILITYSET
// structure (MS-RDPBCGR 2.2.7.2.9).
type DrawGDIPlusCapabilitySet struct {
	drawGDIPlusSupportLevel  uint32
	GdipVersion              uint32
	drawGdiplusCacheLevel    uint32
	GdipCacheEntries         GDICacheEntries
	GdipCacheChunkSize       GDICacheChunkSize
	GdipImageCacheProperties GDIImageCacheProperties
}

func (s *DrawGDIPlusCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.drawGDIPlusSupportLevel)
	_ = binary.Write(buf, binary.LittleEndian, s.GdipVersion)
	_ = binary.Write(buf, binary.LittleEndian, s.drawGdiplusCacheLevel)

	buf.Write(s.GdipCacheEntries.Serialize())
	buf.Write(s.GdipCacheChunkSize.Serialize())
	buf.Write(s.GdipImageCacheProperties.Serialize())

	return buf.Bytes()
}

func (s *DrawGDIPlusCapabilitySet) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.drawGDIPlusSupportLevel); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.GdipVersion); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &s.drawGdiplusCacheLevel); err != nil {
		return err
	}
	if err := s.GdipCacheEntries.Deserialize(wire); err != nil {
		return err
	}
	if err := s.GdipCacheChunkSize.Deserialize(wire); err != nil {
		return err
	}
	return s.GdipImageCacheProperties.Deserialize(wire)
}
