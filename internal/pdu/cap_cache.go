package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// BitmapCacheCapabilitySetRev1 represents the Revision 1 Bitmap Cache
// Capability Set (MS-RDPBCGR 2.2.7.1.4.1).
type BitmapCacheCapabilitySetRev1 struct {
	Cache0Entries         uint16
	Cache0MaximumCellSize uint16
	Cache1Entries         uint16
	Cache1MaximumCellSize uint16
	Cache2Entries         uint16
	Cache2MaximumCellSize uint16
}

func NewBitmapCacheCapabilitySetRev1() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:            CapabilitySetTypeBitmapCache,
		BitmapCacheCapabilitySetRev1: &BitmapCacheCapabilitySetRev1{},
	}
}

func (s *BitmapCacheCapabilitySetRev1) Serialize() []byte {
	buf := new(bytes.Buffer)

	buf.Write(make([]byte, 24)) // padding
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache0Entries)
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache0MaximumCellSize)
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache1Entries)
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache1MaximumCellSize)
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache2Entries)
	_ = binary.Write(buf, binary.LittleEndian, &s.Cache2MaximumCellSize)

	return buf.Bytes()
}

func (s *BitmapCacheCapabilitySetRev1) Deserialize(wire io.Reader) error {
	var (
		padding [24]byte
		err     error
	)

	if err = binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Cache0Entries); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Cache0MaximumCellSize); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Cache1Entries); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Cache1MaximumCellSize); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Cache2Entries); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.Cache2MaximumCellSize)
}

// BitmapCacheCapabilitySetRev2 represents the Revision 2 Bitmap Cache
// Capability Set (MS-RDPBCGR 2.2.7.1.4.2).
type BitmapCacheCapabilitySetRev2 struct {
	CacheFlags           uint16
	NumCellCaches        uint8
	BitmapCache0CellInfo uint32
	BitmapCache1CellInfo uint32
	BitmapCache2CellInfo uint32
	BitmapCache3CellInfo uint32
	BitmapCache4CellInfo uint32
}

func NewBitmapCacheCapabilitySetRev2() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:            CapabilitySetTypeBitmapCacheRev2,
		BitmapCacheCapabilitySetRev2: &BitmapCacheCapabilitySetRev2{},
	}
}

func (s *BitmapCacheCapabilitySetRev2) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, &s.CacheFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint8(0)) // padding
	_ = binary.Write(buf, binary.LittleEndian, &s.NumCellCaches)
	_ = binary.Write(buf, binary.LittleEndian, &s.BitmapCache0CellInfo)
	_ = binary.Write(buf, binary.LittleEndian, &s.BitmapCache1CellInfo)
	_ = binary.Write(buf, binary.LittleEndian, &s.BitmapCache2CellInfo)
	_ = binary.Write(buf, binary.LittleEndian, &s.BitmapCache3CellInfo)
	_ = binary.Write(buf, binary.LittleEndian, &s.BitmapCache4CellInfo)
	buf.Write(make([]byte, 12)) // padding

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format, reading the
// same layout Serialize writes.
func (s *BitmapCacheCapabilitySetRev2) Deserialize(wire io.Reader) error {
	var err error

	if err = binary.Read(wire, binary.LittleEndian, &s.CacheFlags); err != nil {
		return err
	}

	var padding uint8
	if err = binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}

	if err = binary.Read(wire, binary.LittleEndian, &s.NumCellCaches); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.BitmapCache0CellInfo); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.BitmapCache1CellInfo); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.BitmapCache2CellInfo); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.BitmapCache3CellInfo); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.BitmapCache4CellInfo); err != nil {
		return err
	}

	var padding2 [12]byte
	return binary.Read(wire, binary.LittleEndian, &padding2)
}

// ColorCacheCapabilitySet represents the Color Table Cache Capability Set
// (MS-RDPBCGR 2.2.7.1.9).
type ColorCacheCapabilitySet struct {
	ColorTableCacheSize uint16
}

func (s *ColorCacheCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, &s.ColorTableCacheSize)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // padding

	return buf.Bytes()
}

func (s *ColorCacheCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		padding uint16
		err     error
	)

	if err = binary.Read(wire, binary.LittleEndian, &s.ColorTableCacheSize); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &padding)
}
