package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// BitmapCapabilitySet represents the Bitmap Capability Set (MS-RDPBCGR 2.2.7.1.2).
type BitmapCapabilitySet struct {
	PreferredBitsPerPixel uint16
	Receive1BitPerPixel   uint16
	Receive4BitsPerPixel  uint16
	Receive8BitsPerPixel  uint16
	DesktopWidth          uint16
	DesktopHeight         uint16
	DesktopResizeFlag     uint16
	DrawingFlags          uint8
}

// NewBitmapCapabilitySet creates a Bitmap Capability Set with default client values.
func NewBitmapCapabilitySet(desktopWidth, desktopHeight uint16) CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeBitmap,
		BitmapCapabilitySet: &BitmapCapabilitySet{
			PreferredBitsPerPixel: 0x0020,
			Receive1BitPerPixel:   0x0001,
			Receive4BitsPerPixel:  0x0001,
			Receive8BitsPerPixel:  0x0001,
			DesktopWidth:          desktopWidth,
			DesktopHeight:         desktopHeight,
			DesktopResizeFlag:     0x0001,
		},
	}
}

func (s *BitmapCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.PreferredBitsPerPixel)
	_ = binary.Write(buf, binary.LittleEndian, s.Receive1BitPerPixel)
	_ = binary.Write(buf, binary.LittleEndian, s.Receive4BitsPerPixel)
	_ = binary.Write(buf, binary.LittleEndian, s.Receive8BitsPerPixel)
	_ = binary.Write(buf, binary.LittleEndian, s.DesktopWidth)
	_ = binary.Write(buf, binary.LittleEndian, s.DesktopHeight)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // padding
	_ = binary.Write(buf, binary.LittleEndian, s.DesktopResizeFlag)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0001)) // bitmapCompressionFlag
	_ = binary.Write(buf, binary.LittleEndian, uint8(0))       // highColorFlags
	_ = binary.Write(buf, binary.LittleEndian, s.DrawingFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x0001)) // multipleRectangleSupport
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))      // padding

	return buf.Bytes()
}

func (s *BitmapCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		padding                   uint16
		bitmapCompressionFlag     uint16
		highColorFlags            uint8
		multipleRectangleSupport  uint16
		err                       error
	)

	if err = binary.Read(wire, binary.LittleEndian, &s.PreferredBitsPerPixel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Receive1BitPerPixel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Receive4BitsPerPixel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.Receive8BitsPerPixel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.DesktopWidth); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.DesktopHeight); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.DesktopResizeFlag); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &bitmapCompressionFlag); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &highColorFlags); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.DrawingFlags); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &multipleRectangleSupport); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &padding)
}
