package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// CapabilitySetType is the capabilitySetType field of TS_CAPS_SET
// (MS-RDPBCGR 2.2.1.13.1.1.1). No file in the capability exchange source
// defines the numeric values directly; they are the standard MS-RDPBCGR
// constants and match every capabilities_test.go expectation.
type CapabilitySetType uint16

const (
	CapabilitySetTypeGeneral               CapabilitySetType = 0x0001
	CapabilitySetTypeBitmap                CapabilitySetType = 0x0002
	CapabilitySetTypeOrder                 CapabilitySetType = 0x0003
	CapabilitySetTypeBitmapCache           CapabilitySetType = 0x0004
	CapabilitySetTypeControl               CapabilitySetType = 0x0005
	CapabilitySetTypeActivation             CapabilitySetType = 0x0007
	CapabilitySetTypePointer               CapabilitySetType = 0x0008
	CapabilitySetTypeShare                 CapabilitySetType = 0x0009
	CapabilitySetTypeColorCache            CapabilitySetType = 0x000A
	CapabilitySetTypeSound                 CapabilitySetType = 0x000C
	CapabilitySetTypeInput                 CapabilitySetType = 0x000D
	CapabilitySetTypeFont                  CapabilitySetType = 0x000E
	CapabilitySetTypeBrush                 CapabilitySetType = 0x000F
	CapabilitySetTypeGlyphCache            CapabilitySetType = 0x0010
	CapabilitySetTypeOffscreenBitmapCache  CapabilitySetType = 0x0011
	CapabilitySetTypeBitmapCacheHostSupport CapabilitySetType = 0x0012
	CapabilitySetTypeBitmapCacheRev2       CapabilitySetType = 0x0013
	CapabilitySetTypeVirtualChannel        CapabilitySetType = 0x0014
	CapabilitySetTypeDrawNineGridCache     CapabilitySetType = 0x0015
	CapabilitySetTypeDrawGDIPlus           CapabilitySetType = 0x0016
	CapabilitySetTypeRail                  CapabilitySetType = 0x0017
	CapabilitySetTypeWindow                CapabilitySetType = 0x0018
	CapabilitySetTypeCompDesk              CapabilitySetType = 0x0019
	CapabilitySetTypeMultifragmentUpdate   CapabilitySetType = 0x001A
	CapabilitySetTypeLargePointer          CapabilitySetType = 0x001B
	CapabilitySetTypeSurfaceCommands       CapabilitySetType = 0x001C
	CapabilitySetTypeBitmapCodecs          CapabilitySetType = 0x001D
	CapabilitySetTypeFrameAcknowledge      CapabilitySetType = 0x001E
)

// CapabilitySet is the tagged union over every TS_CAPS_SET alternative this
// layer understands. Exactly one of the pointer fields is set.
type CapabilitySet struct {
	CapabilitySetType CapabilitySetType

	GeneralCapabilitySet                *GeneralCapabilitySet
	BitmapCapabilitySet                 *BitmapCapabilitySet
	OrderCapabilitySet                  *OrderCapabilitySet
	BitmapCacheCapabilitySetRev1        *BitmapCacheCapabilitySetRev1
	BitmapCacheCapabilitySetRev2        *BitmapCacheCapabilitySetRev2
	BitmapCacheHostSupportCapabilitySet *BitmapCacheHostSupportCapabilitySet
	ColorCacheCapabilitySet             *ColorCacheCapabilitySet
	ControlCapabilitySet                *ControlCapabilitySet
	WindowActivationCapabilitySet       *WindowActivationCapabilitySet
	PointerCapabilitySet                *PointerCapabilitySet
	ShareCapabilitySet                  *ShareCapabilitySet
	InputCapabilitySet                  *InputCapabilitySet
	FontCapabilitySet                   *FontCapabilitySet
	BrushCapabilitySet                  *BrushCapabilitySet
	GlyphCacheCapabilitySet             *GlyphCacheCapabilitySet
	OffscreenBitmapCacheCapabilitySet   *OffscreenBitmapCacheCapabilitySet
	VirtualChannelCapabilitySet         *VirtualChannelCapabilitySet
	DrawNineGridCacheCapabilitySet      *DrawNineGridCacheCapabilitySet
	DrawGDIPlusCapabilitySet            *DrawGDIPlusCapabilitySet
	SoundCapabilitySet                  *SoundCapabilitySet
	MultifragmentUpdateCapabilitySet    *MultifragmentUpdateCapabilitySet
	LargePointerCapabilitySet           *LargePointerCapabilitySet
	DesktopCompositionCapabilitySet     *DesktopCompositionCapabilitySet
	SurfaceCommandsCapabilitySet        *SurfaceCommandsCapabilitySet
	BitmapCodecsCapabilitySet           *BitmapCodecsCapabilitySet
	FrameAcknowledgeCapabilitySet       *FrameAcknowledgeCapabilitySet
	RailCapabilitySet                  *RailCapabilitySet
	WindowListCapabilitySet             *WindowListCapabilitySet

	unknownLength uint16
	unknownData   []byte
}

func capabilitySetBody(s CapabilitySet) []byte {
	switch {
	case s.GeneralCapabilitySet != nil:
		return s.GeneralCapabilitySet.Serialize()
	case s.BitmapCapabilitySet != nil:
		return s.BitmapCapabilitySet.Serialize()
	case s.OrderCapabilitySet != nil:
		return s.OrderCapabilitySet.Serialize()
	case s.BitmapCacheCapabilitySetRev1 != nil:
		return s.BitmapCacheCapabilitySetRev1.Serialize()
	case s.BitmapCacheCapabilitySetRev2 != nil:
		return s.BitmapCacheCapabilitySetRev2.Serialize()
	case s.BitmapCacheHostSupportCapabilitySet != nil:
		return s.BitmapCacheHostSupportCapabilitySet.Serialize()
	case s.ColorCacheCapabilitySet != nil:
		return s.ColorCacheCapabilitySet.Serialize()
	case s.ControlCapabilitySet != nil:
		return s.ControlCapabilitySet.Serialize()
	case s.WindowActivationCapabilitySet != nil:
		return s.WindowActivationCapabilitySet.Serialize()
	case s.PointerCapabilitySet != nil:
		return s.PointerCapabilitySet.Serialize()
	case s.ShareCapabilitySet != nil:
		return s.ShareCapabilitySet.Serialize()
	case s.InputCapabilitySet != nil:
		return s.InputCapabilitySet.Serialize()
	case s.FontCapabilitySet != nil:
		return s.FontCapabilitySet.Serialize()
	case s.BrushCapabilitySet != nil:
		return s.BrushCapabilitySet.Serialize()
	case s.GlyphCacheCapabilitySet != nil:
		return s.GlyphCacheCapabilitySet.Serialize()
	case s.OffscreenBitmapCacheCapabilitySet != nil:
		return s.OffscreenBitmapCacheCapabilitySet.Serialize()
	case s.VirtualChannelCapabilitySet != nil:
		return s.VirtualChannelCapabilitySet.Serialize()
	case s.DrawNineGridCacheCapabilitySet != nil:
		return s.DrawNineGridCacheCapabilitySet.Serialize()
	case s.DrawGDIPlusCapabilitySet != nil:
		return s.DrawGDIPlusCapabilitySet.Serialize()
	case s.SoundCapabilitySet != nil:
		return s.SoundCapabilitySet.Serialize()
	case s.MultifragmentUpdateCapabilitySet != nil:
		return s.MultifragmentUpdateCapabilitySet.Serialize()
	case s.SurfaceCommandsCapabilitySet != nil:
		return s.SurfaceCommandsCapabilitySet.Serialize()
	case s.BitmapCodecsCapabilitySet != nil:
		return s.BitmapCodecsCapabilitySet.Serialize()
	case s.FrameAcknowledgeCapabilitySet != nil:
		return s.FrameAcknowledgeCapabilitySet.Serialize()
	case s.RailCapabilitySet != nil:
		return s.RailCapabilitySet.Serialize()
	case s.WindowListCapabilitySet != nil:
		return s.WindowListCapabilitySet.Serialize()
	default:
		return s.unknownData
	}
}

// Serialize encodes the capability set including its TS_CAPS_SET header.
func (s CapabilitySet) Serialize() []byte {
	body := capabilitySetBody(s)

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s.CapabilitySetType)
	_ = binary.Write(buf, binary.LittleEndian, uint16(4+len(body)))
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize decodes a single length-prefixed capability set, dispatching
// on CapabilitySetType. Any capability type this layer does not model is
// kept verbatim in unknownData so it round-trips losslessly.
func (s *CapabilitySet) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.CapabilitySetType); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &s.unknownLength); err != nil {
		return err
	}

	body := make([]byte, int(s.unknownLength)-4)
	if _, err := io.ReadFull(wire, body); err != nil {
		return err
	}

	r := bytes.NewReader(body)

	switch s.CapabilitySetType {
	case CapabilitySetTypeGeneral:
		s.GeneralCapabilitySet = &GeneralCapabilitySet{}
		return s.GeneralCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmap:
		s.BitmapCapabilitySet = &BitmapCapabilitySet{}
		return s.BitmapCapabilitySet.Deserialize(r)
	case CapabilitySetTypeOrder:
		s.OrderCapabilitySet = &OrderCapabilitySet{}
		return s.OrderCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmapCache:
		s.BitmapCacheCapabilitySetRev1 = &BitmapCacheCapabilitySetRev1{}
		return s.BitmapCacheCapabilitySetRev1.Deserialize(r)
	case CapabilitySetTypeBitmapCacheRev2:
		s.BitmapCacheCapabilitySetRev2 = &BitmapCacheCapabilitySetRev2{}
		return s.BitmapCacheCapabilitySetRev2.Deserialize(r)
	case CapabilitySetTypeBitmapCacheHostSupport:
		s.BitmapCacheHostSupportCapabilitySet = &BitmapCacheHostSupportCapabilitySet{}
		return s.BitmapCacheHostSupportCapabilitySet.Deserialize(r)
	case CapabilitySetTypeColorCache:
		s.ColorCacheCapabilitySet = &ColorCacheCapabilitySet{}
		return s.ColorCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeControl:
		s.ControlCapabilitySet = &ControlCapabilitySet{}
		return s.ControlCapabilitySet.Deserialize(r)
	case CapabilitySetTypeActivation:
		s.WindowActivationCapabilitySet = &WindowActivationCapabilitySet{}
		return s.WindowActivationCapabilitySet.Deserialize(r)
	case CapabilitySetTypePointer:
		s.PointerCapabilitySet = &PointerCapabilitySet{lengthCapability: s.unknownLength}
		return s.PointerCapabilitySet.Deserialize(r)
	case CapabilitySetTypeShare:
		s.ShareCapabilitySet = &ShareCapabilitySet{}
		return s.ShareCapabilitySet.Deserialize(r)
	case CapabilitySetTypeInput:
		s.InputCapabilitySet = &InputCapabilitySet{}
		return s.InputCapabilitySet.Deserialize(r)
	case CapabilitySetTypeFont:
		s.FontCapabilitySet = &FontCapabilitySet{}
		return s.FontCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBrush:
		s.BrushCapabilitySet = &BrushCapabilitySet{}
		return s.BrushCapabilitySet.Deserialize(r)
	case CapabilitySetTypeGlyphCache:
		s.GlyphCacheCapabilitySet = &GlyphCacheCapabilitySet{}
		return s.GlyphCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeOffscreenBitmapCache:
		s.OffscreenBitmapCacheCapabilitySet = &OffscreenBitmapCacheCapabilitySet{}
		return s.OffscreenBitmapCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeVirtualChannel:
		s.VirtualChannelCapabilitySet = &VirtualChannelCapabilitySet{}
		return s.VirtualChannelCapabilitySet.Deserialize(r)
	case CapabilitySetTypeDrawNineGridCache:
		s.DrawNineGridCacheCapabilitySet = &DrawNineGridCacheCapabilitySet{}
		return s.DrawNineGridCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeDrawGDIPlus:
		s.DrawGDIPlusCapabilitySet = &DrawGDIPlusCapabilitySet{}
		return s.DrawGDIPlusCapabilitySet.Deserialize(r)
	case CapabilitySetTypeSound:
		s.SoundCapabilitySet = &SoundCapabilitySet{}
		return s.SoundCapabilitySet.Deserialize(r)
	case CapabilitySetTypeMultifragmentUpdate:
		s.MultifragmentUpdateCapabilitySet = &MultifragmentUpdateCapabilitySet{}
		return s.MultifragmentUpdateCapabilitySet.Deserialize(r)
	case CapabilitySetTypeLargePointer:
		s.LargePointerCapabilitySet = &LargePointerCapabilitySet{}
		return s.LargePointerCapabilitySet.Deserialize(r)
	case CapabilitySetTypeCompDesk:
		s.DesktopCompositionCapabilitySet = &DesktopCompositionCapabilitySet{}
		return s.DesktopCompositionCapabilitySet.Deserialize(r)
	case CapabilitySetTypeSurfaceCommands:
		s.SurfaceCommandsCapabilitySet = &SurfaceCommandsCapabilitySet{}
		return s.SurfaceCommandsCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmapCodecs:
		s.BitmapCodecsCapabilitySet = &BitmapCodecsCapabilitySet{}
		return s.BitmapCodecsCapabilitySet.Deserialize(r)
	case CapabilitySetTypeFrameAcknowledge:
		s.FrameAcknowledgeCapabilitySet = &FrameAcknowledgeCapabilitySet{}
		return s.FrameAcknowledgeCapabilitySet.Deserialize(r)
	default:
		s.unknownData = body
		return nil
	}
}

// DeserializeQuick decodes only the CapabilitySetType header, leaving the
// body bytes on wire. Used when a caller only needs to route on type
// without paying for a full decode (e.g. capability-set counting).
func (s *CapabilitySet) DeserializeQuick(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.CapabilitySetType); err != nil {
		return err
	}

	var length uint16
	if err := binary.Read(wire, binary.LittleEndian, &length); err != nil {
		return err
	}

	body := make([]byte, int(length)-4)
	_, err := io.ReadFull(wire, body)
	return err
}

// FrameAcknowledgeCapabilitySet represents the TS_FRAME_ACKNOWLEDGE_CAPABILITYSET
// structure (MS-RDPBCGR 2.2.7.2.7).
type FrameAcknowledgeCapabilitySet struct {
	MaxUnacknowledgedFrames uint32
}

// NewFrameAcknowledgeCapabilitySet creates a Frame Acknowledge Capability
// Set with default client values.
func NewFrameAcknowledgeCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:             CapabilitySetTypeFrameAcknowledge,
		FrameAcknowledgeCapabilitySet: &FrameAcknowledgeCapabilitySet{MaxUnacknowledgedFrames: 2},
	}
}

func (s *FrameAcknowledgeCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s.MaxUnacknowledgedFrames)
	return buf.Bytes()
}

func (s *FrameAcknowledgeCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.MaxUnacknowledgedFrames)
}
