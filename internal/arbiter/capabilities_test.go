package arbiter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-handshake/internal/arbiter"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
)

func TestIntersectCapabilitiesGeneralTakesLowerVersionAndMasksFlags(t *testing.T) {
	demanded := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeGeneral,
		GeneralCapabilitySet: &pdu.GeneralCapabilitySet{
			OSMajorType: 5,
			ExtraFlags:  0x0001 | 0x0004,
		},
	}}
	local := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeGeneral,
		GeneralCapabilitySet: &pdu.GeneralCapabilitySet{
			OSMajorType: 10,
			ExtraFlags:  0x0001,
		},
	}}

	effective := arbiter.IntersectCapabilities(demanded, local)

	require.Len(t, effective, 1)
	require.Equal(t, uint16(5), effective[0].GeneralCapabilitySet.OSMajorType)
	require.Equal(t, uint16(0x0001), effective[0].GeneralCapabilitySet.ExtraFlags)
}

func TestIntersectCapabilitiesBitmapTakesMinimumDimensions(t *testing.T) {
	demanded := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeBitmap,
		BitmapCapabilitySet: &pdu.BitmapCapabilitySet{
			PreferredBitsPerPixel: 32,
			DesktopWidth:          1920,
			DesktopHeight:         1080,
			DesktopResizeFlag:     1,
		},
	}}
	local := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeBitmap,
		BitmapCapabilitySet: &pdu.BitmapCapabilitySet{
			PreferredBitsPerPixel: 16,
			DesktopWidth:          1280,
			DesktopHeight:         1024,
			DesktopResizeFlag:     0,
		},
	}}

	effective := arbiter.IntersectCapabilities(demanded, local)

	require.Len(t, effective, 1)
	bmp := effective[0].BitmapCapabilitySet
	require.Equal(t, uint16(16), bmp.PreferredBitsPerPixel)
	require.Equal(t, uint16(1280), bmp.DesktopWidth)
	require.Equal(t, uint16(1024), bmp.DesktopHeight)
	require.Equal(t, uint16(0), bmp.DesktopResizeFlag)
}

func TestIntersectCapabilitiesInputLimitsOrToClientFlags(t *testing.T) {
	client := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeInput,
		InputCapabilitySet: &pdu.InputCapabilitySet{
			InputFlags:     0x0001,
			KeyboardLayout: 0x409,
			KeyboardType:   4,
		},
	}}
	server := []pdu.CapabilitySet{{
		CapabilitySetType: pdu.CapabilitySetTypeInput,
		InputCapabilitySet: &pdu.InputCapabilitySet{
			InputFlags:     0x0001 | 0x0004,
			KeyboardLayout: 0x411,
			KeyboardType:   7,
		},
	}}

	effective := arbiter.IntersectCapabilities(client, server)

	require.Len(t, effective, 1)
	in := effective[0].InputCapabilitySet
	require.Equal(t, uint16(0x0001), in.InputFlags)
	require.Equal(t, uint32(0x409), in.KeyboardLayout)
	require.Equal(t, uint32(4), in.KeyboardType)
}

func TestIntersectCapabilitiesVirtualChannelTakesMinChunkSize(t *testing.T) {
	demanded := []pdu.CapabilitySet{{
		CapabilitySetType:           pdu.CapabilitySetTypeVirtualChannel,
		VirtualChannelCapabilitySet: &pdu.VirtualChannelCapabilitySet{Flags: 0x1, VCChunkSize: 16384},
	}}
	local := []pdu.CapabilitySet{{
		CapabilitySetType:           pdu.CapabilitySetTypeVirtualChannel,
		VirtualChannelCapabilitySet: &pdu.VirtualChannelCapabilitySet{Flags: 0x1, VCChunkSize: 1600},
	}}

	effective := arbiter.IntersectCapabilities(demanded, local)

	require.Len(t, effective, 1)
	require.Equal(t, uint32(1600), effective[0].VirtualChannelCapabilitySet.VCChunkSize)
}

func TestIntersectCapabilitiesDropsTypesMissingFromEitherSide(t *testing.T) {
	demanded := []pdu.CapabilitySet{
		{CapabilitySetType: pdu.CapabilitySetTypeSound, SoundCapabilitySet: &pdu.SoundCapabilitySet{SoundFlags: 1}},
	}
	local := []pdu.CapabilitySet{
		{CapabilitySetType: pdu.CapabilitySetTypeBitmap, BitmapCapabilitySet: &pdu.BitmapCapabilitySet{}},
	}

	effective := arbiter.IntersectCapabilities(demanded, local)

	require.Empty(t, effective)
}

func TestIntersectCapabilitiesBrushTakesLowerSupportLevel(t *testing.T) {
	demanded := []pdu.CapabilitySet{{
		CapabilitySetType:  pdu.CapabilitySetTypeBrush,
		BrushCapabilitySet: &pdu.BrushCapabilitySet{BrushSupportLevel: pdu.BrushSupportLevelFull},
	}}
	local := []pdu.CapabilitySet{{
		CapabilitySetType:  pdu.CapabilitySetTypeBrush,
		BrushCapabilitySet: &pdu.BrushCapabilitySet{BrushSupportLevel: pdu.BrushSupportLevelColor8x8},
	}}

	effective := arbiter.IntersectCapabilities(demanded, local)

	require.Len(t, effective, 1)
	require.Equal(t, pdu.BrushSupportLevelColor8x8, effective[0].BrushCapabilitySet.BrushSupportLevel)
}
