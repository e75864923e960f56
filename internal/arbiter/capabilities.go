package arbiter

import "github.com/rcarmo/rdp-handshake/internal/pdu"

// IntersectCapabilities computes the effective capability set for a
// session: for every capability type present in both demanded and local,
// the per-type intersection rule from MS-RDPBCGR applies; a type present
// in only one side is dropped, since a capability neither peer both
// declared cannot be exercised by either.
func IntersectCapabilities(demanded, local []pdu.CapabilitySet) []pdu.CapabilitySet {
	localByType := make(map[pdu.CapabilitySetType]pdu.CapabilitySet, len(local))
	for _, c := range local {
		localByType[c.CapabilitySetType] = c
	}

	var effective []pdu.CapabilitySet
	for _, d := range demanded {
		l, ok := localByType[d.CapabilitySetType]
		if !ok {
			continue
		}

		if merged, ok := intersectOne(d, l); ok {
			effective = append(effective, merged)
		}
	}

	return effective
}

func intersectOne(a, b pdu.CapabilitySet) (pdu.CapabilitySet, bool) {
	switch a.CapabilitySetType {
	case pdu.CapabilitySetTypeGeneral:
		if a.GeneralCapabilitySet == nil || b.GeneralCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectGeneral(a, b), true
	case pdu.CapabilitySetTypeBitmap:
		if a.BitmapCapabilitySet == nil || b.BitmapCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectBitmap(a, b), true
	case pdu.CapabilitySetTypeOrder:
		if a.OrderCapabilitySet == nil || b.OrderCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectOrder(a, b), true
	case pdu.CapabilitySetTypePointer:
		if a.PointerCapabilitySet == nil || b.PointerCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectPointer(a, b), true
	case pdu.CapabilitySetTypeInput:
		if a.InputCapabilitySet == nil || b.InputCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectInput(a, b), true
	case pdu.CapabilitySetTypeShare:
		if a.ShareCapabilitySet == nil || b.ShareCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return a, true
	case pdu.CapabilitySetTypeVirtualChannel:
		if a.VirtualChannelCapabilitySet == nil || b.VirtualChannelCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectVirtualChannel(a, b), true
	case pdu.CapabilitySetTypeFont:
		if a.FontCapabilitySet == nil || b.FontCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return a, true
	case pdu.CapabilitySetTypeGlyphCache:
		if a.GlyphCacheCapabilitySet == nil || b.GlyphCacheCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectGlyphCache(a, b), true
	case pdu.CapabilitySetTypeBrush:
		if a.BrushCapabilitySet == nil || b.BrushCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectBrush(a, b), true
	case pdu.CapabilitySetTypeOffscreenBitmapCache:
		if a.OffscreenBitmapCacheCapabilitySet == nil || b.OffscreenBitmapCacheCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectOffscreenBitmapCache(a, b), true
	case pdu.CapabilitySetTypeSound:
		if a.SoundCapabilitySet == nil || b.SoundCapabilitySet == nil {
			return pdu.CapabilitySet{}, false
		}
		return intersectSound(a, b), true
	default:
		// A capability type neither the spec's MUST list nor its
		// supplemented set names: pass the local side's own configured
		// value through unmodified, the conservative choice when this
		// layer has no declared intersection rule for it.
		return b, true
	}
}

func minUint16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// intersectGeneral takes the lower OS major type advertised by
// either peer and masks extra flags down to what both declared.
func intersectGeneral(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.GeneralCapabilitySet, b.GeneralCapabilitySet

	osMajor := demanded.OSMajorType
	if local.OSMajorType < osMajor {
		osMajor = local.OSMajorType
	}

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeGeneral,
		GeneralCapabilitySet: &pdu.GeneralCapabilitySet{
			OSMajorType:           osMajor,
			OSMinorType:           local.OSMinorType,
			ExtraFlags:            demanded.ExtraFlags & local.ExtraFlags,
			RefreshRectSupport:    minUint8(demanded.RefreshRectSupport, local.RefreshRectSupport),
			SuppressOutputSupport: minUint8(demanded.SuppressOutputSupport, local.SuppressOutputSupport),
		},
	}
}

func minUint8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// intersectBitmap takes the minimum width, height, and color depth, and
// ANDs the resize-support flag the way a server narrows a client's
// preferred bitmap parameters down to what it can actually serve.
func intersectBitmap(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.BitmapCapabilitySet, b.BitmapCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeBitmap,
		BitmapCapabilitySet: &pdu.BitmapCapabilitySet{
			PreferredBitsPerPixel: minUint16(demanded.PreferredBitsPerPixel, local.PreferredBitsPerPixel),
			Receive1BitPerPixel:   demanded.Receive1BitPerPixel & local.Receive1BitPerPixel,
			Receive4BitsPerPixel:  demanded.Receive4BitsPerPixel & local.Receive4BitsPerPixel,
			Receive8BitsPerPixel:  demanded.Receive8BitsPerPixel & local.Receive8BitsPerPixel,
			DesktopWidth:          minUint16(demanded.DesktopWidth, local.DesktopWidth),
			DesktopHeight:         minUint16(demanded.DesktopHeight, local.DesktopHeight),
			DesktopResizeFlag:     demanded.DesktopResizeFlag & local.DesktopResizeFlag,
			DrawingFlags:          demanded.DrawingFlags & local.DrawingFlags,
		},
	}
}

// intersectOrder ANDs the per-order support flags, falling back to the
// server's own defaults for bytes the client left unset, and keeps the
// smaller desktop save size, the safe bound for either peer's cache.
func intersectOrder(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.OrderCapabilitySet, b.OrderCapabilitySet

	var support [32]byte
	for i := range support {
		if demanded.OrderSupport[i] != 0 && local.OrderSupport[i] != 0 {
			support[i] = demanded.OrderSupport[i] & local.OrderSupport[i]
		} else {
			support[i] = local.OrderSupport[i]
		}
	}

	saveSize := demanded.DesktopSaveSize
	if local.DesktopSaveSize < saveSize {
		saveSize = local.DesktopSaveSize
	}

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeOrder,
		OrderCapabilitySet: &pdu.OrderCapabilitySet{
			OrderFlags:          demanded.OrderFlags & local.OrderFlags,
			OrderSupport:        support,
			OrderSupportExFlags: demanded.OrderSupportExFlags & local.OrderSupportExFlags,
			DesktopSaveSize:     saveSize,
		},
	}
}

// intersectPointer keeps the smaller of the two cache sizes and ANDs the
// color-pointer support flag.
func intersectPointer(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.PointerCapabilitySet, b.PointerCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypePointer,
		PointerCapabilitySet: &pdu.PointerCapabilitySet{
			ColorPointerFlag:      demanded.ColorPointerFlag & local.ColorPointerFlag,
			ColorPointerCacheSize: minUint16(demanded.ColorPointerCacheSize, local.ColorPointerCacheSize),
			PointerCacheSize:      minUint16(demanded.PointerCacheSize, local.PointerCacheSize),
		},
	}
}

// intersectInput ORs the input flags but limits the result to what the
// client declared (a server cannot grant input capabilities the client
// never asked for), and takes the client's own keyboard identification
// verbatim since that describes physical hardware, not a negotiated term.
func intersectInput(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	client, server := a.InputCapabilitySet, b.InputCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeInput,
		InputCapabilitySet: &pdu.InputCapabilitySet{
			InputFlags:          (client.InputFlags | server.InputFlags) & client.InputFlags,
			KeyboardLayout:      client.KeyboardLayout,
			KeyboardType:        client.KeyboardType,
			KeyboardSubType:     client.KeyboardSubType,
			KeyboardFunctionKey: client.KeyboardFunctionKey,
			ImeFileName:         client.ImeFileName,
		},
	}
}

// intersectVirtualChannel keeps the smaller chunk size and ANDs the
// compression-capability flags.
func intersectVirtualChannel(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.VirtualChannelCapabilitySet, b.VirtualChannelCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeVirtualChannel,
		VirtualChannelCapabilitySet: &pdu.VirtualChannelCapabilitySet{
			Flags:       demanded.Flags & local.Flags,
			VCChunkSize: minUint32(demanded.VCChunkSize, local.VCChunkSize),
		},
	}
}

// intersectGlyphCache keeps the smaller entry count and cell size for each
// of the ten cache slots, the minimum either side can actually host, and
// takes the lower glyph support level.
func intersectGlyphCache(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.GlyphCacheCapabilitySet, b.GlyphCacheCapabilitySet

	var caches [10]pdu.CacheDefinition
	for i := range caches {
		caches[i] = pdu.CacheDefinition{
			CacheEntries:         minUint16(demanded.GlyphCache[i].CacheEntries, local.GlyphCache[i].CacheEntries),
			CacheMaximumCellSize: minUint16(demanded.GlyphCache[i].CacheMaximumCellSize, local.GlyphCache[i].CacheMaximumCellSize),
		}
	}

	level := demanded.GlyphSupportLevel
	if local.GlyphSupportLevel < level {
		level = local.GlyphSupportLevel
	}

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeGlyphCache,
		GlyphCacheCapabilitySet: &pdu.GlyphCacheCapabilitySet{
			GlyphCache:        caches,
			FragCache:         minUint32(demanded.FragCache, local.FragCache),
			GlyphSupportLevel: level,
		},
	}
}

// intersectBrush takes the lower brush support level, since a peer that
// only understands DEFAULT brushes cannot be sent FULL ones.
func intersectBrush(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.BrushCapabilitySet, b.BrushCapabilitySet

	level := demanded.BrushSupportLevel
	if local.BrushSupportLevel < level {
		level = local.BrushSupportLevel
	}

	return pdu.CapabilitySet{
		CapabilitySetType:  pdu.CapabilitySetTypeBrush,
		BrushCapabilitySet: &pdu.BrushCapabilitySet{BrushSupportLevel: level},
	}
}

// intersectOffscreenBitmapCache ANDs the support-level flag and keeps the
// smaller cache size and entry count.
func intersectOffscreenBitmapCache(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.OffscreenBitmapCacheCapabilitySet, b.OffscreenBitmapCacheCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType: pdu.CapabilitySetTypeOffscreenBitmapCache,
		OffscreenBitmapCacheCapabilitySet: &pdu.OffscreenBitmapCacheCapabilitySet{
			OffscreenSupportLevel: demanded.OffscreenSupportLevel & local.OffscreenSupportLevel,
			OffscreenCacheSize:    minUint16(demanded.OffscreenCacheSize, local.OffscreenCacheSize),
			OffscreenCacheEntries: minUint16(demanded.OffscreenCacheEntries, local.OffscreenCacheEntries),
		},
	}
}

// intersectSound ANDs the sound flags, since wave playback requires both
// peers to agree it is supported.
func intersectSound(a, b pdu.CapabilitySet) pdu.CapabilitySet {
	demanded, local := a.SoundCapabilitySet, b.SoundCapabilitySet

	return pdu.CapabilitySet{
		CapabilitySetType:  pdu.CapabilitySetTypeSound,
		SoundCapabilitySet: &pdu.SoundCapabilitySet{SoundFlags: demanded.SoundFlags & local.SoundFlags},
	}
}
