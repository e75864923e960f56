package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// FrameAcknowledgePDU is TS_FRAME_ACKNOWLEDGE_PDU (MS-RDPBCGR 2.2.14.2), sent
// from client to server to acknowledge receipt of a frame when the Frame
// Acknowledge capability was negotiated.
type FrameAcknowledgePDU struct {
	ShareDataHeader ShareDataHeader
	FrameID         uint32
}

// NewFrameAcknowledgePDU creates a Frame Acknowledge PDU.
func NewFrameAcknowledgePDU(shareID uint32, userID uint16, frameID uint32) *FrameAcknowledgePDU {
	return &FrameAcknowledgePDU{
		ShareDataHeader: ShareDataHeader{
			ShareControlHeader: ShareControlHeader{
				PDUType:   TypeData,
				PDUSource: userID,
			},
			ShareID:            shareID,
			StreamID:           0x01, // STREAM_LOW
			UncompressedLength: 4,
			PDUType2:           Type2FrameAcknowledge,
		},
		FrameID: frameID,
	}
}

func (pdu *FrameAcknowledgePDU) Serialize() []byte {
	buf := new(bytes.Buffer)

	frameData := make([]byte, 4)
	binary.LittleEndian.PutUint32(frameData, pdu.FrameID)

	pdu.ShareDataHeader.UncompressedLength = uint16(len(frameData))
	pdu.ShareDataHeader.ShareControlHeader.TotalLength = 6 + 12 + uint16(len(frameData))

	buf.Write(pdu.ShareDataHeader.Serialize())
	buf.Write(frameData)

	return buf.Bytes()
}

func (pdu *FrameAcknowledgePDU) Deserialize(wire io.Reader) error {
	if err := pdu.ShareDataHeader.Deserialize(wire); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &pdu.FrameID)
}
