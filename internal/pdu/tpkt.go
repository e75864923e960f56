package pdu

import "encoding/binary"

// TPKTHeaderLen is the fixed size of a TPKT header (RFC 1006): version,
// reserved, and a big-endian 16-bit total length.
const TPKTHeaderLen = 4

const tpktVersion = 3

// DetectTPKT inspects the head of a byte buffer and reports whether it
// contains a complete TPKT frame. It never reads past the declared total
// length and never allocates.
func DetectTPKT(buf []byte) (total int, err error) {
	if len(buf) < TPKTHeaderLen {
		return 0, nil // need-more
	}

	if buf[0] != tpktVersion {
		return 0, errUnknownDiscriminant("tpkt: bad version byte")
	}

	total = int(binary.BigEndian.Uint16(buf[2:4]))
	if total < TPKTHeaderLen {
		return 0, errInvalidLength("tpkt: total length smaller than header")
	}

	if total > MaxPDUSize {
		return 0, errTooLarge("tpkt: total length exceeds ceiling")
	}

	if len(buf) < total {
		return 0, nil // need-more
	}

	return total, nil
}

// EncodeTPKT wraps payload in a TPKT header. The total length, including
// the 4-byte header, MUST fit in 16 bits.
func EncodeTPKT(payload []byte) ([]byte, error) {
	total := TPKTHeaderLen + len(payload)
	if total > 0xFFFF {
		return nil, errTooLarge("tpkt: payload too large for 16-bit length")
	}

	out := make([]byte, total)
	out[0] = tpktVersion
	out[1] = 0 // reserved
	binary.BigEndian.PutUint16(out[2:4], uint16(total))
	copy(out[4:], payload)

	return out, nil
}

// DecodeTPKT validates a complete TPKT frame (as reported by DetectTPKT)
// and returns the payload following the 4-byte header.
func DecodeTPKT(frame []byte) ([]byte, error) {
	total, err := DetectTPKT(frame)
	if err != nil {
		return nil, err
	}

	if total == 0 || len(frame) < total {
		return nil, errTruncated("tpkt: incomplete frame")
	}

	return frame[TPKTHeaderLen:total], nil
}
