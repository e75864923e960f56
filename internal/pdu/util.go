package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf16"
)

// EncodeUTF16LE converts a string to UTF-16LE encoded bytes, the wire
// encoding used throughout GCC client-data blocks and the Client Info PDU.
func EncodeUTF16LE(s string) []byte {
	buf := new(bytes.Buffer)

	for _, ch := range utf16.Encode([]rune(s)) {
		_ = binary.Write(buf, binary.LittleEndian, ch)
	}

	return buf.Bytes()
}

// DecodeUTF16LE converts UTF-16LE encoded bytes back to a string, trimming
// a trailing NUL terminator if present.
func DecodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}

	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}

	runes := utf16.Decode(units)
	for len(runes) > 0 && runes[len(runes)-1] == 0 {
		runes = runes[:len(runes)-1]
	}

	return string(runes)
}

// WrapSecurityHeader prepends an RDP Basic Security Header with the given
// flag. It always writes the header: InfoPacket.Serialize skips calling it
// when Enhanced RDP Security (TLS) is in effect, while licensing PDUs carry
// it either way.
func WrapSecurityHeader(flag uint16, data []byte) []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, flag)
	buf.Write([]byte{0x00, 0x00}) // flagsHi

	buf.Write(data)

	return buf.Bytes()
}

// UnwrapSecurityHeader reads and returns the security flag from an RDP
// Basic Security Header.
func UnwrapSecurityHeader(wire io.Reader) (uint16, error) {
	var flags, flagsHi uint16

	if err := binary.Read(wire, binary.LittleEndian, &flags); err != nil {
		return 0, errTruncated("security header flags")
	}

	if err := binary.Read(wire, binary.LittleEndian, &flagsHi); err != nil {
		return 0, errTruncated("security header flagsHi")
	}

	return flags, nil
}
