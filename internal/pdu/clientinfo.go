package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// InfoFlag carries the flags field of TS_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1).
type InfoFlag uint32

const (
	InfoFlagMouse               InfoFlag = 0x00000001
	InfoFlagDisableCtrlAltDel   InfoFlag = 0x00000002
	InfoFlagAutologon           InfoFlag = 0x00000008
	InfoFlagUnicode             InfoFlag = 0x00000010
	InfoFlagMaximizeShell       InfoFlag = 0x00000020
	InfoFlagLogonNotify         InfoFlag = 0x00000040
	InfoFlagCompression         InfoFlag = 0x00000080
	InfoFlagEnableWindowsKey    InfoFlag = 0x00000100
	InfoFlagLogonErrors         InfoFlag = 0x00000400
	InfoFlagMouseHasWheel       InfoFlag = 0x00008000
	InfoFlagPasswordIsScPin     InfoFlag = 0x00040000
	InfoFlagNoAudioPlayback     InfoFlag = 0x00080000
	InfoFlagRail                InfoFlag = 0x00200000
)

// secInfoPkt is the SEC_INFO_PKT security header flag (MS-RDPBCGR 2.2.1.11).
const secInfoPkt uint16 = 0x0040

// InfoPacket is TS_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1): the client's
// logon credentials and session preferences, sent during Secure Settings
// Exchange.
type InfoPacket struct {
	CodePage        uint32
	Flags           InfoFlag
	Domain          string
	UserName        string
	Password        string
	AlternateShell  string
	WorkingDir      string
	AutologonCookie []byte
	ClientAddress   string
	ClientDir       string
	TimeZone        TimeZoneInfo
	PerfFlags       uint32
}

// TimeZoneInfo is TS_TIME_ZONE_INFORMATION (MS-RDPBCGR 2.2.1.11.1.1.1.1).
// The zeroed value describes UTC with no daylight saving, which every
// server accepts.
type TimeZoneInfo struct {
	Bias         int32
	StandardName [32]uint16
	StandardDate [16]byte
	StandardBias int32
	DaylightName [32]uint16
	DaylightDate [16]byte
	DaylightBias int32
}

func (tz TimeZoneInfo) serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, tz.Bias)
	_ = binary.Write(buf, binary.LittleEndian, tz.StandardName)
	buf.Write(tz.StandardDate[:])
	_ = binary.Write(buf, binary.LittleEndian, tz.StandardBias)
	_ = binary.Write(buf, binary.LittleEndian, tz.DaylightName)
	buf.Write(tz.DaylightDate[:])
	_ = binary.Write(buf, binary.LittleEndian, tz.DaylightBias)
	return buf.Bytes()
}

// NewClientInfo builds a TS_INFO_PACKET for the given credentials, defaulting
// to unicode strings, mouse, and disabled ctrl-alt-del substitution the way
// a modern client announces itself.
func NewClientInfo(domain, username, password string) InfoPacket {
	return InfoPacket{
		Flags:      InfoFlagMouse | InfoFlagUnicode | InfoFlagDisableCtrlAltDel | InfoFlagLogonNotify | InfoFlagMouseHasWheel,
		Domain:     domain,
		UserName:   username,
		Password:   password,
		WorkingDir: "",
	}
}

// Serialize encodes the Client Info PDU. When useEnhancedSecurity is false,
// the RDP Basic Security Header (flagged SEC_INFO_PKT) precedes the packet,
// per MS-RDPBCGR 2.2.1.11.1.1; when TLS/CredSSP is in effect the header is
// omitted entirely.
func (p InfoPacket) Serialize(useEnhancedSecurity bool) []byte {
	domain := append(EncodeUTF16LE(p.Domain), 0, 0)
	user := append(EncodeUTF16LE(p.UserName), 0, 0)
	password := append(EncodeUTF16LE(p.Password), 0, 0)
	shell := append(EncodeUTF16LE(p.AlternateShell), 0, 0)
	workDir := append(EncodeUTF16LE(p.WorkingDir), 0, 0)

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, p.CodePage)
	_ = binary.Write(buf, binary.LittleEndian, p.Flags)

	_ = binary.Write(buf, binary.LittleEndian, uint16(len(domain)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(user)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(password)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(shell)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(workDir)-2))

	buf.Write(domain)
	buf.Write(user)
	buf.Write(password)
	buf.Write(shell)
	buf.Write(workDir)

	// Extended info block (MS-RDPBCGR 2.2.1.11.1.1.1), required by every
	// server accepting RDP 5+ clients.
	_ = binary.Write(buf, binary.LittleEndian, uint16(2)) // clientAddressFamily = AF_INET
	clientAddr := append(EncodeUTF16LE(p.ClientAddress), 0, 0)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(clientAddr)))
	buf.Write(clientAddr)

	clientDir := append(EncodeUTF16LE(p.ClientDir), 0, 0)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(clientDir)))
	buf.Write(clientDir)

	buf.Write(p.TimeZone.serialize())

	_ = binary.Write(buf, binary.LittleEndian, uint32(0)) // clientSessionId, reserved
	_ = binary.Write(buf, binary.LittleEndian, p.PerfFlags)

	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // cbAutoReconnectCookie: none carried by default
	if len(p.AutologonCookie) > 0 {
		buf.Truncate(buf.Len() - 2)
		_ = binary.Write(buf, binary.LittleEndian, uint16(len(p.AutologonCookie)))
		buf.Write(p.AutologonCookie)
	}

	body := buf.Bytes()
	if useEnhancedSecurity {
		return body
	}
	return WrapSecurityHeader(secInfoPkt, body)
}

// Deserialize decodes the Client Info PDU a server acceptor received during
// Secure Settings Exchange. When useEnhancedSecurity is false the leading
// RDP Basic Security Header is unwrapped first. Decoding stops after
// WorkingDir: the extended info fields that may follow (client
// address/directory, time zone data) are not read from wire.
func (p *InfoPacket) Deserialize(wire io.Reader, useEnhancedSecurity bool) error {
	if !useEnhancedSecurity {
		flags, err := UnwrapSecurityHeader(wire)
		if err != nil {
			return err
		}
		if flags&secInfoPkt == 0 {
			return errors.New("pdu: bad client info header")
		}
	}

	if err := binary.Read(wire, binary.LittleEndian, &p.CodePage); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &p.Flags); err != nil {
		return err
	}

	var cbDomain, cbUserName, cbPassword, cbAlternateShell, cbWorkingDir uint16
	if err := binary.Read(wire, binary.LittleEndian, &cbDomain); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &cbUserName); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &cbPassword); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &cbAlternateShell); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &cbWorkingDir); err != nil {
		return err
	}

	var err error
	if p.Domain, err = readUTF16ZField(wire, cbDomain); err != nil {
		return err
	}
	if p.UserName, err = readUTF16ZField(wire, cbUserName); err != nil {
		return err
	}
	if p.Password, err = readUTF16ZField(wire, cbPassword); err != nil {
		return err
	}
	if p.AlternateShell, err = readUTF16ZField(wire, cbAlternateShell); err != nil {
		return err
	}
	if p.WorkingDir, err = readUTF16ZField(wire, cbWorkingDir); err != nil {
		return err
	}

	return nil
}

// readUTF16ZField reads a UTF-16LE field of cb bytes not counting its
// 2-byte NUL terminator, the convention used throughout TS_INFO_PACKET.
func readUTF16ZField(wire io.Reader, cb uint16) (string, error) {
	raw := make([]byte, int(cb)+2)
	if _, err := io.ReadFull(wire, raw); err != nil {
		return "", err
	}
	return DecodeUTF16LE(raw), nil
}
