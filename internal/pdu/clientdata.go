package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// GCC/RDP user data block header type tags (MS-RDPBCGR 2.2.1.3/2.2.1.4).
const (
	csCore    uint16 = 0xC001
	csSecurity uint16 = 0xC002
	csNet     uint16 = 0xC003
	csCluster uint16 = 0xC004

	scCore            uint16 = 0x0C01
	scSecurity        uint16 = 0x0C02
	scNet             uint16 = 0x0C03
	scMessageChannel  uint16 = 0x0C04
	scMultitransport  uint16 = 0x0C08
)

const rdpVersion5Plus uint32 = 0x00080004
const keyboardTypeIBM101or102Keys uint32 = 0x00000004
const projectName = "rdp-handshake"

// Early capability flags (MS-RDPBCGR 2.2.1.3.2).
const (
	ECFSupportErrInfoPDU        uint16 = 0x0001
	ECFWant32BPPSession         uint16 = 0x0002
	ECFSupportStatusInfoPDU     uint16 = 0x0004
	ECFStrongAsymmetricKeys     uint16 = 0x0008
	ECFValidConnectionType      uint16 = 0x0020
	ECFSupportMonitorLayoutPDU  uint16 = 0x0040
	ECFSupportNetCharAutodetect uint16 = 0x0080
	ECFSupportDynvcGFXProtocol  uint16 = 0x0100
	ECFSupportDynamicTimeZone   uint16 = 0x0200
	ECFSupportHeartbeatPDU      uint16 = 0x0400
)

// Color depth constants (MS-RDPBCGR 2.2.1.3.2).
const (
	HighColor4BPP  uint16 = 0x0004
	HighColor8BPP  uint16 = 0x0008
	HighColor15BPP uint16 = 0x000F
	HighColor16BPP uint16 = 0x0010
	HighColor24BPP uint16 = 0x0018

	RNSUD24BPPSupport uint16 = 0x0001
	RNSUD16BPPSupport uint16 = 0x0002
	RNSUD15BPPSupport uint16 = 0x0004
	RNSUD32BPPSupport uint16 = 0x0008
)

// ClientCoreData is TS_UD_CS_CORE (MS-RDPBCGR 2.2.1.3.2).
type ClientCoreData struct {
	Version                uint32
	DesktopWidth           uint16
	DesktopHeight          uint16
	ColorDepth             uint16
	SASSequence            uint16
	KeyboardLayout         uint32
	ClientBuild            uint32
	ClientName             [32]byte
	KeyboardType           uint32
	KeyboardSubType        uint32
	KeyboardFunctionKey    uint32
	ImeFileName            [64]byte
	PostBeta2ColorDepth    uint16
	ClientProductId        uint16
	SerialNumber           uint32
	HighColorDepth         uint16
	SupportedColorDepths   uint16
	EarlyCapabilityFlags   uint16
	ClientDigProductId     [64]byte
	ConnectionType         uint8
	Pad1octet              uint8
	ServerSelectedProtocol uint32
	DesktopPhysicalWidth   uint32
	DesktopPhysicalHeight  uint32
	DesktopOrientation     uint16
	DesktopScaleFactor     uint32
	DeviceScaleFactor      uint32
}

// NewClientCoreData builds a TS_UD_CS_CORE for the given connection
// parameters, picking sensible color-depth-derived flags the way a real
// client does.
func NewClientCoreData(selectedProtocol uint32, desktopWidth, desktopHeight uint16, colorDepth int) *ClientCoreData {
	var highColorDepth, supportedColorDepths uint16
	earlyCapabilityFlags := ECFSupportErrInfoPDU

	switch colorDepth {
	case 32:
		highColorDepth = HighColor24BPP
		supportedColorDepths = RNSUD32BPPSupport | RNSUD24BPPSupport | RNSUD16BPPSupport
		earlyCapabilityFlags |= ECFWant32BPPSession
	case 24:
		highColorDepth = HighColor24BPP
		supportedColorDepths = RNSUD24BPPSupport | RNSUD16BPPSupport
	case 15:
		highColorDepth = HighColor15BPP
		supportedColorDepths = RNSUD15BPPSupport | RNSUD16BPPSupport
	case 8:
		highColorDepth = HighColor8BPP
		supportedColorDepths = RNSUD16BPPSupport
	default:
		highColorDepth = HighColor16BPP
		supportedColorDepths = RNSUD16BPPSupport
	}

	data := &ClientCoreData{
		Version:                rdpVersion5Plus,
		DesktopWidth:           desktopWidth,
		DesktopHeight:          desktopHeight,
		ColorDepth:             0xCA01,
		SASSequence:            0xAA03,
		KeyboardLayout:         0x00000409,
		ClientBuild:            0xece,
		KeyboardType:           keyboardTypeIBM101or102Keys,
		KeyboardFunctionKey:    12,
		PostBeta2ColorDepth:    0xCA03,
		ClientProductId:        0x0001,
		HighColorDepth:         highColorDepth,
		SupportedColorDepths:   supportedColorDepths,
		EarlyCapabilityFlags:   earlyCapabilityFlags,
		ServerSelectedProtocol: selectedProtocol,
		DesktopPhysicalWidth:   uint32(float64(desktopWidth) * 25.4 / 96.0),
		DesktopPhysicalHeight:  uint32(float64(desktopHeight) * 25.4 / 96.0),
		DesktopScaleFactor:     100,
		DeviceScaleFactor:      100,
	}

	copy(data.ClientName[:], EncodeUTF16LE(projectName))

	return data
}

// Serialize encodes the client core data including its CS_CORE header.
func (data ClientCoreData) Serialize() []byte {
	const dataLen uint16 = 234

	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, csCore)
	_ = binary.Write(buf, binary.LittleEndian, dataLen)

	_ = binary.Write(buf, binary.LittleEndian, data.Version)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopWidth)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopHeight)
	_ = binary.Write(buf, binary.LittleEndian, data.ColorDepth)
	_ = binary.Write(buf, binary.LittleEndian, data.SASSequence)
	_ = binary.Write(buf, binary.LittleEndian, data.KeyboardLayout)
	_ = binary.Write(buf, binary.LittleEndian, data.ClientBuild)
	_ = binary.Write(buf, binary.LittleEndian, data.ClientName)
	_ = binary.Write(buf, binary.LittleEndian, data.KeyboardType)
	_ = binary.Write(buf, binary.LittleEndian, data.KeyboardSubType)
	_ = binary.Write(buf, binary.LittleEndian, data.KeyboardFunctionKey)
	_ = binary.Write(buf, binary.LittleEndian, data.ImeFileName)
	_ = binary.Write(buf, binary.LittleEndian, data.PostBeta2ColorDepth)
	_ = binary.Write(buf, binary.LittleEndian, data.ClientProductId)
	_ = binary.Write(buf, binary.LittleEndian, data.SerialNumber)
	_ = binary.Write(buf, binary.LittleEndian, data.HighColorDepth)
	_ = binary.Write(buf, binary.LittleEndian, data.SupportedColorDepths)
	_ = binary.Write(buf, binary.LittleEndian, data.EarlyCapabilityFlags)
	_ = binary.Write(buf, binary.LittleEndian, data.ClientDigProductId)
	_ = binary.Write(buf, binary.LittleEndian, data.ConnectionType)
	_ = binary.Write(buf, binary.LittleEndian, data.Pad1octet)
	_ = binary.Write(buf, binary.LittleEndian, data.ServerSelectedProtocol)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopPhysicalWidth)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopPhysicalHeight)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopOrientation)
	_ = binary.Write(buf, binary.LittleEndian, data.DesktopScaleFactor)
	_ = binary.Write(buf, binary.LittleEndian, data.DeviceScaleFactor)

	return buf.Bytes()
}

// Deserialize decodes the fixed-size fields of a CS_CORE block, up to the
// byte count declared by the header (dataLen); a server acceptor may see
// a shorter block from an older client and must tolerate that.
func (data *ClientCoreData) Deserialize(wire io.Reader, dataLen uint16) error {
	limited := io.LimitReader(wire, int64(dataLen))

	fields := []any{
		&data.Version, &data.DesktopWidth, &data.DesktopHeight, &data.ColorDepth,
		&data.SASSequence, &data.KeyboardLayout, &data.ClientBuild, &data.ClientName,
		&data.KeyboardType, &data.KeyboardSubType, &data.KeyboardFunctionKey, &data.ImeFileName,
		&data.PostBeta2ColorDepth, &data.ClientProductId, &data.SerialNumber, &data.HighColorDepth,
		&data.SupportedColorDepths, &data.EarlyCapabilityFlags, &data.ClientDigProductId,
		&data.ConnectionType, &data.Pad1octet, &data.ServerSelectedProtocol,
		&data.DesktopPhysicalWidth, &data.DesktopPhysicalHeight, &data.DesktopOrientation,
		&data.DesktopScaleFactor, &data.DeviceScaleFactor,
	}

	for _, f := range fields {
		if err := binary.Read(limited, binary.LittleEndian, f); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil // older client, optional tail fields absent
			}
			return err
		}
	}

	return nil
}

// Encryption method flags (MS-RDPBCGR 2.2.1.4.3).
const (
	EncryptionMethodFlag40Bit  uint32 = 0x00000001
	EncryptionMethodFlag128Bit uint32 = 0x00000002
	EncryptionMethodFlag56Bit  uint32 = 0x00000008
	EncryptionMethodFlagFIPS   uint32 = 0x00000010
)

// ClientSecurityData is TS_UD_CS_SEC (MS-RDPBCGR 2.2.1.3.3).
type ClientSecurityData struct {
	EncryptionMethods    uint32
	ExtEncryptionMethods uint32
}

// NewClientSecurityData builds a TS_UD_CS_SEC announcing no RDP Standard
// Security encryption, as is correct whenever TLS/CredSSP protects the
// connection.
func NewClientSecurityData() *ClientSecurityData {
	return &ClientSecurityData{}
}

func (data ClientSecurityData) Serialize() []byte {
	const dataLen uint16 = 12

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, csSecurity)
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	_ = binary.Write(buf, binary.LittleEndian, data.EncryptionMethods)
	_ = binary.Write(buf, binary.LittleEndian, data.ExtEncryptionMethods)

	return buf.Bytes()
}

func (data *ClientSecurityData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &data.EncryptionMethods); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &data.ExtEncryptionMethods)
}

// ChannelDefinitionStructure is CHANNEL_DEF (MS-RDPBCGR 2.2.1.3.4.1).
type ChannelDefinitionStructure struct {
	Name    [8]byte
	Options uint32
}

func (s ChannelDefinitionStructure) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s.Name)
	_ = binary.Write(buf, binary.LittleEndian, s.Options)
	return buf.Bytes()
}

func (s *ChannelDefinitionStructure) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &s.Name); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.Options)
}

// ClientNetworkData is TS_UD_CS_NET (MS-RDPBCGR 2.2.1.3.4).
type ClientNetworkData struct {
	ChannelCount    uint32
	ChannelDefArray []ChannelDefinitionStructure
}

// NewClientNetworkData builds a TS_UD_CS_NET requesting one static
// virtual channel per name given, in request order.
func NewClientNetworkData(channelNames []string) *ClientNetworkData {
	data := &ClientNetworkData{ChannelCount: uint32(len(channelNames))}

	for _, name := range channelNames {
		def := ChannelDefinitionStructure{}
		copy(def.Name[:], name)
		data.ChannelDefArray = append(data.ChannelDefArray, def)
	}

	return data
}

func (data ClientNetworkData) Serialize() []byte {
	const headerLen = 8

	chBuf := new(bytes.Buffer)
	for _, def := range data.ChannelDefArray {
		chBuf.Write(def.Serialize())
	}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, csNet)
	_ = binary.Write(buf, binary.LittleEndian, uint16(headerLen+chBuf.Len()))
	_ = binary.Write(buf, binary.LittleEndian, data.ChannelCount)
	buf.Write(chBuf.Bytes())

	return buf.Bytes()
}

func (data *ClientNetworkData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &data.ChannelCount); err != nil {
		return err
	}

	data.ChannelDefArray = make([]ChannelDefinitionStructure, data.ChannelCount)
	for i := range data.ChannelDefArray {
		if err := data.ChannelDefArray[i].Deserialize(wire); err != nil {
			return err
		}
	}

	return nil
}

// ClientClusterData is TS_UD_CS_CLUSTER (MS-RDPBCGR 2.2.1.3.5).
type ClientClusterData struct {
	Flags               uint32
	RedirectedSessionID uint32
}

func (d ClientClusterData) Serialize() []byte {
	const dataLen uint16 = 12

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, csCluster)
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	_ = binary.Write(buf, binary.LittleEndian, d.Flags)
	_ = binary.Write(buf, binary.LittleEndian, d.RedirectedSessionID)

	return buf.Bytes()
}

func (d *ClientClusterData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.Flags); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &d.RedirectedSessionID)
}

// ClientUserDataSet aggregates every client GCC user data block carried in
// a Conference-Create-Request.
type ClientUserDataSet struct {
	ClientCoreData     *ClientCoreData
	ClientSecurityData *ClientSecurityData
	ClientNetworkData  *ClientNetworkData
	ClientClusterData  *ClientClusterData
}

// NewClientUserDataSet builds the standard client user data set a client
// connector sends during Basic Settings Exchange.
func NewClientUserDataSet(selectedProtocol uint32, desktopWidth, desktopHeight uint16, colorDepth int, channelNames []string) *ClientUserDataSet {
	return &ClientUserDataSet{
		ClientCoreData:     NewClientCoreData(selectedProtocol, desktopWidth, desktopHeight, colorDepth),
		ClientSecurityData: NewClientSecurityData(),
		ClientNetworkData:  NewClientNetworkData(channelNames),
	}
}

func (ud ClientUserDataSet) Serialize() []byte {
	buf := new(bytes.Buffer)

	buf.Write(ud.ClientCoreData.Serialize())

	if ud.ClientClusterData != nil {
		buf.Write(ud.ClientClusterData.Serialize())
	}

	buf.Write(ud.ClientSecurityData.Serialize())
	buf.Write(ud.ClientNetworkData.Serialize())

	return buf.Bytes()
}

// Deserialize decodes a concatenated stream of client user data blocks, as
// found inside a server-acceptor-received Conference-Create-Request.
func (ud *ClientUserDataSet) Deserialize(wire io.Reader) error {
	var dataType, dataLen uint16

	for {
		if err := binary.Read(wire, binary.LittleEndian, &dataType); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := binary.Read(wire, binary.LittleEndian, &dataLen); err != nil {
			return err
		}

		dataLen -= 4

		switch dataType {
		case csCore:
			ud.ClientCoreData = &ClientCoreData{}
			if err := ud.ClientCoreData.Deserialize(wire, dataLen); err != nil {
				return err
			}
		case csSecurity:
			ud.ClientSecurityData = &ClientSecurityData{}
			if err := ud.ClientSecurityData.Deserialize(wire); err != nil {
				return err
			}
		case csNet:
			ud.ClientNetworkData = &ClientNetworkData{}
			if err := ud.ClientNetworkData.Deserialize(wire); err != nil {
				return err
			}
		case csCluster:
			ud.ClientClusterData = &ClientClusterData{}
			if err := ud.ClientClusterData.Deserialize(wire); err != nil {
				return err
			}
		default:
			return errUnknownDiscriminant("client user data block type")
		}
	}
}

// ServerCoreData is TS_UD_SC_CORE (MS-RDPBCGR 2.2.1.4.2).
type ServerCoreData struct {
	Version                  uint32
	ClientRequestedProtocols uint32
	EarlyCapabilityFlags     uint32

	DataLen uint16
}

func (d ServerCoreData) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, scCore)
	_ = binary.Write(buf, binary.LittleEndian, uint16(12))
	_ = binary.Write(buf, binary.LittleEndian, d.Version)
	_ = binary.Write(buf, binary.LittleEndian, d.ClientRequestedProtocols)
	_ = binary.Write(buf, binary.LittleEndian, d.EarlyCapabilityFlags)

	return buf.Bytes()
}

func (d *ServerCoreData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.Version); err != nil {
		return err
	}

	if d.DataLen == 4 {
		return nil
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.ClientRequestedProtocols); err != nil {
		return err
	}

	if d.DataLen == 8 {
		return nil
	}

	return binary.Read(wire, binary.LittleEndian, &d.EarlyCapabilityFlags)
}

// RSAPublicKey is RSA_PUBLIC_KEY (MS-RDPBCGR 2.2.1.4.3.1.1.1).
type RSAPublicKey struct {
	Magic   uint32
	KeyLen  uint32
	BitLen  uint32
	DataLen uint32
	PubExp  uint32
	Modulus []byte
}

func (k *RSAPublicKey) Deserialize(wire io.Reader) error {
	for _, f := range []any{&k.Magic, &k.KeyLen, &k.BitLen, &k.DataLen, &k.PubExp} {
		if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	k.Modulus = make([]byte, k.KeyLen)
	_, err := io.ReadFull(wire, k.Modulus)
	return err
}

// ServerProprietaryCertificate is the RDP proprietary certificate format
// (MS-RDPBCGR 2.2.1.4.3.1.1).
type ServerProprietaryCertificate struct {
	DwSigAlgId        uint32
	DwKeyAlgId        uint32
	PublicKeyBlobType uint16
	PublicKeyBlobLen  uint16
	PublicKeyBlob     RSAPublicKey
	SignatureBlobType uint16
	SignatureBlobLen  uint16
	SignatureBlob     []byte
}

func (c *ServerProprietaryCertificate) Deserialize(wire io.Reader) error {
	for _, f := range []any{&c.DwSigAlgId, &c.DwKeyAlgId, &c.PublicKeyBlobType, &c.PublicKeyBlobLen} {
		if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	if err := c.PublicKeyBlob.Deserialize(wire); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &c.SignatureBlobType); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &c.SignatureBlobLen); err != nil {
		return err
	}

	c.SignatureBlob = make([]byte, c.SignatureBlobLen)
	_, err := io.ReadFull(wire, c.SignatureBlob)
	return err
}

// ServerCertificate is the Server Certificate structure, either a
// proprietary self-signed certificate or an X.509 chain
// (MS-RDPBCGR 2.2.1.4.3.1).
type ServerCertificate struct {
	DwVersion       uint32
	ProprietaryCert *ServerProprietaryCertificate
	X509Cert        []byte

	ServerCertLen uint32
}

func (c *ServerCertificate) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &c.DwVersion); err != nil {
		return err
	}

	if c.DwVersion&0x00000001 == 0x00000001 {
		c.ProprietaryCert = &ServerProprietaryCertificate{}
		return c.ProprietaryCert.Deserialize(wire)
	}

	if c.ServerCertLen < 4 {
		return errInvalidLength("server certificate length underflow")
	}

	c.X509Cert = make([]byte, c.ServerCertLen-4)
	_, err := io.ReadFull(wire, c.X509Cert)
	return err
}

// ServerSecurityData is TS_UD_SC_SEC1 (MS-RDPBCGR 2.2.1.4.3).
type ServerSecurityData struct {
	EncryptionMethod  uint32
	EncryptionLevel   uint32
	ServerRandomLen   uint32
	ServerCertLen     uint32
	ServerRandom      []byte
	ServerCertificate *ServerCertificate
}

// NewServerSecurityData builds TS_UD_SC_SECURITY1 announcing no encryption,
// used by a server acceptor that relies on TLS or CredSSP for channel
// protection instead of RDP Standard Security's RC4 key exchange.
func NewServerSecurityData() *ServerSecurityData {
	return &ServerSecurityData{}
}

// Serialize encodes TS_UD_SC_SECURITY1. Only the no-encryption case
// (EncryptionMethod and EncryptionLevel both zero) is supported; a server
// acceptor that negotiated RDP Standard Security instead of TLS/CredSSP is
// out of scope for this layer.
func (d ServerSecurityData) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, scSecurity)
	_ = binary.Write(buf, binary.LittleEndian, uint16(12))
	_ = binary.Write(buf, binary.LittleEndian, d.EncryptionMethod)
	_ = binary.Write(buf, binary.LittleEndian, d.EncryptionLevel)

	return buf.Bytes()
}

func (d *ServerSecurityData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.EncryptionMethod); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.EncryptionLevel); err != nil {
		return err
	}

	if d.EncryptionMethod == 0 && d.EncryptionLevel == 0 {
		return nil
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.ServerRandomLen); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.ServerCertLen); err != nil {
		return err
	}

	d.ServerRandom = make([]byte, d.ServerRandomLen)
	if _, err := io.ReadFull(wire, d.ServerRandom); err != nil {
		return err
	}

	if d.ServerCertLen > 0 {
		d.ServerCertificate = &ServerCertificate{ServerCertLen: d.ServerCertLen}
		return d.ServerCertificate.Deserialize(wire)
	}

	return nil
}

// ServerNetworkData is TS_UD_SC_NET (MS-RDPBCGR 2.2.1.4.4): the
// server-assigned MCS I/O channel id and the per-virtual-channel ids,
// positionally matching the client's requested channel order.
type ServerNetworkData struct {
	MCSChannelId   uint16
	ChannelCount   uint16
	ChannelIdArray []uint16
}

func (d ServerNetworkData) Serialize() []byte {
	n := len(d.ChannelIdArray)
	padded := n%2 != 0

	bodyLen := 4 + n*2
	if padded {
		bodyLen += 2
	}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, scNet)
	_ = binary.Write(buf, binary.LittleEndian, uint16(4+bodyLen))
	_ = binary.Write(buf, binary.LittleEndian, d.MCSChannelId)
	_ = binary.Write(buf, binary.LittleEndian, uint16(n))

	for _, id := range d.ChannelIdArray {
		_ = binary.Write(buf, binary.LittleEndian, id)
	}

	if padded {
		buf.Write([]byte{0, 0})
	}

	return buf.Bytes()
}

func (d *ServerNetworkData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.MCSChannelId); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.ChannelCount); err != nil {
		return err
	}

	if d.ChannelCount == 0 {
		return nil
	}

	d.ChannelIdArray = make([]uint16, d.ChannelCount)
	if err := binary.Read(wire, binary.LittleEndian, &d.ChannelIdArray); err != nil {
		return err
	}

	if d.ChannelCount%2 == 0 {
		return nil
	}

	padding := make([]byte, 2)
	_, err := io.ReadFull(wire, padding)
	return err
}

// ServerMessageChannelData is TS_UD_SC_MCS_MSGCHANNEL (MS-RDPBCGR 2.2.1.4.5).
type ServerMessageChannelData struct {
	MCSChannelID uint16
}

// ServerMultitransportChannelData is TS_UD_SC_MULTITRANSPORT
// (MS-RDPBCGR 2.2.1.4.6).
type ServerMultitransportChannelData struct {
	Flags uint32
}

// ServerUserData aggregates every server GCC user data block carried in a
// Conference-Create-Response.
type ServerUserData struct {
	ServerCoreData                  *ServerCoreData
	ServerNetworkData               *ServerNetworkData
	ServerSecurityData              *ServerSecurityData
	ServerMessageChannelData        *ServerMessageChannelData
	ServerMultitransportChannelData *ServerMultitransportChannelData
}

func (ud ServerUserData) Serialize() []byte {
	buf := new(bytes.Buffer)

	if ud.ServerCoreData != nil {
		buf.Write(ud.ServerCoreData.Serialize())
	}

	if ud.ServerSecurityData != nil {
		buf.Write(ud.ServerSecurityData.Serialize())
	}

	if ud.ServerNetworkData != nil {
		buf.Write(ud.ServerNetworkData.Serialize())
	}

	return buf.Bytes()
}

func (ud *ServerUserData) Deserialize(wire io.Reader) error {
	var dataType, dataLen uint16

	for {
		err := binary.Read(wire, binary.LittleEndian, &dataType)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}

		if err = binary.Read(wire, binary.LittleEndian, &dataLen); err != nil {
			return err
		}

		dataLen -= 4

		switch dataType {
		case scCore:
			ud.ServerCoreData = &ServerCoreData{DataLen: dataLen}
			if err = ud.ServerCoreData.Deserialize(wire); err != nil {
				return err
			}
		case scSecurity:
			ud.ServerSecurityData = &ServerSecurityData{}
			if err = ud.ServerSecurityData.Deserialize(wire); err != nil {
				return err
			}
		case scNet:
			ud.ServerNetworkData = &ServerNetworkData{}
			if err = ud.ServerNetworkData.Deserialize(wire); err != nil {
				return err
			}
		case scMessageChannel:
			ud.ServerMessageChannelData = &ServerMessageChannelData{}
			if err = binary.Read(wire, binary.LittleEndian, &ud.ServerMessageChannelData.MCSChannelID); err != nil {
				return err
			}
		case scMultitransport:
			ud.ServerMultitransportChannelData = &ServerMultitransportChannelData{}
			if err = binary.Read(wire, binary.LittleEndian, &ud.ServerMultitransportChannelData.Flags); err != nil {
				return err
			}
		default:
			return errUnknownDiscriminant("server user data block type")
		}
	}
}
