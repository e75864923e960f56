// Package ntlm provides an NTLMv2 credssp.CredentialProvider, adapted from
// the teacher's blocking auth.NTLMv2 into the suspend-free two-round
// Initialize/Process/AuthInfo shape the CredSSP sequence drives.
package ntlm

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4"

	"github.com/rcarmo/rdp-handshake/internal/credssp"
)

// NTLM_NEGOTIATE flags this provider sets on its Negotiate message.
const (
	negotiateKeyExch               = 0x40000000
	negotiate128                   = 0x20000000
	negotiateVersion                = 0x02000000
	negotiateExtendedSessionSecurity = 0x00080000
	negotiateAlwaysSign             = 0x00008000
	negotiateNTLM                   = 0x00000200
	negotiateSeal                   = 0x00000020
	negotiateSign                   = 0x00000010
	requestTarget                   = 0x00000004
	negotiateUnicode                = 0x00000001
)

const (
	avEOL       = 0x0000
	avFlags     = 0x0006
	avTimestamp = 0x0007
)

var signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0x00}

// Provider is a credssp.CredentialProvider backed by NTLMv2 over a
// username/password pair, exactly the authentication method MS-CSSP's
// TSPasswordCreds carries.
type Provider struct {
	Domain   string
	User     string
	Password string
}

// New builds an NTLMv2 credential provider for the given credentials.
func New(domain, user, password string) *Provider {
	return &Provider{Domain: domain, User: user, Password: password}
}

type phase int

const (
	phaseNegotiate phase = iota
	phaseAuthenticate
	phaseDone
)

type authCtx struct {
	respKeyNT []byte
	respKeyLM []byte
	unicode   bool

	phase        phase
	negotiateMsg []byte
	challenge    *challengeMessage

	sealKey []byte
	seqNum  uint32
}

// Initialize starts a fresh NTLMv2 negotiation. clientNonceRequired has no
// effect on the NTLM exchange itself; the CredSSP sequence takes the
// pubKeyAuth ClientNonce from its own Config.
func (p *Provider) Initialize(targetName string, clientNonceRequired bool) (credssp.Ctx, error) {
	return &authCtx{
		respKeyNT: ntowfv2(p.Password, p.User, p.Domain),
		respKeyLM: ntowfv2(p.Password, p.User, p.Domain),
	}, nil
}

// Process drives the two-message NTLMv2 exchange: an empty/nil incoming
// produces the Negotiate message; the server's Challenge message produces
// the final Authenticate message and completes the provider's side.
func (p *Provider) Process(ctx credssp.Ctx, incoming []byte) (credssp.Step, error) {
	c, ok := ctx.(*authCtx)
	if !ok {
		return credssp.Step{}, errors.New("ntlm: wrong context type")
	}

	switch c.phase {
	case phaseNegotiate:
		msg := negotiateMessage()
		c.negotiateMsg = msg
		c.phase = phaseAuthenticate
		return credssp.Emit(msg, false), nil

	case phaseAuthenticate:
		challenge, err := parseChallengeMessage(incoming)
		if err != nil {
			return credssp.Step{}, err
		}
		c.challenge = challenge
		c.unicode = challenge.negotiateFlags&negotiateUnicode != 0

		authMsg, sealKey, err := p.buildAuthenticate(c, challenge)
		if err != nil {
			return credssp.Step{}, err
		}
		c.sealKey = sealKey
		c.phase = phaseDone

		return credssp.Emit(authMsg, true), nil
	}

	return credssp.Step{}, errors.New("ntlm: Process called after completion")
}

// AuthInfo seals the password credentials for the final TSRequest's
// authInfo field, encrypted under the session key this provider derived
// while building the Authenticate message.
func (p *Provider) AuthInfo(ctx credssp.Ctx) ([]byte, error) {
	c, ok := ctx.(*authCtx)
	if !ok || c.phase != phaseDone {
		return nil, credssp.ErrProviderNotReady
	}

	plain := credssp.EncodeTSCredentials(unicodeEncode(p.Domain), unicodeEncode(p.User), unicodeEncode(p.Password))
	return gssSeal(c.sealKey, &c.seqNum, plain), nil
}

func negotiateMessage() []byte {
	flags := uint32(negotiateKeyExch | negotiate128 | negotiateExtendedSessionSecurity |
		negotiateAlwaysSign | negotiateNTLM | negotiateSeal | negotiateSign |
		requestTarget | negotiateUnicode | negotiateVersion)

	buf := new(bytes.Buffer)
	buf.Write(signature)
	_ = binary.Write(buf, binary.LittleEndian, uint32(1))
	_ = binary.Write(buf, binary.LittleEndian, flags)
	buf.Write(make([]byte, 16)) // DomainNameFields + WorkstationFields, both empty
	buf.Write([]byte{0x06, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0F})
	return buf.Bytes()
}

type challengeMessage struct {
	negotiateFlags uint32
	serverChallenge [8]byte
	targetInfo     []byte
	timestamp      []byte
	raw            []byte
}

func parseChallengeMessage(data []byte) (*challengeMessage, error) {
	if len(data) < 32 {
		return nil, errors.New("ntlm: challenge message too short")
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	offset := 12 // signature(8) + messageType(4)
	offset += 8  // TargetNameFields (len/maxlen/offset)

	flags := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	var challenge [8]byte
	copy(challenge[:], data[offset:offset+8])
	offset += 8
	offset += 8 // reserved

	if offset+8 > len(data) {
		return &challengeMessage{negotiateFlags: flags, serverChallenge: challenge, raw: raw}, nil
	}

	targetInfoLen := binary.LittleEndian.Uint16(data[offset:])
	offset += 4 // skip MaxLen too
	targetInfoOffset := binary.LittleEndian.Uint32(data[offset:])

	msg := &challengeMessage{negotiateFlags: flags, serverChallenge: challenge, raw: raw}

	if targetInfoLen > 0 && int(targetInfoOffset)+int(targetInfoLen) <= len(data) {
		msg.targetInfo = data[targetInfoOffset : targetInfoOffset+uint32(targetInfoLen)]
		msg.timestamp = extractTimestamp(msg.targetInfo)
	}

	return msg, nil
}

func extractTimestamp(targetInfo []byte) []byte {
	offset := 0
	for offset+4 <= len(targetInfo) {
		avID := binary.LittleEndian.Uint16(targetInfo[offset:])
		avLen := binary.LittleEndian.Uint16(targetInfo[offset+2:])
		offset += 4

		if avID == avEOL {
			break
		}
		if avID == avTimestamp && avLen == 8 && offset+8 <= len(targetInfo) {
			return targetInfo[offset : offset+8]
		}
		offset += int(avLen)
	}
	return nil
}

// withMICFlag returns targetInfo with MsvAvFlags' MIC_PROVIDED bit set,
// inserting the AV pair before MsvAvEOL when absent, per MS-NLMP 3.1.5.1.2.
func withMICFlag(targetInfo []byte) []byte {
	if len(targetInfo) == 0 {
		return targetInfo
	}

	flagsOffset, eolOffset := -1, -1
	offset := 0
	for offset+4 <= len(targetInfo) {
		avID := binary.LittleEndian.Uint16(targetInfo[offset:])
		avLen := binary.LittleEndian.Uint16(targetInfo[offset+2:])
		if avID == avFlags {
			flagsOffset = offset
		}
		if avID == avEOL {
			eolOffset = offset
			break
		}
		offset += 4 + int(avLen)
	}

	result := make([]byte, len(targetInfo))
	copy(result, targetInfo)

	switch {
	case flagsOffset >= 0:
		existing := binary.LittleEndian.Uint32(result[flagsOffset+4:])
		binary.LittleEndian.PutUint32(result[flagsOffset+4:], existing|0x02)
	case eolOffset >= 0:
		pair := make([]byte, 8)
		binary.LittleEndian.PutUint16(pair[0:], avFlags)
		binary.LittleEndian.PutUint16(pair[2:], 4)
		binary.LittleEndian.PutUint32(pair[4:], 0x02)
		result = append(result[:eolOffset], append(pair, result[eolOffset:]...)...)
	}

	return result
}

func (p *Provider) buildAuthenticate(c *authCtx, challenge *challengeMessage) ([]byte, []byte, error) {
	computeMIC := challenge.timestamp != nil

	timestamp := challenge.timestamp
	if timestamp == nil {
		timestamp = makeTimestamp()
	}

	clientChallenge := make([]byte, 8)
	if _, err := rand.Read(clientChallenge); err != nil {
		return nil, nil, err
	}

	targetInfo := challenge.targetInfo
	if computeMIC {
		targetInfo = withMICFlag(targetInfo)
	}

	ntResponse, lmResponse, sessionBaseKey := computeResponseV2(c.respKeyNT, c.respKeyLM,
		challenge.serverChallenge[:], clientChallenge, timestamp, targetInfo)

	exportedSessionKey := make([]byte, 16)
	if _, err := rand.Read(exportedSessionKey); err != nil {
		return nil, nil, err
	}

	encryptedSessionKey := make([]byte, 16)
	rc, err := rc4.NewCipher(sessionBaseKey)
	if err != nil {
		return nil, nil, err
	}
	rc.XORKeyStream(encryptedSessionKey, exportedSessionKey)

	domain, user := []byte(p.Domain), []byte(p.User)
	if c.unicode {
		domain, user = unicodeEncode(p.Domain), unicodeEncode(p.User)
	}

	authMsg := buildAuthenticateMessage(challenge.negotiateFlags, domain, user, nil,
		lmResponse, ntResponse, encryptedSessionKey)

	if computeMIC {
		mic := computeMIC_(exportedSessionKey, c.negotiateMsg, challenge.raw, authMsg)
		copy(authMsg[72:88], mic)
	}

	clientSealingKey := md5Hash(append(append([]byte{}, exportedSessionKey...),
		append([]byte("session key to client-to-server sealing key magic constant"), 0x00)...))

	return authMsg, clientSealingKey, nil
}

func computeResponseV2(respKeyNT, respKeyLM, serverChallenge, clientChallenge, timestamp, targetInfo []byte) (ntResponse, lmResponse, sessionBaseKey []byte) {
	temp := new(bytes.Buffer)
	temp.Write([]byte{0x01, 0x01})
	temp.Write(make([]byte, 6))
	temp.Write(timestamp)
	temp.Write(clientChallenge)
	temp.Write(make([]byte, 4))
	temp.Write(targetInfo)
	temp.Write(make([]byte, 4))

	ntProofStr := hmacMD5(respKeyNT, append(append([]byte{}, serverChallenge...), temp.Bytes()...))
	ntResponse = append(append([]byte{}, ntProofStr...), temp.Bytes()...)
	lmResponse = append(hmacMD5(respKeyLM, append(append([]byte{}, serverChallenge...), clientChallenge...)), clientChallenge...)
	sessionBaseKey = hmacMD5(respKeyNT, ntProofStr)

	return ntResponse, lmResponse, sessionBaseKey
}

func buildAuthenticateMessage(flags uint32, domain, user, workstation, lmResponse, ntResponse, encryptedKey []byte) []byte {
	const payloadOffset = uint32(88)

	buf := new(bytes.Buffer)
	buf.Write(signature)
	_ = binary.Write(buf, binary.LittleEndian, uint32(3))

	offset := payloadOffset
	writeField := func(data []byte) {
		_ = binary.Write(buf, binary.LittleEndian, uint16(len(data)))
		_ = binary.Write(buf, binary.LittleEndian, uint16(len(data)))
		_ = binary.Write(buf, binary.LittleEndian, offset)
		offset += uint32(len(data))
	}

	writeField(lmResponse)
	writeField(ntResponse)
	writeField(domain)
	writeField(user)
	writeField(workstation)
	writeField(encryptedKey)

	_ = binary.Write(buf, binary.LittleEndian, flags)
	buf.Write([]byte{0x06, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0F})
	buf.Write(make([]byte, 16)) // MIC, filled in afterward when required

	buf.Write(lmResponse)
	buf.Write(ntResponse)
	buf.Write(domain)
	buf.Write(user)
	buf.Write(workstation)
	buf.Write(encryptedKey)

	return buf.Bytes()
}

func computeMIC_(exportedSessionKey, negotiateMsg, challengeRaw, authMsg []byte) []byte {
	zeroed := make([]byte, len(authMsg))
	copy(zeroed, authMsg)
	for i := 72; i < 88 && i < len(zeroed); i++ {
		zeroed[i] = 0
	}

	buf := new(bytes.Buffer)
	buf.Write(negotiateMsg)
	buf.Write(challengeRaw)
	buf.Write(zeroed)
	return hmacMD5(exportedSessionKey, buf.Bytes())[:16]
}

// gssSeal encrypts data under NTLM's sealing key, per MS-NLMP's
// extended-session-security GSS_WrapEx: encrypt first, then seal a
// signature computed over the plaintext.
func gssSeal(sealKey []byte, seqNum *uint32, data []byte) []byte {
	rc, _ := rc4.NewCipher(sealKey)

	encrypted := make([]byte, len(data))
	rc.XORKeyStream(encrypted, data)

	seqBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(seqBuf, *seqNum)

	sig := hmacMD5(sealKey, append(seqBuf, data...))[:8]
	checksum := make([]byte, 8)
	rc.XORKeyStream(checksum, sig)

	out := new(bytes.Buffer)
	_ = binary.Write(out, binary.LittleEndian, uint32(1))
	out.Write(checksum)
	_ = binary.Write(out, binary.LittleEndian, *seqNum)
	out.Write(encrypted)

	*seqNum++
	return out.Bytes()
}

func unicodeEncode(s string) []byte {
	runes := utf16.Encode([]rune(s))
	result := make([]byte, len(runes)*2)
	for i, r := range runes {
		binary.LittleEndian.PutUint16(result[i*2:], r)
	}
	return result
}

func ntowfv2(password, user, domain string) []byte {
	h := md4.New()
	h.Write(unicodeEncode(password))
	passHash := h.Sum(nil)
	return hmacMD5(passHash, unicodeEncode(toUpper(user)+domain))
}

func hmacMD5(key, data []byte) []byte {
	h := hmac.New(md5.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func md5Hash(data []byte) []byte {
	h := md5.Sum(data)
	return h[:]
}

func makeTimestamp() []byte {
	ft := uint64(time.Now().UnixNano())/100 + 116444736000000000
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, ft)
	return buf
}

func toUpper(s string) string {
	result := make([]rune, len(s))
	for i, r := range s {
		if r >= 'a' && r <= 'z' {
			r -= 32
		}
		result[i] = r
	}
	return string(result)
}
