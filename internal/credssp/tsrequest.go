// Package credssp implements the CredSSP/NLA authentication sub-sequence
// (MS-CSSP): the TSRequest ASN.1 DER codec, a pluggable credential-provider
// capability, and the sans-I/O state machine that drives the two peers
// through NegoToken, PubKeyAuth, ClientNonce and AuthInfo exchanges.
package credssp

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/rcarmo/rdp-handshake/internal/pdu/encoding"
)

// ClientServerHashMagic and ServerClientHashMagic are the fixed strings
// mixed into the SHA-256 binding hash used by TSRequest version 5+
// (MS-CSSP 3.1.5.1).
var (
	ClientServerHashMagic = []byte("CredSSP Client-To-Server Binding Hash\x00")
	ServerClientHashMagic = []byte("CredSSP Server-To-Client Binding Hash\x00")
)

// MinVersion is the lowest TSRequest version this sequence accepts from a
// peer before declaring the handshake unacceptable.
const MinVersion = 2

// ErrTSRequestTruncated is returned by DecodeTSRequest on malformed DER.
var ErrTSRequestTruncated = errors.New("credssp: truncated TSRequest")

// TSRequest is the decoded form of MS-CSSP's TSRequest structure.
//
//	TSRequest ::= SEQUENCE {
//	   version     [0] INTEGER,
//	   negoTokens  [1] SEQUENCE OF SEQUENCE { negoToken [0] OCTET STRING } OPTIONAL,
//	   authInfo    [2] OCTET STRING OPTIONAL,
//	   pubKeyAuth  [3] OCTET STRING OPTIONAL,
//	   errorCode   [4] INTEGER OPTIONAL,
//	   clientNonce [5] OCTET STRING OPTIONAL,
//	}
type TSRequest struct {
	Version     int
	NegoTokens  [][]byte
	AuthInfo    []byte
	PubKeyAuth  []byte
	ErrorCode   uint32
	ClientNonce []byte
}

// HasErrorCode reports whether the server signalled a fatal negotiation
// failure via the optional errorCode field.
func (r TSRequest) HasErrorCode() bool { return r.ErrorCode != 0 }

// Encode renders the request as DER, omitting every field left at its
// zero value the way the teacher's hand-rolled encoder does.
func (r TSRequest) Encode() []byte {
	inner := new(bytes.Buffer)

	inner.Write(contextTag(0, derInteger(r.Version)))

	if len(r.NegoTokens) > 0 {
		negoData := new(bytes.Buffer)
		for _, token := range r.NegoTokens {
			negoData.Write(derSequence(contextTag(0, derOctetString(token))))
		}
		inner.Write(contextTag(1, derSequence(negoData.Bytes())))
	}

	if len(r.AuthInfo) > 0 {
		inner.Write(contextTag(2, derOctetString(r.AuthInfo)))
	}

	if len(r.PubKeyAuth) > 0 {
		inner.Write(contextTag(3, derOctetString(r.PubKeyAuth)))
	}

	if r.ErrorCode != 0 {
		inner.Write(contextTag(4, derInteger(int(r.ErrorCode))))
	}

	if len(r.ClientNonce) > 0 {
		inner.Write(contextTag(5, derOctetString(r.ClientNonce)))
	}

	return derSequence(inner.Bytes())
}

// DecodeTSRequest parses a complete DER-encoded TSRequest.
func DecodeTSRequest(data []byte) (TSRequest, error) {
	var req TSRequest

	_, content, err := parseTag(data)
	if err != nil {
		return req, ErrTSRequestTruncated
	}

	offset := 0
	for offset < len(content) {
		tag, value, err := parseTag(content[offset:])
		if err != nil {
			return req, ErrTSRequestTruncated
		}

		switch tag & 0x1F {
		case 0:
			req.Version = int(parseDerInteger(value))
		case 1:
			tokens, err := parseNegoTokens(value)
			if err != nil {
				return req, err
			}
			req.NegoTokens = tokens
		case 2:
			if req.AuthInfo, err = unwrapOctetString(value); err != nil {
				return req, err
			}
		case 3:
			if req.PubKeyAuth, err = unwrapOctetString(value); err != nil {
				return req, err
			}
		case 4:
			req.ErrorCode = uint32(parseDerInteger(value))
		case 5:
			if req.ClientNonce, err = unwrapOctetString(value); err != nil {
				return req, err
			}
		}

		offset += tagSpan(content[offset:])
	}

	return req, nil
}

// BindPublicKey computes the value the client places in pubKeyAuth for the
// given TSRequest version. Versions below 5 send the raw public key (the
// caller is responsible for encrypting it under the negotiated context);
// version 5+ binds it to nonce via the MS-CSSP SHA-256 hash construction.
func BindPublicKey(version int, pubKey, nonce []byte) []byte {
	if version >= 5 && len(nonce) > 0 {
		h := sha256.New()
		h.Write(ClientServerHashMagic)
		h.Write(nonce)
		h.Write(pubKey)
		return h.Sum(nil)
	}
	return pubKey
}

// EchoPublicKey computes the value a server places in pubKeyAuth in
// response to the client's bound public key: versions below 5 increment
// the key's first byte; version 5+ rebinds via the server-to-client hash
// magic, exactly what VerifyServerBinding checks for on the client side.
func EchoPublicKey(version int, pubKey, nonce []byte) []byte {
	if version >= 5 && len(nonce) > 0 {
		h := sha256.New()
		h.Write(ServerClientHashMagic)
		h.Write(nonce)
		h.Write(pubKey)
		return h.Sum(nil)
	}

	echoed := make([]byte, len(pubKey))
	copy(echoed, pubKey)
	if len(echoed) > 0 {
		echoed[0]++
	}
	return echoed
}

// VerifyServerBinding validates the server's pubKeyAuth echo against the
// client's sent value, per MS-CSSP 3.1.5.1: versions below 5 increment the
// first byte of the public key; version 5+ rebinds via the server-to-client
// hash magic.
func VerifyServerBinding(version int, serverPubKeyAuth, clientPubKey, nonce []byte) bool {
	if version >= 5 && len(nonce) > 0 {
		h := sha256.New()
		h.Write(ServerClientHashMagic)
		h.Write(nonce)
		h.Write(clientPubKey)
		return bytes.Equal(serverPubKeyAuth, h.Sum(nil))
	}

	if len(serverPubKeyAuth) != len(clientPubKey) || len(clientPubKey) == 0 {
		return false
	}

	expected := make([]byte, len(clientPubKey))
	copy(expected, clientPubKey)
	expected[0]++
	return bytes.Equal(serverPubKeyAuth, expected)
}

// EncodeTSCredentials encodes TSCredentials carrying a TSPasswordCreds,
// the payload of a TSRequest's authInfo field once encrypted under the
// negotiated security context.
func EncodeTSCredentials(domain, username, password []byte) []byte {
	passwordCreds := derSequence(concat(
		contextTag(0, derOctetString(domain)),
		contextTag(1, derOctetString(username)),
		contextTag(2, derOctetString(password)),
	))

	return derSequence(concat(
		contextTag(0, derInteger(1)), // credType: 1 == password
		contextTag(1, derOctetString(passwordCreds)),
	))
}

// DER encode helpers. CredSSP's context tags are constructed
// (0xA0|tag), distinct from the plain BER primitives internal/pdu/encoding
// exposes for the handshake PDUs, so this package keeps its own.

func derSequence(data []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(0x30)
	encoding.BerWriteLength(len(data), buf)
	buf.Write(data)
	return buf.Bytes()
}

func contextTag(tag int, data []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(0xA0 | byte(tag))
	encoding.BerWriteLength(len(data), buf)
	buf.Write(data)
	return buf.Bytes()
}

func derOctetString(data []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(0x04)
	encoding.BerWriteLength(len(data), buf)
	buf.Write(data)
	return buf.Bytes()
}

func derInteger(val int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(0x02)
	switch {
	case val < 128:
		buf.WriteByte(1)
		buf.WriteByte(byte(val))
	case val < 256:
		buf.WriteByte(2)
		buf.WriteByte(0)
		buf.WriteByte(byte(val))
	default:
		var b []byte
		for v := uint64(val); v > 0; v >>= 8 {
			b = append([]byte{byte(v)}, b...)
		}
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		buf.WriteByte(byte(len(b)))
		buf.Write(b)
	}
	return buf.Bytes()
}

func concat(parts ...[]byte) []byte {
	buf := new(bytes.Buffer)
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

// DER decode helpers, tolerant of the short and long length forms DER
// allows and nothing else (CredSSP never emits indefinite length).

func parseTag(data []byte) (byte, []byte, error) {
	if len(data) < 2 {
		return 0, nil, ErrTSRequestTruncated
	}

	tag := data[0]
	lenByte := data[1]
	offset := 2
	length := 0

	if lenByte < 128 {
		length = int(lenByte)
	} else {
		numBytes := int(lenByte & 0x7F)
		if offset+numBytes > len(data) {
			return 0, nil, ErrTSRequestTruncated
		}
		for i := 0; i < numBytes; i++ {
			length = (length << 8) | int(data[offset])
			offset++
		}
	}

	if offset+length > len(data) {
		return 0, nil, ErrTSRequestTruncated
	}

	return tag, data[offset : offset+length], nil
}

func tagSpan(data []byte) int {
	if len(data) < 2 {
		return len(data)
	}

	lenByte := data[1]
	offset := 2
	length := 0

	if lenByte < 128 {
		length = int(lenByte)
	} else {
		numBytes := int(lenByte & 0x7F)
		offset += numBytes
		for i := 0; i < numBytes && 2+i < len(data); i++ {
			length = (length << 8) | int(data[2+i])
		}
	}

	return offset + length
}

func parseDerInteger(data []byte) int64 {
	_, value, err := parseTag(data)
	if err != nil || len(value) == 0 {
		return 0
	}

	var result int64
	for _, b := range value {
		result = (result << 8) | int64(b)
	}
	return result
}

func unwrapOctetString(data []byte) ([]byte, error) {
	_, inner, err := parseTag(data)
	if err != nil {
		return nil, ErrTSRequestTruncated
	}
	return inner, nil
}

func parseNegoTokens(data []byte) ([][]byte, error) {
	_, content, err := parseTag(data)
	if err != nil {
		return nil, ErrTSRequestTruncated
	}

	var tokens [][]byte
	offset := 0
	for offset < len(content) {
		_, item, err := parseTag(content[offset:])
		if err != nil {
			return nil, ErrTSRequestTruncated
		}

		_, wrapped, err := parseTag(item)
		if err == nil {
			if octet, err := unwrapOctetString(wrapped); err == nil {
				tokens = append(tokens, octet)
			}
		}

		offset += tagSpan(content[offset:])
	}

	return tokens, nil
}
