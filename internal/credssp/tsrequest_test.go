package credssp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTSRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  TSRequest
	}{
		{
			name: "version only",
			req:  TSRequest{Version: 6},
		},
		{
			name: "nego tokens",
			req:  TSRequest{Version: 6, NegoTokens: [][]byte{[]byte("token-one"), []byte("token-two")}},
		},
		{
			name: "pub key auth with client nonce",
			req:  TSRequest{Version: 6, PubKeyAuth: []byte{0x01, 0x02, 0x03}, ClientNonce: make([]byte, 32)},
		},
		{
			name: "auth info",
			req:  TSRequest{Version: 6, AuthInfo: []byte("sealed-credentials")},
		},
		{
			name: "error code",
			req:  TSRequest{Version: 6, ErrorCode: 0x80090308},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.req.Encode()
			decoded, err := DecodeTSRequest(encoded)
			require.NoError(t, err)

			require.Equal(t, tt.req.Version, decoded.Version)
			require.Equal(t, tt.req.AuthInfo, decoded.AuthInfo)
			require.Equal(t, tt.req.PubKeyAuth, decoded.PubKeyAuth)
			require.Equal(t, tt.req.ClientNonce, decoded.ClientNonce)
			require.Equal(t, tt.req.ErrorCode, decoded.ErrorCode)

			if len(tt.req.NegoTokens) == 0 {
				require.Empty(t, decoded.NegoTokens)
			} else {
				require.Equal(t, tt.req.NegoTokens, decoded.NegoTokens)
			}
		})
	}
}

func TestDecodeTSRequestTruncated(t *testing.T) {
	_, err := DecodeTSRequest([]byte{0x30, 0x05, 0x02, 0x01})
	require.ErrorIs(t, err, ErrTSRequestTruncated)
}

func TestBindPublicKeyVersion4IsRawKey(t *testing.T) {
	pubKey := []byte{0xAA, 0xBB, 0xCC}
	require.Equal(t, pubKey, BindPublicKey(4, pubKey, nil))
}

func TestBindPublicKeyVersion6HashesWithNonce(t *testing.T) {
	pubKey := []byte{0xAA, 0xBB, 0xCC}
	nonce := make([]byte, 32)
	bound := BindPublicKey(6, pubKey, nonce)
	require.Len(t, bound, 32) // sha256 digest size
	require.NotEqual(t, pubKey, bound)
}

func TestVerifyServerBindingVersion4Increment(t *testing.T) {
	clientKey := []byte{0x01, 0x02, 0x03}
	serverEcho := []byte{0x02, 0x02, 0x03}
	require.True(t, VerifyServerBinding(4, serverEcho, clientKey, nil))
}

func TestVerifyServerBindingVersion4RejectsUnmodifiedEcho(t *testing.T) {
	clientKey := []byte{0x01, 0x02, 0x03}
	require.False(t, VerifyServerBinding(4, clientKey, clientKey, nil))
}

func TestVerifyServerBindingVersion6(t *testing.T) {
	clientKey := []byte{0xAA, 0xBB, 0xCC}
	nonce := make([]byte, 32)
	serverSide := BindPublicKey(6, clientKey, nonce) // symmetric-looking magic swap tested below

	// The server computes its own hash with ServerClientHashMagic, not
	// ClientServerHashMagic, so a naive echo of BindPublicKey's client-side
	// value must NOT verify.
	require.False(t, VerifyServerBinding(6, serverSide, clientKey, nonce))
}

func TestEncodeTSCredentialsProducesDERSequence(t *testing.T) {
	encoded := EncodeTSCredentials([]byte("DOMAIN"), []byte("user"), []byte("pass"))
	require.NotEmpty(t, encoded)
	require.Equal(t, byte(0x30), encoded[0])
}
