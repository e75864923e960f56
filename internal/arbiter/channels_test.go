package arbiter_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/rdp-handshake/internal/arbiter"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
)

func TestComposeClientNetBlockRequestsOneChannelPerName(t *testing.T) {
	blob := arbiter.ComposeClientNetBlock([]string{"rdpdr", "cliprdr"})

	// The first four bytes are the TS_UD_CS_NET TLV header (type, length);
	// ClientNetworkData.Deserialize expects those already consumed, the
	// way ClientUserDataSet's block-dispatch loop consumes them.
	var headerType, headerLen uint16
	r := bytes.NewReader(blob)
	require.NoError(t, binary.Read(r, binary.LittleEndian, &headerType))
	require.NoError(t, binary.Read(r, binary.LittleEndian, &headerLen))

	var net pdu.ClientNetworkData
	require.NoError(t, net.Deserialize(r))
	require.Equal(t, uint32(2), net.ChannelCount)
	require.Equal(t, "rdpdr", trimZero(net.ChannelDefArray[0].Name))
	require.Equal(t, "cliprdr", trimZero(net.ChannelDefArray[1].Name))
}

func TestReconcileServerNetBlockPositionalCorrespondence(t *testing.T) {
	requested := []string{"rdpdr", "cliprdr"}
	scNet := pdu.ServerNetworkData{
		MCSChannelId:   1003,
		ChannelIdArray: []uint16{1004, 1005},
	}

	joined, rejected := arbiter.ReconcileServerNetBlock(requested, scNet)

	require.Equal(t, arbiter.ChannelSet{"rdpdr": 1004, "cliprdr": 1005}, joined)
	require.Empty(t, rejected)
}

func TestReconcileServerNetBlockOverflowIsSilentlyDropped(t *testing.T) {
	requested := []string{"rdpdr", "cliprdr", "bogus01"}
	scNet := pdu.ServerNetworkData{
		ChannelIdArray: []uint16{1004, 1005},
	}

	joined, rejected := arbiter.ReconcileServerNetBlock(requested, scNet)

	require.Equal(t, arbiter.ChannelSet{"rdpdr": 1004, "cliprdr": 1005}, joined)
	require.Equal(t, []arbiter.RejectedChannel{{Name: "bogus01", Reason: "not supported by server"}}, rejected)
}

func TestReconcileServerNetBlockInvalidIDSentinel(t *testing.T) {
	requested := []string{"rdpdr", "cliprdr"}
	scNet := pdu.ServerNetworkData{
		ChannelIdArray: []uint16{1004, arbiter.InvalidChannelID},
	}

	joined, rejected := arbiter.ReconcileServerNetBlock(requested, scNet)

	require.Equal(t, arbiter.ChannelSet{"rdpdr": 1004}, joined)
	require.Equal(t, []arbiter.RejectedChannel{{Name: "cliprdr", Reason: "invalid id"}}, rejected)
}

func trimZero(name [8]byte) string {
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return string(name[:n])
}
