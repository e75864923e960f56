// Package arbiter implements the channel and capability arbitration rules
// the connector and acceptor invoke during Basic Settings Exchange and
// Capabilities Exchange: composing and reconciling the GCC CS_NET/SC_NET
// blocks, and intersecting demanded capability sets against local
// configuration per MS-RDPBCGR's per-type rules.
package arbiter

import (
	"github.com/rcarmo/rdp-handshake/internal/pdu"
)

// InvalidChannelID is the reserved sentinel SC_NET uses in a channel id
// slot the server could not or would not allocate.
const InvalidChannelID uint16 = 0

// RejectedChannel describes why a requested static channel did not make it
// into the final ChannelSet.
type RejectedChannel struct {
	Name   string
	Reason string
}

// ChannelSet maps a requested static channel's short name to the runtime
// id the server assigned it.
type ChannelSet map[string]uint16

// ComposeClientNetBlock builds the TS_UD_CS_NET client network data block
// requesting one static virtual channel per name, in request order.
// Channel option flags default to CHANNEL_OPTION_INITIALIZED |
// CHANNEL_OPTION_ENCRYPT_RDP, matching what every modern client announces.
func ComposeClientNetBlock(requestedChannels []string) []byte {
	const (
		channelOptionInitialized = 0x80000000
		channelOptionEncryptRDP  = 0x40000000
	)

	net := pdu.NewClientNetworkData(requestedChannels)
	for i := range net.ChannelDefArray {
		net.ChannelDefArray[i].Options = channelOptionInitialized | channelOptionEncryptRDP
	}

	return net.Serialize()
}

// ReconcileServerNetBlock matches the server's SC_NET response against the
// channel names the client requested, using positional correspondence: the
// nth requested channel's assigned id is the nth entry in scNet's
// ChannelIdArray. A slot carrying InvalidChannelID, or a request for which
// the server returned no slot at all (the server supports fewer channels
// than were requested), is excluded from the joined set and reported as
// rejected instead.
func ReconcileServerNetBlock(requestedChannels []string, scNet pdu.ServerNetworkData) (ChannelSet, []RejectedChannel) {
	joined := make(ChannelSet, len(requestedChannels))
	var rejected []RejectedChannel

	for i, name := range requestedChannels {
		if i >= len(scNet.ChannelIdArray) {
			rejected = append(rejected, RejectedChannel{Name: name, Reason: "not supported by server"})
			continue
		}

		id := scNet.ChannelIdArray[i]
		if id == InvalidChannelID {
			rejected = append(rejected, RejectedChannel{Name: name, Reason: "invalid id"})
			continue
		}

		joined[name] = id
	}

	return joined, rejected
}
