// Package ws drives the sans-I/O client connector over a browser-facing
// WebSocket connection, the counterpart to internal/transport/tcp for
// deployments that tunnel RDP through a WebSocket proxy the way the
// teacher's internal/pkg/handler.Connect bridges a browser WebSocket to
// an RDP backend.
package ws

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/rdp-handshake/internal/connector"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/logging"
	"github.com/rcarmo/rdp-handshake/internal/transport/tcp"
)

// DialOptions controls the WebSocket transport independently of the
// connector's own protocol-level Config.
type DialOptions struct {
	// HandshakeTimeout bounds the WebSocket upgrade, and also every
	// read/write performed while driving the connector when
	// Transport.HandshakeTimeout is zero. Zero means no timeout.
	HandshakeTimeout time.Duration

	// Header carries additional headers for the upgrade request, e.g.
	// Sec-WebSocket-Protocol, mirroring the teacher's handler.Connect.
	Header http.Header

	// Transport configures the TLS upgrade performed by the connector
	// once the RDP handshake requests it over the tunneled byte stream.
	Transport tcp.DialOptions
}

// Connect dials the WebSocket endpoint at rawURL, wraps it as a byte
// stream net.Conn via (*websocket.Conn).NetConn, and drives cfg's
// ClientConnector over it exactly as internal/transport/tcp does over a
// raw TCP socket.
func Connect(rawURL string, cfg connector.Config, provider credssp.CredentialProvider, opts DialOptions) (net.Conn, *connector.ConnectionResult, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   8192,
		WriteBufferSize:  8192 * 2,
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}

	wsConn, _, err := dialer.Dial(u.String(), opts.Header)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug("ws: connected to %s", rawURL)

	conn := wsConn.NetConn()

	transportOpts := opts.Transport.WithDefaults(u.Hostname())
	if transportOpts.HandshakeTimeout == 0 {
		transportOpts.HandshakeTimeout = opts.HandshakeTimeout
	}

	c := connector.New(cfg, provider)

	result, err := tcp.Drive(conn, c, transportOpts)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return conn, result, nil
}
