// Package tcp drives the sans-I/O client connector over a real net.Conn,
// generalizing the teacher's Client.StartTLS/bufio.Reader pairing
// (internal/rdp/tls.go, internal/rdp/client.go) into a transport that feeds
// bytes through internal/framed.Buffer instead of owning protocol state
// itself.
package tcp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rcarmo/rdp-handshake/internal/connector"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/framed"
	"github.com/rcarmo/rdp-handshake/internal/logging"
	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// DialOptions controls the TCP/TLS transport independently of the
// connector's own protocol-level Config.
type DialOptions struct {
	// DialTimeout bounds the initial TCP connect. Zero means no timeout.
	DialTimeout time.Duration

	// HandshakeTimeout bounds both the TLS handshake and every
	// individual read/write performed while driving the connector.
	// Zero means no timeout.
	HandshakeTimeout time.Duration

	// TLS is used as-is for the enhanced security upgrade, except that
	// ServerName is defaulted from the dial address's host when empty.
	TLS *tls.Config
}

// WithDefaults fills in a nil TLS config and defaults its ServerName from
// host, exported so other transports can normalize DialOptions the same
// way before calling Drive.
func (o DialOptions) WithDefaults(host string) DialOptions {
	if o.TLS == nil {
		o.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if o.TLS.ServerName == "" {
		tlsConfig := o.TLS.Clone()
		tlsConfig.ServerName = host
		o.TLS = tlsConfig
	}
	return o
}

// Connect dials addr, drives cfg's ClientConnector through negotiation,
// an optional TLS upgrade, an optional CredSSP exchange via provider, and
// the remainder of the RDP handshake, and returns the established
// connection alongside the negotiated result. The caller owns the
// returned net.Conn once Connect returns; closing it tears down the
// session.
func Connect(addr string, cfg connector.Config, provider credssp.CredentialProvider, opts DialOptions) (net.Conn, *connector.ConnectionResult, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("tcp: invalid address %q: %w", addr, err)
	}
	opts = opts.WithDefaults(host)

	conn, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}
	logging.Debug("tcp: connected to %s", addr)

	c := connector.New(cfg, provider)

	result, err := Drive(conn, c, opts)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return conn, result, nil
}

// Drive owns the sans-I/O loop over an already-established net.Conn: it
// alternates between StepNoInput (when the connector has nothing pending
// from the wire) and reading exactly the frame NextPDUHint reports,
// performing the TLS upgrade in place when the connector parks at
// EnhancedSecurityUpgrade. Exported so other transports (internal/transport/ws)
// can reuse the same loop over a non-TCP net.Conn.
func Drive(conn net.Conn, c *connector.ClientConnector, opts DialOptions) (*connector.ConnectionResult, error) {
	buf := framed.New()
	out := make([]byte, 64*1024)

	for {
		if state := c.State(); state.Terminal() {
			if cs, ok := state.(connector.State); ok && cs.Tag == connector.Errored {
				return nil, fmt.Errorf("tcp: handshake failed in state %s", state)
			}
			return c.ConsumeResult()
		}

		if c.ShouldPerformSecurityUpgrade() {
			upgraded, serverKey, err := upgradeTLS(conn, opts)
			if err != nil {
				return nil, fmt.Errorf("tcp: tls upgrade: %w", err)
			}
			conn = upgraded
			if err := c.MarkSecurityUpgradeAsDone(serverKey); err != nil {
				return nil, fmt.Errorf("tcp: %w", err)
			}
			continue
		}

		hint := c.NextPDUHint()
		if hint == nil {
			written, err := c.StepNoInput(out)
			if err != nil {
				if errors.Is(err, credssp.ErrNeedsNetworkClient) {
					return nil, fmt.Errorf("tcp: credssp provider requires an out-of-band network exchange, unsupported by this transport")
				}
				return nil, fmt.Errorf("tcp: step: %w", err)
			}
			if !written.IsEmpty() {
				if err := writeAll(conn, opts, out[:written.N]); err != nil {
					return nil, err
				}
			}
			continue
		}

		frame, err := readFrame(conn, buf, hint, opts)
		if err != nil {
			return nil, err
		}

		written, err := c.Step(frame, out)
		if err != nil {
			if errors.Is(err, credssp.ErrNeedsNetworkClient) {
				return nil, fmt.Errorf("tcp: credssp provider requires an out-of-band network exchange, unsupported by this transport")
			}
			return nil, fmt.Errorf("tcp: step: %w", err)
		}
		if !written.IsEmpty() {
			if err := writeAll(conn, opts, out[:written.N]); err != nil {
				return nil, err
			}
		}
	}
}

// readFrame blocks on conn until buf holds a complete frame matching
// hint, growing the buffer with however many bytes a single Read
// returns at a time.
func readFrame(conn net.Conn, buf *framed.Buffer, hint sequence.Hint, opts DialOptions) ([]byte, error) {
	chunk := make([]byte, 4096)

	for {
		frame, err := buf.ReadByHint(hint)
		switch {
		case err == nil:
			return frame, nil
		case errors.Is(err, framed.ErrIncomplete):
			// fall through to read more bytes
		default:
			return nil, fmt.Errorf("tcp: %w", err)
		}

		if opts.HandshakeTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Append(chunk[:n])
		}
		if err != nil {
			return nil, fmt.Errorf("tcp: read: %w", err)
		}
	}
}

func writeAll(conn net.Conn, opts DialOptions, data []byte) error {
	if opts.HandshakeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	_, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf("tcp: write: %w", err)
	}
	return nil
}

// upgradeTLS performs the client-side TLS handshake over conn and
// returns the upgraded connection along with the server certificate's
// public key, bound into CredSSP's pubKeyAuth when NLA follows.
func upgradeTLS(conn net.Conn, opts DialOptions) (net.Conn, []byte, error) {
	if opts.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}

	tlsConn := tls.Client(conn, opts.TLS)
	if err := tlsConn.Handshake(); err != nil {
		return nil, nil, err
	}

	if opts.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, nil, errors.New("tcp: server presented no certificate")
	}

	return tlsConn, certs[0].RawSubjectPublicKeyInfo, nil
}
