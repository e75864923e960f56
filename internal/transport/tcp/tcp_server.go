package tcp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rcarmo/rdp-handshake/internal/acceptor"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/framed"
	"github.com/rcarmo/rdp-handshake/internal/logging"
	"github.com/rcarmo/rdp-handshake/internal/sequence"
)

// ServeOptions controls the TCP/TLS transport on the accepting side,
// independently of the acceptor's own protocol-level Config.
type ServeOptions struct {
	// HandshakeTimeout bounds the TLS handshake and every individual
	// read/write performed while driving the acceptor. Zero means no
	// timeout.
	HandshakeTimeout time.Duration

	// TLS is used as-is for the security upgrade; Certificates must be
	// set when any protocol in Config.SupportedProtocols requires TLS.
	TLS *tls.Config
}

// Listen accepts TCP connections on addr and calls handle for each one
// in its own goroutine, passing the raw net.Conn. The caller drives the
// acceptor handshake itself via Accept/DriveAccept from within handle,
// the same separation of concerns internal/transport/ws relies on to
// reuse DriveAccept over a tunneled connection instead of a raw socket.
func Listen(addr string, handle func(conn net.Conn)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	defer ln.Close()

	logging.Info("tcp: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("tcp: accept: %w", err)
		}
		go handle(conn)
	}
}

// Accept builds a ServerAcceptor from cfg and drives it to completion
// over conn. The caller owns conn; closing it tears down the session.
func Accept(conn net.Conn, cfg acceptor.Config, tlsPublicKey []byte, provider credssp.CredentialProvider, opts ServeOptions) (*acceptor.ConnectionResult, error) {
	a := acceptor.New(cfg, tlsPublicKey, provider)
	return DriveAccept(conn, a, opts)
}

// DriveAccept owns the sans-I/O loop on the accepting side: it
// alternates between StepNoInput (when the acceptor has nothing pending
// from the wire) and reading exactly the frame NextPDUHint reports,
// performing the server-side TLS upgrade in place when the acceptor
// parks at EnhancedSecurityUpgrade. Exported so other transports
// (internal/transport/ws) can reuse the same loop over a non-TCP
// net.Conn.
func DriveAccept(conn net.Conn, a *acceptor.ServerAcceptor, opts ServeOptions) (*acceptor.ConnectionResult, error) {
	buf := framed.New()
	out := make([]byte, 64*1024)

	for {
		if state := a.State(); state.Terminal() {
			if as, ok := state.(acceptor.State); ok && as.Tag == acceptor.Errored {
				return nil, fmt.Errorf("tcp: handshake failed in state %s", state)
			}
			return a.ConsumeResult()
		}

		if a.ShouldPerformSecurityUpgrade() {
			upgraded, err := upgradeServerTLS(conn, opts)
			if err != nil {
				return nil, fmt.Errorf("tcp: tls upgrade: %w", err)
			}
			conn = upgraded
			if err := a.MarkSecurityUpgradeAsDone(); err != nil {
				return nil, fmt.Errorf("tcp: %w", err)
			}
			continue
		}

		hint := a.NextPDUHint()
		if hint == nil {
			written, err := a.StepNoInput(out)
			if !written.IsEmpty() {
				if werr := writeAllWithTimeout(conn, opts.HandshakeTimeout, out[:written.N]); werr != nil {
					return nil, werr
				}
			}
			if err != nil {
				if errors.Is(err, credssp.ErrNeedsNetworkClient) {
					return nil, fmt.Errorf("tcp: credssp provider requires an out-of-band network exchange, unsupported by this transport")
				}
				return nil, fmt.Errorf("tcp: step: %w", err)
			}
			continue
		}

		frame, err := readFrameWithTimeout(conn, buf, hint, opts.HandshakeTimeout)
		if err != nil {
			return nil, err
		}

		written, err := a.Step(frame, out)
		if err != nil {
			if errors.Is(err, credssp.ErrNeedsNetworkClient) {
				return nil, fmt.Errorf("tcp: credssp provider requires an out-of-band network exchange, unsupported by this transport")
			}
			return nil, fmt.Errorf("tcp: step: %w", err)
		}
		if !written.IsEmpty() {
			if err := writeAllWithTimeout(conn, opts.HandshakeTimeout, out[:written.N]); err != nil {
				return nil, err
			}
		}
	}
}

// readFrameWithTimeout blocks on conn until buf holds a complete frame
// matching hint, the server-side counterpart of readFrame that takes a
// bare timeout instead of a DialOptions.
func readFrameWithTimeout(conn net.Conn, buf *framed.Buffer, hint sequence.Hint, timeout time.Duration) ([]byte, error) {
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

		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
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

func writeAllWithTimeout(conn net.Conn, timeout time.Duration, data []byte) error {
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := conn.Write(data)
	if err != nil {
		return fmt.Errorf("tcp: write: %w", err)
	}
	return nil
}

// upgradeServerTLS performs the server-side TLS handshake over conn.
// opts.TLS must carry at least one certificate; Config.SupportedProtocols
// having required TLS at negotiation time is the caller's guarantee that
// one is present.
func upgradeServerTLS(conn net.Conn, opts ServeOptions) (net.Conn, error) {
	if opts.TLS == nil || len(opts.TLS.Certificates) == 0 {
		return nil, errors.New("tcp: no server TLS certificate configured for the negotiated protocol")
	}

	if opts.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}

	tlsConn := tls.Server(conn, opts.TLS)
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}

	if opts.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	return tlsConn, nil
}
