// Command rdp-accept listens for an inbound RDP connection, drives the
// acceptor side of the handshake to completion, and reports the
// negotiated result. It exists to exercise internal/acceptor and
// internal/transport/tcp end to end the way cmd/rdp-handshake exercises
// internal/connector on the client side.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rcarmo/rdp-handshake/internal/acceptor"
	"github.com/rcarmo/rdp-handshake/internal/credssp/credssptest"
	"github.com/rcarmo/rdp-handshake/internal/logging"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
	"github.com/rcarmo/rdp-handshake/internal/transport/tcp"
)

var (
	appName    = "RDP Accept"
	appVersion = "dev" // injected at build time via -ldflags
)

func main() {
	args, action := parseFlags()
	if action != "" {
		return
	}
	if err := run(args); err != nil {
		log.Fatalln(err)
	}
}

// parsedArgs holds the parsed command line arguments.
type parsedArgs struct {
	listen        string
	logLevel      string
	width         int
	height        int
	allowPlainRDP bool
	tlsCertFile   string
	tlsKeyFile    string
	timeout       time.Duration
	dryRun        bool
}

//go:noinline
func parseFlags() (parsedArgs, string) {
	return parseFlagsWithArgs(os.Args[1:])
}

func parseFlagsWithArgs(args []string) (parsedArgs, string) {
	fs := flag.NewFlagSet("rdp-accept", flag.ContinueOnError)
	listen := fs.String("listen", ":3389", "address to listen on")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	width := fs.Int("width", 1024, "desktop width advertised to clients")
	height := fs.Int("height", 768, "desktop height advertised to clients")
	allowPlainRDP := fs.Bool("allow-plain-rdp", true, "accept clients that negotiate unencrypted RDP Standard Security")
	tlsCertFile := fs.String("tls-cert", "", "TLS certificate file, required to accept TLS/CredSSP clients")
	tlsKeyFile := fs.String("tls-key", "", "TLS private key file, required to accept TLS/CredSSP clients")
	timeout := fs.Duration("timeout", 15*time.Second, "per-step network timeout")
	dryRun := fs.Bool("dry-run", false, "step the sequence once with a scripted in-process credential provider instead of listening")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	_ = fs.Parse(args)

	if *helpFlag {
		showHelp()
		return parsedArgs{}, "help"
	}
	if *versionFlag {
		showVersion()
		return parsedArgs{}, "version"
	}

	return parsedArgs{
		listen:        strings.TrimSpace(*listen),
		logLevel:      strings.TrimSpace(*logLevel),
		width:         *width,
		height:        *height,
		allowPlainRDP: *allowPlainRDP,
		tlsCertFile:   strings.TrimSpace(*tlsCertFile),
		tlsKeyFile:    strings.TrimSpace(*tlsKeyFile),
		timeout:       *timeout,
		dryRun:        *dryRun,
	}, ""
}

func run(args parsedArgs) error {
	logging.SetLevelFromString(args.logLevel)

	if args.dryRun {
		return runDryRun(args)
	}

	cfg, tlsConfig, tlsPublicKey, err := buildConfig(args)
	if err != nil {
		return err
	}

	opts := tcp.ServeOptions{HandshakeTimeout: args.timeout, TLS: tlsConfig}

	logging.Info("rdp-accept: listening on %s (plain-rdp=%v, tls=%v)", args.listen, args.allowPlainRDP, tlsConfig != nil)

	return tcp.Listen(args.listen, func(conn net.Conn) {
		defer conn.Close()

		peer := conn.RemoteAddr()
		logging.Info("rdp-accept: accepted connection from %s", peer)

		// Real NLA validation (an NTLM/Kerberos server credential check
		// against a user database) is not implemented; a client that
		// negotiates Hybrid/HybridEx is accepted unconditionally by the
		// scripted provider used here. Restrict SupportedProtocols to
		// drop NLA support for a deployment that needs real enforcement.
		provider := credssptest.NewAccepting(nil, nil)

		result, err := tcp.Accept(conn, cfg, tlsPublicKey, provider, opts)
		if err != nil {
			logging.Warn("rdp-accept: handshake with %s failed: %v", peer, err)
			return
		}

		reportResult(peer.String(), result)
	})
}

// runDryRun drives the same acceptor.ServerAcceptor against an
// in-process scripted CredentialProvider with no real network involved,
// to smoke-test the acceptor logic without a live client.
func runDryRun(args parsedArgs) error {
	cfg, _, _, err := buildConfig(args)
	if err != nil {
		return err
	}

	provider := credssptest.NewAccepting(nil, nil)
	a := acceptor.New(cfg, []byte("dry-run-server-public-key"), provider)

	logging.Info("rdp-accept: dry run starting in state %s", a.State())

	out := make([]byte, 4096)
	written, err := a.StepNoInput(out)
	if err != nil && written.IsEmpty() {
		return fmt.Errorf("rdp-accept: dry run: %w", err)
	}

	logging.Info("rdp-accept: dry run state %s is waiting for a client frame; a live peer is needed to continue", a.State())
	return nil
}

func buildConfig(args parsedArgs) (acceptor.Config, *tls.Config, []byte, error) {
	supported := pdu.NegotiationProtocolRDP
	var tlsConfig *tls.Config
	var tlsPublicKey []byte

	if args.tlsCertFile != "" || args.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(args.tlsCertFile, args.tlsKeyFile)
		if err != nil {
			return acceptor.Config{}, nil, nil, fmt.Errorf("rdp-accept: load tls cert: %w", err)
		}
		if len(cert.Certificate) == 0 {
			return acceptor.Config{}, nil, nil, fmt.Errorf("rdp-accept: tls certificate has no leaf")
		}

		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return acceptor.Config{}, nil, nil, fmt.Errorf("rdp-accept: parse tls certificate: %w", err)
		}

		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		tlsPublicKey = leaf.RawSubjectPublicKeyInfo
		supported |= pdu.NegotiationProtocolSSL | pdu.NegotiationProtocolHybrid
	}

	cfg := acceptor.Config{
		SupportedProtocols: supported,
		AllowPlainRDP:      args.allowPlainRDP,
		DesktopWidth:       uint16(args.width),
		DesktopHeight:      uint16(args.height),
		ColorDepth:         32,
	}

	return cfg, tlsConfig, tlsPublicKey, nil
}

func reportResult(peer string, result *acceptor.ConnectionResult) {
	fmt.Printf("accepted %s: protocol=%d user=%d io-channel=%d share=%#x\n",
		peer, result.SelectedProtocol, result.UserID, result.IOChannelID, result.ShareID)
	for name, id := range result.Channels {
		fmt.Printf("  channel %-12s id=%d\n", name, id)
	}
	fmt.Printf("  logon user=%s domain=%s\n", result.ClientInfo.UserName, result.ClientInfo.Domain)
	fmt.Printf("  %d capability sets negotiated\n", len(result.Capabilities))
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: rdp-accept [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -listen            Address to listen on (default :3389)")
	fmt.Println("  -width, -height    Desktop size advertised to clients (default 1024x768)")
	fmt.Println("  -allow-plain-rdp   Accept unencrypted RDP Standard Security (default true)")
	fmt.Println("  -tls-cert          TLS certificate file, required to accept TLS/CredSSP clients")
	fmt.Println("  -tls-key           TLS private key file, required to accept TLS/CredSSP clients")
	fmt.Println("  -timeout           Per-step network timeout (default 15s)")
	fmt.Println("  -dry-run           Step the sequence once with a scripted provider, no network")
	fmt.Println("  -log-level         Set log level (debug, info, warn, error)")
	fmt.Println("  -version           Show version information")
	fmt.Println("  -help              Show this help message")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
}
