// Command rdp-handshake dials an RDP server, drives the connection
// sequence to completion, and reports the negotiated result. It exists
// to exercise internal/connector and internal/transport/tcp end to end
// the way cmd/rdp-accept exercises internal/acceptor.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rcarmo/rdp-handshake/internal/connector"
	"github.com/rcarmo/rdp-handshake/internal/credssp"
	"github.com/rcarmo/rdp-handshake/internal/credssp/credssptest"
	"github.com/rcarmo/rdp-handshake/internal/credssp/ntlm"
	"github.com/rcarmo/rdp-handshake/internal/logging"
	"github.com/rcarmo/rdp-handshake/internal/pdu"
	"github.com/rcarmo/rdp-handshake/internal/transport/tcp"
)

var (
	appName    = "RDP Handshake"
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
	host          string
	port          string
	username      string
	domain        string
	password      string
	logLevel      string
	width         int
	height        int
	channels      []string
	nla           bool
	skipTLS       bool
	tlsServerName string
	timeout       time.Duration
	dryRun        bool
}

//go:noinline
func parseFlags() (parsedArgs, string) {
	return parseFlagsWithArgs(os.Args[1:])
}

func parseFlagsWithArgs(args []string) (parsedArgs, string) {
	fs := flag.NewFlagSet("rdp-handshake", flag.ContinueOnError)
	host := fs.String("host", "", "RDP server host")
	port := fs.String("port", "3389", "RDP server port")
	username := fs.String("user", "", "username")
	domain := fs.String("domain", "", "NTLM domain")
	password := fs.String("password", "", "password")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	width := fs.Int("width", 1920, "desktop width")
	height := fs.Int("height", 1080, "desktop height")
	channels := fs.String("channels", "rdpdr,cliprdr", "comma separated static virtual channels to join")
	nla := fs.Bool("nla", false, "negotiate Network Level Authentication (CredSSP/NTLM)")
	skipTLS := fs.Bool("tls-skip-verify", false, "skip TLS certificate validation")
	tlsServerName := fs.String("tls-server-name", "", "override TLS server name (SNI)")
	timeout := fs.Duration("timeout", 15*time.Second, "per-step network timeout")
	dryRun := fs.Bool("dry-run", false, "step the sequence once with a scripted in-process credential provider instead of dialing out")
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

	var channelList []string
	for _, name := range strings.Split(*channels, ",") {
		if name = strings.TrimSpace(name); name != "" {
			channelList = append(channelList, name)
		}
	}

	return parsedArgs{
		host:          strings.TrimSpace(*host),
		port:          strings.TrimSpace(*port),
		username:      *username,
		domain:        *domain,
		password:      *password,
		logLevel:      strings.TrimSpace(*logLevel),
		width:         *width,
		height:        *height,
		channels:      channelList,
		nla:           *nla,
		skipTLS:       *skipTLS,
		tlsServerName: strings.TrimSpace(*tlsServerName),
		timeout:       *timeout,
		dryRun:        *dryRun,
	}, ""
}

func run(args parsedArgs) error {
	logging.SetLevelFromString(args.logLevel)

	if args.dryRun {
		return runDryRun(args)
	}

	if args.host == "" {
		return fmt.Errorf("rdp-handshake: -host is required (or pass -dry-run)")
	}

	cfg := buildConfig(args)

	var provider credssp.CredentialProvider
	requestedProtocols := pdu.NegotiationProtocolRDP
	if args.nla {
		provider = ntlm.New(args.domain, args.username, args.password)
		requestedProtocols = pdu.NegotiationProtocolHybrid
	}
	cfg.RequestedProtocols = requestedProtocols

	opts := tcp.DialOptions{
		DialTimeout:      args.timeout,
		HandshakeTimeout: args.timeout,
	}
	if args.skipTLS || args.tlsServerName != "" {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: args.skipTLS,
			ServerName:         args.tlsServerName,
			MinVersion:         tls.VersionTLS12,
		}
	}

	addr := fmt.Sprintf("%s:%s", args.host, args.port)
	logging.Info("rdp-handshake: connecting to %s (nla=%v)", addr, args.nla)

	conn, result, err := tcp.Connect(addr, cfg, provider, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	reportResult(result)
	return nil
}

// runDryRun drives the same connector.ClientConnector against an
// in-process scripted CredentialProvider with no real network
// involved, to smoke-test the handshake logic without a live server.
func runDryRun(args parsedArgs) error {
	cfg := buildConfig(args)
	provider := credssptest.NewAccepting(nil, nil)
	c := connector.New(cfg, provider)

	logging.Info("rdp-handshake: dry run starting in state %s", c.State())

	out := make([]byte, 4096)
	written, err := c.StepNoInput(out)
	if err != nil {
		return fmt.Errorf("rdp-handshake: dry run: %w", err)
	}

	logging.Info("rdp-handshake: dry run produced %d bytes for state %s; a live peer reply is needed to continue", written.N, c.State())
	return nil
}

func buildConfig(args parsedArgs) connector.Config {
	return connector.Config{
		TargetName:    args.host,
		Username:      args.username,
		Domain:        args.domain,
		Password:      args.password,
		DesktopWidth:  uint16(args.width),
		DesktopHeight: uint16(args.height),
		ColorDepth:    32,
		Channels:      args.channels,
	}
}

func reportResult(result *connector.ConnectionResult) {
	fmt.Printf("connected: protocol=%d user=%d io-channel=%d share=%#x\n",
		result.SelectedProtocol, result.UserID, result.IOChannelID, result.ShareID)
	for name, id := range result.Channels {
		fmt.Printf("  channel %-12s id=%d\n", name, id)
	}
	for _, rejected := range result.RejectedChannels {
		fmt.Printf("  channel %-12s rejected (%s)\n", rejected.Name, rejected.Reason)
	}
	fmt.Printf("  %d capability sets negotiated\n", len(result.Capabilities))
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: rdp-handshake -host <host> [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host              RDP server host")
	fmt.Println("  -port              RDP server port (default 3389)")
	fmt.Println("  -user              Username")
	fmt.Println("  -domain            NTLM domain")
	fmt.Println("  -password          Password")
	fmt.Println("  -nla               Negotiate NLA (CredSSP/NTLM)")
	fmt.Println("  -width, -height    Desktop size (default 1920x1080)")
	fmt.Println("  -channels          Comma separated static channels to join (default rdpdr,cliprdr)")
	fmt.Println("  -tls-skip-verify   Skip TLS certificate validation")
	fmt.Println("  -tls-server-name   Override TLS server name (SNI)")
	fmt.Println("  -timeout           Per-step network timeout (default 15s)")
	fmt.Println("  -dry-run           Drive the sequence against a scripted provider, no network")
	fmt.Println("  -log-level         Set log level (debug, info, warn, error)")
	fmt.Println("  -version           Show version information")
	fmt.Println("  -help              Show this help message")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
}
