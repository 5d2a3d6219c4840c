package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/daemon"
	"github.com/tutu-network/sharer/internal/domain"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "API host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveIP, "ip", "", "IP peers use to reach this node (overrides config)")
	serveCmd.Flags().IntVar(&servePeerPort, "peer-port", 0, "Overlay port (overrides config)")
	serveCmd.Flags().StringVar(&serveUsername, "username", "", "Name registered with the bootstrap server")
	serveCmd.Flags().StringVar(&serveBootstrap, "bootstrap", "", "Bootstrap server host:port (overrides config)")
	serveCmd.Flags().StringVar(&serveStrategy, "strategy", "", "Routing strategy (overrides config)")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Overlay transport udp|tcp (overrides config)")
	serveCmd.Flags().BoolVar(&serveSuperPeer, "super-peer", false, "Start as a super peer")
	serveCmd.Flags().StringVar(&serveShare, "share", "", "Directory of files to share (overrides config)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Log every message sent and received")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost      string
	servePort      int
	serveIP        string
	servePeerPort  int
	serveUsername  string
	serveBootstrap string
	serveStrategy  string
	serveTransport string
	serveSuperPeer bool
	serveShare     string
	serveDebug     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Join the overlay and start the node API",
	Long: `Register with the bootstrap server, join the overlay and serve the
HTTP API at localhost:7000.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveIP != "" {
		cfg.Node.IP = serveIP
	}
	if servePeerPort > 0 {
		cfg.Node.Port = servePeerPort
	}
	if serveUsername != "" {
		cfg.Node.Username = serveUsername
	}
	if serveBootstrap != "" {
		addr, err := domain.ParseAddress(serveBootstrap)
		if err != nil {
			return err
		}
		cfg.Bootstrap.IP, cfg.Bootstrap.Port = addr.IP, addr.Port
	}
	if serveStrategy != "" {
		cfg.Overlay.RoutingStrategy = serveStrategy
	}
	if serveTransport != "" {
		cfg.Overlay.Transport = serveTransport
	}
	if serveSuperPeer {
		cfg.Node.PeerType = "super_peer"
	}
	if serveShare != "" {
		cfg.Resources.Dir = serveShare
	}
	if serveDebug {
		cfg.Logging.Level = "debug"
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	return d.Serve(context.Background())
}
