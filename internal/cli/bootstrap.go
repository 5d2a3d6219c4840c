package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/bootstrap"
	"github.com/tutu-network/sharer/internal/daemon"
	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/network"
)

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapIP, "ip", "", "IP to listen on (overrides config)")
	bootstrapCmd.Flags().IntVar(&bootstrapPort, "port", 0, "UDP port to listen on (overrides config)")
	bootstrapCmd.Flags().IntVar(&bootstrapMax, "max-nodes", 0, "Registry capacity (overrides config)")
	rootCmd.AddCommand(bootstrapCmd)
}

var (
	bootstrapIP   string
	bootstrapPort int
	bootstrapMax  int
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the bootstrap rendezvous server",
	RunE:  runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	addr := domain.Address{IP: cfg.Bootstrap.IP, Port: cfg.Bootstrap.Port}
	if bootstrapIP != "" {
		addr.IP = bootstrapIP
	}
	if bootstrapPort > 0 {
		addr.Port = bootstrapPort
	}
	maxNodes := cfg.Bootstrap.MaxNodes
	if bootstrapMax > 0 {
		maxNodes = bootstrapMax
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := bootstrap.NewServer(addr, maxNodes, network.DefaultOptions())
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Bootstrap server listening on %s\n", srv.Addr())
	<-ctx.Done()
	srv.Stop()
	return nil
}
