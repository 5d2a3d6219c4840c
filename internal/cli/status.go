package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/api"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node's role, neighbours and health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var s api.StatusResponse
	if err := c.get("/api/status", &s); err != nil {
		return err
	}

	fmt.Printf("Address:      %s\n", s.Address)
	fmt.Printf("Role:         %s\n", s.Role)
	fmt.Printf("Strategy:     %s (ttl %d)\n", s.Strategy, s.TTL)
	fmt.Printf("Neighbours:   %d unstructured, %d super peers, %d assigned\n",
		s.Neighbours.Unstructured, s.Neighbours.SuperPeers, s.Neighbours.AssignedOrdinary)
	if s.AssignedSuperPeer != nil {
		fmt.Printf("Super peer:   %s\n", s.AssignedSuperPeer)
	}
	fmt.Printf("Shared files: %d\n", s.Resources)
	fmt.Printf("Queries:      %d\n", s.Queries)
	fmt.Printf("Healthy:      %t\n", s.Healthy)
	for _, h := range s.Health {
		if !h.Healthy {
			fmt.Printf("  %-14s %s\n", h.Name, h.Error)
		}
	}

	return nil
}
