package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/routing/table"
)

func init() {
	rootCmd.AddCommand(peersCmd)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the node's routing table",
	RunE:  runPeers,
}

func runPeers(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var snap table.Snapshot
	if err := c.get("/api/overlay", &snap); err != nil {
		return err
	}

	fmt.Printf("Role: %s\n\n", snap.Role)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tADDRESS\tSTATE")
	rows := func(kind string, nodes []domain.Node) {
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\n", kind, n.Address, n.State)
		}
	}
	rows("unstructured", snap.Unstructured)
	rows("super_peer", snap.SuperPeers)
	rows("assigned_ordinary", snap.AssignedOrdinary)
	if snap.AssignedSuperPeer != nil {
		rows("assigned_super_peer", []domain.Node{*snap.AssignedSuperPeer})
	}
	return w.Flush()
}
