package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rmCmd)
}

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Stop sharing a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	name := args[0]

	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.delete("/api/resources/" + escape(name)); err != nil {
		return err
	}

	fmt.Printf("Removed %s\n", name)
	return nil
}
