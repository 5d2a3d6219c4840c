package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(demoteCmd)
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Make the node a super peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRole("promote")
	},
}

var demoteCmd = &cobra.Command{
	Use:   "demote",
	Short: "Make the node an ordinary peer of another super peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRole("demote")
	},
}

func changeRole(action string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var resp struct {
		Role    string `json:"role"`
		Changed bool   `json:"changed"`
	}
	if err := c.post("/api/overlay/"+action, nil, &resp); err != nil {
		return err
	}

	if !resp.Changed {
		fmt.Printf("Already %s\n", resp.Role)
		return nil
	}
	fmt.Printf("Now %s\n", resp.Role)
	return nil
}
