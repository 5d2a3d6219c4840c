package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/resource"
)

func init() {
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "Name to share a single file under")
	rootCmd.AddCommand(addCmd)
}

var addName string

var addCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Share files with the network",
	Long: `Add files to the running node's catalog. Each file is shared under its
base name without extension unless --name is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	if addName != "" && len(args) > 1 {
		return fmt.Errorf("--name needs exactly one file")
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	for _, file := range args {
		path, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		r := resource.OwnedResource{Name: resource.NameFromPath(path), Path: path}
		if addName != "" {
			r.Name = addName
		}
		var added resource.OwnedResource
		if err := c.post("/api/resources", r, &added); err != nil {
			return fmt.Errorf("add %s: %w", file, err)
		}
		fmt.Printf("Sharing %q\n", added.Name)
	}
	return nil
}
