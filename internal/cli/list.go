package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/resource"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the files this node shares",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var resp struct {
		Resources []resource.OwnedResource `json:"resources"`
	}
	if err := c.get("/api/resources", &resp); err != nil {
		return err
	}

	if len(resp.Resources) == 0 {
		fmt.Println("Nothing shared. Run 'sharer add <file>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH")
	for _, r := range resp.Resources {
		path := r.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Name, path)
	}
	return w.Flush()
}
