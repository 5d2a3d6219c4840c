package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/sharer/internal/overlay"
)

func init() {
	searchCmd.Flags().DurationVarP(&searchWait, "wait", "w", 3*time.Second, "How long to collect hits")
	rootCmd.AddCommand(searchCmd)
}

var searchWait time.Duration

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the network for files by name",
	Long: `Flood a query through the overlay and print the files found. Without a
query, start an interactive prompt.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		return searchAndPrint(c, strings.Join(args, " "), searchWait, os.Stdout, os.Stderr)
	}

	// Interactive mode
	return interactiveSearch(c, os.Stdin, os.Stdout)
}

// searchAndPrint starts a query, waits for hits and prints them.
func searchAndPrint(c *client, query string, wait time.Duration, out, progress io.Writer) error {
	var q overlay.Query
	if err := c.post("/api/query", map[string]string{"query": query}, &q); err != nil {
		return err
	}

	res, err := collect(c, q.Text, wait, progress)
	if err != nil {
		return err
	}
	return printResult(out, res)
}

// collect polls the node until wait elapses.
func collect(c *client, text string, wait time.Duration, progress io.Writer) (overlay.Result, error) {
	path := "/api/query?q=" + url.QueryEscape(text)
	pb := newProgressBar(progress, wait)
	deadline := time.Now().Add(wait)

	var res overlay.Result
	for {
		if err := c.get(path, &res); err != nil {
			pb.done()
			return res, err
		}
		now := time.Now()
		pb.render(now, len(res.Files))
		if !now.Before(deadline) {
			break
		}
		time.Sleep(min(250*time.Millisecond, deadline.Sub(now)))
	}
	pb.done()
	return res, nil
}

func printResult(out io.Writer, res overlay.Result) error {
	if len(res.Files) == 0 {
		fmt.Fprintf(out, "No files found for %q.\n", res.Query.Text)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHOPS\tOWNERS")
	for _, f := range res.Files {
		owners := make([]string, len(f.Owners))
		for i, o := range f.Owners {
			owners[i] = o.String()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.MinHops, strings.Join(owners, ", "))
	}
	return w.Flush()
}

func interactiveSearch(c *client, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, ">>> Search the network (type /bye to exit)")

	scanner := newLineScanner(in)
	for {
		fmt.Fprint(out, ">>> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		if input == "/bye" || input == "/exit" || input == "/quit" {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		if input == "" {
			continue
		}

		if err := searchAndPrint(c, input, searchWait, out, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(out)
	}

	return scanner.Err()
}
