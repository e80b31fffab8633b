package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "List shard files in the library and whether they open",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()
		return printShards(a, cmd.OutOrStdout())
	},
}

func printShards(a *app, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tPATH")
	for _, name := range a.catalog.Available() {
		state, path := "unavailable", a.reg.Path(name)
		if s, ok := a.reg.Lookup(name); ok {
			state = string(s.State())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, state, path)
	}
	return tw.Flush()
}
