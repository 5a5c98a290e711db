package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/harun/ragent/pkg/toolchannel"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to the tool providers and list their tools",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.shutdown(ctx)

	channels, err := a.newChannels()
	if err != nil {
		return err
	}
	defer func() {
		for _, ch := range channels {
			if err := ch.Close(); err != nil {
				a.log.Warn().Err(err).Str("channel", ch.Name()).Msg("Failed to close tool channel")
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		g.Go(func() error {
			return ch.Initialize(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printTools(cmd, channels)
	return nil
}

func printTools(cmd *cobra.Command, channels []*toolchannel.Channel) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tTOOL\tROUTE\tDESCRIPTION")
	for _, ch := range channels {
		for _, tool := range ch.ListTools() {
			route, _ := ch.ResolveRoute(tool.Name)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Name(), tool.Name, route.Kind, tool.Description)
		}
	}
	_ = w.Flush()
}
