package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowerhall/docsage/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store sizes, cache hit rate and host usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report := stats.Collect(cmd.Context(), a.StatsSources())
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.String())
		return nil
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term conversation memory",
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear <conversation>",
	Short: "Forget history and memories for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Conversations.Clear(cmd.Context(), args[0]); err != nil {
			return err
		}
		n, err := a.Memory.Clear(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared history and %d memories for %s\n", n, args[0])
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryClearCmd)
}
