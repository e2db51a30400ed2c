package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bowerhall/docsage/internal/facts"
)

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Manage fact overrides",
	Long: `Fact overrides answer matching questions directly, ahead of retrieval.

Examples:
  docsage-admin fact set "rate limit" "100 requests per minute"
  docsage-admin fact delete "rate limit"
  docsage-admin fact list`,
}

var factSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Create or replace a fact",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		key, value := args[0], strings.Join(args[1:], " ")
		if err := a.Facts.Set(cmd.Context(), key, value); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), facts.Format(facts.NormalizeKey(key), value))
		return nil
	},
}

var factDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.Facts.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no fact named %q", facts.NormalizeKey(args[0]))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", facts.NormalizeKey(args[0]))
		return nil
	},
}

var factListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		all := a.Facts.All()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), all)
		}
		return printFacts(cmd.OutOrStdout(), all)
	},
}

func init() {
	RootCmd.AddCommand(factCmd)
	factCmd.AddCommand(factSetCmd)
	factCmd.AddCommand(factDeleteCmd)
	factCmd.AddCommand(factListCmd)
}

func printFacts(w io.Writer, all []facts.Fact) error {
	if len(all) == 0 {
		_, err := fmt.Fprintln(w, "no facts")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE")
	for _, f := range all {
		fmt.Fprintf(tw, "%s\t%s\n", f.Key, f.Value)
	}
	return tw.Flush()
}
