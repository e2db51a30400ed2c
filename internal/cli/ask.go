package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bowerhall/docsage/internal/bot"
	"github.com/bowerhall/docsage/internal/retrieval"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question through the full pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, _ := cmd.Flags().GetString("conversation")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Orchestrator.Answer(cmd.Context(), retrieval.Query{
			ConversationID: conv,
			Text:           strings.Join(args, " "),
		})

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), bot.FormatReply(res, a.Config.Tuning.MaxSources))
		fmt.Fprintf(cmd.ErrOrStderr(), "\npath: %s, cached: %t\n", res.Path, res.FromCache)
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn <text>",
	Short: "Add a single passage to the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Orchestrator.Learn(cmd.Context(), strings.Join(args, " "), source)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "learned %s\n", id)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
	RootCmd.AddCommand(learnCmd)

	askCmd.Flags().StringP("conversation", "c", "cli", "Conversation id for history and memory")
	learnCmd.Flags().StringP("source", "s", "", "Source name recorded with the passage")
}
