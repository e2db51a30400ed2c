package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bowerhall/docsage/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index a directory of documents",
	Long: `Load every document under dir, split it into overlapping chunks and
add the chunks to the vector index. Defaults to DOCSAGE_DOCS_DIR.

Examples:
  docsage-admin ingest ./docs
  docsage-admin ingest ./docs --clear --ext .md,.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	RootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("clear", false, "Remove all indexed chunks first")
	ingestCmd.Flags().StringSlice("ext", ingest.DefaultExtensions, "File extensions to index")
	ingestCmd.Flags().Bool("quiet", false, "Hide the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	clearFirst, _ := cmd.Flags().GetBool("clear")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	quiet, _ := cmd.Flags().GetBool("quiet")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.Config.DocsDir
	if len(args) > 0 {
		dir = args[0]
	}

	docs, err := ingest.Load(dir, normalizeExts(exts))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no documents found in %s\n", dir)
		return nil
	}

	if clearFirst {
		if err := a.Index.Clear(ctx); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}

	var progress func(int)
	if !quiet {
		bar := progressbar.NewOptions(len(docs),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		progress = func(done int) { bar.Set(done) }
	}

	opts := ingest.Options{ChunkSize: a.Config.Tuning.ChunkSize, Overlap: a.Config.Tuning.ChunkOverlap}
	report, err := ingest.Ingest(ctx, a.Index, docs, opts, progress)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents as %d chunks (%d total)\n", report.Documents, report.Chunks, a.Index.Count())
	return nil
}

// normalizeExts accepts "md" as well as ".md".
func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
