// Package cli implements the docsage-admin commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bowerhall/docsage/internal/app"
	"github.com/bowerhall/docsage/internal/config"
)

var jsonOutput bool

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "docsage-admin",
	Short:         "Manage the docsage knowledge base",
	Long:          "Index documents, edit fact overrides, inspect stores and ask questions from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
}

// openApp loads configuration and wires the pipeline. Callers close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
