package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the database and vector snapshot to object storage",
	Long: `Backups go to the MinIO/S3 bucket configured by MINIO_*.

Examples:
  docsage-admin backup run
  docsage-admin backup list
  docsage-admin backup restore 20260101T030000Z docsage.db ./restore`,
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload a new backup set now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Backups(cmd.Context())
		if err != nil {
			return err
		}
		stamp, err := b.Run(cmd.Context(), a.Artifacts())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup %s uploaded\n", stamp)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup sets, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Backups(cmd.Context())
		if err != nil {
			return err
		}
		stamps, err := b.Stamps(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stamps)
		}
		for _, s := range stamps {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <stamp> <artifact> <dir>",
	Short: "Download one artifact of a backup set into dir",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Backups(cmd.Context())
		if err != nil {
			return err
		}
		dest := filepath.Join(args[2], filepath.Base(args[1]))
		if err := b.Restore(cmd.Context(), args[0], args[1], dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", dest)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
