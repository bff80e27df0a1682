package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List a user's backup manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		manifests, err := env.backups(userID).List()
		if err != nil {
			return err
		}

		if jsonFlag(cmd) {
			return printJSON(manifests)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Created", "Items", "Size", "Data types"})
		for _, m := range manifests {
			tw.AppendRow(table.Row{m.ID, m.CreatedAt.Format("2006-01-02 15:04:05"), m.TotalItems, m.Size, m.DataTypes})
		}
		tw.Render()
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <manifest-id>",
	Short: "Restore a backup into a user's client-side store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		result, err := env.backups(userID).Restore(args[0], env.local(userID))
		if err != nil {
			return err
		}

		if jsonFlag(cmd) {
			return printJSON(result)
		}

		fmt.Printf("Restored %d record(s) from %s (%s)\n", result.Restored, result.ManifestID, result.SnapshotRev)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot a user's known-schema data without migrating",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		manifest, err := env.backups(userID).Create(env.local(userID), env.registry)
		if err != nil {
			return err
		}

		if jsonFlag(cmd) {
			return printJSON(manifest)
		}

		fmt.Printf("Backup %s: %d item(s), %d bytes\n", manifest.ID, manifest.TotalItems, manifest.Size)
		return nil
	},
}

func init() {
	backupsCmd.Flags().String("user", "", "User whose backups to list")
	restoreCmd.Flags().String("user", "", "User whose store to restore into")
	backupCmd.Flags().String("user", "", "User whose data to snapshot")
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(backupCmd)
}
