package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskbridge",
	Short: "Migrate client-cached kanban data into the server database",
	Long: `taskbridge moves a user's locally-cached task data into the server
database, taking a backup first, detecting conflicts record by record,
and pausing for resolutions instead of silently losing data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides TASKBRIDGE_DB_PATH)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON instead of tables")
}
