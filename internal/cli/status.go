package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskbridge/internal/scanner"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local and destination statistics for a user",
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

		inv, err := scanner.Scan(env.local(userID), env.registry)
		if err != nil {
			return err
		}

		total, err := env.dest.Count()
		if err != nil {
			return err
		}
		bySchema, err := env.dest.Stats()
		if err != nil {
			return err
		}

		if jsonFlag(cmd) {
			return printJSON(map[string]interface{}{
				"local":    inv,
				"database": map[string]interface{}{"total_records": total, "by_schema": bySchema},
			})
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"", "Count"})
		tw.AppendRow(table.Row{"Local keys (known)", inv.KnownKeys})
		tw.AppendRow(table.Row{"Local keys (unknown)", inv.UnknownKeys})
		tw.AppendRow(table.Row{"Local bytes", inv.TotalSize})
		tw.AppendRow(table.Row{"Destination records", total})
		for _, name := range env.registry.Names() {
			if count, ok := bySchema[name]; ok {
				tw.AppendRow(table.Row{"  " + name, count})
			}
		}
		tw.Render()
		return nil
	},
}

func init() {
	statusCmd.Flags().String("user", "", "User to report on")
	rootCmd.AddCommand(statusCmd)
}
