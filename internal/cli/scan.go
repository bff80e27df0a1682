package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskbridge/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Inventory a user's client-side store without touching it",
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

		if jsonFlag(cmd) {
			return printJSON(inv)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Key", "Size (bytes)"})
		keys := make([]string, 0, len(inv.KeySizes))
		for key := range inv.KeySizes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			tw.AppendRow(table.Row{key, inv.KeySizes[key]})
		}
		tw.AppendFooter(table.Row{
			fmt.Sprintf("%d known / %d unknown / %d total", inv.KnownKeys, inv.UnknownKeys, inv.TotalKeys),
			inv.TotalSize,
		})
		tw.Render()
		return nil
	},
}

func init() {
	scanCmd.Flags().String("user", "", "User whose store to scan")
	rootCmd.AddCommand(scanCmd)
}
