package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskbridge/internal/domain"
	"taskbridge/internal/migrate"
	"taskbridge/internal/progress"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a user's client-cached data into the server database",
	Long: `migrate runs the full pipeline: scan, backup, validate, write.
Conflicting records pause the run; pass --resolve to apply one strategy to
every conflict in this invocation, or inspect the listed conflicts and rerun.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		strategy, _ := cmd.Flags().GetString("resolve")
		if strategy != "" {
			if err := domain.ValidateResolution(strategy); err != nil {
				return err
			}
		}

		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		reporter := progress.NewReporter()
		if !jsonFlag(cmd) {
			reporter.Subscribe(func(ev domain.MigrationEvent) {
				switch ev.Type {
				case domain.EventProgress:
					if p, ok := ev.Data.(domain.MigrationProgress); ok && p.Stage == domain.StageWriting {
						fmt.Fprintf(os.Stderr, "\r%s %d/%d", p.Stage, p.ProcessedItems, p.TotalItems)
					}
				case domain.EventCompleted, domain.EventPaused, domain.EventError:
					fmt.Fprintln(os.Stderr)
				}
			})
		}

		run := migrate.NewRun(migrate.Config{
			UserID:      userID,
			DryRun:      dryRun,
			ItemTimeout: time.Duration(env.cfg.ItemTimeoutMS) * time.Millisecond,
		}, migrate.Deps{
			Local:    env.local(userID),
			Registry: env.registry,
			Backups:  env.backups(userID),
			Dest:     env.dest,
			Reporter: reporter,
		})

		state, err := run.Start()
		if err != nil {
			return err
		}

		// Apply a blanket strategy until no conflicts remain. New conflicts
		// cannot surface here (RENAME derives keys that are free), but the
		// loop keeps the pause/resume path honest.
		for state.Status == domain.StatusPaused && strategy != "" {
			resolutions := make([]domain.ConflictResolution, 0, len(state.Conflicts))
			for _, c := range state.Conflicts {
				resolutions = append(resolutions, domain.ConflictResolution{
					ConflictID: c.ID,
					Resolution: domain.Resolution(strategy),
				})
			}
			state, err = run.Resolve(resolutions)
			if err != nil {
				return err
			}
		}

		if jsonFlag(cmd) {
			return printJSON(state)
		}

		if state.Status == domain.StatusPaused {
			fmt.Printf("Migration paused: %d conflict(s) need resolution\n\n", len(state.Conflicts))
			renderConflicts(state.Conflicts)
			return fmt.Errorf("rerun with --resolve <skip|overwrite|merge|rename> to continue")
		}

		fmt.Printf("Migration %s: %s (%d/%d items)\n",
			state.ID, state.Status, state.Progress.ProcessedItems, state.Progress.TotalItems)
		if state.Error != "" {
			return fmt.Errorf("%s", state.Error)
		}
		return nil
	},
}

func renderConflicts(conflicts []domain.DataConflict) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Type", "Key", "Field"})
	for _, c := range conflicts {
		tw.AppendRow(table.Row{c.ID, c.Type, c.Key, c.Field})
	}
	tw.Render()
}

func init() {
	migrateCmd.Flags().String("user", "", "User whose data to migrate")
	migrateCmd.Flags().Bool("dry-run", false, "Run all stages but suppress destination writes")
	migrateCmd.Flags().String("resolve", "", "Apply one strategy (skip|overwrite|merge|rename) to every conflict")
	rootCmd.AddCommand(migrateCmd)
}
