package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskbridge/internal/backup"
	"taskbridge/internal/config"
	"taskbridge/internal/db"
	"taskbridge/internal/localstore"
	"taskbridge/internal/scanner"
	"taskbridge/internal/store"
)

// appEnv bundles the opened collaborators a command works with.
type appEnv struct {
	cfg      *config.Config
	db       *db.DB
	dest     *store.Store
	registry *scanner.Registry
}

// openEnv loads config, opens the destination database, and runs pending
// schema migrations.
func openEnv(cmd *cobra.Command) (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	registry := scanner.NewRegistry(cfg.Schemas)
	if err := registry.Validate(); err != nil {
		database.Close()
		return nil, err
	}

	return &appEnv{
		cfg:      cfg,
		db:       database,
		dest:     store.New(database),
		registry: registry,
	}, nil
}

func (e *appEnv) close() {
	e.db.Close()
}

func (e *appEnv) local(userID string) localstore.Store {
	return localstore.NewDirStore(e.cfg.UserLocalDir(userID))
}

func (e *appEnv) backups(userID string) *backup.Manager {
	return backup.NewManager(e.cfg.UserBackupDir(userID))
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
