package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSchemas are the client-side record categories the engine understands
// well enough to migrate. Anything else in the client store is left alone.
var DefaultSchemas = []string{"tasks", "boards", "environments", "settings"}

// Config represents the application configuration
type Config struct {
	DBPath        string   `yaml:"db_path"`
	LocalDir      string   `yaml:"local_dir"`
	BackupDir     string   `yaml:"backup_dir"`
	Schemas       []string `yaml:"schemas"`
	ItemTimeoutMS int      `yaml:"item_timeout_ms"`
	LogLevel      string   `yaml:"log_level"`
	WebhookURLs   []string `yaml:"webhook_urls"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/taskbridge/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/taskbridge/config.yaml if it exists
	if err := loadYAMLConfig(cfg); err != nil {
		// YAML config is optional, so we don't fail if it doesn't exist
	}

	// Override with environment variables
	if dbPath := getEnvOrFile("TASKBRIDGE_DB_PATH", "TASKBRIDGE_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if localDir := os.Getenv("TASKBRIDGE_LOCAL_DIR"); localDir != "" {
		cfg.LocalDir = localDir
	}
	if backupDir := os.Getenv("TASKBRIDGE_BACKUP_DIR"); backupDir != "" {
		cfg.BackupDir = backupDir
	}
	if schemas := os.Getenv("TASKBRIDGE_SCHEMAS"); schemas != "" {
		cfg.Schemas = splitList(schemas)
	}
	if logLevel := os.Getenv("TASKBRIDGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if urls := os.Getenv("TASKBRIDGE_WEBHOOK_URLS"); urls != "" {
		cfg.WebhookURLs = splitList(urls)
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".taskbridge/taskbridge.db"); err == nil {
			cfg.DBPath = ".taskbridge/taskbridge.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "taskbridge", "taskbridge.db")
		}
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if cfg.LocalDir == "" {
		cfg.LocalDir = filepath.Join(dataDir, "local")
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(dataDir, "backups")
	}
	if len(cfg.Schemas) == 0 {
		cfg.Schemas = append([]string(nil), DefaultSchemas...)
	}

	return cfg, nil
}

// UserLocalDir returns the client-store directory for one user.
func (c *Config) UserLocalDir(userID string) string {
	return filepath.Join(c.LocalDir, userID)
}

// UserBackupDir returns the backup directory for one user.
func (c *Config) UserBackupDir(userID string) string {
	return filepath.Join(c.BackupDir, userID)
}

// loadYAMLConfig loads configuration from ~/.config/taskbridge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "taskbridge", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
