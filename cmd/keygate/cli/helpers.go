package cli

import (
	"os"

	"github.com/spf13/viper"

	"github.com/keygatehq/keygate/internal/config"
	"github.com/keygatehq/keygate/internal/store"
)

// resolveDataDir returns the data directory from --data-dir flag,
// KEYGATE_DATA_DIR env var, or ~/.keygate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("KEYGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.keygate"
}

// loadConfig reads the YAML config file named by --config (or the viper
// search path), falling back to defaults when no file exists.
func loadConfig() config.Config {
	path := viper.ConfigFileUsed()
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Default()
	}
	return cfg
}

// openStore opens the configured durable store. SQLite data lives under the
// resolved data dir unless the config selects Postgres.
func openStore(cfg config.Config) (*store.Store, error) {
	dir := cfg.Storage.DataDir
	if cfg.Storage.Driver == store.DriverSQLite && dir == "" {
		dir = resolveDataDir()
	}
	return store.Open(cfg.Storage.Driver, cfg.Storage.DSN, dir)
}
