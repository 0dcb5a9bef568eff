// Command worldsim runs a Crossroads settlement session: settlers work the
// land around the settlement and the discovery engine unlocks new
// capabilities, structures and resources over simulated time.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/crossroads/internal/config"
)

var (
	// Global flags
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "worldsim",
	Short: "Crossroads settlement simulation",
	Long: `worldsim runs a settlement on a generated hex world and lets the
discovery engine unlock new knowledge as settlers work the land.

Commands:
  run      Run (or resume) a session
  status   Show the saved session
  catalog  List the discovery catalog`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default: built-in settings)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
}

// loadConfig reads the config file, applies flag overrides and installs
// the slog default handler at the configured level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, nil
}
