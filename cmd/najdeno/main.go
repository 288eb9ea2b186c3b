// Command najdeno runs the lost-and-found service and its admin tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/config"
)

var (
	configPath string
	dbPath     string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "najdeno",
	Short: "Campus lost-and-found service",
	Long: `najdeno serves a lost-and-found board: users post lost or found items,
browse a filtered feed and follow new postings live.

Configuration is read from an optional YAML file (--config) and from
NAJDENO_* environment variables, e.g. NAJDENO_SERVER_ADDR=:9090.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (overrides database.path)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(feedCmd)
}

// loadConfig loads the configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = dbPath
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	return cfg, nil
}
