package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "industrial-cli",
	Short: "Industrial building classification for OpenStreetMap extracts",
	Long:  "Reads OSM PBF, OSM XML, or Geofabrik shapefile extracts, finds every industrial building by its own tags or the landuse areas around it, and records the deduplicated result per run.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
