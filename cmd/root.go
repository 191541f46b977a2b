package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drkrodriguez/ISSS626-GAA/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gaa",
	Short: "Spatially constrained clustering of regional indicators",
	Long:  "Joins region geometries with attribute tables, builds contiguity-aware cluster variants (hierarchical, SKATER, ClustGeo blend), and serves the results as GeoJSON.",
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
