package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "terrasight",
	Short: "Automated satellite index monitoring pipeline",
	Long:  "Ingests Sentinel-2 scenes for a fixed area of interest, derives vegetation/water/built-up/moisture indices, aggregates them per region, and serves colorized map tiles and time series.",
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
