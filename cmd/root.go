package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pathways",
	Short: "Healthcare intake and provider matching service",
	Long:  "Extracts structured intake data from patient descriptions, recommends specialties via Claude, and ranks providers from the directory by specialty, insurance, and proximity.",
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
