package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agridash/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "agridash",
	Short: "OECD agri-environmental indicators dashboard backend",
	Long:  "Loads the OECD agri-environmental dataset and serves filtered, chart-ready shapes as JSON.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if p, _ := cmd.Flags().GetString("data"); p != "" {
			cfg.Data.Path = p
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Log.Level = lvl
		}
		if cmd.Flags().Changed("distribute-eu") {
			cfg.Data.DistributeEU, _ = cmd.Flags().GetBool("distribute-eu")
		}

		if err := config.InitLogger(cfg.Log, cfg.Data.Path); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("data", "", "dataset path (.csv or .xlsx), overrides data.path")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error; overrides log.level")
	rootCmd.PersistentFlags().Bool("distribute-eu", false, "copy EU aggregate rows onto member countries; overrides data.distribute_eu")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
