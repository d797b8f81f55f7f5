package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "receipt-scan",
	Short: "Receipt photo scanning pipeline",
	Long:  "Turns receipt photos into structured, validated line items: canonicalizes the image, stores it, drives a document-analysis job to completion, and interprets the result.",
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
