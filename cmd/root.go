package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "legisearch",
	Short: "Iterative legislative retrieval service",
	Long:  "Answers natural-language questions about bills and executive actions by driving a Claude tool-calling loop over a ranked hybrid search backend, streaming answers and citations as they arrive.",
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
