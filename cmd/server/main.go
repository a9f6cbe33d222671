package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lojistavip/vipchat-server/internal/app"
	"github.com/lojistavip/vipchat-server/internal/config"
	"github.com/lojistavip/vipchat-server/internal/log"
)

var (
	flagConfig   string
	flagAddr     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "vipchat-server",
	Short:        "Hybrid community and direct messaging server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrapLogger := log.New(flagLogLevel)

		cfg, configPath, err := config.Load(bootstrapLogger, flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagAddr != "" {
			cfg.Addr = flagAddr
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}

		logger := log.New(cfg.LogLevel)
		logger.Info().Str("config", configPath).Str("addr", cfg.Addr).Msg("starting vipchat server")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(&cfg, logger)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}

		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
