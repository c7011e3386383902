// Package cli - команды backoffice: serve (админка), stub (dev-бэкенд), lint (проверка форм).
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"backoffice/internal/config"
)

// Version information (set at build time).
var Version = "0.1.0"

type configKey struct{}

type loggerKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backoffice",
		Short: "Back office admin console",
		Long: `Server-driven admin console for entity screens: lists fetched from a REST
backend and drawer forms described in forms/*.dsl.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			level, _ := config.ParseLevel(cfg.LogLevel)
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
	}

	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCommand(),
		newStubCommand(),
		newLintCommand(),
	)
	return rootCmd
}

func getConfig(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey{}).(config.Config); ok {
		return cfg
	}
	return config.Default()
}

func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
