// Package commands holds the storefrontctl operator commands.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/banoo-shop/storefront/internal/platform/config"
	"github.com/banoo-shop/storefront/internal/platform/logger"
)

const serviceName = "storefrontctl"

// cliEnv is loaded once before any subcommand runs.
type cliEnv struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rt := &cliEnv{}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Operator tooling for the storefront service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(serviceName)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			rt.cfg = cfg
			rt.logger = logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override APP_LOG_LEVEL")

	rootCmd.AddCommand(
		newRevalidateCommand(rt),
		newRevalidateProductCommand(rt),
		newHealthCommand(rt),
		newClientCommand(rt),
	)

	return rootCmd
}
