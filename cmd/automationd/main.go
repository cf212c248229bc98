package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/automation/internal/config"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "automationd",
		Short:         "Rule automation daemon",
		Long:          "Evaluates user-defined automation rules on a timer and on host events, and runs their actions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	return cmd
}

// loadConfig returns the loader (nil without a config file) and the
// effective configuration.
func loadConfig(opts *rootOptions, logger *slog.Logger) (*config.Loader, *config.Config, error) {
	if opts.configPath == "" {
		return nil, config.Default(), nil
	}
	loader, err := config.NewLoader(opts.configPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return loader, loader.Config(), nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func main() {
	slog.SetDefault(newLogger(slog.LevelInfo))
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("automationd failed", "err", err)
		os.Exit(1)
	}
}
