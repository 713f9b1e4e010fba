package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feedprobe/internal/client"
	"feedprobe/internal/config"
	"feedprobe/internal/feed"
	"feedprobe/internal/logger"
)

// rootOptions holds the global flags and the state they produce
type rootOptions struct {
	verbose    bool
	jsonOutput bool
	sourceName string
	logLevel   string

	log *zap.Logger
}

// NewRootCmd builds the feedprobe command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "feedprobe",
		Short: "Probe NuGet V2 package feeds",
		Long: `feedprobe pushes packages to NuGet V2 feeds and measures how long they take
to become visible.

A push only happens when the package is not already on the feed. After a push
the feed is polled until the entry shows up or the poll timeout passes, so
eventually consistent feeds can be measured end to end.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if it exists
			if err := config.LoadEnvFile(".env"); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}

			level := opts.logLevel
			if opts.verbose && level == "" {
				level = "debug"
			}
			if level == "" {
				level = "warn"
			}
			opts.log = logger.New(logger.Options{Level: level, Out: cmd.ErrOrStderr()})
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVarP(&opts.sourceName, "source", "s", "", "source name or feed URL (default: current source)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(newSourceCmd(opts))
	rootCmd.AddCommand(newMetadataCmd(opts))
	rootCmd.AddCommand(newPushCmd(opts))
	rootCmd.AddCommand(newEntryCmd(opts))
	rootCmd.AddCommand(newQueryCmd(opts))
	rootCmd.AddCommand(newDeleteCmd(opts))
	rootCmd.AddCommand(newPackCmd(opts))

	return rootCmd
}

// Execute runs the CLI. This is called by main.main().
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// clientFor loads the CLI config and builds a client for the selected source
func (o *rootOptions) clientFor(opts ...client.Option) (*client.Client, feed.Source, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, feed.Source{}, err
	}
	return o.clientFrom(cfg, opts...)
}

// clientFrom builds a client for the selected source of cfg
func (o *rootOptions) clientFrom(cfg config.CLIConfig, opts ...client.Option) (*client.Client, feed.Source, error) {
	return client.GetClient(cfg, o.sourceName, o.logger(), opts...)
}

func loadConfig() (config.CLIConfig, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) logger() *zap.Logger {
	if o.log == nil {
		return zap.NewNop()
	}
	return o.log
}

func (o *rootOptions) printer(w io.Writer) *printer {
	return newPrinter(w, o.jsonOutput)
}
