// Package cli is the maglink command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"maglink/internal/app"
	"maglink/internal/config"
	"maglink/internal/logging"
)

// Version is set at build time with -ldflags "-X maglink/internal/cli.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "maglink",
		Short: "Link-in-bio page service with a grid block layout engine",
		Long: `maglink stores pages made of blocks placed on a fixed-column grid.

Every change to a page's blocks goes through the layout engine: overlapping
blocks are repacked to the first free spot and the previous layout is kept
as a snapshot that can be restored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging, opts.verbose)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newAuditCmd(opts),
		newRepackCmd(opts),
		newCheckCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	if v := os.Getenv("MAGLINK_CONFIG"); v != "" {
		return v
	}
	return "maglink.yaml"
}

// withApp opens the app for one command and closes it afterwards.
func (o *rootOptions) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := app.New(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
