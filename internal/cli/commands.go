package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"maglink/internal/app"
)

// ── serve ──────────────────────────────────────────────────

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noAudit, noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled layout audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(ctx, func(a *app.App) error {
				if !noAudit {
					if err := a.Audit.Start(a.Config.Audit.Schedule); err != nil {
						return err
					}
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return a.HTTP().ListenAndServe(gctx, a.Config.Server)
				})
				if !noWatch && opts.configPath != "" {
					if _, err := os.Stat(opts.configPath); err == nil {
						g.Go(func() error {
							return a.WatchConfig(gctx, opts.configPath)
						})
					}
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "do not schedule the layout audit")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

// ── mcp ────────────────────────────────────────────────────

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				opts.logger.Info("mcp server starting", zap.String("transport", "stdio"))
				return a.MCP(Version).ServeStdio()
			})
		},
	}
}

// ── audit ──────────────────────────────────────────────────

func newAuditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check every page once and repack the ones with overlaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Audit.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(cmd, report); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d page(s) failed the audit", len(report.Failed))
				}
				return nil
			})
		},
	}
}

// ── repack ─────────────────────────────────────────────────

func newRepackCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repack <page>",
		Short: "Repack one page if any of its blocks overlap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Pages.GetPage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				outcome, err := a.Blocks.RepackPage(cmd.Context(), page.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
}

// ── check ──────────────────────────────────────────────────

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <page>",
		Short: "List overlapping blocks on a page without changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Pages.GetPage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				collisions, err := a.Blocks.CheckPage(cmd.Context(), page.ID)
				if err != nil {
					return err
				}
				if len(collisions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No overlapping blocks")
					return nil
				}
				return printJSON(cmd, collisions)
			})
		},
	}
}

// ── migrate ────────────────────────────────────────────────

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.Config.Storage.Driver)
				return nil
			})
		},
	}
}

// ── version ────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "maglink", Version)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
