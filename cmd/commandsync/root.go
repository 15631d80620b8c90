package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"discord-interactions-server/internal/config"
	"discord-interactions-server/internal/core/ports"
	"discord-interactions-server/internal/core/services/reconcile"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type rootFlags struct {
	commandsFile string
	guildID      string
	noColor      bool
}

func rootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "commandsync",
		Short:         "Reconcile Discord application commands with a manifest",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureColor(!flags.noColor)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.commandsFile, "commands", "", "Commands manifest (overrides COMMANDS_FILE)")
	cmd.PersistentFlags().StringVar(&flags.guildID, "guild", "", "Redirect global commands to this guild (overrides DISCORD_GUILD_ID)")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(syncCmd(&flags), watchCmd(&flags), listCmd(&flags), statusCmd(&flags))
	return cmd
}

// setup loads configuration, applies flag overrides and builds the app.
func setup(ctx context.Context, flags *rootFlags) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := applyOverrides(cfg, flags); err != nil {
		return nil, err
	}

	if err := InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	return NewApp(ctx, cfg)
}

// applyOverrides copies flag values over the loaded configuration and validates the result.
func applyOverrides(cfg *config.Config, flags *rootFlags) error {
	if flags.commandsFile != "" {
		cfg.CommandsFile = flags.commandsFile
	}
	if flags.guildID != "" {
		cfg.DiscordGuildID = flags.guildID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, app *App) error) error {
	ctx, stop := NotifyShutdown(cmd.Context())
	defer stop()

	app, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownApp(shutdownCtx, app)
	}()

	return fn(ctx, app)
}

func shutdownApp(ctx context.Context, app *App) {
	if err := app.Shutdown(ctx); err != nil {
		slog.Error("Application shutdown error", "error", err)
	}
}

func syncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconcile pass for every scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				reports, err := app.SyncAll(ctx)
				printReports(cmd.OutOrStdout(), reports)
				return err
			})
		},
	}
}

func watchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reconcile periodically and serve metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				return app.Watch(ctx, app.config.SyncInterval)
			})
		},
	}
}

func listCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Compare the manifest with the remote commands without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				views, err := app.Preview(ctx)
				if err != nil {
					return err
				}
				printViews(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
}

func statusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last reconciled state saved in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				snapshots, err := app.Status(ctx)
				if err != nil {
					return err
				}
				printSnapshots(cmd.OutOrStdout(), snapshots)
				return nil
			})
		},
	}
}

func printReports(w io.Writer, reports []reconcile.Report) {
	var rows [][]string
	for _, report := range reports {
		for _, r := range report.Results {
			detail := ""
			if r.Err != nil {
				detail = r.Err.Error()
			}
			rows = append(rows, []string{report.Scope.String(), r.Name, string(r.Phase), styleState(string(r.Status)), r.RemoteID, detail})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No commands to reconcile"))
		return
	}
	fmt.Fprintln(w, renderTable([]string{"SCOPE", "NAME", "PHASE", "STATUS", "ID", "ERROR"}, rows))
}

func printViews(w io.Writer, views []CommandView) {
	if len(views) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No commands"))
		return
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Scope.String(), v.Name, typeName(v.Type), v.RemoteID, styleState(v.State)})
	}
	fmt.Fprintln(w, renderTable([]string{"SCOPE", "NAME", "TYPE", "ID", "STATE"}, rows))
}

func printSnapshots(w io.Writer, snapshots []*ports.Snapshot) {
	for _, snap := range snapshots {
		synced := mutedStyle.Render("never")
		if !snap.SyncedAt.IsZero() {
			synced = snap.SyncedAt.Local().Format(time.RFC3339)
		}
		fmt.Fprint(w, keyValues("",
			kv("scope", snap.Scope.String()),
			kv("commands", strconv.Itoa(len(snap.Commands))),
			kv("synced at", synced),
		))
		for _, c := range snap.Commands {
			fmt.Fprintf(w, "  %s %s\n", c.Name, mutedStyle.Render(c.ID))
		}
		fmt.Fprintln(w)
	}
}
