package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"discord-interactions-server/internal/adapters/discord"
	valkeylock "discord-interactions-server/internal/adapters/lock/valkey"
	"discord-interactions-server/internal/adapters/manifest"
	"discord-interactions-server/internal/adapters/storage/postgres"
	"discord-interactions-server/internal/config"
	"discord-interactions-server/internal/core/domain"
	"discord-interactions-server/internal/core/ports"
	"discord-interactions-server/internal/core/services/reconcile"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type closer interface {
	Close()
}

type App struct {
	config        *config.Config
	stores        []*reconcile.Store
	snapshots     ports.SnapshotRepository
	locker        closer
	metricsServer *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	m, err := manifest.Load(cfg.CommandsFile)
	if err != nil {
		return nil, fmt.Errorf("load commands file: %w", err)
	}
	if cfg.DiscordGuildID != "" {
		slog.Info("Redirecting global commands to guild", "guild_id", cfg.DiscordGuildID)
		m.RedirectGlobal(cfg.DiscordGuildID)
	}

	session, err := discord.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	appID, err := discord.ResolveApplicationID(session, cfg.ApplicationID)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg}

	opts := []reconcile.Option{reconcile.WithConcurrency(cfg.WorkerPoolSize)}
	if cfg.AlwaysPatch {
		opts = append(opts, reconcile.WithAlwaysPatch())
	}

	if cfg.ValkeyAddr != "" {
		client, err := valkeylock.NewClient(cfg.ValkeyAddr)
		if err != nil {
			return nil, err
		}
		locker := valkeylock.NewLocker(client, cfg.LockTTL)
		app.locker = locker
		opts = append(opts, reconcile.WithLocker(locker))
	}

	if cfg.DatabaseURL != "" {
		snapshots, err := postgres.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("connect to storage: %w", err)
		}
		app.snapshots = snapshots
	}

	stores, err := buildStores(discord.NewTransport(session), appID, m, opts...)
	if err != nil {
		app.closeResources()
		return nil, err
	}
	app.stores = stores

	return app, nil
}

// buildStores creates one store per manifest scope and queues its definitions.
func buildStores(transport ports.Transport, appID string, m *manifest.Manifest, opts ...reconcile.Option) ([]*reconcile.Store, error) {
	stores := make([]*reconcile.Store, 0, len(m.Scopes))
	for _, scope := range m.Scopes {
		store := reconcile.NewStore(transport, appID, scope.Scope, opts...)
		if err := store.Enqueue(scope.Entries()...); err != nil {
			return nil, fmt.Errorf("queue %s commands: %w", scope.Scope, err)
		}
		stores = append(stores, store)
	}
	return stores, nil
}

// SyncAll reconciles every scope in turn. A failing scope does not stop the others.
func (a *App) SyncAll(ctx context.Context) ([]reconcile.Report, error) {
	reports := make([]reconcile.Report, 0, len(a.stores))
	var errs []error

	for _, store := range a.stores {
		report, err := store.Reconcile(ctx)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", store.Scope(), err))
			if errors.Is(err, reconcile.ErrReconcileInProgress) || len(report.Results) == 0 {
				continue
			}
		}

		if a.snapshots != nil {
			if err := a.snapshots.SaveSnapshot(ctx, store.Scope(), store.Remote()); err != nil {
				slog.Error("Failed to save snapshot", "scope", store.Scope().Key(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", store.Scope(), err))
			}
		}
	}

	return reports, errors.Join(errs...)
}

// Watch runs a pass immediately and then every interval until ctx is cancelled.
func (a *App) Watch(ctx context.Context, interval time.Duration) error {
	a.startMetricsServer()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Watching commands", "interval", interval, "scopes", len(a.stores))

	for {
		if _, err := a.SyncAll(ctx); err != nil {
			slog.Error("Sync pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			return nil
		case <-ticker.C:
		}
	}
}

// CommandView is one row of the dry-run listing.
type CommandView struct {
	Scope    domain.Scope
	Name     string
	RemoteID string
	Type     discordgo.ApplicationCommandType
	State    string
}

const (
	stateInSync    = "in sync"
	stateDrifted   = "drifted"
	stateMissing   = "missing"
	stateUnmanaged = "unmanaged"
)

// Preview compares the queued definitions of every scope with what exists remotely,
// without changing anything.
func (a *App) Preview(ctx context.Context) ([]CommandView, error) {
	var views []CommandView

	for _, store := range a.stores {
		remote, err := store.FetchRemote(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", store.Scope(), err)
		}
		views = append(views, preview(store.Scope(), store.Queue(), remote)...)
	}

	return views, nil
}

func preview(scope domain.Scope, queue, remote []*domain.Descriptor) []CommandView {
	remoteByName := make(map[string]*domain.Descriptor, len(remote))
	for _, r := range remote {
		remoteByName[r.Name()] = r
	}

	seen := make(map[string]bool, len(queue))
	var views []CommandView

	for i := len(queue) - 1; i >= 0; i-- {
		d := queue[i]
		if seen[d.Name()] {
			continue
		}
		seen[d.Name()] = true

		view := CommandView{Scope: scope, Name: d.Name(), Type: d.Definition().Type, State: stateMissing}
		if r, ok := remoteByName[d.Name()]; ok {
			view.RemoteID = r.RemoteID()
			view.State = stateInSync
			if drifted(d.Definition(), r.Snapshot()) {
				view.State = stateDrifted
			}
		}
		views = append(views, view)
	}

	for _, r := range remote {
		if seen[r.Name()] {
			continue
		}
		if r.Desired() {
			views = append(views, CommandView{Scope: scope, Name: r.Name(), RemoteID: r.RemoteID(), Type: r.Definition().Type, State: stateInSync})
			continue
		}
		views = append(views, CommandView{Scope: scope, Name: r.Name(), RemoteID: r.RemoteID(), Type: r.Definition().Type, State: stateUnmanaged})
	}

	sort.SliceStable(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

func drifted(def domain.Definition, remote *discordgo.ApplicationCommand) bool {
	d, err := domain.NewDescriptor(def)
	if err != nil {
		return true
	}
	d.Bind(remote)
	return d.Drifted()
}

// Status returns the last saved snapshot of every scope; nil entries were never saved.
func (a *App) Status(ctx context.Context) ([]*ports.Snapshot, error) {
	if a.snapshots == nil {
		return nil, errors.New("status requires DATABASE_URL")
	}

	snapshots := make([]*ports.Snapshot, 0, len(a.stores))
	for _, store := range a.stores {
		snap, err := a.snapshots.LoadSnapshot(ctx, store.Scope())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", store.Scope(), err)
		}
		if snap == nil {
			snap = &ports.Snapshot{Scope: store.Scope()}
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.metricsServer = &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting metrics server", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down...")

	var err error
	if a.metricsServer != nil {
		if shutdownErr := a.metricsServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown metrics server: %w", shutdownErr)
		}
	}

	a.closeResources()
	return err
}

func (a *App) closeResources() {
	if a.snapshots != nil {
		a.snapshots.Close()
	}
	if a.locker != nil {
		a.locker.Close()
	}
}
