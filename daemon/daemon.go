// Package daemon wires the reconcile manager, the catalog client, the
// Docker substrate, and the local API socket into one long-running
// process.
package daemon

import (
	"context"
	"log/slog"

	"addonsync"
	"addonsync/catalog"
	"addonsync/config"
	"addonsync/infra/docker"
	"addonsync/internal/buildinfo"
	"addonsync/manager"
	"addonsync/state"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Run starts the catalog refresher, schedules convergence, and serves the
// API socket. It blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	store, err := state.Open(cfg.StatePath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	host, err := docker.Connect(ctx, cfg.DockerHost)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	cat := catalog.NewClient(cfg.CatalogURL, nil, host)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	requirements := cfg.Requirements()

	mgr := manager.New(manager.Config{
		Requirements: requirements,
		Catalog:      cat,
		Installed:    host,
		Store:        store,
		Restarter:    NewRestarter(),
		Journal:      store,
		Identity:     addonsync.ParseVersion(buildinfo.Version),
		Metrics:      registry,
	})

	srv := NewServer(mgr, cat, store, host, requirements, buildinfo.Version, registry)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cat.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := mgr.Converge(ctx); err != nil {
			// The worker retries on its own; a failed first snapshot only
			// delays convergence until the next daemon start.
			slog.Warn("Convergence scheduling failed.", "err", err)
		}
		return nil
	})
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Socket) })

	// Notify systemd that the daemon is ready once the socket is being
	// served. Outside systemd this is a no-op.
	if _, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
		slog.Debug("Could not notify systemd.", "err", err)
	}

	return g.Wait()
}
