// Package manager owns the reconcile core: the delta computation, the
// convergence queue, the background worker, and the persisted
// convergence fact.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"addonsync"
	"addonsync/internal/check"
	"addonsync/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// DeployEvent records one initiated deploy and its outcome.
type DeployEvent struct {
	Name        string
	DisplayName string
	Version     string
	Upgrade     bool
	OK          bool
	At          time.Time
}

// Journal persists the deploy trail. Implementations must not block the
// worker for long; failures are logged and ignored.
type Journal interface {
	Record(ev DeployEvent) error
}

// Config wires the manager's collaborators. Catalog, Installed and Store
// are required; the rest default to no-ops.
type Config struct {
	Requirements []addonsync.Dependency
	Catalog      addonsync.Catalog
	Installed    addonsync.InstalledSource
	Store        addonsync.ConvergenceStore
	Restarter    addonsync.Restarter
	Journal      Journal
	Clock        addonsync.Clock
	Identity     addonsync.Version // the orchestrator's own version
	Metrics      prometheus.Registerer
	Tracer       trace.Tracer
	OnEvent      func(event, message string)
}

// Manager owns the queue, the nullable worker handle behind the queue's
// lock, and the public status and convergence accessors. One Manager
// exists per process; its scheduler entry point is Converge.
type Manager struct {
	requirements []addonsync.Dependency
	catalog      addonsync.Catalog
	installed    addonsync.InstalledSource
	store        addonsync.ConvergenceStore
	restarter    addonsync.Restarter
	journal      Journal
	clock        addonsync.Clock
	identity     addonsync.Version
	tracer       trace.Tracer
	onEvent      func(event, message string)

	q       queue
	status  statusHolder
	metrics *metrics

	// converged caches the persisted convergence version. nil means "not
	// converged". Readers never block.
	converged atomic.Pointer[addonsync.Version]

	// sleepFn overrides the worker's delay function in tests.
	sleepFn func(ctx context.Context, d time.Duration)
}

// New builds a Manager and hydrates the persisted convergence state.
// A state that cannot be read is treated as "not converged", never fatal.
func New(cfg Config) *Manager {
	check.Assert(cfg.Catalog != nil, "manager.New: Catalog must not be nil")
	check.Assert(cfg.Installed != nil, "manager.New: Installed must not be nil")
	check.Assert(cfg.Store != nil, "manager.New: Store must not be nil")

	m := &Manager{
		requirements: cfg.Requirements,
		catalog:      cfg.Catalog,
		installed:    cfg.Installed,
		store:        cfg.Store,
		restarter:    cfg.Restarter,
		journal:      cfg.Journal,
		clock:        cfg.Clock,
		identity:     cfg.Identity,
		tracer:       cfg.Tracer,
		onEvent:      cfg.OnEvent,
		metrics:      newMetrics(cfg.Metrics),
	}
	if m.clock == nil {
		m.clock = addonsync.RealClock{}
	}
	if m.requirements == nil {
		m.requirements = addonsync.DefaultRequirements()
	}
	m.hydrate()
	return m
}

// hydrate loads the persisted convergence version. A persisted version
// newer than the running identity means the orchestrator was downgraded;
// the stale record is cleared so the next run re-checks everything.
func (m *Manager) hydrate() {
	raw, err := m.store.Load()
	if err != nil {
		slog.Warn("Could not read convergence state, assuming the add-ons need re-installation.", "err", err)
		return
	}
	if raw == "" {
		return
	}
	v := addonsync.ParseVersion(raw)
	if m.identity.OlderThan(v) {
		slog.Warn("Convergence was recorded by a newer version, clearing stale record.",
			"recorded", v, "running", m.identity)
		if err := m.store.Clear(); err != nil {
			slog.Warn("Could not clear stale convergence record.", "err", err)
		}
		return
	}
	m.converged.Store(&v)
}

// Converged reports whether every declared add-on was previously brought
// to its required version by an orchestrator at least as new as the one
// running now.
func (m *Manager) Converged() bool {
	v := m.converged.Load()
	if v == nil {
		return false
	}
	return !v.OlderThan(m.identity)
}

// MarkConverged persists or clears the convergence fact. It writes only
// on change; a failed write is logged and the next start re-checks.
func (m *Manager) MarkConverged(converged bool) {
	if converged {
		cur := m.converged.Load()
		if cur != nil && cur.Compare(m.identity) == 0 {
			return
		}
		if err := m.store.Save(m.identity.String()); err != nil {
			slog.Warn("Could not persist convergence state. Add-ons may be redundantly re-checked on next start.", "err", err)
		}
		v := m.identity
		m.converged.Store(&v)
		return
	}
	if m.converged.Load() == nil {
		return
	}
	if err := m.store.Clear(); err != nil {
		slog.Warn("Could not clear convergence state.", "err", err)
	}
	m.converged.Store(nil)
}

// Status returns the current progress message. ok is false before the
// first reconcile activity.
func (m *Manager) Status() (addonsync.Status, bool) { return m.status.get() }

// StatusImportant reports whether the current status is an
// action-required notice rather than informational progress.
func (m *Manager) StatusImportant() bool { return m.status.isImportant() }

// QueueLen returns the number of pending installs.
func (m *Manager) QueueLen() int { return m.q.len() }

// Phase returns the running worker's phase, or PhaseIdle when no worker
// is registered.
func (m *Manager) Phase() Phase {
	m.q.mu.Lock()
	w := m.q.worker
	m.q.mu.Unlock()
	if w == nil {
		return PhaseIdle
	}
	return w.currentPhase()
}

// Converge is the scheduler entry point, invoked once per process start.
// It computes the delta between declared and installed add-ons, queues
// the missing ones, and starts at most one background worker. When the
// delta is already empty it persists convergence immediately.
func (m *Manager) Converge(ctx context.Context) error {
	if m.Converged() {
		slog.Info("Add-on convergence previously completed, will not check or reinstall.")
		return nil
	}

	snap, err := m.installed.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot installed add-ons: %w", err)
	}
	delta := ComputeDelta(m.requirements, snap)
	op := m.emitPlan(ctx, delta)

	m.q.mu.Lock()
	for _, dep := range delta {
		slog.Debug("Scheduling add-on install.", "name", dep.Name)
		m.q.enqueueLocked(dep)
	}
	empty := len(m.q.pending) == 0
	m.metrics.queueDepth.Set(float64(len(m.q.pending)))
	if !empty && m.q.worker == nil {
		m.status.set(addonsync.Status{Kind: addonsync.StatusFetchingMetadata})
		slog.Info("Starting background worker for add-on installation.", "pending", len(m.q.pending))
		w := newWorker(m)
		w.op = op
		op = nil
		m.q.worker = w
		go w.run(ctx)
	} else if !empty {
		slog.Debug("Worker already running, not starting another.")
	} else {
		slog.Info("Nothing to do, all declared add-ons satisfied.")
	}
	m.q.mu.Unlock()

	// An operation not handed to a worker has no steps coming.
	op.End(nil)

	if empty {
		m.MarkConverged(true)
	}
	return nil
}

// emitPlan publishes the computed delta as a telemetry plan when a
// tracer is configured. The returned operation stays open so deploys
// can run as its child steps; the caller owns ending it.
func (m *Manager) emitPlan(ctx context.Context, delta []addonsync.Dependency) *telemetry.Operation {
	if m.tracer == nil {
		return nil
	}
	plan := telemetry.Plan{Steps: make([]telemetry.PlannedStep, len(delta))}
	for i, d := range delta {
		plan.Steps[i] = telemetry.PlannedStep{ID: d.Name, Title: "Install " + d.Name}
	}
	op, err := telemetry.EmitPlan(ctx, m.tracer, "converge", plan)
	if err != nil {
		slog.Debug("Could not emit converge plan.", "err", err)
		return nil
	}
	return op
}

func (m *Manager) emit(event, message string) {
	if m.onEvent != nil {
		m.onEvent(event, message)
	}
	slog.Debug("reconcile event", "event", event, "message", message)
}

func (m *Manager) record(ev DeployEvent) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ev); err != nil {
		slog.Warn("Could not record deploy event.", "err", err)
	}
}
