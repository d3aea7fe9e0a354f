package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"addonsync"
	"addonsync/telemetry"

	"github.com/containerd/errdefs"
)

const (
	// loopDelay is 5s: fixed cadence between reconcile passes; there is no
	// backoff beyond it.
	loopDelay = 5 * time.Second
	// restartNoticeDelay is 5s: lets the restart notice propagate before the
	// restart request fires.
	restartNoticeDelay = 5 * time.Second
	// missingWarnInterval is 1h: cap on "catalog does not offer X" warnings
	// while the lookup keeps failing.
	missingWarnInterval = time.Hour
)

// Worker is the background reconcile loop. At most one Worker is
// registered on the manager's queue at any time; it deregisters itself
// on exit. It never dies except by reaching convergence or process
// shutdown: failures are swallowed and retried on the next pass.
type Worker struct {
	mgr   *Manager
	phase atomic.Uint32

	// op is the converge plan operation emitted at scheduling time, nil
	// when tracing is off. Deploys run as its child steps; the worker
	// ends it on exit.
	op *telemetry.Operation

	// nextWarning rate-limits the unresolved-component warning.
	// Touched only by the worker, under the queue lock during drains.
	nextWarning time.Time

	// sleep is replaced in tests. Interruption is a no-op: the loop
	// proceeds either way.
	sleep func(ctx context.Context, d time.Duration)
}

func newWorker(m *Manager) *Worker {
	w := &Worker{mgr: m}
	// A registered worker is observable as waiting before its goroutine
	// runs; PhaseIdle is reserved for "no worker registered".
	w.phase.Store(uint32(PhaseWaitingForMetadata))
	w.sleep = func(ctx context.Context, d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	if m.sleepFn != nil {
		w.sleep = m.sleepFn
	}
	return w
}

func (w *Worker) currentPhase() Phase { return Phase(w.phase.Load()) }

func (w *Worker) transition(to Phase) {
	w.phase.Store(uint32(w.currentPhase().Transition(to)))
}

// run drives the loop to convergence. Cleanup is unconditional: the
// deferred finish deregisters the worker and persists convergence even if
// the loop exits through a panic.
func (w *Worker) run(ctx context.Context) {
	defer w.finish()
	slog.Info("Background worker for add-on installation awake.")

	w.nextWarning = time.Time{}
	pending := true
	for pending && ctx.Err() == nil {
		pending = w.pass(ctx)
	}
	if pending {
		// Process shutdown interrupted the loop; nothing more to do.
		return
	}

	w.transition(PhaseStoppingForRestart)
	w.mgr.status.markImportant()
	w.mgr.status.set(addonsync.Status{Kind: addonsync.StatusRestartScheduled})
	w.sleep(ctx, restartNoticeDelay)
	w.requestRestart()
}

// pass runs one reconcile iteration and reports whether installs remain
// pending. Any panic is swallowed: the worker sleeps and tries again.
func (w *Worker) pass(ctx context.Context) (pending bool) {
	defer func() {
		if r := recover(); r != nil {
			pending = true
			slog.Debug("Reconcile pass failed, will retry.", "reason", r)
			w.sleep(ctx, loopDelay)
		}
	}()

	w.transition(PhaseWaitingForMetadata)
	if !w.mgr.catalog.HasMetadata() {
		w.mgr.status.set(addonsync.Status{Kind: addonsync.StatusFetchingMetadata})
		w.sleep(ctx, loopDelay)
		return true
	}

	w.transition(PhaseDraining)
	if !w.drain(ctx) {
		return false
	}
	w.transition(PhaseSleeping)
	w.sleep(ctx, loopDelay)
	return true
}

// drain works through the queue head-first under the queue lock. Deploys
// are awaited synchronously inside the lock so only one deploy is ever in
// flight and ordering matches declaration order. Returns whether entries
// remain queued.
func (w *Worker) drain(ctx context.Context) bool {
	m := w.mgr
	m.q.mu.Lock()
	defer m.q.mu.Unlock()

	for len(m.q.pending) > 0 {
		dep := m.q.pending[0]
		res, err := m.catalog.Resolve(ctx, dep.Name)
		if err != nil {
			if errdefs.IsNotFound(err) {
				m.metrics.unresolved.Inc()
				w.warnUnresolved(dep.Name)
			} else {
				slog.Debug("Catalog lookup failed, will retry.", "name", dep.Name, "err", err)
			}
			break
		}

		switch {
		case res.InstalledAndEnabled(ctx):
			current, _ := m.installed.Lookup(ctx, dep.Name)
			if !dep.MinVersion.IsZero() && current.Version.OlderThan(dep.MinVersion) {
				slog.Info("Upgrading add-on.", "name", dep.Name, "version", res.Version())
				m.status.set(addonsync.Status{Kind: addonsync.StatusUpgrading, DisplayName: res.DisplayName(), Version: res.Version().String()})
				if !w.deploy(ctx, dep, res, true) {
					return true
				}
				m.q.removeHeadLocked()
				w.nextWarning = time.Time{}
				m.status.set(addonsync.Status{Kind: addonsync.StatusUpgraded, DisplayName: res.DisplayName(), Version: res.Version().String()})
				m.metrics.upgrades.Inc()
				slog.Info("Upgraded add-on.", "name", dep.Name, "version", res.Version())
			} else {
				slog.Info("Detected previous installation of add-on.", "name", dep.Name)
				m.q.removeHeadLocked()
				w.nextWarning = time.Time{}
			}
		default:
			slog.Info("Installing add-on.", "name", dep.Name)
			m.status.set(addonsync.Status{Kind: addonsync.StatusInstalling, DisplayName: res.DisplayName()})
			if !w.deploy(ctx, dep, res, false) {
				return true
			}
			m.q.removeHeadLocked()
			w.nextWarning = time.Time{}
			m.status.set(addonsync.Status{Kind: addonsync.StatusInstalled, DisplayName: res.DisplayName(), Version: res.Version().String()})
			m.metrics.installs.Inc()
			slog.Info("Installed add-on.", "name", dep.Name)
		}
		m.metrics.queueDepth.Set(float64(len(m.q.pending)))
	}
	return len(m.q.pending) > 0
}

// warnUnresolved logs at most once per missingWarnInterval while a
// required component stays missing from the catalog.
func (w *Worker) warnUnresolved(name string) {
	now := w.mgr.clock.Now()
	if now.Before(w.nextWarning) {
		return
	}
	slog.Warn("Cannot find required add-on in the catalog, the declared set cannot be installed without it. Will try again later.", "name", name)
	w.mgr.emit("drain.unresolved", name)
	w.nextWarning = now.Add(missingWarnInterval)
}

// deploy awaits the resolved component's deploy operation with no timeout
// and reports success. A failure leaves the queue untouched; the entry is
// retried on the next drain pass with no further noise.
func (w *Worker) deploy(ctx context.Context, dep addonsync.Dependency, res addonsync.Resolved, upgrade bool) bool {
	m := w.mgr
	err := w.deployTraced(ctx, dep.Name, res)
	m.record(DeployEvent{
		Name:        dep.Name,
		DisplayName: res.DisplayName(),
		Version:     res.Version().String(),
		Upgrade:     upgrade,
		OK:          err == nil,
		At:          m.clock.Now(),
	})
	if err != nil {
		m.metrics.deployFailures.Inc()
		m.emit("deploy.failed", dep.Name)
		return false
	}
	return true
}

func (w *Worker) deployTraced(ctx context.Context, name string, res addonsync.Resolved) error {
	if w.op == nil {
		return res.Deploy(ctx)
	}
	return w.op.RunStep(w.op.Context(), name, func(stepCtx context.Context) error {
		return res.Deploy(stepCtx)
	})
}

// requestRestart asks the host to restart. A host that cannot restart
// downgrades to an informational notice; it is never an error.
func (w *Worker) requestRestart() {
	m := w.mgr
	if m.restarter == nil {
		m.status.set(addonsync.Status{Kind: addonsync.StatusRestartUnavailable})
		return
	}
	if err := m.restarter.RequestRestart(); err != nil {
		if !errors.Is(err, addonsync.ErrRestartUnsupported) {
			slog.Warn("Restart request failed.", "err", err)
		}
		m.status.set(addonsync.Status{Kind: addonsync.StatusRestartUnavailable})
		return
	}
	m.emit("restart.requested", "")
}

// finish deregisters the worker (only if it is still the registered one)
// and, when the queue drained fully, persists convergence against the
// current identity version. It runs even when the loop exits via an
// uncaught failure.
func (w *Worker) finish() {
	if r := recover(); r != nil {
		slog.Warn("Reconcile worker exiting after unexpected failure.", "reason", r)
	}
	slog.Info("Background worker for add-on installation finished.")

	m := w.mgr
	w.transition(PhaseTerminated)

	m.q.mu.Lock()
	if m.q.worker == w {
		m.q.worker = nil
	}
	finished := len(m.q.pending) == 0
	m.q.mu.Unlock()

	if finished {
		m.MarkConverged(true)
	}
	w.op.End(nil)
}
