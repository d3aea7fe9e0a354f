package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"addonsync"

	"github.com/containerd/errdefs"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	version string
	loadErr error
	saves   int
	clears  int
}

func (s *fakeStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.loadErr
}

func (s *fakeStore) Save(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	s.saves++
	return nil
}

func (s *fakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = ""
	s.clears++
	return nil
}

func (s *fakeStore) saved() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.saves
}

type fakeResolved struct {
	name        string
	display     string
	version     string
	installedFn func() bool
	deployFn    func() error
}

func (r *fakeResolved) DisplayName() string {
	if r.display != "" {
		return r.display
	}
	return r.name
}

func (r *fakeResolved) Version() addonsync.Version { return addonsync.ParseVersion(r.version) }

func (r *fakeResolved) InstalledAndEnabled(context.Context) bool {
	if r.installedFn == nil {
		return false
	}
	return r.installedFn()
}

func (r *fakeResolved) Deploy(context.Context) error {
	if r.deployFn == nil {
		return nil
	}
	return r.deployFn()
}

type fakeCatalog struct {
	mu       sync.Mutex
	metadata atomic.Bool
	entries  map[string]*fakeResolved
}

func newFakeCatalog(entries ...*fakeResolved) *fakeCatalog {
	c := &fakeCatalog{entries: make(map[string]*fakeResolved, len(entries))}
	c.metadata.Store(true)
	for _, e := range entries {
		c.entries[e.name] = e
	}
	return c
}

func (c *fakeCatalog) HasMetadata() bool { return c.metadata.Load() }

func (c *fakeCatalog) Resolve(_ context.Context, name string) (addonsync.Resolved, error) {
	if !c.metadata.Load() {
		return nil, fmt.Errorf("no metadata: %w", errdefs.ErrUnavailable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("no component %q: %w", name, errdefs.ErrNotFound)
	}
	return r, nil
}

type fakeInstalled struct {
	mu   sync.Mutex
	snap addonsync.Installed
	err  error
}

func (f *fakeInstalled) Snapshot(context.Context) (addonsync.Installed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(addonsync.Installed, len(f.snap))
	for k, v := range f.snap {
		out[k] = v
	}
	return out, nil
}

func (f *fakeInstalled) Lookup(_ context.Context, name string) (addonsync.InstalledComponent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.snap[name]
	return c, ok
}

type fakeRestarter struct {
	calls atomic.Int32
	err   error
}

func (r *fakeRestarter) RequestRestart() error {
	r.calls.Add(1)
	return r.err
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(event, message string) {
	l.mu.Lock()
	l.events = append(l.events, event+":"+message)
	l.mu.Unlock()
}

func (l *eventLog) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type journalLog struct {
	mu     sync.Mutex
	events []DeployEvent
}

func (j *journalLog) Record(ev DeployEvent) error {
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()
	return nil
}

func (j *journalLog) all() []DeployEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]DeployEvent(nil), j.events...)
}

func noSleep(context.Context, time.Duration) {}

func TestWorkerInstallsAndRequestsRestart(t *testing.T) {
	var order []string
	var orderMu sync.Mutex
	deployed := func(name string) func() error {
		return func() error {
			orderMu.Lock()
			order = append(order, name)
			orderMu.Unlock()
			return nil
		}
	}

	cat := newFakeCatalog(
		&fakeResolved{name: "a", display: "Add-on A", version: "1.0", deployFn: deployed("a")},
		&fakeResolved{name: "b", display: "Add-on B", version: "2.0", deployFn: deployed("b")},
	)
	store := &fakeStore{}
	restarter := &fakeRestarter{}
	journal := &journalLog{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a"), addonsync.Require("b")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        store,
		Restarter:    restarter,
		Journal:      journal,
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("3.1"),
	})
	m.sleepFn = noSleep

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}

	waitFor(t, "convergence", m.Converged)

	orderMu.Lock()
	gotOrder := append([]string(nil), order...)
	orderMu.Unlock()
	if len(gotOrder) != 2 || gotOrder[0] != "a" || gotOrder[1] != "b" {
		t.Errorf("deploy order = %v, want [a b]", gotOrder)
	}
	if got := restarter.calls.Load(); got != 1 {
		t.Errorf("restart requests = %d, want 1", got)
	}
	if version, saves := store.saved(); version != "3.1" || saves != 1 {
		t.Errorf("persisted state = (%q, %d saves), want (3.1, 1)", version, saves)
	}
	if got := m.QueueLen(); got != 0 {
		t.Errorf("queue length after convergence = %d, want 0", got)
	}

	events := journal.all()
	if len(events) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(events))
	}
	for _, ev := range events {
		if !ev.OK || ev.Upgrade {
			t.Errorf("journal entry %+v, want successful install", ev)
		}
	}
}

func TestWorkerRegistersInWaitingPhase(t *testing.T) {
	cat := newFakeCatalog(&fakeResolved{name: "a", version: "1.0"})
	cat.metadata.Store(false)

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    &fakeRestarter{},
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("1.0"),
	})

	release := make(chan struct{})
	m.sleepFn = func(ctx context.Context, _ time.Duration) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Converge(ctx); err != nil {
		t.Fatalf("Converge: %v", err)
	}

	// The scheduled worker must be visible before its goroutine runs;
	// idle means "no worker".
	if got := m.Phase(); got != PhaseWaitingForMetadata {
		t.Errorf("phase after scheduling = %s, want %s", got, PhaseWaitingForMetadata)
	}

	cancel()
	close(release)
	waitFor(t, "worker exit", func() bool { return m.Phase() == PhaseIdle })
}

func TestWorkerWaitsForMetadata(t *testing.T) {
	cat := newFakeCatalog(&fakeResolved{name: "a", version: "1.0"})
	cat.metadata.Store(false)

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    &fakeRestarter{},
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("1.0"),
	})

	var sleeps atomic.Int32
	m.sleepFn = func(context.Context, time.Duration) {
		// Metadata shows up after two waiting passes.
		if sleeps.Add(1) == 2 {
			cat.metadata.Store(true)
		}
	}

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}

	waitFor(t, "convergence", m.Converged)

	if st, ok := m.Status(); !ok || st.Kind != addonsync.StatusRestartScheduled {
		t.Errorf("final status = %+v (ok=%v), want restart scheduled", st, ok)
	}
}

func TestWorkerUnresolvedComponentNeverConverges(t *testing.T) {
	cat := newFakeCatalog() // catalog offers nothing
	clock := newFakeClock()
	events := &eventLog{}
	restarter := &fakeRestarter{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("ghost")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    restarter,
		Clock:        clock,
		Identity:     addonsync.ParseVersion("1.0"),
		OnEvent:      events.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var passes atomic.Int32
	m.sleepFn = func(context.Context, time.Duration) {
		if passes.Add(1) >= 5 {
			cancel()
		}
	}

	if err := m.Converge(ctx); err != nil {
		t.Fatalf("Converge: %v", err)
	}

	waitFor(t, "worker exit", func() bool { return m.Phase() == PhaseIdle })

	if m.Converged() {
		t.Error("unresolved component must not converge")
	}
	if got := restarter.calls.Load(); got != 0 {
		t.Errorf("restart requests = %d, want 0", got)
	}
	if got := m.QueueLen(); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
	// The missing-component warning fires once per hour, not per pass.
	if got := events.count("drain.unresolved"); got != 1 {
		t.Errorf("unresolved warnings = %d, want 1", got)
	}
}

func TestWorkerUnresolvedWarningRateLimit(t *testing.T) {
	cat := newFakeCatalog()
	clock := newFakeClock()
	events := &eventLog{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("ghost")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Clock:        clock,
		Identity:     addonsync.ParseVersion("1.0"),
		OnEvent:      events.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var passes atomic.Int32
	m.sleepFn = func(context.Context, time.Duration) {
		switch passes.Add(1) {
		case 3:
			clock.advance(61 * time.Minute)
		case 6:
			cancel()
		}
	}

	if err := m.Converge(ctx); err != nil {
		t.Fatalf("Converge: %v", err)
	}
	waitFor(t, "worker exit", func() bool { return m.Phase() == PhaseIdle })

	if got := events.count("drain.unresolved"); got != 2 {
		t.Errorf("unresolved warnings = %d, want 2 (one per rate-limit window)", got)
	}
}

func TestWorkerDeployFailureRetriesInOrder(t *testing.T) {
	var order []string
	var orderMu sync.Mutex
	var attemptsA atomic.Int32

	cat := newFakeCatalog(
		&fakeResolved{name: "a", version: "1.0", deployFn: func() error {
			if attemptsA.Add(1) < 3 {
				return fmt.Errorf("transient deploy failure")
			}
			orderMu.Lock()
			order = append(order, "a")
			orderMu.Unlock()
			return nil
		}},
		&fakeResolved{name: "b", version: "1.0", deployFn: func() error {
			orderMu.Lock()
			order = append(order, "b")
			orderMu.Unlock()
			return nil
		}},
	)
	restarter := &fakeRestarter{}
	journal := &journalLog{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a"), addonsync.Require("b")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    restarter,
		Journal:      journal,
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("1.0"),
	})
	m.sleepFn = noSleep

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}
	waitFor(t, "convergence", m.Converged)

	orderMu.Lock()
	gotOrder := append([]string(nil), order...)
	orderMu.Unlock()
	if len(gotOrder) != 2 || gotOrder[0] != "a" || gotOrder[1] != "b" {
		t.Errorf("deploy order = %v, want [a b]: the failed head must not be skipped", gotOrder)
	}
	if got := attemptsA.Load(); got != 3 {
		t.Errorf("deploy attempts for a = %d, want 3", got)
	}

	failed := 0
	for _, ev := range journal.all() {
		if !ev.OK {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("journaled failures = %d, want 2", failed)
	}
}

func TestWorkerUpgradesOutdatedComponent(t *testing.T) {
	deployedVia := make(chan struct{}, 1)
	cat := newFakeCatalog(
		&fakeResolved{
			name:        "agent-license",
			display:     "Agent License",
			version:     "2.6",
			installedFn: func() bool { return true },
			deployFn: func() error {
				deployedVia <- struct{}{}
				return nil
			},
		},
	)
	journal := &journalLog{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.RequireAtLeast("agent-license", "2.6")},
		Catalog:      cat,
		Installed: &fakeInstalled{snap: addonsync.Installed{
			"agent-license": {Version: addonsync.ParseVersion("2.5"), Enabled: true},
		}},
		Store:     &fakeStore{},
		Restarter: &fakeRestarter{},
		Journal:   journal,
		Clock:     newFakeClock(),
		Identity:  addonsync.ParseVersion("1.0"),
	})
	m.sleepFn = noSleep

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}
	waitFor(t, "convergence", m.Converged)

	select {
	case <-deployedVia:
	default:
		t.Fatal("outdated component was not deployed")
	}

	events := journal.all()
	if len(events) != 1 || !events[0].Upgrade || !events[0].OK {
		t.Errorf("journal = %+v, want one successful upgrade", events)
	}
}

func TestWorkerSkipsComponentInstalledAfterSnapshot(t *testing.T) {
	// The component is missing from the snapshot so it lands in the queue,
	// but by the time the drain looks it is installed and enabled. The
	// drain must dequeue it without deploying.
	cat := newFakeCatalog(
		&fakeResolved{
			name:        "a",
			version:     "9.9",
			installedFn: func() bool { return true },
			deployFn: func() error {
				t.Error("deploy must not run for a satisfied component")
				return nil
			},
		},
	)
	journal := &journalLog{}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    &fakeRestarter{},
		Journal:      journal,
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("1.0"),
	})
	m.sleepFn = noSleep

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}
	waitFor(t, "convergence", m.Converged)

	if got := len(journal.all()); got != 0 {
		t.Errorf("journal entries = %d, want 0", got)
	}
}

func TestWorkerRestartUnsupported(t *testing.T) {
	cat := newFakeCatalog(&fakeResolved{name: "a", version: "1.0"})
	restarter := &fakeRestarter{err: addonsync.ErrRestartUnsupported}

	m := New(Config{
		Requirements: []addonsync.Dependency{addonsync.Require("a")},
		Catalog:      cat,
		Installed:    &fakeInstalled{},
		Store:        &fakeStore{},
		Restarter:    restarter,
		Clock:        newFakeClock(),
		Identity:     addonsync.ParseVersion("1.0"),
	})
	m.sleepFn = noSleep

	if err := m.Converge(context.Background()); err != nil {
		t.Fatalf("Converge: %v", err)
	}
	waitFor(t, "convergence", m.Converged)
	waitFor(t, "restart notice", func() bool {
		st, ok := m.Status()
		return ok && st.Kind == addonsync.StatusRestartUnavailable
	})

	if !m.StatusImportant() {
		t.Error("restart notice must be marked important")
	}
}
