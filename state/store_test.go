package state

import (
	"path/filepath"
	"testing"
	"time"

	"addonsync/manager"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConvergenceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if got != "" {
		t.Fatalf("Load on empty store = %q, want empty", got)
	}

	if err := s.Save("2.6"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "2.6" {
		t.Errorf("Load = %q, want %q", got, "2.6")
	}

	// Save is an upsert: a second write replaces, not duplicates.
	if err := s.Save("2.7"); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	got, _ = s.Load()
	if got != "2.7" {
		t.Errorf("Load after second save = %q, want %q", got, "2.7")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = s.Load()
	if got != "" {
		t.Errorf("Load after clear = %q, want empty", got)
	}

	// Clearing an already-clear store is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on empty store: %v", err)
	}
}

func TestJournalHistory(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		err := s.Record(manager.DeployEvent{
			Name:        name,
			DisplayName: "Add-on " + name,
			Version:     "1.0",
			Upgrade:     name == "b",
			OK:          name != "c",
			At:          base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record(%s): %v", name, err)
		}
	}

	events, err := s.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("History length = %d, want 3", len(events))
	}

	// Newest first.
	if events[0].Name != "c" || events[2].Name != "a" {
		t.Errorf("History order = [%s %s %s], want [c b a]", events[0].Name, events[1].Name, events[2].Name)
	}
	if !events[1].Upgrade {
		t.Error("event b lost its upgrade flag")
	}
	if events[0].OK {
		t.Error("event c lost its failure flag")
	}
	if !events[2].At.Equal(base) {
		t.Errorf("event a time = %v, want %v", events[2].At, base)
	}

	limited, err := s.History(2)
	if err != nil {
		t.Fatalf("History limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Name != "c" {
		t.Errorf("History(2) = %+v, want the two newest", limited)
	}
}

func TestHistoryEmptyStore(t *testing.T) {
	s := openTestStore(t)
	events, err := s.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("History on empty store = %d events, want 0", len(events))
	}
}
