package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"addonsync"
	"addonsync/api"
	"addonsync/manager"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconciler is the interface the API server needs from the manager.
type Reconciler interface {
	Converged() bool
	Phase() manager.Phase
	QueueLen() int
	Status() (addonsync.Status, bool)
	StatusImportant() bool
}

// CatalogInfo exposes catalog freshness for the status endpoint.
type CatalogInfo interface {
	HasMetadata() bool
	FetchedAt() time.Time
}

// History reads the recorded deploy trail.
type History interface {
	History(limit int) ([]manager.DeployEvent, error)
}

type Server struct {
	mgr          Reconciler
	catalog      CatalogInfo
	history      History
	installed    addonsync.InstalledSource
	requirements []addonsync.Dependency
	version      string
	registry     *prometheus.Registry
}

func NewServer(
	mgr Reconciler,
	cat CatalogInfo,
	history History,
	installed addonsync.InstalledSource,
	requirements []addonsync.Dependency,
	version string,
	registry *prometheus.Registry,
) *Server {
	return &Server{
		mgr:          mgr,
		catalog:      cat,
		history:      history,
		installed:    installed,
		requirements: requirements,
		version:      version,
		registry:     registry,
	}
}

func (s *Server) router() http.Handler {
	health := healthcheck.NewHandler()
	health.AddReadinessCheck("converged", func() error {
		if !s.mgr.Converged() {
			return fmt.Errorf("add-on set not yet converged")
		}
		return nil
	})
	health.AddReadinessCheck("catalog-metadata", func() error {
		if !s.catalog.HasMetadata() {
			return fmt.Errorf("catalog metadata not fetched yet")
		}
		return nil
	})

	r := chi.NewRouter()
	r.Get("/v1/status", s.getStatus)
	r.Get("/v1/requirements", s.getRequirements)
	r.Get("/v1/history", s.getHistory)
	r.Get("/live", health.LiveEndpoint)
	r.Get("/ready", health.ReadyEndpoint)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := api.StatusResponse{
		Version:   s.version,
		Converged: s.mgr.Converged(),
		Phase:     s.mgr.Phase().String(),
		Pending:   s.mgr.QueueLen(),
	}
	if st, ok := s.mgr.Status(); ok {
		resp.Message = st.Message()
		resp.MessageImportant = s.mgr.StatusImportant()
	}
	if s.catalog != nil {
		resp.CatalogFetchedAt = s.catalog.FetchedAt()
	}
	writeJSON(w, resp)
}

func (s *Server) getRequirements(w http.ResponseWriter, r *http.Request) {
	snap, err := s.installed.Snapshot(r.Context())
	if err != nil {
		// The declared set is still useful without host state.
		snap = addonsync.Installed{}
	}

	resp := api.RequirementsResponse{Requirements: make([]api.Requirement, 0, len(s.requirements))}
	for _, dep := range s.requirements {
		entry := api.Requirement{
			Name:       dep.Name,
			MinVersion: dep.MinVersion.String(),
			Optional:   dep.Optional,
		}
		if cur, ok := snap[dep.Name]; ok {
			entry.Installed = true
			entry.InstalledVersion = cur.Version.String()
			entry.Enabled = cur.Enabled
		}
		resp.Requirements = append(resp.Requirements, entry)
	}
	writeJSON(w, resp)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, api.HistoryResponse{})
		return
	}
	events, err := s.history.History(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := api.HistoryResponse{Events: make([]api.HistoryEntry, len(events))}
	for i, ev := range events {
		resp.Events[i] = api.HistoryEntry{
			Name:        ev.Name,
			DisplayName: ev.DisplayName,
			Version:     ev.Version,
			Upgrade:     ev.Upgrade,
			OK:          ev.OK,
			At:          ev.At,
		}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves the API on a unix socket and blocks until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	// Remove stale socket from a previous run (may not exist).
	_ = os.Remove(socketPath)
	defer func() { _ = os.Remove(socketPath) }()

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", socketPath, err)
	}

	srv := &http.Server{Handler: s.router()}

	// Shut down when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
