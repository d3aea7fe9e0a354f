package daemon

import (
	"log/slog"
	"os"
	"syscall"

	"addonsync"

	systemd "github.com/coreos/go-systemd/v22/daemon"
)

// Restarter restarts the daemon by terminating the process and relying on
// the service supervisor to bring it back. Without a supervisor the
// request is unsupported and convergence finishes with a notice instead.
type Restarter struct {
	supervised func() bool
	terminate  func() error
}

func NewRestarter() *Restarter {
	return &Restarter{
		supervised: underSystemd,
		terminate: func() error {
			return syscall.Kill(os.Getpid(), syscall.SIGTERM)
		},
	}
}

func (r *Restarter) RequestRestart() error {
	if !r.supervised() {
		return addonsync.ErrRestartUnsupported
	}
	slog.Info("Requesting restart to finish add-on installation.")
	if _, err := systemd.SdNotify(false, "RELOADING=1"); err != nil {
		slog.Debug("Could not notify systemd about the restart.", "err", err)
	}
	return r.terminate()
}

// underSystemd reports whether a systemd supervisor will restart the
// process after it exits.
func underSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != "" || os.Getenv("INVOCATION_ID") != ""
}
