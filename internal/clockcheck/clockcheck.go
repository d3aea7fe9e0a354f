// Package clockcheck measures local clock skew against an NTP pool. The
// reconcile loop rate-limits warnings on wall-clock time, so a badly
// skewed clock silently suppresses or floods them; the doctor command
// surfaces that.
package clockcheck

import (
	"time"

	"github.com/beevik/ntp"
)

const (
	DefaultPool = "pool.ntp.org"
	// threshold is 500ms: past this the hourly warning rate limiter can
	// misfire noticeably.
	threshold = 500 * time.Millisecond
)

// Result is one skew measurement.
type Result struct {
	Offset    time.Duration
	Healthy   bool
	Err       error
	CheckedAt time.Time
}

// Check queries the pool once and classifies the offset.
func Check(pool string) Result {
	if pool == "" {
		pool = DefaultPool
	}
	now := time.Now()
	resp, err := ntp.Query(pool)
	if err != nil {
		return Result{Err: err, CheckedAt: now}
	}
	return Result{
		Offset:    resp.ClockOffset,
		Healthy:   resp.ClockOffset.Abs() < threshold,
		CheckedAt: now,
	}
}
