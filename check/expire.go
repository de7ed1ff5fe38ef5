package check

import (
	"log/slog"
	"time"

	"github.com/dpxrk/pactwise-signflow/workflow"
)

// CheckRequestExpiry runs the workflow expiration sweep on a schedule. The
// sweep is idempotent and takes per-request transactions only, so its
// cadence is independent of request-serving latency.
func CheckRequestExpiry(c *workflow.Coordinator, interval time.Duration) {
	if err := c.ExpirationSweep(); err != nil {
		slog.Error("request expiration sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := c.ExpirationSweep(); err != nil {
			slog.Error("request expiration sweep failed", "error", err)
		}
	}
}
