package registry

import (
	"context"
	"log"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// StartExpiry launches a background monitor that marks agents whose last
// heartbeat is older than timeout as ERROR, excluding them from
// selection. An agent re-enters rotation on its next heartbeat. The
// monitor stops when ctx is cancelled.
func (r *Registry) StartExpiry(ctx context.Context, timeout, interval time.Duration) {
	if timeout <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireStale(timeout)
			}
		}
	}()
}

// expireStale marks agents with stale heartbeats as ERROR.
func (r *Registry) expireStale(timeout time.Duration) {
	cutoff := time.Now().Add(-timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.agents {
		if e.rec.Status == models.AgentStatusShutdown || e.rec.Status == models.AgentStatusError {
			continue
		}
		if e.rec.LastHeartbeat.Before(cutoff) {
			e.rec.Status = models.AgentStatusError
			log.Printf("[registry] agent %s marked unhealthy: no heartbeat since %s", id, e.rec.LastHeartbeat.Format(time.RFC3339))
		}
	}
}
