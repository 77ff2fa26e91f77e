package cleanup

import (
	"context"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/security"
	"github.com/Shadansa24/Inventory-app/internal/session"
)

const DefaultInterval = time.Hour

// Task removes stale state and returns how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int, error)
}

// Routine runs its tasks on a fixed interval.
type Routine struct {
	interval time.Duration
	tasks    []Task
}

func New(interval time.Duration, tasks ...Task) *Routine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Routine{interval: interval, tasks: tasks}
}

// Run blocks until ctx is cancelled, running every task once per interval.
func (r *Routine) Run(ctx context.Context) error {
	logger.LogInfo("Cleanup routine started - will run every %v", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.RunOnce(ctx, now)
		}
	}
}

// RunOnce runs every task and returns the total removed. A failing task is
// logged and does not stop the others.
func (r *Routine) RunOnce(ctx context.Context, now time.Time) int {
	total := 0
	for _, task := range r.tasks {
		n, err := task.Run(ctx, now)
		if err != nil {
			logger.LogError("Failed to cleanup %s: %v", task.Name, err)
			continue
		}
		total += n
		if n > 0 {
			logger.LogInfo("Cleaned up %d %s", n, task.Name)
		}
	}

	if total == 0 {
		logger.LogDebug("Cleanup completed - nothing to remove")
	} else {
		logger.LogInfo("Cleanup completed - total %d items removed", total)
	}
	return total
}

// Sessions expires idle dashboard sessions.
func Sessions(m *session.Manager) Task {
	return Task{Name: "idle sessions", Run: func(_ context.Context, now time.Time) (int, error) {
		return m.Expire(now), nil
	}}
}

// CSRFTokens drops expired CSRF tokens.
func CSRFTokens(c *security.CSRF) Task {
	return Task{Name: "expired CSRF tokens", Run: func(_ context.Context, now time.Time) (int, error) {
		return c.CleanExpired(now), nil
	}}
}

// ChatAudit deletes chat request metadata older than retention.
func ChatAudit(db *data.DB, retention time.Duration) Task {
	return Task{Name: "chat audit records", Run: func(ctx context.Context, now time.Time) (int, error) {
		cutoff := now.Add(-retention)
		n, err := db.PruneBefore(ctx, cutoff)
		return int(n), err
	}}
}
