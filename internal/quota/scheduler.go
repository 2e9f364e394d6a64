package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// resetTimeout bounds a single scheduled reset.
const resetTimeout = 30 * time.Second

// Resetter clears counters.
type Resetter interface {
	Reset(ctx context.Context) error
}

// StartResetScheduler runs r.Reset on the standard five-field cron spec,
// evaluated in loc, until ctx is cancelled. An empty spec disables the
// scheduler and returns nil.
func StartResetScheduler(ctx context.Context, r Resetter, spec string, loc *time.Location, logger *slog.Logger) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse quota reset schedule %q: %w", spec, err)
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() { runReset(ctx, r, logger) }); err != nil {
		return nil, fmt.Errorf("schedule quota reset: %w", err)
	}
	c.Start()
	logger.Info("quota reset scheduler started", "schedule", spec, "location", loc.String())

	go func() {
		<-ctx.Done()
		stopped := c.Stop()
		<-stopped.Done()
		logger.Info("quota reset scheduler stopped", "reason", ctx.Err())
	}()
	return c, nil
}

func runReset(ctx context.Context, r Resetter, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	resetCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()
	if err := r.Reset(resetCtx); err != nil {
		logger.Error("scheduled quota reset failed", "error", err)
	}
}
