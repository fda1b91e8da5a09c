// Package scheduler implements the Scheduler (C8): periodic retention
// sweeps against the Artifact Store, Asset Deduplicator, and Task Registry
// (§4.8).
package scheduler

import (
	"context"
	"time"

	"github.com/livepeer/dubworker/assets"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/store"
)

type Scheduler struct {
	Store    *store.Store
	Registry *registry.Registry
	Assets   *assets.Store

	Interval         time.Duration
	LogoUnusedWindow time.Duration
	WorkspaceMaxAge  time.Duration
}

func New(s *store.Store, r *registry.Registry, a *assets.Store, cli config.Cli) *Scheduler {
	return &Scheduler{
		Store:            s,
		Registry:         r,
		Assets:           a,
		Interval:         cli.SweepInterval,
		LogoUnusedWindow: cli.LogoUnusedWindow,
		WorkspaceMaxAge:  6 * time.Hour,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	now := config.Clock.GetTime()

	if n, err := s.Store.SweepExpired(now); err != nil {
		log.LogNoRequestID("artifact sweep failed", "error", err)
	} else if n > 0 {
		log.LogNoRequestID("artifact sweep complete", "deleted", n)
	}

	if n, err := s.Assets.Cleanup(s.LogoUnusedWindow); err != nil {
		log.LogNoRequestID("logo asset cleanup failed", "error", err)
	} else if n > 0 {
		log.LogNoRequestID("logo asset cleanup complete", "deleted", n)
	}

	if ids, err := s.Registry.SweepExpired(ctx, now); err != nil {
		log.LogNoRequestID("task registry sweep failed", "error", err)
	} else {
		for _, id := range ids {
			if err := s.Registry.Delete(ctx, id); err != nil {
				log.LogNoRequestID("failed to delete expired task record", "task_id", id, "error", err)
			}
		}
		if len(ids) > 0 {
			log.LogNoRequestID("task registry sweep complete", "deleted", len(ids))
		}
	}

	if n, err := s.Store.ReapOrphanedWorkspaces(now, s.WorkspaceMaxAge); err != nil {
		log.LogNoRequestID("orphaned workspace reap failed", "error", err)
	} else if n > 0 {
		log.LogNoRequestID("orphaned workspace reap complete", "reaped", n)
	}
}
