package cron

import (
	"context"

	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/stats"
	"github.com/bowerhall/docsage/internal/storage"
)

// Sweeper drops conversations idle past their TTL.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Purger deletes expired cache entries.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

func SessionSweep(schedule string, s Sweeper) Job {
	return Job{
		Name:     "session-sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := s.Sweep(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("idle sessions removed", "count", n)
			}
			return nil
		},
	}
}

func CachePurge(schedule string, p Purger) Job {
	return Job{
		Name:     "cache-purge",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := p.Purge(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("expired cache entries purged", "count", n)
			}
			return nil
		},
	}
}

// Backup uploads the artifacts returned by list on every run.
func Backup(schedule string, b *storage.Backups, list func() []storage.Artifact) Job {
	return Job{
		Name:     "backup",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := b.Run(ctx, list())
			return err
		},
	}
}

func StatsLog(schedule string, src stats.Sources) Job {
	return Job{
		Name:     "stats-log",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			stats.Collect(ctx, src).Log()
			return nil
		},
	}
}
