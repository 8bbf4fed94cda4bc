package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mgalarneau/NYC-Transit-Project/internal/cache"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// Scheduler refreshes a trailing window of data on a fixed interval. Each
// tick invalidates the window's cache entry first, so the refresh always
// re-extracts instead of replaying the stored snapshot.
type Scheduler struct {
	runner   *Runner
	cache    *cache.Manager
	base     models.Request
	window   int
	interval time.Duration
}

func NewScheduler(runner *Runner, cacheMgr *cache.Manager, base models.Request, windowDays int, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, cache: cacheMgr, base: base, window: windowDays, interval: interval}
}

// Start runs one refresh immediately, then on every interval until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	sched := gocron.NewScheduler(time.UTC)

	if _, err := sched.Every(s.interval).Do(func() { s.refresh(ctx) }); err != nil {
		return err
	}

	log.Printf("scheduler: refreshing trailing %d days every %s", s.window, s.interval)
	sched.StartAsync()

	<-ctx.Done()
	sched.Stop()
	log.Printf("scheduler: stopped")
	return ctx.Err()
}

func (s *Scheduler) refresh(ctx context.Context) {
	req := s.base
	req.EndDate = time.Now().UTC().Truncate(24 * time.Hour)
	req.StartDate = req.EndDate.AddDate(0, 0, -s.window)

	if err := s.cache.Invalidate(req); err != nil {
		log.Printf("scheduler: invalidate failed: %v", err)
		return
	}
	if _, err := s.runner.Run(ctx, req); err != nil {
		log.Printf("scheduler: refresh failed: %v", err)
	}
}
