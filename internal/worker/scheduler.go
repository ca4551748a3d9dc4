package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/axonworks/cortexd/internal/notify"
	"github.com/axonworks/cortexd/internal/store"
)

const reaperSchedule = "0 * * * * *" // every minute

// Scheduler owns the recurring maintenance jobs: the stale-claim
// reaper, the nightly dream cycle and the review-due scan.
type Scheduler struct {
	cron     *cron.Cron
	engine   *store.Engine
	notifier Notifier
	reapAge  time.Duration
}

func NewScheduler(engine *store.Engine, notifier Notifier, reapAge time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		engine:   engine,
		notifier: notifier,
		reapAge:  reapAge,
	}
}

// Register wires the jobs. dreamer may be nil when dreams are disabled.
func (s *Scheduler) Register(ctx context.Context, dreamer *Dreamer, dreamSpec, reviewSpec string) error {
	if _, err := s.cron.AddFunc(reaperSchedule, func() { s.reap(ctx) }); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	if dreamer != nil {
		if _, err := s.cron.AddFunc(dreamSpec, func() { dreamer.RunAll(ctx) }); err != nil {
			return fmt.Errorf("schedule dreams: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(reviewSpec, func() { s.reviewScan(ctx) }); err != nil {
		return fmt.Errorf("schedule review scan: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started")
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("[scheduler] stopped")
}

// reap requeues jobs stuck in processing past the claim age, using the
// same conditional update the claim itself relies on.
func (s *Scheduler) reap(ctx context.Context) {
	n, err := s.engine.ReapStale(ctx, s.reapAge)
	if err != nil {
		log.Printf("[scheduler] reap failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[scheduler] requeued %d stale requests", n)
	}
}

// reviewScan nudges users whose memories are due for review.
func (s *Scheduler) reviewScan(ctx context.Context) {
	users, err := s.engine.MemoryOwners(ctx)
	if err != nil {
		log.Printf("[scheduler] review scan: %v", err)
		return
	}
	for _, userID := range users {
		stats, err := s.engine.UserStats(ctx, userID)
		if err != nil {
			log.Printf("[scheduler] stats for %s: %v", userID, err)
			continue
		}
		if stats.DueCount == 0 {
			continue
		}
		s.notifier.Notify(ctx, userID, notify.EventReviewDue, map[string]any{
			"dueCount":    stats.DueCount,
			"healthScore": stats.HealthScore,
		})
	}
}
