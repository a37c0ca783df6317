// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartCachePruner prunes expired validation verdicts every interval.
// The caller shuts the returned scheduler down.
func (s *ValidationService) StartCachePruner(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			n, err := s.PruneExpired(ctx)
			if err != nil {
				s.logger().WithError(err).Error("[Scheduler] validation cache prune failed")
				return
			}
			if n > 0 {
				s.logger().WithField("pruned", n).Info("[Scheduler] validation cache pruned")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule cache prune: %w", err)
	}

	sched.Start()
	return sched, nil
}
