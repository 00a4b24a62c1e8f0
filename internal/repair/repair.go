// Package repair periodically recomputes thread aggregates from the
// message log, healing any drift between the denormalized counters and
// the authoritative per-thread history.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatcore/pkg/logger"
	"chatcore/pkg/threads"
)

// Service runs aggregate recomputation on a cron schedule.
type Service struct {
	svc  *threads.Service
	expr string
}

// New validates the cron expression and returns a scheduler.
func New(svc *threads.Service, expr string) (*Service, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid repair cron expression: %q", expr)
	}
	return &Service{svc: svc, expr: expr}, nil
}

// Start sleeps until each next cron tick and recomputes. Scheduling
// errors back off for a minute rather than killing the loop.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			next, err := gronx.NextTickAfter(s.expr, time.Now(), false)
			if err != nil {
				logger.Warn("repair_schedule_failed", "error", err)
				next = time.Now().Add(time.Minute)
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.RunOnce()
			}
		}
	}()
}

// RunOnce recomputes every thread's aggregate immediately.
func (s *Service) RunOnce() {
	start := time.Now()
	n, err := s.svc.RecomputeAll()
	if err != nil {
		logger.Error("repair_failed", "error", err)
		return
	}
	logger.Info("repair_completed", "threads", n, "elapsed", time.Since(start).String())
}
