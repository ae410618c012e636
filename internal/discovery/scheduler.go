package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler reruns a catalog refresh on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	refresh func(ctx context.Context) error
}

// NewScheduler validates schedule and prepares a scheduler calling refresh. Overlapping runs are
// skipped.
func NewScheduler(schedule string, timeout time.Duration, refresh func(ctx context.Context) error) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		refresh: refresh,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid discovery schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduled model discovery failed")
		return
	}
	log.Debug().Msg("scheduled model discovery finished")
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("entries", len(s.cron.Entries())).Msg("model discovery scheduled")
}

// Stop cancels a running refresh and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
