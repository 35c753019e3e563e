package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires overdue pending intents. It is the safety net
// behind the in-process countdowns: watchers die with the process, the sweep
// does not. Running it on several instances at once is harmless since
// Resolve only applies once per intent.
type Sweeper struct {
	controller *Controller
	logger     *slog.Logger
	cron       *cron.Cron
}

func NewSweeper(controller *Controller, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		controller: controller,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start schedules the sweep every minute until Stop is called.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.controller.SweepOverdue(ctx); err != nil {
			s.logger.Error("payment sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
