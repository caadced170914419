// Package scheduler fires payment jobs on an interval. It owns nothing but
// the timer: overlap protection and retry policy are the job's concern.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cygnuslabs/cygnus/logger"
)

// Scheduler runs registered jobs on a cron runner with an explicit
// start/stop lifecycle owned by the process entry point.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

type cronLogAdapter struct {
	log logger.Logger
}

func (a cronLogAdapter) Printf(format string, args ...interface{}) {
	a.log.Warn(fmt.Sprintf(format, args...), nil)
}

// New builds a stopped scheduler. Panicking jobs are recovered and logged.
func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(cronLogAdapter{log: log}))))
	return &Scheduler{cron: c, log: log}
}

// AddIntervalJob schedules fn every `every`. Fires are not guaranteed
// non-overlapping.
func (s *Scheduler) AddIntervalJob(name string, every time.Duration, fn func()) error {
	if every <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		s.log.Debug("scheduled job firing", logger.Fields{"job": name})
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.log.Info("scheduled job", logger.Fields{"job": name, "every": every.String()})
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that completes when running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
