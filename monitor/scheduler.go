package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/pagewatch/snapshot"
)

// Start registers every site on the cron scheduler at its configured
// interval and begins running cycles in the background. Non-blocking.
// Start, Stop and Reload may be called from different goroutines; the
// service mutex guards the scheduler handle.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("monitor: already started")
	}
	c := cron.New()
	for _, site := range s.config.Sites {
		site := site
		spec := fmt.Sprintf("@every %s", site.Interval)
		if _, err := c.AddFunc(spec, func() { s.scheduledCheck(site) }); err != nil {
			return fmt.Errorf("schedule %s: %w", site.ID, err)
		}
	}
	s.cron = c
	c.Start()
	s.logger.Info("monitor: scheduler started", "sites", len(s.config.Sites))
	return nil
}

// Stop halts the scheduler and waits for in-flight cycles to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	// Waiting outside the lock: in-flight cycles take s.mu to record
	// failures and would deadlock against a held mutex.
	<-c.Stop().Done()
	s.logger.Info("monitor: scheduler stopped")
}

// scheduledCheck runs one cycle from the scheduler, skipping sites that
// have failed too many times in a row. Manual checks bypass the skip.
func (s *Service) scheduledCheck(site *Site) {
	cfg := s.conf()
	if s.FailCount(site.ID) >= cfg.MaxFailCount {
		s.logger.Warn("monitor: site skipped after repeated failures",
			"site", site.ID, "failures", s.FailCount(site.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.CycleTime))
	defer cancel()

	res := s.runCycle(ctx, site)
	if res.Status == snapshot.StatusError {
		s.logger.Warn("monitor: scheduled cycle failed",
			"site", site.ID, "error", res.ErrorMsg)
	}
}
