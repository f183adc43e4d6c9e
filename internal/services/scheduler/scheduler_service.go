// Package scheduler triggers periodic crawler runs. Builders are never
// scheduled; they run on operator command only.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
)

const defaultCrawlSchedule = "0 */6 * * *" // every six hours

// Service drives scheduled crawler starts through the module registry. A
// crawler still running from the previous trigger makes Start a no-op, so
// overlapping schedules are harmless.
type Service struct {
	registry *modules.Registry
	cron     *cron.Cron
	logger   arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewService creates the scheduler
func NewService(registry *modules.Registry, logger arbor.ILogger) *Service {
	return &Service{
		registry: registry,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the crawl schedule and starts the cron loop
func (s *Service) Start(crawlSchedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if crawlSchedule == "" {
		crawlSchedule = defaultCrawlSchedule
	}

	if _, err := s.cron.AddFunc(crawlSchedule, s.runScheduledCrawl); err != nil {
		return fmt.Errorf("invalid crawl schedule %q: %w", crawlSchedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("crawl_schedule", crawlSchedule).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight triggers
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// runScheduledCrawl starts every crawler module with default parameters.
// Modules already in progress ignore the start.
func (s *Service) runScheduledCrawl() {
	crawlers := []models.ModuleID{
		models.ModuleUSPSCrawler,
		models.ModuleRoyalMailCrawler,
		models.ModuleParascriptCrawler,
	}

	s.logger.Info().Msg("Scheduled crawl triggered")

	for _, id := range crawlers {
		if err := s.registry.Start(context.Background(), id, models.StartParams{}); err != nil {
			s.logger.Warn().
				Str("module", string(id)).
				Err(err).
				Msg("Scheduled crawler start failed")
		}
	}
}
