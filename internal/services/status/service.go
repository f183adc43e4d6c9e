// Package status aggregates module and bundle state into periodic
// snapshots for the API and the websocket feed
package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
)

const defaultSnapshotInterval = time.Second

// Snapshot is one aggregated view of the engine. Module states are polled
// every tick; the bundle view is only rebuilt when a module flagged a
// registry change since the last tick.
type Snapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	Modules   []models.ModuleState `json:"modules"`
	Bundles   []BundleSummary      `json:"bundles"`
}

// ReadyBundle is one buildable bundle as presented in snapshots
type ReadyBundle struct {
	PeriodKey    string       `json:"period"`
	Cycle        models.Cycle `json:"cycle,omitempty"`
	FileCount    int          `json:"file_count"`
	DownloadedAt time.Time    `json:"downloaded_at"`
}

// BundleSummary is the per-provider view included in snapshots: the set of
// bundles awaiting a build and the periods already built
type BundleSummary struct {
	Provider         models.Provider `json:"provider"`
	Ready            []ReadyBundle   `json:"ready"`
	CompletedPeriods []string        `json:"completed_periods"`
	Latest           string          `json:"latest,omitempty"`
}

// Service runs the snapshot loop
type Service struct {
	registry *modules.Registry
	storage  interfaces.StorageManager
	events   interfaces.EventService
	interval time.Duration
	logger   arbor.ILogger

	mu      sync.RWMutex
	current Snapshot

	// rebuildPending carries a consumed dirty signal across a failed rebuild
	// so the next tick retries instead of serving a stale view. Only touched
	// by refresh, which never runs concurrently.
	rebuildPending bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates the status aggregator
func NewService(registry *modules.Registry, storage interfaces.StorageManager, events interfaces.EventService, interval time.Duration, logger arbor.ILogger) *Service {
	if interval <= 0 {
		interval = defaultSnapshotInterval
	}
	return &Service{
		registry: registry,
		storage:  storage,
		events:   events,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the snapshot loop
func (s *Service) Start() {
	// Seed the bundle view so the first API call does not race the ticker
	s.refresh(context.Background(), true)

	common.SafeGo(s.logger, "status-aggregator", func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.refresh(context.Background(), false)
			}
		}
	})

	s.logger.Info().Dur("interval", s.interval).Msg("Status aggregator started")
}

// Stop halts the snapshot loop and waits for it to exit
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Current returns the latest snapshot
func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// refresh polls module states, rebuilds the bundle view when any module
// reported a registry change, and publishes the snapshot
func (s *Service) refresh(ctx context.Context, force bool) {
	dirty := force || s.rebuildPending
	var states []models.ModuleState

	for _, module := range s.registry.All() {
		if module.ConsumeDirty() {
			dirty = true
		}
		states = append(states, module.State())
	}

	s.mu.Lock()
	bundles := s.current.Bundles
	s.mu.Unlock()

	if dirty {
		if rebuilt, err := s.buildBundleView(ctx); err != nil {
			s.rebuildPending = true
			s.logger.Warn().Err(err).Msg("Bundle view rebuild failed, retrying next tick")
		} else {
			s.rebuildPending = false
			bundles = rebuilt
		}
	}

	snapshot := Snapshot{
		Timestamp: time.Now(),
		Modules:   states,
		Bundles:   bundles,
	}

	s.mu.Lock()
	s.current = snapshot
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventStatusSnapshot,
			Payload: snapshot,
		})
	}
}

func (s *Service) buildBundleView(ctx context.Context) ([]BundleSummary, error) {
	store := s.storage.BundleStorage()

	var view []BundleSummary
	for _, provider := range models.AllProviders() {
		ready, err := store.ListReady(ctx, provider)
		if err != nil {
			return nil, err
		}
		completed, err := store.ListCompleted(ctx, provider)
		if err != nil {
			return nil, err
		}

		summary := BundleSummary{Provider: provider}
		for _, b := range ready {
			// ReadyForBuild stays true after a build; built bundles are
			// reported once, under completed periods
			if b.BuildComplete {
				continue
			}
			summary.Ready = append(summary.Ready, ReadyBundle{
				PeriodKey:    b.PeriodKey(),
				Cycle:        b.Cycle,
				FileCount:    b.FileCount,
				DownloadedAt: b.DownloadedAt,
			})
		}
		for _, b := range completed {
			summary.CompletedPeriods = append(summary.CompletedPeriods, b.PeriodKey())
		}
		if len(summary.CompletedPeriods) > 0 {
			summary.Latest = summary.CompletedPeriods[0]
		}
		view = append(view, summary)
	}

	return view, nil
}
