package modules

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Registry holds the process's module set behind typed ModuleID keys. The ID
// space is closed, so a mistyped identifier fails dispatch instead of
// silently materializing a new entry.
type Registry struct {
	modules map[models.ModuleID]interfaces.Module
	logger  arbor.ILogger
}

// NewRegistry creates an empty module registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		modules: make(map[models.ModuleID]interfaces.Module),
		logger:  logger,
	}
}

// Register adds a module. Called once per module during app wiring; not
// safe for concurrent use with dispatch.
func (r *Registry) Register(m interfaces.Module) {
	r.modules[m.ID()] = m
}

// Get returns the module for the given ID
func (r *Registry) Get(id models.ModuleID) (interfaces.Module, bool) {
	m, ok := r.modules[id]
	return m, ok
}

// All returns registered modules in stable display order
func (r *Registry) All() []interfaces.Module {
	result := make([]interfaces.Module, 0, len(r.modules))
	for _, id := range models.AllModuleIDs() {
		if m, ok := r.modules[id]; ok {
			result = append(result, m)
		}
	}
	return result
}

// Start dispatches a start command to one module. Unknown IDs are an error;
// a module already in progress absorbs the call silently (single-flight).
func (r *Registry) Start(ctx context.Context, id models.ModuleID, params models.StartParams) error {
	m, ok := r.modules[id]
	if !ok {
		return fmt.Errorf("unknown module id: %s", id)
	}
	m.Start(ctx, params)
	return nil
}

// Stop cancels a module's in-flight run, if any
func (r *Registry) Stop(id models.ModuleID) error {
	m, ok := r.modules[id]
	if !ok {
		return fmt.Errorf("unknown module id: %s", id)
	}
	m.Stop()
	return nil
}

// StartupSweep kicks off an initial discovery run for every crawler module.
// It is a supervised background task: failures are logged by the modules
// themselves and never crash the process.
func (r *Registry) StartupSweep(ctx context.Context) {
	common.SafeGo(r.logger, "startup-sweep", func() {
		for _, id := range []models.ModuleID{
			models.ModuleUSPSCrawler,
			models.ModuleRoyalMailCrawler,
			models.ModuleParascriptCrawler,
		} {
			if m, ok := r.modules[id]; ok {
				r.logger.Info().Str("module", string(id)).Msg("Startup sweep starting crawler")
				m.Start(ctx, models.StartParams{})
			}
		}
	})
}
