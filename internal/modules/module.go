package modules

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/pipeline"
)

// Pipeline supplies the ordered stage list for one module. Providers plug in
// behavior as data (a stage sequence), not subclassing: the same Module type
// drives every crawler and builder.
type Pipeline interface {
	Stages(run *Run) []pipeline.Stage
}

// Run is the per-execution handle handed to stage implementations. Stages use
// it to publish messages, fine-grained progress, and the registry dirty flag
// without touching the module's state fields directly.
type Run struct {
	ID     string
	Params models.StartParams
	Logger arbor.ILogger

	module *Module
}

// SetMessage updates the module's operator-visible message
func (r *Run) SetMessage(msg string) {
	r.module.setMessage(msg)
}

// SetProgress updates progress within a stage (0-100). The runner still owns
// the per-stage checkpoints; this is for long stages like compiles that
// report their own percentage.
func (r *Run) SetProgress(progress int) {
	r.module.setProgress(progress)
}

// MarkDirty flags that the run changed the registry, prompting the status
// aggregator to re-read bundle sets on its next tick
func (r *Run) MarkDirty() {
	r.module.markDirty()
}

// Module is the shared crawler/builder lifecycle unit. It owns the
// status/progress/message triple behind a mutex and enforces single-flight
// execution: Start while InProgress is a silent no-op.
//
// State machine: Ready -> InProgress -> Ready (success or cancel) | Error.
// Error holds until an operator issues a new Start.
type Module struct {
	id       models.ModuleID
	pipeline Pipeline
	runner   *pipeline.Runner
	events   interfaces.EventService
	logger   arbor.ILogger

	mu     sync.Mutex
	state  models.ModuleState
	dirty  bool
	cancel context.CancelFunc
}

// New creates a module in the Ready state
func New(id models.ModuleID, pl Pipeline, events interfaces.EventService, logger arbor.ILogger) *Module {
	return &Module{
		id:       id,
		pipeline: pl,
		runner:   pipeline.NewRunner(logger),
		events:   events,
		logger:   logger,
		state: models.ModuleState{
			ID:     id,
			Status: models.StatusReady,
		},
	}
}

// ID returns the module identifier
func (m *Module) ID() models.ModuleID {
	return m.id
}

// Start launches the pipeline in the background and returns immediately.
// No-op unless the module is Ready: an in-progress run is never queued
// behind, and an Error state requires this explicit Start to clear.
//
// The run detaches from the caller's context; cancellation comes from Stop,
// not from the HTTP request that issued the command.
func (m *Module) Start(ctx context.Context, params models.StartParams) {
	m.mu.Lock()
	if m.state.Status == models.StatusInProgress {
		m.mu.Unlock()
		m.logger.Debug().Str("module", string(m.id)).Msg("Start ignored - run already in progress")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state.Status = models.StatusInProgress
	m.state.Progress = 0
	m.state.Message = ""
	m.state.CurrentTask = ""
	m.mu.Unlock()

	runID := uuid.New().String()
	runLogger := m.logger.WithCorrelationId(runID)

	run := &Run{
		ID:     runID,
		Params: params,
		Logger: runLogger,
		module: m,
	}

	runLogger.Info().
		Str("module", string(m.id)).
		Str("period", params.Period).
		Msg("Module run starting")

	if m.events != nil {
		m.events.Publish(runCtx, interfaces.Event{
			Type:    interfaces.EventModuleStarted,
			Payload: map[string]interface{}{"module": string(m.id), "run_id": runID},
		})
	}

	go m.execute(runCtx, run)
}

func (m *Module) execute(ctx context.Context, run *Run) {
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
	}()

	stages := m.pipeline.Stages(run)
	err := m.runner.Execute(ctx, stages, func(progress int, task string) {
		m.mu.Lock()
		m.state.Progress = progress
		m.state.CurrentTask = task
		m.mu.Unlock()
	})

	m.mu.Lock()
	switch {
	case err == nil:
		m.state.Status = models.StatusReady
		m.state.Progress = 100
		m.state.Message = ""
		m.state.CurrentTask = ""
	case errors.Is(err, pipeline.ErrCancelled):
		// Cancellation is a normal exit, never Error
		m.state.Status = models.StatusReady
		m.state.CurrentTask = ""
		m.state.Message = "Cancelled"
	default:
		m.state.Status = models.StatusError
		m.state.CurrentTask = ""
		m.state.Message = err.Error()
	}
	outcome := m.state.Status
	m.mu.Unlock()

	run.Logger.Info().
		Str("module", string(m.id)).
		Str("outcome", string(outcome)).
		Msg("Module run finished")

	if m.events != nil {
		m.events.Publish(context.Background(), interfaces.Event{
			Type: interfaces.EventModuleFinished,
			Payload: map[string]interface{}{
				"module":  string(m.id),
				"run_id":  run.ID,
				"outcome": string(outcome),
			},
		})
	}
}

// Stop cancels the in-flight run, if any. No-op otherwise.
func (m *Module) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		m.logger.Info().Str("module", string(m.id)).Msg("Cancelling in-flight run")
		cancel()
	}
}

// State returns a consistent snapshot of the module's observable state
func (m *Module) State() models.ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConsumeDirty reports whether the registry changed since the last call,
// clearing the flag
func (m *Module) ConsumeDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dirty
	m.dirty = false
	return d
}

func (m *Module) setMessage(msg string) {
	m.mu.Lock()
	m.state.Message = msg
	m.mu.Unlock()
}

func (m *Module) setProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	m.mu.Lock()
	m.state.Progress = progress
	m.mu.Unlock()
}

func (m *Module) markDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}
