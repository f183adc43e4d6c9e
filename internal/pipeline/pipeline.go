package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// ErrCancelled marks a run that stopped because its cancellation signal
// fired. Callers treat it as a normal exit, not a failure.
var ErrCancelled = errors.New("pipeline cancelled")

// Stage is one named step of a module pipeline. Run must check ctx at entry
// and return early when already cancelled; stages are cooperative, never
// preempted.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Reporter receives progress checkpoints as the runner moves through stages
type Reporter func(progress int, task string)

// Runner executes an ordered stage list with progress reporting and
// cooperative cancellation between stages.
type Runner struct {
	logger arbor.ILogger
}

// NewRunner creates a pipeline runner
func NewRunner(logger arbor.ILogger) *Runner {
	return &Runner{logger: logger}
}

// Execute runs the stages in strict declared order. Before each stage it
// reports a progress checkpoint and the stage name as the current task. The
// first stage error aborts the run; a cancelled context maps to ErrCancelled
// so callers can distinguish cancel from failure.
func (r *Runner) Execute(ctx context.Context, stages []Stage, report Reporter) error {
	if report == nil {
		report = func(int, string) {}
	}

	total := len(stages)
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			r.logger.Info().Str("stage", stage.Name).Msg("Pipeline cancelled before stage")
			return ErrCancelled
		}

		report(i*100/total, stage.Name)
		r.logger.Debug().Str("stage", stage.Name).Int("index", i+1).Int("total", total).Msg("Stage starting")

		if err := stage.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
				r.logger.Info().Str("stage", stage.Name).Msg("Pipeline cancelled during stage")
				return ErrCancelled
			}
			r.logger.Error().Err(err).Str("stage", stage.Name).Msg("Stage failed")
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		r.logger.Debug().Str("stage", stage.Name).Msg("Stage complete")
	}

	report(100, "")
	return nil
}

// FanOut runs independent sub-tasks concurrently and joins before returning.
// All tasks share one cancellation signal: the first failure cancels the
// rest, but the join always waits for every in-flight task to stop so no
// writes are orphaned. Returns the first error observed.
func FanOut(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	if len(tasks) == 0 {
		return nil
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, task := range tasks {
		wg.Add(1)
		go func(fn func(ctx context.Context) error) {
			defer wg.Done()
			if err := fn(fanCtx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
			}
		}(task)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
