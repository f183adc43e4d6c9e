package modules

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/pipeline"
)

// stagePipeline adapts a stage list to the Pipeline interface for tests
type stagePipeline struct {
	stages func(run *Run) []pipeline.Stage
}

func (p *stagePipeline) Stages(run *Run) []pipeline.Stage {
	return p.stages(run)
}

func waitForStatus(t *testing.T, m *Module, status models.ModuleStatus) models.ModuleState {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State().Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return m.State()
}

func TestModule_SuccessfulRunReturnsToReady(t *testing.T) {
	pl := &stagePipeline{stages: func(run *Run) []pipeline.Stage {
		return []pipeline.Stage{
			{Name: "work", Run: func(ctx context.Context) error { return nil }},
		}
	}}
	m := New(models.ModuleUSPSCrawler, pl, nil, common.GetLogger())

	assert.Equal(t, models.StatusReady, m.State().Status)

	m.Start(context.Background(), models.StartParams{})

	state := waitForStatus(t, m, models.StatusReady)
	assert.Equal(t, 100, state.Progress)
	assert.Empty(t, state.Message)
	assert.Empty(t, state.CurrentTask)
}

func TestModule_StartWhileInProgressIsNoOp(t *testing.T) {
	release := make(chan struct{})
	var runs int32

	pl := &stagePipeline{stages: func(run *Run) []pipeline.Stage {
		return []pipeline.Stage{
			{Name: "block", Run: func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				<-release
				return nil
			}},
		}
	}}
	m := New(models.ModuleRoyalMailCrawler, pl, nil, common.GetLogger())

	m.Start(context.Background(), models.StartParams{})
	waitForStatus(t, m, models.StatusInProgress)

	// Second start while in progress must not launch another run
	m.Start(context.Background(), models.StartParams{})

	close(release)
	waitForStatus(t, m, models.StatusReady)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestModule_StopCancelsRunWithoutError(t *testing.T) {
	pl := &stagePipeline{stages: func(run *Run) []pipeline.Stage {
		return []pipeline.Stage{
			{Name: "wait-for-cancel", Run: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}},
			{Name: "never", Run: func(ctx context.Context) error {
				t.Error("stage after cancellation must not run")
				return nil
			}},
		}
	}}
	m := New(models.ModuleUSPSBuilder, pl, nil, common.GetLogger())

	m.Start(context.Background(), models.StartParams{})
	waitForStatus(t, m, models.StatusInProgress)

	m.Stop()

	state := waitForStatus(t, m, models.StatusReady)
	assert.Equal(t, "Cancelled", state.Message)
	assert.Empty(t, state.CurrentTask)
}

func TestModule_StageFailureEntersErrorState(t *testing.T) {
	pl := &stagePipeline{stages: func(run *Run) []pipeline.Stage {
		return []pipeline.Stage{
			{Name: "explode", Run: func(ctx context.Context) error {
				return errors.New("required input not found")
			}},
		}
	}}
	m := New(models.ModuleParascriptBuilder, pl, nil, common.GetLogger())

	m.Start(context.Background(), models.StartParams{})

	state := waitForStatus(t, m, models.StatusError)
	assert.Contains(t, state.Message, "required input not found")

	// A fresh start clears the error state
	m.Start(context.Background(), models.StartParams{})
	waitForStatus(t, m, models.StatusError)
}

func TestModule_ConsumeDirtyClearsFlag(t *testing.T) {
	pl := &stagePipeline{stages: func(run *Run) []pipeline.Stage {
		return []pipeline.Stage{
			{Name: "mark", Run: func(ctx context.Context) error {
				run.MarkDirty()
				return nil
			}},
		}
	}}
	m := New(models.ModuleParascriptCrawler, pl, nil, common.GetLogger())

	assert.False(t, m.ConsumeDirty())

	m.Start(context.Background(), models.StartParams{})
	waitForStatus(t, m, models.StatusReady)

	assert.True(t, m.ConsumeDirty())
	assert.False(t, m.ConsumeDirty(), "flag must clear on read")
}
