package toolrunner

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRun_SuccessfulTool(t *testing.T) {
	requireShell(t)
	r := NewRunner(0, common.GetLogger())

	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path: "sh",
		Args: []string{"-c", "echo building; echo done"},
	})
	assert.NoError(t, err)
}

func TestRun_ErrorLineKillsToolDespiteExitZero(t *testing.T) {
	requireShell(t)
	r := NewRunner(0, common.GetLogger())

	// Vendor tools exit 0 even on failure; the ERROR line is the signal
	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path:         "sh",
		Args:         []string{"-c", "echo starting; echo 'ERROR: table corrupt'; sleep 10; exit 0"},
		ErrorPattern: `(?i)^(ERROR|FATAL)\b`,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool reported error: ERROR: table corrupt")
}

func TestRun_NonZeroExitFails(t *testing.T) {
	requireShell(t)
	r := NewRunner(0, common.GetLogger())

	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path: "sh",
		Args: []string{"-c", "exit 3"},
	})
	assert.Error(t, err)
}

func TestRun_ProgressCapture(t *testing.T) {
	requireShell(t)
	r := NewRunner(0, common.GetLogger())

	var seen []int
	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path:            "sh",
		Args:            []string{"-c", "echo 'compiling 25%'; echo 'compiling 50%'; echo 'compiling 100%'"},
		ProgressPattern: `(\d{1,3})%`,
		OnProgress:      func(pct int) { seen = append(seen, pct) },
	})

	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 100}, seen)
}

func TestRun_TimeoutCancelsTool(t *testing.T) {
	requireShell(t)
	r := NewRunner(200*time.Millisecond, common.GetLogger())

	start := time.Now()
	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path: "sh",
		Args: []string{"-c", "sleep 30"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_CancelUnblocksWhenDescendantHoldsStdout(t *testing.T) {
	requireShell(t)
	r := NewRunner(200*time.Millisecond, common.GetLogger())

	start := time.Now()
	// The background child inherits stdout and outlives the killed shell
	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path: "sh",
		Args: []string{"-c", "sleep 30 & echo spawned; wait"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_InvalidErrorPattern(t *testing.T) {
	r := NewRunner(0, common.GetLogger())

	err := r.Run(context.Background(), interfaces.ToolSpec{
		Path:         "sh",
		ErrorPattern: "([",
	})
	assert.Error(t, err)
}
