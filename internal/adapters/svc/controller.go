// Package svc controls the OS services that native build tools depend on
package svc

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// restartMu serializes service restarts process-wide. Concurrent builds
// share the same database engine; overlapping restarts leave it in an
// undefined state.
var restartMu sync.Mutex

// Controller implements interfaces.ServiceController using the platform
// service manager (systemctl on Linux, sc on Windows)
type Controller struct {
	logger arbor.ILogger
}

// NewController creates a service controller
func NewController(logger arbor.ILogger) *Controller {
	return &Controller{logger: logger}
}

// Start starts a service
func (c *Controller) Start(ctx context.Context, name string) error {
	return c.run(ctx, "start", name)
}

// Stop stops a service
func (c *Controller) Stop(ctx context.Context, name string) error {
	return c.run(ctx, "stop", name)
}

// Restart stops and starts a service under the process-wide restart lock
func (c *Controller) Restart(ctx context.Context, name string) error {
	restartMu.Lock()
	defer restartMu.Unlock()

	start := time.Now()
	if err := c.run(ctx, "stop", name); err != nil {
		c.logger.Warn().Str("service", name).Err(err).Msg("Service stop failed, attempting start anyway")
	}
	if err := c.run(ctx, "start", name); err != nil {
		return err
	}

	c.logger.Info().
		Str("service", name).
		Dur("elapsed", time.Since(start)).
		Msg("Service restarted")
	return nil
}

func (c *Controller) run(ctx context.Context, action, name string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "sc", action, name)
	} else {
		cmd = exec.CommandContext(ctx, "systemctl", action, name)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %s: %s", action, name, err, string(output))
	}
	return nil
}
