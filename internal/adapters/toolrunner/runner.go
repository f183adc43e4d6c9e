// Package toolrunner executes native build tools and scans their stdout for
// error and progress markers. Legacy vendor compilers exit 0 even on
// failure, so the output stream is the authoritative failure signal.
package toolrunner

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Runner implements interfaces.ToolRunner over os/exec
type Runner struct {
	timeout time.Duration
	logger  arbor.ILogger
}

// NewRunner creates a tool runner. Timeout bounds each tool invocation;
// zero means no bound beyond the caller's context.
func NewRunner(timeout time.Duration, logger arbor.ILogger) *Runner {
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes the tool and scans merged stdout/stderr line by line. The
// first line matching ErrorPattern kills the process and fails the run with
// that line in the error. A non-zero exit with no matched error line also
// fails.
func (r *Runner) Run(ctx context.Context, spec interfaces.ToolSpec) error {
	var errRe, progressRe *regexp.Regexp
	var err error

	if spec.ErrorPattern != "" {
		if errRe, err = regexp.Compile(spec.ErrorPattern); err != nil {
			return fmt.Errorf("error pattern: %w", err)
		}
	}
	if spec.ProgressPattern != "" {
		if progressRe, err = regexp.Compile(spec.ProgressPattern); err != nil {
			return fmt.Errorf("progress pattern: %w", err)
		}
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	// Vendor tools spawn wrapper children that inherit the stdout pipe.
	// Killing the direct child leaves them holding it open, which would block
	// the scan loop indefinitely; WaitDelay force-closes the pipe so a
	// cancelled run always unblocks.
	cmd.WaitDelay = 3 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	r.logger.Info().
		Str("tool", spec.Path).
		Strs("args", spec.Args).
		Msg("Starting build tool")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", spec.Path, err)
	}

	var toolErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		r.logger.Trace().Str("line", line).Msg("Tool output")

		if errRe != nil && errRe.MatchString(line) {
			toolErr = fmt.Errorf("tool reported error: %s", line)
			cmd.Process.Kill()
			break
		}

		if progressRe != nil && spec.OnProgress != nil {
			if m := progressRe.FindStringSubmatch(line); len(m) > 1 {
				if pct, perr := strconv.Atoi(m[1]); perr == nil {
					spec.OnProgress(pct)
				}
			}
		}
	}

	waitErr := cmd.Wait()

	if toolErr != nil {
		return toolErr
	}
	if runCtx.Err() != nil {
		return runCtx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", spec.Path, waitErr)
	}
	if serr := scanner.Err(); serr != nil {
		return fmt.Errorf("read tool output: %w", serr)
	}

	r.logger.Info().
		Str("tool", spec.Path).
		Dur("elapsed", time.Since(start)).
		Msg("Build tool finished")
	return nil
}
