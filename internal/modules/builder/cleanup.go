package builder

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/ternarybob/arbor"
)

// killProcessByName terminates any lingering instances of a native build
// tool. A crashed run can leave the tool holding locks on its working files,
// which would wedge the next build. No matching process is not an error.
func killProcessByName(name string, logger arbor.ILogger) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("taskkill", "/F", "/IM", name)
	} else {
		cmd = exec.Command("pkill", "-x", name)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// pkill exits 1 when nothing matched; taskkill exits 128
			code := exitErr.ExitCode()
			if code == 1 || code == 128 {
				return nil
			}
		}
		return fmt.Errorf("%s: %s", err, string(output))
	}

	logger.Info().Str("process", name).Msg("Terminated stale build process")
	return nil
}
