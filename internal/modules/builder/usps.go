package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
)

// USPS AMS inputs the compiler consumes. These are the same two archives the
// Cycle-O readiness rule pins to the sibling Cycle-N bundle.
var uspsInputs = []string{
	"zip4natl.tar",
	"ctystate.tar",
}

// NewUSPSPipeline wires the USPS directory builder. The AMS compiler depends
// on the shared database engine, so the engine is restarted before each
// compile; restarts are serialized process-wide by the service controller.
func NewUSPSPipeline(cfg *common.Config, storage interfaces.StorageManager, events interfaces.EventService, tools interfaces.ToolRunner, services interfaces.ServiceController, logger arbor.ILogger) *BuilderPipeline {
	workDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderUSPS), "build")
	inputDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderUSPS), "downloads")

	extract := func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error {
		tasks := make([]func(ctx context.Context) error, 0, len(uspsInputs))
		for _, name := range uspsInputs {
			src := filepath.Join(inputDir, name)
			dest := filepath.Join(workDir, componentDir(name))
			tasks = append(tasks, func(ctx context.Context) error {
				return ExtractTar(ctx, src, dest)
			})
		}
		return tasks
	}

	compile := func(run *modules.Run, workDir string) []interfaces.ToolSpec {
		return []interfaces.ToolSpec{
			{
				Path:            cfg.Tools.USPSCompiler,
				Args:            []string{"-source", workDir, "-dest", workDir},
				Dir:             workDir,
				ErrorPattern:    `(?i)^(ERROR|FATAL)\b`,
				ProgressPattern: `(\d{1,3})%`,
				OnProgress: func(pct int) {
					run.SetMessage(fmt.Sprintf("Compiling USPS directories (%d%%)", pct))
				},
			},
		}
	}

	return NewPipeline(Config{
		Provider:        models.ProviderUSPS,
		WorkDir:         workDir,
		InputDir:        inputDir,
		OutputRoot:      cfg.Workspace.Output,
		ManifestPath:    filepath.Join(cfg.Tools.ManifestsDir, "usps.yaml"),
		RequiredTools:   []string{cfg.Tools.USPSCompiler},
		RequiredInputs:  uspsInputs,
		StaleProcesses:  []string{filepath.Base(cfg.Tools.USPSCompiler)},
		Extract:         extract,
		Compile:         compile,
		DatabaseService: cfg.Tools.DatabaseService,
		Tools:           tools,
		Services:        services,
		Storage:         storage,
		Events:          events,
		Logger:          logger,
	})
}

// componentDir derives a working subdirectory from an archive name,
// zip4natl.tar extracts under zip4natl/
func componentDir(archive string) string {
	base := filepath.Base(archive)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return base
}
