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

var parascriptInputs = []string{
	"ads_data.zip",
	"ads_tables.zip",
}

// NewParascriptPipeline wires the Parascript AddressScript builder. The
// vendor data ships pre-compiled; the build encrypts the extracted tables
// for distribution.
func NewParascriptPipeline(cfg *common.Config, storage interfaces.StorageManager, events interfaces.EventService, tools interfaces.ToolRunner, services interfaces.ServiceController, logger arbor.ILogger) *BuilderPipeline {
	workDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderParascript), "build")
	inputDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderParascript), "downloads")

	extract := func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error {
		tasks := make([]func(ctx context.Context) error, 0, len(parascriptInputs))
		for _, name := range parascriptInputs {
			src := filepath.Join(inputDir, name)
			dest := filepath.Join(workDir, componentDir(name))
			tasks = append(tasks, func(ctx context.Context) error {
				return ExtractZip(ctx, src, dest)
			})
		}
		return tasks
	}

	compile := func(run *modules.Run, workDir string) []interfaces.ToolSpec {
		return []interfaces.ToolSpec{
			{
				Path:            cfg.Tools.ParascriptEncrypt,
				Args:            []string{"-in", workDir, "-out", workDir},
				Dir:             workDir,
				ErrorPattern:    `(?i)^(ERROR|FATAL)\b`,
				ProgressPattern: `(\d{1,3})%`,
				OnProgress: func(pct int) {
					run.SetMessage(fmt.Sprintf("Encrypting AddressScript data (%d%%)", pct))
				},
			},
		}
	}

	return NewPipeline(Config{
		Provider:       models.ProviderParascript,
		WorkDir:        workDir,
		InputDir:       inputDir,
		OutputRoot:     cfg.Workspace.Output,
		ManifestPath:   filepath.Join(cfg.Tools.ManifestsDir, "parascript.yaml"),
		RequiredTools:  []string{cfg.Tools.ParascriptEncrypt},
		RequiredInputs: parascriptInputs,
		StaleProcesses: []string{filepath.Base(cfg.Tools.ParascriptEncrypt)},
		Extract:        extract,
		Compile:        compile,
		Tools:          tools,
		Services:       services,
		Storage:        storage,
		Events:         events,
		Logger:         logger,
	})
}
