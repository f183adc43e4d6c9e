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

// Royal Mail builds need both downloaded artifacts present: the PAF data and
// the setup executable the compile stage installs from
var royalMailInputs = []string{
	"PAF_COMPRESSED_STD.zip",
	"SetupRM.exe",
}

// NewRoyalMailPipeline wires the Royal Mail PAF builder. The compile stage
// runs the period's setup executable first, then the PAF compiler over the
// extracted data.
func NewRoyalMailPipeline(cfg *common.Config, storage interfaces.StorageManager, events interfaces.EventService, tools interfaces.ToolRunner, services interfaces.ServiceController, logger arbor.ILogger) *BuilderPipeline {
	workDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderRoyalMail), "build")
	inputDir := filepath.Join(cfg.Workspace.Root, string(models.ProviderRoyalMail), "downloads")

	// The setup executable normally comes from the period's download set;
	// tools.royalmail_setup pins a local copy instead.
	setupPath := filepath.Join(inputDir, "SetupRM.exe")
	if cfg.Tools.RoyalMailSetup != "" {
		setupPath = cfg.Tools.RoyalMailSetup
	}

	extract := func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error {
		return []func(ctx context.Context) error{
			func(ctx context.Context) error {
				return ExtractZip(ctx, filepath.Join(inputDir, "PAF_COMPRESSED_STD.zip"), filepath.Join(workDir, "paf"))
			},
		}
	}

	compile := func(run *modules.Run, workDir string) []interfaces.ToolSpec {
		return []interfaces.ToolSpec{
			{
				Path:         setupPath,
				Args:         []string{"/S", "/D=" + filepath.Join(workDir, "rm")},
				Dir:          workDir,
				ErrorPattern: `(?i)^(ERROR|FAILED)\b`,
			},
			{
				Path:            cfg.Tools.RoyalMailCompiler,
				Args:            []string{"-paf", filepath.Join(workDir, "paf"), "-dest", workDir},
				Dir:             workDir,
				ErrorPattern:    `(?i)^(ERROR|FATAL)\b`,
				ProgressPattern: `(\d{1,3})%`,
				OnProgress: func(pct int) {
					run.SetMessage(fmt.Sprintf("Compiling PAF directories (%d%%)", pct))
				},
			},
		}
	}

	return NewPipeline(Config{
		Provider:       models.ProviderRoyalMail,
		WorkDir:        workDir,
		InputDir:       inputDir,
		OutputRoot:     cfg.Workspace.Output,
		ManifestPath:   filepath.Join(cfg.Tools.ManifestsDir, "royalmail.yaml"),
		RequiredTools:  []string{cfg.Tools.RoyalMailCompiler},
		RequiredInputs: royalMailInputs,
		StaleProcesses: []string{filepath.Base(cfg.Tools.RoyalMailCompiler), "SetupRM.exe"},
		Extract:        extract,
		Compile:        compile,
		Tools:          tools,
		Services:       services,
		Storage:        storage,
		Events:         events,
		Logger:         logger,
	})
}
