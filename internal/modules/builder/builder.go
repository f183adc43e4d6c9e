// Package builder implements the transform/package pipeline shared by all
// provider builders: validate-preconditions, cleanup, extract-inputs,
// compile, package-outputs, cleanup, mark-complete.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
	"github.com/ternarybob/colligo/internal/pipeline"
)

// Config wires one provider's builder pipeline
type Config struct {
	Provider models.Provider

	// WorkDir is owned exclusively by this module; InputDir is the sibling
	// crawler's download directory, read-only from the builder's side.
	WorkDir    string
	InputDir   string
	OutputRoot string

	ManifestPath   string
	RequiredTools  []string
	RequiredInputs []string
	StaleProcesses []string

	// Extract returns independent fan-out tasks that unpack input components
	// into the working directory. All tasks share the run's cancellation
	// signal and the stage fails as a whole if any task fails.
	Extract func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error

	// Compile returns the ordered native tool invocations for the transform
	// stage
	Compile func(run *modules.Run, workDir string) []interfaces.ToolSpec

	// DatabaseService, when set, is restarted before compiling. Restarts of
	// the shared engine are serialized process-wide by the controller.
	DatabaseService string

	Tools    interfaces.ToolRunner
	Services interfaces.ServiceController
	Storage  interfaces.StorageManager
	Events   interfaces.EventService
	Logger   arbor.ILogger
}

// BuilderPipeline produces the builder stage list for a module run
type BuilderPipeline struct {
	cfg Config
}

// NewPipeline creates a builder pipeline for one provider
func NewPipeline(cfg Config) *BuilderPipeline {
	return &BuilderPipeline{cfg: cfg}
}

// Stages returns the builder stage list in fixed order
func (p *BuilderPipeline) Stages(run *modules.Run) []pipeline.Stage {
	stages := []pipeline.Stage{
		{Name: "validate-preconditions", Run: p.stage(run, p.validatePreconditions)},
		{Name: "cleanup", Run: p.stage(run, p.cleanup)},
		{Name: "extract-inputs", Run: p.stage(run, p.extractInputs)},
		{Name: "compile", Run: p.stage(run, p.compile)},
		{Name: "package-outputs", Run: p.stage(run, p.packageOutputs)},
		{Name: "cleanup-post", Run: p.stage(run, p.cleanup)},
		{Name: "mark-complete", Run: p.stage(run, p.markComplete)},
	}
	return stages
}

func (p *BuilderPipeline) stage(run *modules.Run, fn func(ctx context.Context, run *modules.Run) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx, run)
	}
}

// validatePreconditions verifies every external tool and input exists before
// any destructive work. A missing dependency must surface here, while the
// working directories are still intact.
func (p *BuilderPipeline) validatePreconditions(ctx context.Context, run *modules.Run) error {
	run.SetMessage("Validating build prerequisites")

	for _, tool := range p.cfg.RequiredTools {
		if _, err := os.Stat(tool); err != nil {
			return fmt.Errorf("required tool not found: %s", tool)
		}
	}

	for _, input := range p.cfg.RequiredInputs {
		path := filepath.Join(p.cfg.InputDir, input)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("required input not found: %s", path)
		}
	}

	if p.cfg.ManifestPath != "" {
		if _, err := os.Stat(p.cfg.ManifestPath); err != nil {
			return fmt.Errorf("package manifest not found: %s", p.cfg.ManifestPath)
		}
	}

	run.Logger.Info().
		Int("tools", len(p.cfg.RequiredTools)).
		Int("inputs", len(p.cfg.RequiredInputs)).
		Msg("Build prerequisites verified")
	return nil
}

// cleanup terminates stale tool processes and recreates the working
// directory. Runs both before and after the build; a kill failure other than
// "no such process" aborts rather than building over a wedged tool.
func (p *BuilderPipeline) cleanup(ctx context.Context, run *modules.Run) error {
	run.SetMessage("Cleaning working directories")

	for _, name := range p.cfg.StaleProcesses {
		if err := killProcessByName(name, run.Logger); err != nil {
			return fmt.Errorf("kill stale process %s: %w", name, err)
		}
	}

	if err := os.RemoveAll(p.cfg.WorkDir); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}
	if err := os.MkdirAll(p.cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("recreate working directory: %w", err)
	}

	return nil
}

// extractInputs unpacks independent input components concurrently and joins
// before the compile stage
func (p *BuilderPipeline) extractInputs(ctx context.Context, run *modules.Run) error {
	if p.cfg.Extract == nil {
		return nil
	}

	run.SetMessage("Extracting input components")
	tasks := p.cfg.Extract(run, p.cfg.WorkDir, p.cfg.InputDir)
	if len(tasks) == 0 {
		return nil
	}

	if err := pipeline.FanOut(ctx, tasks...); err != nil {
		return fmt.Errorf("extract inputs: %w", err)
	}

	run.Logger.Info().Int("components", len(tasks)).Msg("Input extraction complete")
	return nil
}

// compile invokes the provider's native tools in order, restarting the
// shared database engine first when the build depends on it. Tool stdout is
// the only failure signal; partial outputs stay in the working directory for
// operator inspection when a tool reports an error.
func (p *BuilderPipeline) compile(ctx context.Context, run *modules.Run) error {
	if p.cfg.DatabaseService != "" {
		run.SetMessage(fmt.Sprintf("Restarting service %s", p.cfg.DatabaseService))
		if err := p.cfg.Services.Restart(ctx, p.cfg.DatabaseService); err != nil {
			return fmt.Errorf("restart %s: %w", p.cfg.DatabaseService, err)
		}
	}

	if p.cfg.Compile == nil {
		return nil
	}

	specs := p.cfg.Compile(run, p.cfg.WorkDir)
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.SetMessage(fmt.Sprintf("Compiling (%d of %d): %s", i+1, len(specs), filepath.Base(spec.Path)))
		if err := p.cfg.Tools.Run(ctx, spec); err != nil {
			return fmt.Errorf("tool %s: %w", filepath.Base(spec.Path), err)
		}
	}

	return nil
}

// packageOutputs assembles the provider manifest into a checksummed archive
// and moves it atomically into the period output directory
func (p *BuilderPipeline) packageOutputs(ctx context.Context, run *modules.Run) error {
	run.SetMessage("Packaging build outputs")

	manifest, err := LoadManifest(p.cfg.ManifestPath)
	if err != nil {
		return err
	}

	year, month := run.Params.PeriodYearMonth()
	if year == 0 {
		now := time.Now()
		year, month = now.Year(), int(now.Month())
	}
	period := fmt.Sprintf("%04d%02d", year, month)

	outputDir := filepath.Join(p.cfg.OutputRoot, string(p.cfg.Provider), period)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	archiveName := fmt.Sprintf("%s-%s.tar.zst", manifest.Archive, period)
	archivePath := filepath.Join(outputDir, archiveName)

	if err := PackageArchive(ctx, manifest, p.cfg.WorkDir, archivePath, run.Logger); err != nil {
		return err
	}

	run.Logger.Info().
		Str("archive", archivePath).
		Msg("Output archive published")
	return nil
}

// markComplete flips the bundle's build-complete flag. A missing bundle is a
// warning, not an error: the builder tolerates running without a prior
// crawler pass and never fabricates a bundle row.
func (p *BuilderPipeline) markComplete(ctx context.Context, run *modules.Run) error {
	run.SetMessage("Recording build completion")

	year, month := run.Params.PeriodYearMonth()
	if year == 0 {
		now := time.Now()
		year, month = now.Year(), int(now.Month())
	}

	bundleStore := p.cfg.Storage.BundleStorage()
	key := models.BundleKey(p.cfg.Provider, year, month, run.Params.Cycle)

	bundle, err := bundleStore.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup bundle %s: %w", key, err)
	}
	if bundle == nil {
		run.Logger.Warn().
			Str("bundle", key).
			Msg("No bundle record for completed build - crawler has not run for this period")
		return nil
	}

	if bundle.MarkBuilt(time.Now()) {
		if err := bundleStore.Save(ctx, bundle); err != nil {
			return fmt.Errorf("save completed bundle: %w", err)
		}
		run.MarkDirty()

		if p.cfg.Events != nil {
			p.cfg.Events.Publish(ctx, interfaces.Event{
				Type: interfaces.EventBuildComplete,
				Payload: map[string]interface{}{
					"provider": string(p.cfg.Provider),
					"period":   bundle.PeriodKey(),
					"cycle":    string(bundle.Cycle),
				},
			})
		}
	}

	return nil
}
