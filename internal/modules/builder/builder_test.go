package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// fakeToolRunner records an ordered trace of tool and service activity so
// tests can assert sequencing
type fakeToolRunner struct {
	mu     sync.Mutex
	trace  *[]string
	errFor map[string]error
}

func (r *fakeToolRunner) Run(ctx context.Context, spec interfaces.ToolSpec) error {
	r.mu.Lock()
	*r.trace = append(*r.trace, "tool:"+filepath.Base(spec.Path))
	r.mu.Unlock()
	if err := r.errFor[filepath.Base(spec.Path)]; err != nil {
		return err
	}
	return nil
}

type fakeServices struct {
	mu    sync.Mutex
	trace *[]string
	err   error
}

func (s *fakeServices) Start(ctx context.Context, name string) error { return s.err }
func (s *fakeServices) Stop(ctx context.Context, name string) error  { return s.err }
func (s *fakeServices) Restart(ctx context.Context, name string) error {
	s.mu.Lock()
	*s.trace = append(*s.trace, "restart:"+name)
	s.mu.Unlock()
	return s.err
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := badger.NewInMemoryManager(common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func touchFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name+" payload"), 0644))
	}
}

func runBuilder(t *testing.T, cfg Config, params models.StartParams) models.ModuleState {
	t.Helper()
	m := modules.New(models.ModuleUSPSBuilder, NewPipeline(cfg), nil, common.GetLogger())
	m.Start(context.Background(), params)

	require.Eventually(t, func() bool {
		return m.State().Status != models.StatusInProgress
	}, 5*time.Second, 10*time.Millisecond)
	return m.State()
}

const testManifest = `archive: usps-directory
entries:
  - name: zip4.dir
    required: true
  - name: dpv.dir
    required: true
`

func TestBuilder_FullRunPackagesAndMarksComplete(t *testing.T) {
	storage := newTestStorage(t)
	base := t.TempDir()
	workDir := filepath.Join(base, "build")
	inputDir := filepath.Join(base, "downloads")
	outputRoot := filepath.Join(base, "output")

	touchFiles(t, inputDir, "zip4natl.tar", "ctystate.tar")

	ctx := context.Background()
	bundle := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 8, Cycle: models.CycleN}
	bundle.MarkReady(time.Now())
	require.NoError(t, storage.BundleStorage().Save(ctx, bundle))

	var trace []string
	cfg := Config{
		Provider:       models.ProviderUSPS,
		WorkDir:        workDir,
		InputDir:       inputDir,
		OutputRoot:     outputRoot,
		ManifestPath:   writeManifest(t, testManifest),
		RequiredInputs: []string{"zip4natl.tar", "ctystate.tar"},
		Extract: func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error {
			// Stand-in for the real unpack: produce the compiler outputs
			return []func(ctx context.Context) error{
				func(ctx context.Context) error {
					return os.WriteFile(filepath.Join(workDir, "zip4.dir"), []byte("zip4"), 0644)
				},
				func(ctx context.Context) error {
					return os.WriteFile(filepath.Join(workDir, "dpv.dir"), []byte("dpv"), 0644)
				},
			}
		},
		Compile: func(run *modules.Run, workDir string) []interfaces.ToolSpec {
			return []interfaces.ToolSpec{{Path: "/opt/tools/amscompile", Dir: workDir}}
		},
		DatabaseService: "dirdb",
		Tools:           &fakeToolRunner{trace: &trace},
		Services:        &fakeServices{trace: &trace},
		Storage:         storage,
		Logger:          common.GetLogger(),
	}

	state := runBuilder(t, cfg, models.StartParams{Period: "202608", Cycle: models.CycleN})
	require.Equal(t, models.StatusReady, state.Status, state.Message)

	// Database restart precedes the compiler invocation
	require.Equal(t, []string{"restart:dirdb", "tool:amscompile"}, trace)

	archive := filepath.Join(outputRoot, "usps", "202608", "usps-directory-202608.tar.zst")
	assert.FileExists(t, archive)
	assert.NoFileExists(t, archive+".partial")

	updated, err := storage.BundleStorage().Get(ctx, bundle.Key())
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.BuildComplete)
	assert.False(t, updated.CompiledAt.IsZero())

	// Post-build cleanup leaves an empty working directory
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuilder_MissingToolFailsBeforeAnyCleanup(t *testing.T) {
	storage := newTestStorage(t)
	base := t.TempDir()
	workDir := filepath.Join(base, "build")

	// Leftovers from a previous run must survive a failed precondition check
	sentinel := filepath.Join(workDir, "previous-run.dir")
	touchFiles(t, workDir, "previous-run.dir")

	cfg := Config{
		Provider:      models.ProviderUSPS,
		WorkDir:       workDir,
		InputDir:      base,
		OutputRoot:    base,
		RequiredTools: []string{filepath.Join(base, "missing-compiler")},
		Storage:       storage,
		Logger:        common.GetLogger(),
	}

	state := runBuilder(t, cfg, models.StartParams{})
	require.Equal(t, models.StatusError, state.Status)
	assert.Contains(t, state.Message, "required tool not found")
	assert.FileExists(t, sentinel)
}

func TestBuilder_MissingInputFails(t *testing.T) {
	storage := newTestStorage(t)
	base := t.TempDir()

	cfg := Config{
		Provider:       models.ProviderUSPS,
		WorkDir:        filepath.Join(base, "build"),
		InputDir:       filepath.Join(base, "downloads"),
		OutputRoot:     base,
		RequiredInputs: []string{"zip4natl.tar"},
		Storage:        storage,
		Logger:         common.GetLogger(),
	}

	state := runBuilder(t, cfg, models.StartParams{})
	require.Equal(t, models.StatusError, state.Status)
	assert.Contains(t, state.Message, "required input not found")
}

func TestBuilder_ToolErrorAbortsBeforePackaging(t *testing.T) {
	storage := newTestStorage(t)
	base := t.TempDir()
	outputRoot := filepath.Join(base, "output")

	var trace []string
	cfg := Config{
		Provider:     models.ProviderUSPS,
		WorkDir:      filepath.Join(base, "build"),
		InputDir:     base,
		OutputRoot:   outputRoot,
		ManifestPath: writeManifest(t, testManifest),
		Compile: func(run *modules.Run, workDir string) []interfaces.ToolSpec {
			return []interfaces.ToolSpec{{Path: "/opt/tools/amscompile", Dir: workDir}}
		},
		Tools: &fakeToolRunner{
			trace:  &trace,
			errFor: map[string]error{"amscompile": errors.New("tool reported error: FATAL out of disk")},
		},
		Storage: storage,
		Logger:  common.GetLogger(),
	}

	state := runBuilder(t, cfg, models.StartParams{Period: "202608"})
	require.Equal(t, models.StatusError, state.Status)
	assert.Contains(t, state.Message, "tool amscompile")

	// Nothing may be published after a failed compile
	_, err := os.Stat(filepath.Join(outputRoot, "usps"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuilder_MarkCompleteWithoutBundleIsNotAnError(t *testing.T) {
	storage := newTestStorage(t)
	base := t.TempDir()
	workDir := filepath.Join(base, "build")

	cfg := Config{
		Provider:     models.ProviderUSPS,
		WorkDir:      workDir,
		InputDir:     base,
		OutputRoot:   filepath.Join(base, "output"),
		ManifestPath: writeManifest(t, testManifest),
		Extract: func(run *modules.Run, workDir, inputDir string) []func(ctx context.Context) error {
			return []func(ctx context.Context) error{
				func(ctx context.Context) error {
					return os.WriteFile(filepath.Join(workDir, "zip4.dir"), []byte("zip4"), 0644)
				},
				func(ctx context.Context) error {
					return os.WriteFile(filepath.Join(workDir, "dpv.dir"), []byte("dpv"), 0644)
				},
			}
		},
		Storage: storage,
		Logger:  common.GetLogger(),
	}

	// No crawler has run, so no bundle row exists for this period
	state := runBuilder(t, cfg, models.StartParams{Period: "202608", Cycle: models.CycleN})
	assert.Equal(t, models.StatusReady, state.Status, state.Message)
}
