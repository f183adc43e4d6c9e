// Package crawler implements the discovery/download pipeline shared by all
// provider crawlers: fetch-metadata, reconcile-against-registry,
// download-missing, evaluate-readiness.
package crawler

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
	"github.com/ternarybob/colligo/internal/readiness"
)

// Source is the discovery/download surface a provider adapter exposes to the
// crawler pipeline. PortalAdapter satisfies it directly; transfer-backed
// providers wrap TransferAdapter with their URL scheme.
type Source interface {
	FetchListing(ctx context.Context) ([]interfaces.RemoteFile, error)
	Download(ctx context.Context, file interfaces.RemoteFile, destPath string) (int64, error)
}

// SessionDownload fetches every pending file within one authenticated
// session; nothing may be marked on disk unless the whole set succeeds.
// Providers without session semantics leave this nil and get per-file
// independence instead.
type SessionDownload func(ctx context.Context, files []*models.DataFile, destDir string) error

// Config wires one provider's crawler pipeline
type Config struct {
	Provider        models.Provider
	Source          Source
	SessionDownload SessionDownload
	WorkDir         string
	Storage         interfaces.StorageManager
	Events          interfaces.EventService
	Logger          arbor.ILogger
}

// CrawlerPipeline produces the crawler stage list for a module run
type CrawlerPipeline struct {
	cfg Config
}

// NewPipeline creates a crawler pipeline for one provider
func NewPipeline(cfg Config) *CrawlerPipeline {
	return &CrawlerPipeline{cfg: cfg}
}

// Stages returns the crawler stage list. Stage order is fixed; the listing
// discovered by fetch-metadata flows to reconcile through the shared closure
// variable, scoped to this run.
func (p *CrawlerPipeline) Stages(run *modules.Run) []pipeline.Stage {
	var listing []interfaces.RemoteFile

	return []pipeline.Stage{
		{
			Name: "fetch-metadata",
			Run: func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return p.fetchMetadata(ctx, run, &listing)
			},
		},
		{
			Name: "reconcile-against-registry",
			Run: func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return p.reconcile(ctx, run, listing)
			},
		},
		{
			Name: "download-missing",
			Run: func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return p.downloadMissing(ctx, run)
			},
		},
		{
			Name: "evaluate-readiness",
			Run: func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return p.evaluateReadiness(ctx, run)
			},
		},
	}
}

// fetchMetadata asks the source for the authoritative remote file list.
// Retries live in the adapter; an error here is final for the run.
func (p *CrawlerPipeline) fetchMetadata(ctx context.Context, run *modules.Run, listing *[]interfaces.RemoteFile) error {
	run.SetMessage("Fetching remote file listing")

	files, err := p.cfg.Source.FetchListing(ctx)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}

	run.Logger.Info().
		Str("provider", string(p.cfg.Provider)).
		Int("files", len(files)).
		Msg("Remote listing fetched")

	*listing = files
	return nil
}

// reconcile inserts newly discovered files and lazily creates their owning
// bundles. The module's single-flight guarantee makes this effectively
// single-writer per provider, so check-then-insert is race-free.
func (p *CrawlerPipeline) reconcile(ctx context.Context, run *modules.Run, listing []interfaces.RemoteFile) error {
	run.SetMessage("Reconciling listing against registry")

	fileStore := p.cfg.Storage.DataFileStorage()
	bundleStore := p.cfg.Storage.BundleStorage()

	if run.Params.Key != "" {
		year, month := run.Params.PeriodYearMonth()
		pafKey := &models.PafKey{
			Value:     run.Params.Key,
			PeriodKey: fmt.Sprintf("%04d%02d", year, month),
		}
		if err := p.cfg.Storage.PafKeyStorage().Save(ctx, pafKey); err != nil {
			run.Logger.Warn().Err(err).Msg("Failed to persist provider key")
		}
	}

	inserted := 0
	for _, rf := range listing {
		if err := ctx.Err(); err != nil {
			return err
		}

		file := &models.DataFile{
			Provider:   rf.Provider,
			Name:       rf.Name,
			Size:       rf.Size,
			Month:      rf.Month,
			Year:       rf.Year,
			Cycle:      rf.Cycle,
			Day:        rf.Day,
			RemoteID:   rf.RemoteID,
			UploadedAt: rf.UploadedAt,
		}

		existing, err := fileStore.Get(ctx, file.Key())
		if err != nil {
			return fmt.Errorf("lookup %s: %w", file.Name, err)
		}
		if existing != nil {
			continue
		}

		// Pre-check: the file may already sit in the working directory from
		// a manual drop or an interrupted earlier run
		if _, statErr := os.Stat(filepath.Join(p.cfg.WorkDir, file.Name)); statErr == nil {
			file.MarkDownloaded(time.Now())
			run.Logger.Debug().Str("file", file.Name).Msg("Discovered file already present on disk")
		}

		if err := fileStore.Save(ctx, file); err != nil {
			return fmt.Errorf("insert %s: %w", file.Name, err)
		}

		if err := p.attachToBundle(ctx, bundleStore, fileStore, file); err != nil {
			return err
		}

		inserted++
	}

	if inserted > 0 {
		run.MarkDirty()
	}

	run.Logger.Info().
		Int("discovered", len(listing)).
		Int("inserted", inserted).
		Msg("Registry reconciliation complete")
	return nil
}

// attachToBundle finds or creates the bundle owning the file and refreshes
// its file count
func (p *CrawlerPipeline) attachToBundle(ctx context.Context, bundleStore interfaces.BundleStorage, fileStore interfaces.DataFileStorage, file *models.DataFile) error {
	key := models.BundleKey(file.Provider, file.Year, file.Month, file.Cycle)
	bundle, err := bundleStore.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup bundle %s: %w", key, err)
	}
	if bundle == nil {
		bundle = &models.Bundle{
			Provider: file.Provider,
			Month:    file.Month,
			Year:     file.Year,
			Cycle:    file.Cycle,
		}
	}

	siblings, err := fileStore.ListByBundle(ctx, file.Provider, file.Year, file.Month, file.Cycle)
	if err != nil {
		return fmt.Errorf("count bundle files: %w", err)
	}
	bundle.FileCount = len(siblings)

	if err := bundleStore.Save(ctx, bundle); err != nil {
		return fmt.Errorf("save bundle %s: %w", key, err)
	}
	return nil
}

// downloadMissing fetches every registry file not yet on disk. With zero
// pending files it short-circuits without touching the source - avoiding the
// browser/session startup cost is the point, so that is asserted in tests.
func (p *CrawlerPipeline) downloadMissing(ctx context.Context, run *modules.Run) error {
	fileStore := p.cfg.Storage.DataFileStorage()

	pending, err := fileStore.ListPending(ctx, p.cfg.Provider)
	if err != nil {
		return fmt.Errorf("list pending downloads: %w", err)
	}
	if len(pending) == 0 {
		run.Logger.Info().Msg("No pending downloads - skipping source session")
		return nil
	}

	if err := os.MkdirAll(p.cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}

	if p.cfg.SessionDownload != nil {
		return p.downloadSession(ctx, run, pending)
	}
	return p.downloadPerFile(ctx, run, pending)
}

// downloadPerFile downloads each file independently: a failure is recorded
// and reported at the end, but files already fetched stay marked. The next
// run's idempotent re-check covers the stragglers.
func (p *CrawlerPipeline) downloadPerFile(ctx context.Context, run *modules.Run, pending []*models.DataFile) error {
	fileStore := p.cfg.Storage.DataFileStorage()
	failed := 0

	for i, file := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.SetMessage(fmt.Sprintf("Downloading %s (%d of %d)", file.Name, i+1, len(pending)))

		rf := remoteFromDataFile(file)
		destPath := filepath.Join(p.cfg.WorkDir, file.Name)

		written, err := p.cfg.Source.Download(ctx, rf, destPath)
		if err != nil {
			failed++
			run.Logger.Warn().Err(err).Str("file", file.Name).Msg("Download failed - continuing with remaining files")
			continue
		}

		file.MarkDownloaded(time.Now())
		if err := fileStore.Save(ctx, file); err != nil {
			return fmt.Errorf("record download of %s: %w", file.Name, err)
		}
		run.MarkDirty()

		run.Logger.Info().
			Str("file", file.Name).
			Int64("bytes", written).
			Msg("File downloaded")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(pending))
	}
	return nil
}

// downloadSession runs the provider's all-or-nothing session flow. Files are
// only marked on disk after the whole session commits; any failure leaves
// the registry untouched.
func (p *CrawlerPipeline) downloadSession(ctx context.Context, run *modules.Run, pending []*models.DataFile) error {
	run.SetMessage(fmt.Sprintf("Downloading %d files in one session", len(pending)))

	if err := p.cfg.SessionDownload(ctx, pending, p.cfg.WorkDir); err != nil {
		return fmt.Errorf("session download: %w", err)
	}

	fileStore := p.cfg.Storage.DataFileStorage()
	now := time.Now()
	for _, file := range pending {
		file.MarkDownloaded(now)
		if err := fileStore.Save(ctx, file); err != nil {
			return fmt.Errorf("record download of %s: %w", file.Name, err)
		}
	}
	run.MarkDirty()

	run.Logger.Info().Int("files", len(pending)).Msg("Session download complete")
	return nil
}

// evaluateReadiness re-scans the provider's bundles and flips ready-for-build
// where the predicate holds. Monotonic and idempotent: a second pass with no
// new files writes nothing.
func (p *CrawlerPipeline) evaluateReadiness(ctx context.Context, run *modules.Run) error {
	run.SetMessage("Evaluating bundle readiness")

	fileStore := p.cfg.Storage.DataFileStorage()
	bundleStore := p.cfg.Storage.BundleStorage()

	bundles, err := bundleStore.ListByProvider(ctx, p.cfg.Provider)
	if err != nil {
		return fmt.Errorf("list bundles: %w", err)
	}

	for _, bundle := range bundles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bundle.ReadyForBuild {
			continue
		}

		files, err := fileStore.ListByBundle(ctx, bundle.Provider, bundle.Year, bundle.Month, bundle.Cycle)
		if err != nil {
			return fmt.Errorf("list bundle files: %w", err)
		}

		ready, err := readiness.Evaluate(ctx, bundle, files, fileStore)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}

		if bundle.MarkReady(time.Now()) {
			if err := bundleStore.Save(ctx, bundle); err != nil {
				return fmt.Errorf("save ready bundle: %w", err)
			}
			run.MarkDirty()

			run.Logger.Info().
				Str("bundle", bundle.Key()).
				Int("files", len(files)).
				Msg("Bundle ready for build")

			if p.cfg.Events != nil {
				p.cfg.Events.Publish(ctx, interfaces.Event{
					Type: interfaces.EventBundleReady,
					Payload: map[string]interface{}{
						"provider": string(bundle.Provider),
						"period":   bundle.PeriodKey(),
						"cycle":    string(bundle.Cycle),
					},
				})
			}
		}
	}

	return nil
}

func remoteFromDataFile(f *models.DataFile) interfaces.RemoteFile {
	return interfaces.RemoteFile{
		Provider:   f.Provider,
		Name:       f.Name,
		Size:       f.Size,
		Month:      f.Month,
		Year:       f.Year,
		Cycle:      f.Cycle,
		Day:        f.Day,
		RemoteID:   f.RemoteID,
		UploadedAt: f.UploadedAt,
	}
}
