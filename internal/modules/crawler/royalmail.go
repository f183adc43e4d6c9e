package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Royal Mail publishes a fixed artifact set per PAF period under a
// Y<yy>M<mm> path. The crawler stats these paths instead of scraping a
// listing page.
var royalMailArtifacts = []string{
	"PAF_COMPRESSED_STD.zip",
	"SetupRM.exe",
}

// royalMailSource adapts the HTTP transfer adapter to the crawler Source
// interface using Royal Mail's URL scheme
type royalMailSource struct {
	transfer interfaces.TransferAdapter
	baseURL  string
	logger   arbor.ILogger
}

func (s *royalMailSource) FetchListing(ctx context.Context) ([]interfaces.RemoteFile, error) {
	now := time.Now()
	var listing []interfaces.RemoteFile

	for _, name := range royalMailArtifacts {
		rf, err := s.transfer.Stat(ctx, royalMailURL(s.baseURL, now.Year(), int(now.Month()), name))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		rf.Provider = models.ProviderRoyalMail
		rf.Name = name
		rf.Year = now.Year()
		rf.Month = int(now.Month())
		listing = append(listing, rf)
	}
	return listing, nil
}

func (s *royalMailSource) Download(ctx context.Context, file interfaces.RemoteFile, destPath string) (int64, error) {
	return s.transfer.Fetch(ctx, royalMailURL(s.baseURL, file.Year, file.Month, file.Name), destPath)
}

func royalMailURL(base string, year, month int, name string) string {
	return fmt.Sprintf("%s/Y%02dM%02d/%s", base, year%100, month, name)
}

// NewRoyalMailPipeline wires the Royal Mail crawler. Downloads are
// session-scoped: every file of a period must be fetched within one
// authenticated session before any is recorded on disk.
func NewRoyalMailPipeline(transfer interfaces.TransferAdapter, baseURL string, storage interfaces.StorageManager, events interfaces.EventService, workDir string, logger arbor.ILogger) *CrawlerPipeline {
	source := &royalMailSource{transfer: transfer, baseURL: baseURL, logger: logger}

	sessionDownload := func(ctx context.Context, files []*models.DataFile, destDir string) error {
		session, err := transfer.OpenSession(ctx)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		defer session.Close()

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			url := royalMailURL(baseURL, file.Year, file.Month, file.Name)
			if _, err := session.Fetch(ctx, url, filepath.Join(destDir, file.Name)); err != nil {
				return fmt.Errorf("fetch %s: %w", file.Name, err)
			}
		}

		return session.Commit()
	}

	return NewPipeline(Config{
		Provider:        models.ProviderRoyalMail,
		Source:          source,
		SessionDownload: sessionDownload,
		WorkDir:         workDir,
		Storage:         storage,
		Events:          events,
		Logger:          logger,
	})
}
