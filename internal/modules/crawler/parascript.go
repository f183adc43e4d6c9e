package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Parascript ships its AddressScript data as a fixed pair of archives per
// monthly update
var parascriptArtifacts = []string{
	"ads_data.zip",
	"ads_tables.zip",
}

// parascriptSource adapts the HTTP transfer adapter to the crawler Source
// interface using Parascript's update URL scheme
type parascriptSource struct {
	transfer interfaces.TransferAdapter
	baseURL  string
}

func (s *parascriptSource) FetchListing(ctx context.Context) ([]interfaces.RemoteFile, error) {
	now := time.Now()
	var listing []interfaces.RemoteFile

	for _, name := range parascriptArtifacts {
		rf, err := s.transfer.Stat(ctx, parascriptURL(s.baseURL, now.Year(), int(now.Month()), name))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		rf.Provider = models.ProviderParascript
		rf.Name = name
		rf.Year = now.Year()
		rf.Month = int(now.Month())
		listing = append(listing, rf)
	}
	return listing, nil
}

func (s *parascriptSource) Download(ctx context.Context, file interfaces.RemoteFile, destPath string) (int64, error) {
	return s.transfer.Fetch(ctx, parascriptURL(s.baseURL, file.Year, file.Month, file.Name), destPath)
}

func parascriptURL(base string, year, month int, name string) string {
	return fmt.Sprintf("%s/ads/%04d%02d/%s", base, year, month, name)
}

// NewParascriptPipeline wires the Parascript crawler with per-file download
// independence
func NewParascriptPipeline(transfer interfaces.TransferAdapter, baseURL string, storage interfaces.StorageManager, events interfaces.EventService, workDir string, logger arbor.ILogger) *CrawlerPipeline {
	return NewPipeline(Config{
		Provider: models.ProviderParascript,
		Source:   &parascriptSource{transfer: transfer, baseURL: baseURL},
		WorkDir:  workDir,
		Storage:  storage,
		Events:   events,
		Logger:   logger,
	})
}
