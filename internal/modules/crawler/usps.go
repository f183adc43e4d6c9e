package crawler

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// NewUSPSPipeline wires the USPS crawler: discovery and downloads both go
// through the EPF portal automation adapter, with per-file download
// independence.
func NewUSPSPipeline(portal interfaces.PortalAdapter, storage interfaces.StorageManager, events interfaces.EventService, workDir string, logger arbor.ILogger) *CrawlerPipeline {
	return NewPipeline(Config{
		Provider: models.ProviderUSPS,
		Source:   portal,
		WorkDir:  workDir,
		Storage:  storage,
		Events:   events,
		Logger:   logger,
	})
}
