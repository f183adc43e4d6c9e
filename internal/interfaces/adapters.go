package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// RemoteFile describes one file advertised by a provider source. The
// descriptor carries enough period metadata for reconciliation without a
// second round trip.
type RemoteFile struct {
	Provider   models.Provider `json:"provider"`
	Name       string          `json:"name"`
	Size       string          `json:"size"`
	Month      int             `json:"month"`
	Year       int             `json:"year"`
	Cycle      models.Cycle    `json:"cycle,omitempty"`
	Day        int             `json:"day,omitempty"`
	RemoteID   string          `json:"remote_id,omitempty"`
	UploadedAt time.Time       `json:"uploaded_at,omitempty"`
}

// PortalAdapter automates a vendor web portal (login, listing, download).
// Implementations own their retry policy: callers treat an error as final.
type PortalAdapter interface {
	// FetchListing returns the authoritative list of currently available files
	FetchListing(ctx context.Context) ([]RemoteFile, error)

	// Download fetches one file to destPath and returns bytes written
	Download(ctx context.Context, file RemoteFile, destPath string) (int64, error)
}

// TransferAdapter fetches files over plain HTTP(S). Stat is the
// HEAD-equivalent used by single-file providers to discover the current
// artifact without downloading it.
type TransferAdapter interface {
	Stat(ctx context.Context, url string) (RemoteFile, error)
	Fetch(ctx context.Context, url string, destPath string) (int64, error)

	// OpenSession authenticates once and returns a session through which all
	// of a period's files must be fetched before any are considered complete
	OpenSession(ctx context.Context) (TransferSession, error)
}

// TransferSession scopes downloads to a single authenticated session.
// Fetched files only become durable when Commit is called; Close without
// Commit discards partial results.
type TransferSession interface {
	Fetch(ctx context.Context, url string, destPath string) (int64, error)
	Commit() error
	Close() error
}

// ToolSpec describes one native tool invocation. The tool's stdout stream is
// the only trustworthy feedback channel: ErrorPattern aborts the run as soon
// as a line matches, ProgressPattern feeds OnProgress without affecting
// control flow. ProgressPattern's first capture group must be a percentage.
type ToolSpec struct {
	Path            string
	Args            []string
	Dir             string
	ErrorPattern    string
	ProgressPattern string
	OnProgress      func(percent int)
}

// ToolRunner executes an external compiler/encryption tool and scans its
// output line by line
type ToolRunner interface {
	Run(ctx context.Context, spec ToolSpec) error
}

// ServiceController starts and stops OS-level services that builders depend
// on. Restarts of a shared service are serialized process-wide by the
// implementation.
type ServiceController interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}
