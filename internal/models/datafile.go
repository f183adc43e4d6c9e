package models

import (
	"fmt"
	"time"
)

// DataFile represents one discovered remote artifact. Rows are append-only:
// a file is created the first time an adapter reports it and is only ever
// mutated to record a completed download.
//
// Uniqueness key: (Provider, Name, Year, Month, Cycle). Cycle is empty for
// Royal Mail and Parascript files.
type DataFile struct {
	ID       string   `json:"id" badgerhold:"key"`
	Provider Provider `json:"provider" badgerholdIndex:"Provider"`
	Name     string   `json:"name"`
	Size     string   `json:"size"` // display string as reported by the source listing
	Month    int      `json:"month"`
	Year     int      `json:"year"`
	Cycle    Cycle    `json:"cycle,omitempty"`

	// Provider-specific discriminators
	Day        int       `json:"day,omitempty"`         // Royal Mail: day-of-month stamp in the file name
	RemoteID   string    `json:"remote_id,omitempty"`   // USPS: portal fileid used for download
	UploadedAt time.Time `json:"uploaded_at,omitempty"` // USPS: portal upload timestamp

	OnDisk       bool      `json:"on_disk"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PeriodKey returns the composite YYYYMM key for the file's data period
func (f *DataFile) PeriodKey() string {
	return fmt.Sprintf("%04d%02d", f.Year, f.Month)
}

// Key returns the uniqueness key used for duplicate detection during
// reconciliation. Stored as the badgerhold key so duplicate inserts collapse
// into upserts of the same row.
func (f *DataFile) Key() string {
	return fmt.Sprintf("%s|%s|%04d%02d|%s", f.Provider, f.Name, f.Year, f.Month, f.Cycle)
}

// MarkDownloaded records a completed download. Idempotent.
func (f *DataFile) MarkDownloaded(at time.Time) {
	if f.OnDisk {
		return
	}
	f.OnDisk = true
	f.DownloadedAt = at
}
