package models

import (
	"fmt"
	"time"
)

// Bundle represents one logical build unit: all files for one data period
// (and, for USPS, one processing cycle). At most one bundle exists per
// (Provider, PeriodKey, Cycle).
//
// ReadyForBuild and BuildComplete are independent monotonic flags: each
// transitions false to true exactly once and is never reverted. DownloadedAt
// is stamped the first time readiness is achieved, CompiledAt on build
// completion.
type Bundle struct {
	ID        string   `json:"id" badgerhold:"key"`
	Provider  Provider `json:"provider" badgerholdIndex:"Provider"`
	Month     int      `json:"month"`
	Year      int      `json:"year"`
	Cycle     Cycle    `json:"cycle,omitempty"`
	FileCount int      `json:"file_count"`

	ReadyForBuild bool      `json:"ready_for_build"`
	BuildComplete bool      `json:"build_complete"`
	DownloadedAt  time.Time `json:"downloaded_at,omitempty"`
	CompiledAt    time.Time `json:"compiled_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BundleKey builds the uniqueness key for a bundle identity
func BundleKey(provider Provider, year, month int, cycle Cycle) string {
	return fmt.Sprintf("%s|%04d%02d|%s", provider, year, month, cycle)
}

// PeriodKey returns the composite YYYYMM key for the bundle's data period
func (b *Bundle) PeriodKey() string {
	return fmt.Sprintf("%04d%02d", b.Year, b.Month)
}

// Key returns the bundle's uniqueness key, used as the badgerhold key
func (b *Bundle) Key() string {
	return BundleKey(b.Provider, b.Year, b.Month, b.Cycle)
}

// MarkReady flips ReadyForBuild and stamps DownloadedAt. Returns false if the
// bundle was already ready (no write needed).
func (b *Bundle) MarkReady(at time.Time) bool {
	if b.ReadyForBuild {
		return false
	}
	b.ReadyForBuild = true
	b.DownloadedAt = at
	return true
}

// MarkBuilt flips BuildComplete and stamps CompiledAt. Returns false if the
// bundle was already built.
func (b *Bundle) MarkBuilt(at time.Time) bool {
	if b.BuildComplete {
		return false
	}
	b.BuildComplete = true
	b.CompiledAt = at
	return true
}
