// Package readiness holds the provider-specific rules that decide when a
// bundle has accumulated enough on-disk files to justify a build.
package readiness

import (
	"context"
	"fmt"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// USPS Cycle-O builds overlay the Cycle-N base data, so the sibling Cycle-N
// bundle must already hold these archives on disk.
var uspsCycleNRequired = []string{"zip4natl.tar", "ctystate.tar"}

// Minimum file counts per provider rule
const (
	uspsCycleNMinFiles = 6
	uspsCycleOMinFiles = 4
	royalMailMinFiles  = 2
	parascriptMinFiles = 2
)

// Evaluate applies the provider readiness predicate to one bundle's file
// set. The result is monotonic: a bundle that was ever ready stays ready
// (callers never un-set the flag), and evaluating an already-ready bundle
// returns true without side effects.
func Evaluate(ctx context.Context, bundle *models.Bundle, files []*models.DataFile, store interfaces.DataFileStorage) (bool, error) {
	switch bundle.Provider {
	case models.ProviderUSPS:
		return evaluateUSPS(ctx, bundle, files, store)
	case models.ProviderRoyalMail:
		return countOnDisk(files) >= royalMailMinFiles && allOnDisk(files), nil
	case models.ProviderParascript:
		return countOnDisk(files) >= parascriptMinFiles && allOnDisk(files), nil
	}
	return false, fmt.Errorf("no readiness rule for provider: %s", bundle.Provider)
}

func evaluateUSPS(ctx context.Context, bundle *models.Bundle, files []*models.DataFile, store interfaces.DataFileStorage) (bool, error) {
	switch bundle.Cycle {
	case models.CycleN:
		return countOnDisk(files) >= uspsCycleNMinFiles && allOnDisk(files), nil

	case models.CycleO:
		if countOnDisk(files) < uspsCycleOMinFiles || !allOnDisk(files) {
			return false, nil
		}
		// Cross-bundle dependency: the same period's Cycle-N bundle must hold
		// the base archives before an overlay build can start.
		siblings, err := store.ListByBundle(ctx, models.ProviderUSPS, bundle.Year, bundle.Month, models.CycleN)
		if err != nil {
			return false, fmt.Errorf("failed to load sibling cycle files: %w", err)
		}
		return hasAllOnDisk(siblings, uspsCycleNRequired), nil
	}
	return false, fmt.Errorf("unknown usps cycle: %q", bundle.Cycle)
}

func countOnDisk(files []*models.DataFile) int {
	n := 0
	for _, f := range files {
		if f.OnDisk {
			n++
		}
	}
	return n
}

func allOnDisk(files []*models.DataFile) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !f.OnDisk {
			return false
		}
	}
	return true
}

func hasAllOnDisk(files []*models.DataFile, names []string) bool {
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		if f.OnDisk {
			onDisk[f.Name] = true
		}
	}
	for _, name := range names {
		if !onDisk[name] {
			return false
		}
	}
	return true
}
