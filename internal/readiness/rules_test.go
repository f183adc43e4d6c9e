package readiness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/models"
)

// fakeFileStore serves sibling-bundle lookups from a canned map keyed by
// cycle
type fakeFileStore struct {
	byCycle map[models.Cycle][]*models.DataFile
}

func (s *fakeFileStore) Save(ctx context.Context, file *models.DataFile) error { return nil }
func (s *fakeFileStore) Get(ctx context.Context, key string) (*models.DataFile, error) {
	return nil, nil
}
func (s *fakeFileStore) ListByBundle(ctx context.Context, provider models.Provider, year, month int, cycle models.Cycle) ([]*models.DataFile, error) {
	return s.byCycle[cycle], nil
}
func (s *fakeFileStore) ListPending(ctx context.Context, provider models.Provider) ([]*models.DataFile, error) {
	return nil, nil
}

func files(provider models.Provider, cycle models.Cycle, onDisk bool, names ...string) []*models.DataFile {
	var out []*models.DataFile
	for _, name := range names {
		out = append(out, &models.DataFile{
			Provider: provider,
			Name:     name,
			Year:     2026,
			Month:    8,
			Cycle:    cycle,
			OnDisk:   onDisk,
		})
	}
	return out
}

func TestEvaluate_USPSCycleN(t *testing.T) {
	bundle := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 8, Cycle: models.CycleN}
	store := &fakeFileStore{}

	complete := files(models.ProviderUSPS, models.CycleN, true,
		"zip4natl.tar", "ctystate.tar", "elot.tar", "dpv.tar", "lacs.tar", "suitelink.tar")

	ready, err := Evaluate(context.Background(), bundle, complete, store)
	require.NoError(t, err)
	assert.True(t, ready)

	// Five files is below the Cycle-N minimum
	ready, err = Evaluate(context.Background(), bundle, complete[:5], store)
	require.NoError(t, err)
	assert.False(t, ready)

	// Enough files but one still pending download
	partial := files(models.ProviderUSPS, models.CycleN, true,
		"zip4natl.tar", "ctystate.tar", "elot.tar", "dpv.tar", "lacs.tar")
	partial = append(partial, files(models.ProviderUSPS, models.CycleN, false, "suitelink.tar")...)

	ready, err = Evaluate(context.Background(), bundle, partial, store)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestEvaluate_USPSCycleORequiresSiblingBaseArchives(t *testing.T) {
	bundle := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 8, Cycle: models.CycleO}
	cycleOFiles := files(models.ProviderUSPS, models.CycleO, true,
		"dpv.tar", "lacs.tar", "suitelink.tar", "ews.tar")

	// Sibling Cycle-N bundle holds both base archives
	store := &fakeFileStore{byCycle: map[models.Cycle][]*models.DataFile{
		models.CycleN: files(models.ProviderUSPS, models.CycleN, true, "zip4natl.tar", "ctystate.tar"),
	}}
	ready, err := Evaluate(context.Background(), bundle, cycleOFiles, store)
	require.NoError(t, err)
	assert.True(t, ready)

	// Sibling bundle missing ctystate.tar blocks the overlay build
	store = &fakeFileStore{byCycle: map[models.Cycle][]*models.DataFile{
		models.CycleN: files(models.ProviderUSPS, models.CycleN, true, "zip4natl.tar"),
	}}
	ready, err = Evaluate(context.Background(), bundle, cycleOFiles, store)
	require.NoError(t, err)
	assert.False(t, ready)

	// Sibling archive present in the registry but not on disk does not count
	store = &fakeFileStore{byCycle: map[models.Cycle][]*models.DataFile{
		models.CycleN: append(
			files(models.ProviderUSPS, models.CycleN, true, "zip4natl.tar"),
			files(models.ProviderUSPS, models.CycleN, false, "ctystate.tar")...),
	}}
	ready, err = Evaluate(context.Background(), bundle, cycleOFiles, store)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestEvaluate_RoyalMailAndParascriptMinimums(t *testing.T) {
	store := &fakeFileStore{}

	rm := &models.Bundle{Provider: models.ProviderRoyalMail, Year: 2026, Month: 8}
	ready, err := Evaluate(context.Background(), rm,
		files(models.ProviderRoyalMail, models.CycleNone, true, "PAF_COMPRESSED_STD.zip", "SetupRM.exe"), store)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = Evaluate(context.Background(), rm,
		files(models.ProviderRoyalMail, models.CycleNone, true, "PAF_COMPRESSED_STD.zip"), store)
	require.NoError(t, err)
	assert.False(t, ready)

	ps := &models.Bundle{Provider: models.ProviderParascript, Year: 2026, Month: 8}
	ready, err = Evaluate(context.Background(), ps,
		files(models.ProviderParascript, models.CycleNone, true, "ads_data.zip", "ads_tables.zip"), store)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestEvaluate_EmptyFileSetNeverReady(t *testing.T) {
	store := &fakeFileStore{}
	bundle := &models.Bundle{Provider: models.ProviderRoyalMail, Year: 2026, Month: 8}

	ready, err := Evaluate(context.Background(), bundle, nil, store)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestEvaluate_UnknownProviderFails(t *testing.T) {
	bundle := &models.Bundle{Provider: models.Provider("dhl"), Year: 2026, Month: 8}
	_, err := Evaluate(context.Background(), bundle, nil, &fakeFileStore{})
	assert.Error(t, err)
}
