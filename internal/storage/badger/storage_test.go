package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	m, err := NewInMemoryManager(common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestDataFileStorage_SaveAndGet(t *testing.T) {
	store := newTestManager(t).DataFileStorage()
	ctx := context.Background()

	file := &models.DataFile{
		Provider: models.ProviderUSPS,
		Name:     "zip4natl.tar",
		Year:     2026,
		Month:    8,
		Cycle:    models.CycleN,
		RemoteID: "1001",
	}
	require.NoError(t, store.Save(ctx, file))
	assert.Equal(t, file.Key(), file.ID)
	assert.False(t, file.CreatedAt.IsZero())

	got, err := store.Get(ctx, file.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1001", got.RemoteID)

	missing, err := store.Get(ctx, "usps|absent.tar|202608|N")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDataFileStorage_DuplicateSaveCollapses(t *testing.T) {
	store := newTestManager(t).DataFileStorage()
	ctx := context.Background()

	a := &models.DataFile{Provider: models.ProviderUSPS, Name: "dpv.tar", Year: 2026, Month: 8, Cycle: models.CycleN}
	require.NoError(t, store.Save(ctx, a))

	b := &models.DataFile{Provider: models.ProviderUSPS, Name: "dpv.tar", Year: 2026, Month: 8, Cycle: models.CycleN, Size: "450 MB"}
	require.NoError(t, store.Save(ctx, b))

	files, err := store.ListByBundle(ctx, models.ProviderUSPS, 2026, 8, models.CycleN)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "450 MB", files[0].Size)
}

func TestDataFileStorage_SaveRequiresIdentity(t *testing.T) {
	store := newTestManager(t).DataFileStorage()
	assert.Error(t, store.Save(context.Background(), &models.DataFile{Name: "x"}))
	assert.Error(t, store.Save(context.Background(), &models.DataFile{Provider: models.ProviderUSPS}))
}

func TestDataFileStorage_ListByBundleFiltersCycle(t *testing.T) {
	store := newTestManager(t).DataFileStorage()
	ctx := context.Background()

	for _, f := range []*models.DataFile{
		{Provider: models.ProviderUSPS, Name: "zip4natl.tar", Year: 2026, Month: 8, Cycle: models.CycleN},
		{Provider: models.ProviderUSPS, Name: "dpv.tar", Year: 2026, Month: 8, Cycle: models.CycleO},
		{Provider: models.ProviderUSPS, Name: "zip4natl.tar", Year: 2026, Month: 7, Cycle: models.CycleN},
		{Provider: models.ProviderRoyalMail, Name: "SetupRM.exe", Year: 2026, Month: 8},
	} {
		require.NoError(t, store.Save(ctx, f))
	}

	files, err := store.ListByBundle(ctx, models.ProviderUSPS, 2026, 8, models.CycleN)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "zip4natl.tar", files[0].Name)
}

func TestDataFileStorage_ListPending(t *testing.T) {
	store := newTestManager(t).DataFileStorage()
	ctx := context.Background()

	pending := &models.DataFile{Provider: models.ProviderParascript, Name: "ads_data.zip", Year: 2026, Month: 8}
	require.NoError(t, store.Save(ctx, pending))

	done := &models.DataFile{Provider: models.ProviderParascript, Name: "ads_tables.zip", Year: 2026, Month: 8}
	done.MarkDownloaded(time.Now())
	require.NoError(t, store.Save(ctx, done))

	files, err := store.ListPending(ctx, models.ProviderParascript)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ads_data.zip", files[0].Name)
}

func TestBundleStorage_ReadyAndCompletedViews(t *testing.T) {
	store := newTestManager(t).BundleStorage()
	ctx := context.Background()

	pending := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 6, Cycle: models.CycleN}
	require.NoError(t, store.Save(ctx, pending))

	ready := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 7, Cycle: models.CycleN}
	ready.MarkReady(time.Now())
	require.NoError(t, store.Save(ctx, ready))

	built := &models.Bundle{Provider: models.ProviderUSPS, Year: 2026, Month: 8, Cycle: models.CycleN}
	built.MarkReady(time.Now())
	built.MarkBuilt(time.Now())
	require.NoError(t, store.Save(ctx, built))

	all, err := store.ListByProvider(ctx, models.ProviderUSPS)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	readyList, err := store.ListReady(ctx, models.ProviderUSPS)
	require.NoError(t, err)
	assert.Len(t, readyList, 2)

	completed, err := store.ListCompleted(ctx, models.ProviderUSPS)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "202608", completed[0].PeriodKey())
}

func TestBundleStorage_GetMissingReturnsNil(t *testing.T) {
	store := newTestManager(t).BundleStorage()

	b, err := store.Get(context.Background(), models.BundleKey(models.ProviderUSPS, 2026, 8, models.CycleN))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPafKeyStorage_SaveAndList(t *testing.T) {
	store := newTestManager(t).PafKeyStorage()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.PafKey{Value: "ABCD-1234", PeriodKey: "202608"}))
	require.NoError(t, store.Save(ctx, &models.PafKey{Value: "EFGH-5678", PeriodKey: "202609"}))

	// Re-saving the same key value must not create a second row
	require.NoError(t, store.Save(ctx, &models.PafKey{Value: "ABCD-1234", PeriodKey: "202608"}))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
