package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())
	defer svc.Close()

	var delivered int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventBundleReady, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventBundleReady, handler))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventBundleReady}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&delivered) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublishIgnoresUnsubscribedTypes(t *testing.T) {
	svc := NewService(common.GetLogger())
	defer svc.Close()

	var delivered int32
	require.NoError(t, svc.Subscribe(interfaces.EventBundleReady, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventBuildComplete}))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&delivered))
}

func TestPublishSyncAggregatesHandlerErrors(t *testing.T) {
	svc := NewService(common.GetLogger())
	defer svc.Close()

	require.NoError(t, svc.Subscribe(interfaces.EventModuleFinished, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("handler one failed")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventModuleFinished, func(ctx context.Context, event interfaces.Event) error {
		return nil
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventModuleFinished})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 handlers failed")
}

func TestSubscribeRejectsNilHandlerAndClosedService(t *testing.T) {
	svc := NewService(common.GetLogger())

	assert.Error(t, svc.Subscribe(interfaces.EventBundleReady, nil))

	require.NoError(t, svc.Close())
	err := svc.Subscribe(interfaces.EventBundleReady, func(ctx context.Context, event interfaces.Event) error {
		return nil
	})
	assert.Error(t, err)
}
