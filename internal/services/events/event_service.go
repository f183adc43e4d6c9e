// Package events fans module lifecycle, bundle readiness, and status
// notifications out to in-process subscribers
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Service implements interfaces.EventService. Publish is fire-and-forget so
// module pipelines never block on slow consumers; PublishSync waits for every
// handler and reports aggregate failure.
type Service struct {
	mu          sync.RWMutex
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	closed      bool
	logger      arbor.ILogger
}

// NewService creates the event fan-out service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for one event type. Subscriptions are
// permanent for the life of the service.
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", eventType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscribe after close")
	}

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscribers", len(s.subscribers[eventType])).
		Msg("Event subscriber registered")

	return nil
}

// Publish delivers the event to all subscribers without waiting. Handler
// failures are logged and swallowed; the publishing pipeline must not care.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	for _, handler := range s.snapshotHandlers(event.Type) {
		go func(h interfaces.EventHandler) {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event subscriber failed")
			}
		}(handler)
	}
	return nil
}

// PublishSync delivers the event and blocks until every handler returns.
// Any handler failure fails the publish, after all handlers have run.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.snapshotHandlers(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event subscriber failed")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(handler)
	}

	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d handlers failed for %s", failed, len(handlers), event.Type)
	}
	return nil
}

// Close drops every subscription and rejects new ones
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.closed = true
	s.logger.Info().Msg("Event fan-out stopped")

	return nil
}

// snapshotHandlers returns the handler list under the read lock so delivery
// never races Subscribe
func (s *Service) snapshotHandlers(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribers[eventType]
}
