package interfaces

import "context"

// EventType identifies a category of event
type EventType string

const (
	EventStatusSnapshot EventType = "status_snapshot"
	EventModuleStarted  EventType = "module_started"
	EventModuleFinished EventType = "module_finished"
	EventBundleReady    EventType = "bundle_ready"
	EventBuildComplete  EventType = "build_complete"
	EventLogEntry       EventType = "log_entry"
)

// Event is a message published through the event service
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventHandler processes events
type EventHandler func(ctx context.Context, event Event) error

// EventService provides pub/sub event distribution
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
