package handlers

import (
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/colligo/internal/common"
)

// logFeedCapacity bounds the arbor batch channel; the logger drops batches
// rather than block when the feed falls behind
const logFeedCapacity = 10

// defaultExcludePatterns drops the handler's own chatter so the log feed
// does not echo itself
var defaultExcludePatterns = []string{
	"WebSocket client connected",
	"WebSocket client disconnected",
	"HTTP request",
	"HTTP response",
}

// LogFeed consumes arbor log batches and broadcasts them to websocket
// clients. Wired into the logger via SetChannel, so correlation-scoped run
// loggers flow through it.
type LogFeed struct {
	handler         *WebSocketHandler
	channel         chan []arbormodels.LogEvent
	minLevel        levels.LogLevel
	excludePatterns []string

	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewLogFeed creates the websocket log feed
func NewLogFeed(handler *WebSocketHandler, wsConfig *common.WebSocketConfig) *LogFeed {
	minLevel := levels.InfoLevel
	excludePatterns := defaultExcludePatterns

	if wsConfig != nil {
		minLevel = parseLogLevel(wsConfig.MinLevel)
		if len(wsConfig.ExcludePatterns) > 0 {
			excludePatterns = wsConfig.ExcludePatterns
		}
	}

	return &LogFeed{
		handler:         handler,
		channel:         make(chan []arbormodels.LogEvent, logFeedCapacity),
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
		doneCh:          make(chan struct{}),
	}
}

// Channel returns the batch channel to hand to the arbor logger
func (f *LogFeed) Channel() chan []arbormodels.LogEvent {
	return f.channel
}

// Start launches the consumer loop
func (f *LogFeed) Start() {
	go func() {
		defer close(f.doneCh)
		for batch := range f.channel {
			for _, entry := range batch {
				f.process(entry)
			}
		}
	}()
}

// Stop closes the feed and waits for the consumer to drain
func (f *LogFeed) Stop() {
	f.stopOnce.Do(func() { close(f.channel) })
	<-f.doneCh
}

func (f *LogFeed) process(entry arbormodels.LogEvent) {
	arborLevel := plogToArborLevel(entry.Level)
	if arborLevel < f.minLevel {
		return
	}

	for _, pattern := range f.excludePatterns {
		if strings.Contains(entry.Message, pattern) {
			return
		}
	}

	f.handler.BroadcastLog(LogEntry{
		Timestamp: entry.Timestamp.Format("15:04:05"),
		Level:     mapLevel(arborLevel),
		Message:   entry.Message,
	})
}

func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

func mapLevel(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
