package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from their transports
// ─────────────────────────────────────────────────────────────

const (
	// EventBlocksChanged fires after blocks of a page were created, edited
	// or deleted. Data is a PageEvent.
	EventBlocksChanged = "blocks:changed"
	// EventBlocksRepacked fires after a repack was persisted. Data is a
	// LayoutOutcome.
	EventBlocksRepacked = "blocks:repacked"
)

// EventEmitter receives domain events. Services take this interface instead
// of a concrete sink, which keeps them testable with MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PageEvent is the payload of EventBlocksChanged.
type PageEvent struct {
	PageID string `json:"pageId"`
	Action string `json:"action"`
}

// LogEmitter writes events to a zap logger.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event string, data any) {
	e.logger.Info("event", zap.String("event", event), zap.Any("data", data))
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded events with the given name.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
