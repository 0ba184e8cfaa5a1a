package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Operation is the builtin or command that produced the event.
	Operation string `json:"operation,omitempty"`

	// CiphertextPath is the encrypted file involved, if any.
	CiphertextPath string `json:"ciphertext_path,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants.
const (
	EventTypeDecryptSucceeded    = "decrypt.succeeded"
	EventTypeDecryptFailed       = "decrypt.failed"
	EventTypeEvaluationCompleted = "evaluation.completed"
	EventTypeEvaluationFailed    = "evaluation.failed"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// DecryptInfo describes one decryption attempt. It travels in the Data of
// decrypt events.
type DecryptInfo struct {
	Operation      string
	CiphertextPath string
	IdentityCount  int
	CacheEnabled   bool
	CacheDir       string
	Duration       time.Duration
}

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishDecryptSucceeded publishes a successful decryption.
func (ep *EventPublisher) PublishDecryptSucceeded(info DecryptInfo) error {
	return ep.Publish(Event{
		Type:           EventTypeDecryptSucceeded,
		Source:         "bridge",
		Operation:      info.Operation,
		CiphertextPath: info.CiphertextPath,
		Message:        fmt.Sprintf("%s decrypted %s", info.Operation, info.CiphertextPath),
		Level:          EventLevelInfo,
		Data:           decryptData(info, ""),
	})
}

// PublishDecryptFailed publishes a failed decryption.
func (ep *EventPublisher) PublishDecryptFailed(info DecryptInfo, reason string) error {
	return ep.Publish(Event{
		Type:           EventTypeDecryptFailed,
		Source:         "bridge",
		Operation:      info.Operation,
		CiphertextPath: info.CiphertextPath,
		Message:        fmt.Sprintf("%s failed to decrypt %s: %s", info.Operation, info.CiphertextPath, reason),
		Level:          EventLevelError,
		Data:           decryptData(info, reason),
	})
}

// PublishEvaluationCompleted publishes a completed script evaluation.
func (ep *EventPublisher) PublishEvaluationCompleted(scriptPath string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeEvaluationCompleted,
		Source:  "evaluator",
		Message: fmt.Sprintf("Evaluated %s", scriptPath),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"script":   scriptPath,
			"duration": duration.Seconds(),
		},
	})
}

// PublishEvaluationFailed publishes a failed script evaluation.
func (ep *EventPublisher) PublishEvaluationFailed(scriptPath, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeEvaluationFailed,
		Source:  "evaluator",
		Message: fmt.Sprintf("Evaluation of %s failed: %s", scriptPath, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"script": scriptPath,
			"reason": reason,
		},
	})
}

func decryptData(info DecryptInfo, reason string) map[string]interface{} {
	data := map[string]interface{}{
		"identity_count": info.IdentityCount,
		"cache_enabled":  info.CacheEnabled,
		"cache_dir":      info.CacheDir,
		"duration":       info.Duration.Seconds(),
	}
	if reason != "" {
		data["reason"] = reason
	}
	return data
}

// DecryptInfoFromEvent recovers the DecryptInfo and failure reason carried
// by a decrypt event. ok is false for other event types.
func DecryptInfoFromEvent(event Event) (info DecryptInfo, reason string, ok bool) {
	if event.Type != EventTypeDecryptSucceeded && event.Type != EventTypeDecryptFailed {
		return DecryptInfo{}, "", false
	}
	info = DecryptInfo{
		Operation:      event.Operation,
		CiphertextPath: event.CiphertextPath,
	}
	info.IdentityCount, _ = event.Data["identity_count"].(int)
	info.CacheEnabled, _ = event.Data["cache_enabled"].(bool)
	info.CacheDir, _ = event.Data["cache_dir"].(string)
	if seconds, isFloat := event.Data["duration"].(float64); isFloat {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	reason, _ = event.Data["reason"].(string)
	return info, reason, true
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events in batches, either when a batch
// fills up or on every flush tick.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	maxBatch := ep.config.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1
	}
	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, maxBatch)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= maxBatch {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			// Drain whatever is still buffered before shutting down.
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
