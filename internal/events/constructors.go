package events

import (
	"time"

	"github.com/google/uuid"
)

// NewRunStateChangeEvent creates a new Event for a run state transition with type-safe data.
func NewRunStateChangeEvent(sessionID, runID, actor string, severity EventSeverity, message string, data RunStateChangeData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeRunStateChange,
		Timestamp: time.Now(),
		SessionID: sessionID,
		RunID:     runID,
		Actor:     actor,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetRunStateChangeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSessionStateChangeEvent creates a new Event for a session state transition with type-safe data.
func NewSessionStateChangeEvent(sessionID, actor string, severity EventSeverity, message string, data SessionStateChangeData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeSessionStateChange,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Actor:     actor,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetSessionStateChangeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewPatternThresholdEvent creates a new Event for a confidence level crossing with type-safe data.
func NewPatternThresholdEvent(actor string, severity EventSeverity, message string, data PatternThresholdData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypePatternThreshold,
		Timestamp: time.Now(),
		Actor:     actor,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetPatternThresholdData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewDiscoveryCuratedEvent creates a new Event for a discovery promotion with type-safe data.
func NewDiscoveryCuratedEvent(sessionID, runID, actor string, severity EventSeverity, message string, data DiscoveryCuratedData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeDiscoveryCurated,
		Timestamp: time.Now(),
		SessionID: sessionID,
		RunID:     runID,
		Actor:     actor,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetDiscoveryCuratedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewBudgetExhaustedEvent creates a new Event for a tripped session budget with type-safe data.
func NewBudgetExhaustedEvent(sessionID, actor string, message string, data BudgetExhaustedData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeBudgetExhausted,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Actor:     actor,
		Severity:  SeverityWarning,
		Message:   message,
	}
	if err := event.SetBudgetExhaustedData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewEngineEvent creates a new Event with arbitrary structured data.
func NewEngineEvent(eventType EventType, sessionID, runID, actor string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		RunID:     runID,
		Actor:     actor,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewSimpleEvent creates a new Event with no structured data.
func NewSimpleEvent(eventType EventType, sessionID, runID, actor string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		RunID:     runID,
		Actor:     actor,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}
