// Package events defines event types and structures for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the watermill topic all run events are published to.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunPausedEvent    EventType = "run.paused"
	RunResumedEvent   EventType = "run.resumed"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	// Step lifecycle events.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
	StepSkippedEvent   EventType = "step.skipped"
)

type BaseEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	WorkflowPath string    `json:"workflow_path"`
}

func NewBaseEvent(eventType EventType, runID, workflowPath string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		RunID:        runID,
		WorkflowPath: workflowPath,
	}
}

type RunStarted struct {
	BaseEvent

	TotalSteps int  `json:"total_steps"`
	Skipped    int  `json:"skipped"`
	Resumed    bool `json:"resumed"`
	DryRun     bool `json:"dry_run"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunPaused struct {
	BaseEvent

	PauseFile string `json:"pause_file"`
}

func (e RunPaused) GetType() EventType {
	return RunPausedEvent
}

type RunResumed struct {
	BaseEvent

	PausedFor time.Duration `json:"paused_for"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type RunCompleted struct {
	BaseEvent

	Executed int           `json:"executed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	StepID   string        `json:"step_id,omitempty"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type StepStarted struct {
	BaseEvent

	StepID  string `json:"step_id"`
	Tool    string `json:"tool"`
	Threads int    `json:"threads"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	Duration time.Duration `json:"duration"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type StepSkipped struct {
	BaseEvent

	StepID string `json:"step_id"`
	Reason string `json:"reason"`
}

func (e StepSkipped) GetType() EventType {
	return StepSkippedEvent
}

// New returns an empty event value for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case RunStartedEvent:
		return &RunStarted{}, true
	case RunPausedEvent:
		return &RunPaused{}, true
	case RunResumedEvent:
		return &RunResumed{}, true
	case RunCompletedEvent:
		return &RunCompleted{}, true
	case RunFailedEvent:
		return &RunFailed{}, true
	case StepStartedEvent:
		return &StepStarted{}, true
	case StepCompletedEvent:
		return &StepCompleted{}, true
	case StepFailedEvent:
		return &StepFailed{}, true
	case StepSkippedEvent:
		return &StepSkipped{}, true
	default:
		return nil, false
	}
}

// AllTypes lists every run and step event type.
func AllTypes() []EventType {
	return []EventType{
		RunStartedEvent, RunPausedEvent, RunResumedEvent, RunCompletedEvent, RunFailedEvent,
		StepStartedEvent, StepCompletedEvent, StepFailedEvent, StepSkippedEvent,
	}
}
