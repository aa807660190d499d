package models

import "time"

// StepStatus is the lifecycle state of a step within one run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped" // completed by a previous run
)

// Done reports whether the status counts toward run completion.
func (s StepStatus) Done() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// StepMetrics records timing and outcome for one step.
type StepMetrics struct {
	StepID    string        `json:"step_id"`
	Status    StepStatus    `json:"status"`
	Error     string        `json:"error,omitempty"` // failure reason when Status is failed
	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Start marks the step as running now.
func (m *StepMetrics) Start(now time.Time) {
	m.Status = StepStatusRunning
	m.StartTime = &now
	m.EndTime = nil
	m.Duration = 0
	m.Error = ""
}

// Finish records the terminal status and computes the duration.
func (m *StepMetrics) Finish(now time.Time, status StepStatus, reason string) {
	m.Status = status
	m.Error = reason
	m.EndTime = &now

	if m.StartTime != nil {
		m.Duration = now.Sub(*m.StartTime)
	}
}
