// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	RunStarted         EventType = "RUN_STARTED"
	RunCompleted       EventType = "RUN_COMPLETED"
	RunFailed          EventType = "RUN_FAILED"
	BaselineCaptured   EventType = "BASELINE_CAPTURED"
	BaselineDeleted    EventType = "BASELINE_DELETED"
	ConstraintsChanged EventType = "CONSTRAINTS_CHANGED"
	BackupCompleted    EventType = "BACKUP_COMPLETED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"

	// Job lifecycle
	JobStarted   EventType = "JOB_STARTED"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
)

// AllEventTypes lists every type a stream client can subscribe to
func AllEventTypes() []EventType {
	return []EventType{
		RunStarted,
		RunCompleted,
		RunFailed,
		BaselineCaptured,
		BaselineDeleted,
		ConstraintsChanged,
		BackupCompleted,
		ErrorOccurred,
		JobStarted,
		JobCompleted,
		JobFailed,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// TypedData converts the Data map back into its typed form.
// Returns nil for types without a typed payload or when conversion fails.
func (e *Event) TypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case RunStarted, RunCompleted, RunFailed:
		data = &RunCompletedData{}
	case BaselineCaptured, BaselineDeleted:
		data = &BaselineCapturedData{}
	case ConstraintsChanged:
		data = &ConstraintsChangedData{}
	case BackupCompleted:
		data = &BackupCompletedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	case JobStarted, JobCompleted, JobFailed:
		data = &JobStatusData{}
	default:
		return nil
	}

	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}
