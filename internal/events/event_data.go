package events

import "time"

// EventData is the interface that all event data types must implement
type EventData interface {
	EventType() EventType
}

// RunCompletedData contains data for allocation run events
type RunCompletedData struct {
	RunID           string  `json:"run_id"`
	Status          string  `json:"status"` // "started", "completed", "failed"
	Strategy        string  `json:"strategy"`
	BaselineID      string  `json:"baseline_id,omitempty"`
	Groups          int     `json:"groups"`
	Units           int     `json:"units"`
	OverflowGroups  int     `json:"overflow_groups"`
	Diagnostics     int     `json:"diagnostics"`
	MovedPct        float64 `json:"moved_pct,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// EventType returns the event type for RunCompletedData.
// The actual event type is determined by the Status field.
func (d *RunCompletedData) EventType() EventType {
	switch d.Status {
	case "started":
		return RunStarted
	case "failed":
		return RunFailed
	default:
		return RunCompleted
	}
}

// BaselineCapturedData contains data for baseline snapshot events
type BaselineCapturedData struct {
	BaselineID string `json:"baseline_id"`
	Label      string `json:"label,omitempty"`
	Groups     int    `json:"groups"`
	Units      int    `json:"units"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// EventType returns the event type for BaselineCapturedData
func (d *BaselineCapturedData) EventType() EventType {
	if d.Deleted {
		return BaselineDeleted
	}
	return BaselineCaptured
}

// ConstraintsChangedData contains data for ConstraintsChanged events
type ConstraintsChangedData struct {
	ConstraintID string `json:"constraint_id"`
	HandlerID    string `json:"handler_id,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Action       string `json:"action"` // "upserted", "deleted"
}

// EventType returns the event type for ConstraintsChangedData
func (d *ConstraintsChangedData) EventType() EventType {
	return ConstraintsChanged
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Filename  string  `json:"filename"`
	SizeBytes int64   `json:"size_bytes"`
	Checksum  string  `json:"checksum"`
	Duration  float64 `json:"duration"`
	Rotated   int     `json:"rotated"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string    `json:"job_id"`
	JobType     string    `json:"job_type"`
	Status      string    `json:"status"` // "started", "completed", "failed"
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}
