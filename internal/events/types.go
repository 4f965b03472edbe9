package events

import "time"

// EventType identifies a lifecycle event
type EventType string

// Job lifecycle events
const (
	EventJobQueued    EventType = "job:queued"
	EventJobStarted   EventType = "job:started"
	EventJobProgress  EventType = "job:progress"
	EventJobCompleted EventType = "job:completed"
	EventJobFailed    EventType = "job:failed"

	// Queue state events
	EventQueueEmpty EventType = "queue:empty"
	EventQueueFull  EventType = "queue:full"
)

// Event is a single lifecycle notification
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	JobID     string                 `json:"job_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewJobEvent creates an event for a specific job
func NewJobEvent(eventType EventType, jobID string, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    "scheduler",
		JobID:     jobID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewQueueEvent creates a queue-level event
func NewQueueEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Source:    "scheduler",
		Timestamp: time.Now(),
	}
}
