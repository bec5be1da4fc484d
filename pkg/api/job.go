package api

import (
	"encoding/json"
	"time"
)

// JobType selects what a Worker should do with a Job. It persists as its
// ordinal integer on the wire (Start=0 ... Cancel=4).
type JobType int

const (
	JobStart JobType = iota
	JobContinue
	JobResume
	JobRetry
	JobCancel
)

var jobTypeNames = [...]string{"Start", "Continue", "Resume", "Retry", "Cancel"}

func (t JobType) String() string {
	if t < 0 || int(t) >= len(jobTypeNames) {
		return "Unknown"
	}
	return jobTypeNames[t]
}

func (t JobType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *JobType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = JobType(n)
	return nil
}

// Job is a durable priority-queue message requesting that the engine act on
// an instance. Lower Priority fires first; QueuedAt tiebreaks earliest-first
// for equal priority.
type Job struct {
	MessageID  string    `json:"messageId"`
	InstanceID string    `json:"instanceId"`
	ActivityID string    `json:"activityId,omitempty"`
	Type       JobType   `json:"type"`
	QueuedAt   time.Time `json:"queuedAt"`
	Priority   int       `json:"priority"`
	Attempt    int       `json:"attempt"`
}
