package models

import "time"

// JobState is the lifecycle of the historical reconstruction job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the single pollable status record for the background
// reconstruction run. Written only by the job, read by callers. A process
// restart loses it; callers treat "no record" as "nothing running".
type JobStatus struct {
	State           JobState  `json:"state"`
	MonthsProcessed int       `json:"monthsProcessed"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}
