package model

import "time"

// JobStatus is the lifecycle of a gateway-side report export job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// ReportJob represents a background cast report export
type ReportJob struct {
	ID          string     `json:"id"`
	ProjectID   ProjectID  `json:"projectId"`
	Owner       string     `json:"owner"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	FileURL     string     `json:"fileUrl,omitempty"`
	Size        int64      `json:"size,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ReportJobPayload is the task payload for a report export. The project is
// captured at enqueue time so the worker never needs the user's credential.
type ReportJobPayload struct {
	JobID   string  `json:"jobId"`
	Owner   string  `json:"owner"`
	Project Project `json:"project"`
}

// ReportStartResponse is returned when an export is queued
type ReportStartResponse struct {
	JobID     string    `json:"jobId"`
	ProjectID ProjectID `json:"projectId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
