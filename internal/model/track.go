package model

import "time"

// TrackSnapshot is the state a tracker exposes after each poll
type TrackSnapshot struct {
	ProjectID ProjectID   `json:"projectId"`
	State     TrackState  `json:"state"`
	Project   *Project    `json:"project,omitempty"`
	Error     *TrackError `json:"error,omitempty"`
	Polls     int         `json:"polls"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TrackError describes a fetch failure, distinct from a failed optimization
type TrackError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}
