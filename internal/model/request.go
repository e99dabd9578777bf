package model

import (
	"strings"
	"time"
)

// SubmitRequest represents the request to start a casting optimization
type SubmitRequest struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Plot     string   `json:"plot" validate:"required"`
	Budget   float64  `json:"budget" validate:"gt=0"`
	Industry Industry `json:"industry" validate:"required,oneof=Hollywood Bollywood"`
}

// Normalize trims free-text fields so whitespace-only input fails validation
func (r *SubmitRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Plot = strings.TrimSpace(r.Plot)
	r.Industry = Industry(strings.TrimSpace(string(r.Industry)))
}

// SubmitResponse is returned once the backend has accepted a project
type SubmitResponse struct {
	ID        ProjectID     `json:"id"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ProjectSummary is the dashboard row for a project
type ProjectSummary struct {
	ID           ProjectID     `json:"id"`
	Title        string        `json:"title"`
	Industry     Industry      `json:"industry"`
	IndustryTag  string        `json:"industryTag"`
	BudgetCap    float64       `json:"budgetCap"`
	BudgetLabel  string        `json:"budgetLabel"`
	Status       ProjectStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	CastAssigned int           `json:"castAssigned"`
}

// ProjectListResponse wraps the dashboard collection
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Active   int              `json:"active"`
	Stale    bool             `json:"stale,omitempty"`
}

// CurrentUser is the read model of the signed-in user
type CurrentUser struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}
