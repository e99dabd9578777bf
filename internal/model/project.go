package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProjectID is the server-assigned project identifier. The backend emits
// integers; the gateway treats them as opaque strings.
type ProjectID string

func (id *ProjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid project id %s: %w", string(data), err)
	}
	*id = ProjectID(n.String())
	return nil
}

func (id ProjectID) String() string {
	return string(id)
}

// Project represents an optimization job as returned by the backend
type Project struct {
	ID                 ProjectID            `json:"id"`
	Title              string               `json:"title"`
	Plot               string               `json:"plot"`
	BudgetCap          float64              `json:"budget_cap"`
	Industry           Industry             `json:"industry"`
	Status             ProjectStatus        `json:"status"`
	RawCharacters      *RawCharacters       `json:"raw_characters,omitempty"`
	OptimizationResult []OptimizationResult `json:"optimization_result"`
	CreatedAt          Timestamp            `json:"created_at"`
}

// Characters returns the role breakdown, tolerating a missing payload
func (p *Project) Characters() []Character {
	if p == nil || p.RawCharacters == nil {
		return nil
	}
	return p.RawCharacters.Characters
}

// RawCharacters is the AI breakdown of roles and their ranked candidates
type RawCharacters struct {
	Characters []Character `json:"characters"`
}

// Character is a role required by the script
type Character struct {
	Name             string  `json:"name"`
	Gender           string  `json:"gender"`
	Traits           Traits  `json:"traits"`
	BudgetMinDisplay float64 `json:"budget_min_display"`
	BudgetMaxDisplay float64 `json:"budget_max_display"`
	Actors           []Actor `json:"actors"`
}

// Actor is a candidate for a role
type Actor struct {
	Name        string  `json:"name"`
	Salary      float64 `json:"salary"`
	BoxOffice   float64 `json:"box_office"`
	Rating      float64 `json:"rating"`
	Versatility float64 `json:"versatility"`
	Risk        float64 `json:"risk"`
}

// OptimizationResult is one role assignment in a completed project
type OptimizationResult struct {
	Role      string  `json:"role"`
	ActorName string  `json:"actor_name"`
	Salary    float64 `json:"salary"`
	BoxOffice float64 `json:"box_office"`
	Rating    float64 `json:"rating"`
	Risk      float64 `json:"risk"`
}

// Traits accepts either a free-text description or a list of traits
type Traits []string

func (t *Traits) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid traits: %w", err)
	}
	if s == "" {
		*t = nil
		return nil
	}
	*t = Traits{s}
	return nil
}

func (t Traits) String() string {
	return strings.Join(t, ", ")
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO form the backend
// emits for naive datetimes, which is read as UTC
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			t.Time = time.Time{}
			return nil
		}
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}
