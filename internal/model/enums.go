package model

// Industry selects the market a project is cast for
type Industry string

const (
	IndustryHollywood Industry = "Hollywood"
	IndustryBollywood Industry = "Bollywood"
)

var ValidIndustries = []Industry{IndustryHollywood, IndustryBollywood}

// IsValid reports whether the industry is one of the supported markets
func (i Industry) IsValid() bool {
	for _, v := range ValidIndustries {
		if i == v {
			return true
		}
	}
	return false
}

// ProjectStatus is the backend-owned lifecycle status of an optimization job
type ProjectStatus string

const (
	ProjectStatusPending   ProjectStatus = "pending"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusFailed    ProjectStatus = "failed"
)

// IsTerminal reports whether no further transition can follow
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusFailed
}

// TrackState is the gateway-side view of a tracked project
type TrackState string

const (
	TrackStateLoading   TrackState = "loading"
	TrackStatePending   TrackState = "pending"
	TrackStateCompleted TrackState = "completed"
	TrackStateFailed    TrackState = "failed"
	TrackStateError     TrackState = "error"
	TrackStateTimedOut  TrackState = "timed_out"
)

// IsTerminal reports whether the tracker stops after reaching this state
func (s TrackState) IsTerminal() bool {
	switch s {
	case TrackStateCompleted, TrackStateFailed, TrackStateError, TrackStateTimedOut:
		return true
	}
	return false
}

// BudgetStatus classifies a cast's total cost against the project's cap
type BudgetStatus string

const (
	BudgetUnder BudgetStatus = "under_budget"
	BudgetOver  BudgetStatus = "over_budget"
)
