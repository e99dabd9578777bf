package projection

import (
	"errors"

	"github.com/castos/studio/internal/model"
)

// ErrNotCompleted is returned when a view is requested for a project without a result
var ErrNotCompleted = errors.New("project not completed")

// CostSlice is one segment of the budget distribution chart
type CostSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// RatingBar is one bar of the actor rating chart
type RatingBar struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// Candidate is an alternative actor for a role
type Candidate struct {
	model.Actor
	Selected bool `json:"selected"`
}

// ManifestRow is one line of the cast manifest
type ManifestRow struct {
	Role        string      `json:"role"`
	ActorName   string      `json:"actorName"`
	Salary      float64     `json:"salary"`
	SalaryLabel string      `json:"salaryLabel"`
	BoxOffice   float64     `json:"boxOffice"`
	Rating      float64     `json:"rating"`
	Risk        float64     `json:"risk"`
	Gender      string      `json:"gender"`
	Traits      string      `json:"traits"`
	Candidates  []Candidate `json:"candidates"`
}

// View is everything the result page renders for a completed project
type View struct {
	ID             model.ProjectID    `json:"id"`
	Title          string             `json:"title"`
	Industry       model.Industry     `json:"industry"`
	Currency       string             `json:"currency"`
	BudgetCap      float64            `json:"budgetCap"`
	TotalCost      float64            `json:"totalCost"`
	Remaining      float64            `json:"remaining"`
	RemainingLabel string             `json:"remainingLabel"`
	BudgetStatus   model.BudgetStatus `json:"budgetStatus"`
	CostBreakdown  []CostSlice        `json:"costBreakdown"`
	Ratings        []RatingBar        `json:"ratings"`
	Manifest       []ManifestRow      `json:"manifest"`
}

// CostBreakdown maps each role to its assigned salary
func CostBreakdown(rows []model.OptimizationResult) []CostSlice {
	slices := make([]CostSlice, 0, len(rows))
	for _, row := range rows {
		slices = append(slices, CostSlice{Name: row.Role, Value: row.Salary})
	}
	return slices
}

// RatingSeries maps each assigned actor to their rating
func RatingSeries(rows []model.OptimizationResult) []RatingBar {
	bars := make([]RatingBar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, RatingBar{Name: row.ActorName, Rating: row.Rating})
	}
	return bars
}

// Manifest joins every assignment with its character entry and candidates
func Manifest(p *model.Project) []ManifestRow {
	rows := make([]ManifestRow, 0, len(p.OptimizationResult))
	for _, r := range p.OptimizationResult {
		row := ManifestRow{
			Role:        r.Role,
			ActorName:   r.ActorName,
			Salary:      r.Salary,
			SalaryLabel: FormatAmount(p.Industry, r.Salary),
			BoxOffice:   r.BoxOffice,
			Rating:      r.Rating,
			Risk:        r.Risk,
			Gender:      "N/A",
			Traits:      "N/A",
			Candidates:  []Candidate{},
		}
		if c, ok := FindCharacter(p, r.Role); ok {
			if c.Gender != "" {
				row.Gender = c.Gender
			}
			row.Traits = FormatTraits(c.Traits)
			for _, actor := range c.Actors {
				row.Candidates = append(row.Candidates, Candidate{
					Actor:    actor,
					Selected: actor.Name == r.ActorName,
				})
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Build assembles the result view. Only completed projects have one.
func Build(p *model.Project) (*View, error) {
	if p == nil || p.Status != model.ProjectStatusCompleted {
		return nil, ErrNotCompleted
	}

	total := TotalCost(p.OptimizationResult)
	remaining := p.BudgetCap - total

	return &View{
		ID:             p.ID,
		Title:          p.Title,
		Industry:       p.Industry,
		Currency:       CurrencySymbol(p.Industry),
		BudgetCap:      p.BudgetCap,
		TotalCost:      total,
		Remaining:      remaining,
		RemainingLabel: FormatAmount(p.Industry, remaining),
		BudgetStatus:   Classify(remaining),
		CostBreakdown:  CostBreakdown(p.OptimizationResult),
		Ratings:        RatingSeries(p.OptimizationResult),
		Manifest:       Manifest(p),
	}, nil
}

// Summarize produces the dashboard row for a project
func Summarize(p *model.Project) model.ProjectSummary {
	return model.ProjectSummary{
		ID:           p.ID,
		Title:        p.Title,
		Industry:     p.Industry,
		IndustryTag:  IndustryTag(p.Industry),
		BudgetCap:    p.BudgetCap,
		BudgetLabel:  CompactBudget(p.BudgetCap),
		Status:       p.Status,
		CreatedAt:    p.CreatedAt.Time,
		CastAssigned: len(p.OptimizationResult),
	}
}

// SummarizeAll keeps server order
func SummarizeAll(projects []model.Project) []model.ProjectSummary {
	out := make([]model.ProjectSummary, 0, len(projects))
	for i := range projects {
		out = append(out, Summarize(&projects[i]))
	}
	return out
}
