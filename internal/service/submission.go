package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/castos/studio/internal/model"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidSubmission is matched by every validation failure
var ErrInvalidSubmission = errors.New("invalid submission")

// ValidationError lists the offending fields and the rule each one broke
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %v", e.Fields)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSubmission
}

// ProjectRunner starts an optimization job on the backend
type ProjectRunner interface {
	RunProject(ctx context.Context, req *model.SubmitRequest) (*model.Project, error)
}

// SubmissionService validates and sends new optimization requests. Nothing
// is retried: a failed submission is reported and the user resubmits.
type SubmissionService struct {
	validator *validator.Validate
}

func NewSubmissionService(v *validator.Validate) *SubmissionService {
	if v == nil {
		v = validator.New()
	}
	return &SubmissionService{validator: v}
}

// Validate normalizes req in place and checks it without touching the network
func (s *SubmissionService) Validate(req *model.SubmitRequest) error {
	req.Normalize()
	if err := s.validator.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, e := range validationErrors {
				fields[e.Field()] = e.Tag()
			}
			return &ValidationError{Fields: fields}
		}
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	return nil
}

// Submit validates req and creates the job, returning its server-assigned id
func (s *SubmissionService) Submit(ctx context.Context, api ProjectRunner, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	project, err := api.RunProject(ctx, req)
	if err != nil {
		log.Printf("[Submission] %q rejected: %v", req.Title, err)
		return nil, err
	}
	if project.ID == "" {
		return nil, fmt.Errorf("backend accepted %q without returning an id", req.Title)
	}

	status := project.Status
	if status == "" {
		status = model.ProjectStatusPending
	}
	createdAt := project.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	log.Printf("[Submission] project=%s created (%s, budget %.0f)", project.ID, req.Industry, req.Budget)

	return &model.SubmitResponse{
		ID:        project.ID,
		Status:    status,
		CreatedAt: createdAt,
	}, nil
}
