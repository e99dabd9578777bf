package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/castos/studio/internal/cache"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/internal/projection"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeReport = "report:export"
	QueueReports   = "reports"
)

// ReportPrefix is the storage prefix holding every report of a project
func ReportPrefix(projectID model.ProjectID) string {
	return fmt.Sprintf("reports/%s/", projectID)
}

// ReportKey names a new report object for a project
func ReportKey(projectID model.ProjectID) string {
	return ReportPrefix(projectID) + uuid.New().String() + ".json"
}

// ErrJobNotFound is returned for unknown or foreign report jobs
var ErrJobNotFound = errors.New("job not found")

// Dispatcher hands a queued report job to whatever executes it
type Dispatcher interface {
	Dispatch(ctx context.Context, payload *model.ReportJobPayload) error
}

// AsynqDispatcher enqueues report jobs on Redis
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, payload *model.ReportJobPayload) error {
	task, err := NewReportTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueReports),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewReportTask wraps payload in an asynq task
func NewReportTask(payload *model.ReportJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeReport, data), nil
}

// ReportService handles cast report export jobs
type ReportService struct {
	jobs       cache.JobStore
	dispatcher Dispatcher
}

func NewReportService(jobs cache.JobStore, dispatcher Dispatcher) *ReportService {
	return &ReportService{
		jobs:       jobs,
		dispatcher: dispatcher,
	}
}

// SetDispatcher replaces the dispatcher; used when the worker that executes
// jobs inline is itself built from this service
func (s *ReportService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// StartExport queues a report for a completed project. The project snapshot
// travels with the job so the worker needs no credential.
func (s *ReportService) StartExport(ctx context.Context, owner string, project *model.Project) (*model.ReportStartResponse, error) {
	switch project.Status {
	case model.ProjectStatusCompleted:
	case model.ProjectStatusFailed:
		return nil, ErrProjectFailed
	default:
		return nil, projection.ErrNotCompleted
	}

	now := time.Now()
	job := &model.ReportJob{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Owner:     owner,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload := &model.ReportJobPayload{
		JobID:   job.ID,
		Owner:   owner,
		Project: *project,
	}
	if err := s.dispatcher.Dispatch(ctx, payload); err != nil {
		s.FailJob(ctx, job.ID, "Failed to queue export")
		return nil, err
	}

	log.Printf("[Reports] job=%s queued for project=%s", job.ID, project.ID)

	return &model.ReportStartResponse{
		JobID:     job.ID,
		ProjectID: project.ID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns a job owned by owner
func (s *ReportService) GetStatus(ctx context.Context, owner, jobID string) (*model.ReportJob, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *ReportService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.jobs.SaveJob(ctx, job)
}

// CompleteJob records where the finished report lives (called by worker)
func (s *ReportService) CompleteJob(ctx context.Context, jobID, fileURL string, size int64, expiresAt *time.Time) (*model.ReportJob, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = ""
	job.FileURL = fileURL
	job.Size = size
	job.ExpiresAt = expiresAt
	now := time.Now()
	job.CompletedAt = &now

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FailJob marks job as failed (called by worker)
func (s *ReportService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.jobs.SaveJob(ctx, job)
}

func (s *ReportService) getJob(ctx context.Context, jobID string) (*model.ReportJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}
