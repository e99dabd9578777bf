package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/internal/projection"
	"github.com/castos/studio/internal/service"
	"github.com/castos/studio/internal/websocket"
	"github.com/hibiken/asynq"
)

// CastReport is the document written for an export
type CastReport struct {
	Project     *projection.View    `json:"project"`
	Plot        string              `json:"plot"`
	Status      model.ProjectStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// ReportResult is broadcast when an export finishes
type ReportResult struct {
	JobID     string          `json:"jobId"`
	ProjectID model.ProjectID `json:"projectId"`
	FileURL   string          `json:"fileUrl"`
	Size      int64           `json:"size"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// ReportWorker processes report export jobs
type ReportWorker struct {
	reportService *service.ReportService
	storage       client.ReportStorage
	hub           *websocket.Hub
	urlExpiry     time.Duration
}

// NewReportWorker creates a new report worker. storage may be nil, in which
// case reports are not uploaded and a placeholder URL is returned.
func NewReportWorker(reportService *service.ReportService, storage client.ReportStorage, hub *websocket.Hub, urlExpiry time.Duration) *ReportWorker {
	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}
	return &ReportWorker{
		reportService: reportService,
		storage:       storage,
		hub:           hub,
		urlExpiry:     urlExpiry,
	}
}

// ProcessTask handles report task processing
func (w *ReportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ReportJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal report payload: %w", asynq.SkipRetry)
	}
	return w.Process(ctx, &payload)
}

// Process builds, uploads and publishes one report
func (w *ReportWorker) Process(ctx context.Context, payload *model.ReportJobPayload) error {
	jobID := payload.JobID
	log.Printf("[Reports] starting job=%s project=%s", jobID, payload.Project.ID)

	w.updateProgress(ctx, jobID, 10, "Building cast projection...")
	view, err := projection.Build(&payload.Project)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Projection failed: %v", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.updateProgress(ctx, jobID, 40, "Rendering report...")
	data, err := json.MarshalIndent(CastReport{
		Project:     view,
		Plot:        payload.Project.Plot,
		Status:      payload.Project.Status,
		CreatedAt:   payload.Project.CreatedAt.Time,
		GeneratedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		w.failJob(ctx, jobID, "Failed to render report")
		return err
	}

	key := service.ReportKey(payload.Project.ID)

	var fileURL string
	var expiresAt *time.Time
	if w.storage == nil {
		fileURL = fmt.Sprintf("https://cdn.castos.app/%s", key)
	} else {
		w.updateProgress(ctx, jobID, 70, "Uploading report...")
		if err := w.storage.Put(ctx, key, data, "application/json"); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Upload failed: %v", err))
			return err
		}

		fileURL, err = w.storage.SignedURL(ctx, key, w.urlExpiry)
		if err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to sign URL: %v", err))
			return err
		}
		exp := time.Now().Add(w.urlExpiry)
		expiresAt = &exp
	}

	w.updateProgress(ctx, jobID, 95, "Finalizing...")
	if _, err := w.reportService.CompleteJob(ctx, jobID, fileURL, int64(len(data)), expiresAt); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, &ReportResult{
		JobID:     jobID,
		ProjectID: payload.Project.ID,
		FileURL:   fileURL,
		Size:      int64(len(data)),
		ExpiresAt: expiresAt,
	})
	log.Printf("[Reports] job=%s completed (%d bytes)", jobID, len(data))
	return nil
}

func (w *ReportWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.reportService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *ReportWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.reportService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, "EXPORT_FAILED", errMsg)
}

// InlineDispatcher runs report jobs in-process when no Redis is configured
type InlineDispatcher struct {
	worker *ReportWorker
	wg     sync.WaitGroup
}

func NewInlineDispatcher(worker *ReportWorker) *InlineDispatcher {
	return &InlineDispatcher{worker: worker}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, payload *model.ReportJobPayload) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.worker.Process(context.Background(), payload); err != nil {
			log.Printf("[Reports] job=%s failed: %v", payload.JobID, err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
