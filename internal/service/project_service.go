package service

import (
	"context"
	"errors"
	"log"

	"github.com/castos/studio/internal/cache"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/internal/projection"
)

// ErrProjectFailed is returned when a view is requested for a failed optimization
var ErrProjectFailed = errors.New("optimization failed")

// ProjectService serves one-shot reads and deletes for the HTTP surface and
// keeps the owner's last-known snapshot in the store
type ProjectService struct {
	store   cache.SnapshotStore
	reports client.ReportStorage
}

func NewProjectService(store cache.SnapshotStore) *ProjectService {
	return &ProjectService{store: store}
}

// SetReportStorage makes deletes also remove the project's exported reports
func (s *ProjectService) SetReportStorage(storage client.ReportStorage) {
	s.reports = storage
}

// List fetches the owner's collection. When the backend is unreachable the
// last cached collection is returned with Stale set.
func (s *ProjectService) List(ctx context.Context, api client.ProjectAPI, owner string) (*model.ProjectListResponse, error) {
	projects, err := api.ListProjects(ctx)
	stale := false
	if err != nil {
		cached, ok := s.fallbackList(ctx, owner, err)
		if !ok {
			return nil, err
		}
		projects, stale = cached, true
	} else if err := s.store.SaveList(ctx, owner, projects); err != nil {
		log.Printf("[Projects] failed to cache list for %s: %v", owner, err)
	}

	return &model.ProjectListResponse{
		Projects: projection.SummarizeAll(projects),
		Active:   len(projects),
		Stale:    stale,
	}, nil
}

// Get fetches one project, falling back to the cached copy on transport errors
func (s *ProjectService) Get(ctx context.Context, api client.ProjectAPI, owner string, id model.ProjectID) (*model.Project, bool, error) {
	p, err := api.GetProject(ctx, id)
	if err != nil {
		if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsTransport() {
			if cached, cerr := s.store.GetProject(ctx, owner, id); cerr == nil {
				return cached, true, nil
			}
		}
		return nil, false, err
	}

	if err := s.store.SaveProject(ctx, owner, p); err != nil {
		log.Printf("[Projects] failed to cache project=%s: %v", id, err)
	}
	return p, false, nil
}

// View builds the result projection for a completed project
func (s *ProjectService) View(ctx context.Context, api client.ProjectAPI, owner string, id model.ProjectID) (*projection.View, error) {
	p, _, err := s.Get(ctx, api, owner, id)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case model.ProjectStatusFailed:
		return nil, ErrProjectFailed
	case model.ProjectStatusCompleted:
		return projection.Build(p)
	default:
		return nil, projection.ErrNotCompleted
	}
}

// Delete removes the project on the backend, then evicts it locally
func (s *ProjectService) Delete(ctx context.Context, api client.ProjectAPI, owner string, id model.ProjectID) error {
	if err := api.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.Forget(ctx, owner, id)
	return nil
}

// Forget evicts a project deleted elsewhere, e.g. from a dashboard session,
// along with any reports exported from it
func (s *ProjectService) Forget(ctx context.Context, owner string, id model.ProjectID) {
	if err := s.store.DeleteProject(ctx, owner, id); err != nil {
		log.Printf("[Projects] failed to evict project=%s: %v", id, err)
	}
	if s.reports == nil {
		return
	}
	n, err := s.reports.DeletePrefix(ctx, ReportPrefix(id))
	if err != nil {
		log.Printf("[Projects] failed to remove reports of project=%s: %v", id, err)
		return
	}
	if n > 0 {
		log.Printf("[Projects] removed %d report(s) of project=%s", n, id)
	}
}

// Remember stores a collection observed elsewhere, e.g. by a poller session
func (s *ProjectService) Remember(ctx context.Context, owner string, projects []model.Project) {
	if err := s.store.SaveList(ctx, owner, projects); err != nil {
		log.Printf("[Projects] failed to cache list for %s: %v", owner, err)
	}
}

// RememberProject stores a project observed by a tracker
func (s *ProjectService) RememberProject(ctx context.Context, owner string, p *model.Project) {
	if p == nil {
		return
	}
	if err := s.store.SaveProject(ctx, owner, p); err != nil {
		log.Printf("[Projects] failed to cache project=%s: %v", p.ID, err)
	}
}

func (s *ProjectService) fallbackList(ctx context.Context, owner string, fetchErr error) ([]model.Project, bool) {
	apiErr, ok := client.AsAPIError(fetchErr)
	if !ok || !apiErr.IsTransport() {
		return nil, false
	}
	cached, err := s.store.GetList(ctx, owner)
	if err != nil {
		return nil, false
	}
	log.Printf("[Projects] backend unreachable, serving cached list for %s", owner)
	return cached, true
}
