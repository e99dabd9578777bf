package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/castos/studio/internal/model"
)

// ErrNotFound is returned when no snapshot is cached under a key
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore keeps the last-known project data per owner. It is never
// authoritative; every entry is whatever the last successful fetch returned.
type SnapshotStore interface {
	SaveList(ctx context.Context, owner string, projects []model.Project) error
	GetList(ctx context.Context, owner string) ([]model.Project, error)
	SaveProject(ctx context.Context, owner string, p *model.Project) error
	GetProject(ctx context.Context, owner string, id model.ProjectID) (*model.Project, error)
	DeleteProject(ctx context.Context, owner string, id model.ProjectID) error
}

// JobStore persists report export jobs
type JobStore interface {
	SaveJob(ctx context.Context, job *model.ReportJob) error
	GetJob(ctx context.Context, id string) (*model.ReportJob, error)
}

// MemoryStore implements SnapshotStore and JobStore in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	lists    map[string][]model.Project
	projects map[string]model.Project
	jobs     map[string]model.ReportJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:    make(map[string][]model.Project),
		projects: make(map[string]model.Project),
		jobs:     make(map[string]model.ReportJob),
	}
}

func (s *MemoryStore) SaveList(_ context.Context, owner string, projects []model.Project) error {
	cp := make([]model.Project, len(projects))
	copy(cp, projects)

	s.mu.Lock()
	s.lists[owner] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetList(_ context.Context, owner string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[owner]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]model.Project, len(list))
	copy(cp, list)
	return cp, nil
}

func (s *MemoryStore) SaveProject(_ context.Context, owner string, p *model.Project) error {
	s.mu.Lock()
	s.projects[projectKey(owner, p.ID)] = *p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, owner string, id model.ProjectID) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectKey(owner, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// DeleteProject evicts the project from both the detail cache and the owner's list
func (s *MemoryStore) DeleteProject(_ context.Context, owner string, id model.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.projects, projectKey(owner, id))
	if list, ok := s.lists[owner]; ok {
		s.lists[owner] = withoutProject(list, id)
	}
	return nil
}

func (s *MemoryStore) SaveJob(_ context.Context, job *model.ReportJob) error {
	s.mu.Lock()
	s.jobs[job.ID] = *job
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func projectKey(owner string, id model.ProjectID) string {
	return owner + ":" + id.String()
}

// withoutProject returns projects minus id, preserving order
func withoutProject(projects []model.Project, id model.ProjectID) []model.Project {
	out := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
