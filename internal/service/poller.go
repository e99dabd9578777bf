package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/castos/studio/internal/model"
)

// CollectionAPI is the subset of the backend the collection poller needs
type CollectionAPI interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	DeleteProject(ctx context.Context, id model.ProjectID) error
}

// CollectionPoller periodically refreshes the full project list. It keeps its
// own snapshot; a failed refresh leaves the previous snapshot in place and
// the next tick simply tries again.
type CollectionPoller struct {
	api      CollectionAPI
	interval time.Duration

	// OnError, when set, is called for every failed refresh
	OnError func(error)

	mu       sync.Mutex
	snapshot []model.Project
	loaded   bool
	onUpdate func([]model.Project)
}

// NewCollectionPoller creates a poller refreshing every interval
func NewCollectionPoller(api CollectionAPI, interval time.Duration) *CollectionPoller {
	if interval <= 0 {
		interval = DefaultCollectionInterval
	}
	return &CollectionPoller{
		api:      api,
		interval: interval,
	}
}

// Start fetches immediately, then on every interval, until stop is called or
// ctx is done. stop blocks until the loop has exited and is safe to call more
// than once. After stop returns onUpdate is never called again.
// onUpdate runs under the poller's lock and must not call back into it.
func (p *CollectionPoller) Start(ctx context.Context, onUpdate func([]model.Project)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.onUpdate = onUpdate
	p.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			p.mu.Lock()
			p.onUpdate = nil
			p.mu.Unlock()
		})
	}
}

// Refresh performs one fetch outside the schedule
func (p *CollectionPoller) Refresh(ctx context.Context) error {
	return p.refresh(ctx)
}

func (p *CollectionPoller) refresh(ctx context.Context) error {
	projects, err := p.api.ListProjects(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Printf("[Poller] refresh failed, keeping last snapshot: %v", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return err
	}

	p.mu.Lock()
	p.snapshot = projects
	p.loaded = true
	p.notifyLocked()
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the last known collection and whether any
// refresh has succeeded yet
func (p *CollectionPoller) Snapshot() ([]model.Project, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneProjects(p.snapshot), p.loaded
}

// Delete removes a project on the backend and, once that succeeds, drops it
// from the local snapshot without waiting for the next refresh. On failure
// the snapshot is untouched. Deleting an id not in the snapshot leaves the
// snapshot unchanged.
func (p *CollectionPoller) Delete(ctx context.Context, id model.ProjectID) error {
	if err := p.api.DeleteProject(ctx, id); err != nil {
		log.Printf("[Poller] delete project=%s failed: %v", id, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i := range p.snapshot {
		if p.snapshot[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	next := make([]model.Project, 0, len(p.snapshot)-1)
	next = append(next, p.snapshot[:idx]...)
	next = append(next, p.snapshot[idx+1:]...)
	p.snapshot = next
	p.notifyLocked()
	return nil
}

// notifyLocked must be called with p.mu held
func (p *CollectionPoller) notifyLocked() {
	if p.onUpdate != nil {
		p.onUpdate(cloneProjects(p.snapshot))
	}
}

func cloneProjects(projects []model.Project) []model.Project {
	if projects == nil {
		return nil
	}
	cp := make([]model.Project, len(projects))
	copy(cp, projects)
	return cp
}
