package service

import (
	"context"
	"log"
	"time"

	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/model"
)

// ProjectFetcher retrieves the current state of one project
type ProjectFetcher interface {
	GetProject(ctx context.Context, id model.ProjectID) (*model.Project, error)
}

// Tracker polls a single project until it reaches a terminal state.
//
// Polls are strictly sequential: the next fetch is issued only after the
// previous result has been applied and the policy delay has elapsed.
// Cancelling ctx stops the loop. A fetch already in flight is allowed to
// finish, but its result is discarded and onUpdate is not called again.
type Tracker struct {
	fetcher ProjectFetcher
	policy  PollPolicy
}

// NewTracker creates a tracker with the given polling policy
func NewTracker(fetcher ProjectFetcher, policy PollPolicy) *Tracker {
	if policy.Interval <= 0 {
		policy.Interval = DefaultDetailInterval
	}
	return &Tracker{
		fetcher: fetcher,
		policy:  policy,
	}
}

// Policy returns the tracker's polling policy
func (t *Tracker) Policy() PollPolicy {
	return t.policy
}

type fetchResult struct {
	project *model.Project
	err     error
}

// Run tracks id until a terminal state or cancellation and returns the last
// applied snapshot. onUpdate receives every applied transition, including
// repeated pending snapshots; it may be nil.
func (t *Tracker) Run(ctx context.Context, id model.ProjectID, onUpdate func(model.TrackSnapshot)) model.TrackSnapshot {
	snap := model.TrackSnapshot{
		ProjectID: id,
		State:     model.TrackStateLoading,
		UpdatedAt: time.Now(),
	}

	start := time.Now()
	failures := 0

	for {
		if ctx.Err() != nil {
			return snap
		}

		var budget time.Duration
		if t.policy.MaxWait > 0 {
			budget = t.policy.MaxWait - time.Since(start)
			if budget <= 0 {
				return t.timeout(ctx, snap, onUpdate, "deadline exceeded")
			}
		}

		snap.Polls++
		res, ok := t.fetch(ctx, id, budget)
		if !ok {
			log.Printf("[Tracker] project=%s poll #%d: cancelled, result discarded", id, snap.Polls)
			return snap
		}
		if res.err != nil && t.policy.MaxWait > 0 && time.Since(start) >= t.policy.MaxWait {
			return t.timeout(ctx, snap, onUpdate, "deadline exceeded during fetch")
		}

		delay := t.policy.Interval
		if res.err != nil {
			failures++
			log.Printf("[Tracker] project=%s poll #%d: error (%d/%d): %v", id, snap.Polls, failures, t.policy.maxAttempts(), res.err)

			if failures >= t.policy.maxAttempts() {
				if t.policy.Retry.OnExhaustion == ExhaustStop {
					snap.State = model.TrackStateError
					snap.Error = trackError(res.err)
					snap.UpdatedAt = time.Now()
					t.emit(ctx, snap, onUpdate)
					return snap
				}
				failures = 0
			} else {
				delay = t.policy.retryDelay()
			}
		} else {
			failures = 0
			next, changed := applyProject(snap, res.project)
			if changed {
				snap = next
				log.Printf("[Tracker] project=%s poll #%d: status: %s", id, snap.Polls, res.project.Status)
				if !t.emit(ctx, snap, onUpdate) {
					return snap
				}
				if snap.State.IsTerminal() {
					return snap
				}
			}
		}

		if t.policy.MaxPolls > 0 && snap.Polls >= t.policy.MaxPolls {
			return t.timeout(ctx, snap, onUpdate, "poll limit reached")
		}

		if t.policy.MaxWait > 0 {
			remaining := t.policy.MaxWait - time.Since(start)
			if remaining <= 0 {
				return t.timeout(ctx, snap, onUpdate, "deadline exceeded")
			}
			if delay > remaining {
				delay = remaining
			}
		}

		if !sleep(ctx, delay) {
			return snap
		}

		if t.policy.MaxWait > 0 && time.Since(start) >= t.policy.MaxWait {
			return t.timeout(ctx, snap, onUpdate, "deadline exceeded")
		}
	}
}

// fetch runs one status request. The request is detached from ctx so it is
// never aborted by cancellation; ok is false when ctx was cancelled first.
// A positive budget bounds the request by the remaining wait.
func (t *Tracker) fetch(ctx context.Context, id model.ProjectID, budget time.Duration) (fetchResult, bool) {
	ch := make(chan fetchResult, 1)
	go func() {
		fetchCtx := context.WithoutCancel(ctx)
		if budget > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, budget)
			defer cancel()
		}
		p, err := t.fetcher.GetProject(fetchCtx, id)
		ch <- fetchResult{project: p, err: err}
	}()

	select {
	case <-ctx.Done():
		return fetchResult{}, false
	case res := <-ch:
		if ctx.Err() != nil {
			return fetchResult{}, false
		}
		return res, true
	}
}

// emit delivers snap unless ctx has been cancelled
func (t *Tracker) emit(ctx context.Context, snap model.TrackSnapshot, onUpdate func(model.TrackSnapshot)) bool {
	if ctx.Err() != nil {
		return false
	}
	if onUpdate != nil {
		onUpdate(snap)
	}
	return true
}

func (t *Tracker) timeout(ctx context.Context, snap model.TrackSnapshot, onUpdate func(model.TrackSnapshot), reason string) model.TrackSnapshot {
	log.Printf("[Tracker] project=%s: timed out after %d polls: %s", snap.ProjectID, snap.Polls, reason)
	snap.State = model.TrackStateTimedOut
	snap.UpdatedAt = time.Now()
	t.emit(ctx, snap, onUpdate)
	return snap
}

// applyProject folds a fetched project into the snapshot. A terminal status
// is never replaced by a non-terminal one.
func applyProject(snap model.TrackSnapshot, p *model.Project) (model.TrackSnapshot, bool) {
	if p == nil {
		return snap, false
	}
	if snap.Project != nil && snap.Project.Status.IsTerminal() && !p.Status.IsTerminal() {
		return snap, false
	}

	snap.Project = p
	snap.Error = nil
	snap.UpdatedAt = time.Now()

	switch p.Status {
	case model.ProjectStatusCompleted:
		snap.State = model.TrackStateCompleted
	case model.ProjectStatusFailed:
		snap.State = model.TrackStateFailed
	default:
		snap.State = model.TrackStatePending
	}
	return snap, true
}

func trackError(err error) *model.TrackError {
	te := &model.TrackError{Message: client.ErrorMessage(err)}
	if apiErr, ok := client.AsAPIError(err); ok {
		te.Status = apiErr.Status
	}
	return te
}

// sleep waits for d or until ctx is done; it reports false on cancellation
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
