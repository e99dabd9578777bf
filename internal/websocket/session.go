package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/internal/projection"
	"github.com/castos/studio/internal/service"
	"github.com/gofiber/contrib/websocket"
)

// Sessions serves the live WebSocket views. A project topic runs one
// Tracker, a dashboard topic runs one CollectionPoller; both stop when the
// last viewer disconnects.
type Sessions struct {
	hub      *Hub
	api      *client.CastOSClient
	projects *service.ProjectService
	policy   service.PollPolicy
	interval time.Duration
}

func NewSessions(hub *Hub, api *client.CastOSClient, projects *service.ProjectService, policy service.PollPolicy, interval time.Duration) *Sessions {
	return &Sessions{
		hub:      hub,
		api:      api,
		projects: projects,
		policy:   policy,
		interval: interval,
	}
}

// Project handles GET /ws/projects/:id
func (s *Sessions) Project(c *websocket.Conn) {
	owner, token := credentials(c)
	id := model.ProjectID(c.Params("id"))
	s.hub.Serve(c, ProjectTopic(owner, id), token, s.trackProject(owner, id))
}

// Projects handles GET /ws/projects
func (s *Sessions) Projects(c *websocket.Conn) {
	owner, token := credentials(c)
	s.hub.Serve(c, CollectionTopic(owner), token, s.watchProjects(owner))
}

// Report handles GET /ws/reports/:jobId
func (s *Sessions) Report(c *websocket.Conn) {
	_, token := credentials(c)
	s.hub.Serve(c, ReportTopic(c.Params("jobId")), token, nil)
}

func (s *Sessions) trackProject(owner string, id model.ProjectID) StartFunc {
	return func(ctx context.Context, tokens client.TokenSource, publish func([]byte)) Command {
		tracker := service.NewTracker(s.api.OnBehalfOf(tokens), s.policy)
		go func() {
			final := tracker.Run(ctx, id, func(snap model.TrackSnapshot) {
				s.projects.RememberProject(ctx, owner, snap.Project)
				publish(encode(model.WSStatusMessage{
					Type:     model.WSMessageTypeStatus,
					Snapshot: snap,
				}))
			})
			log.Printf("[Sessions] project=%s tracking ended: %s after %d polls", id, final.State, final.Polls)
		}()
		return nil
	}
}

func (s *Sessions) watchProjects(owner string) StartFunc {
	return func(ctx context.Context, tokens client.TokenSource, publish func([]byte)) Command {
		poller := service.NewCollectionPoller(s.api.OnBehalfOf(tokens), s.interval)
		stop := poller.Start(ctx, func(projects []model.Project) {
			s.projects.Remember(ctx, owner, projects)
			publish(encode(model.WSProjectsMessage{
				Type:     model.WSMessageTypeProjects,
				Projects: projection.SummarizeAll(projects),
				Active:   len(projects),
			}))
		})
		go func() {
			<-ctx.Done()
			stop()
		}()

		return func(ctx context.Context, msg model.WSMessage) error {
			if msg.Type != model.WSMessageTypeDelete || msg.ProjectID == "" {
				return nil
			}
			if err := poller.Delete(ctx, msg.ProjectID); err != nil {
				return err
			}
			s.projects.Forget(ctx, owner, msg.ProjectID)
			return nil
		}
	}
}

func credentials(c *websocket.Conn) (owner, token string) {
	owner, _ = c.Locals(middleware.LocalOwner).(string)
	if owner == "" {
		owner = middleware.AnonymousOwner
	}
	token, _ = c.Locals(middleware.LocalToken).(string)
	return owner, token
}

func encode(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Sessions] failed to marshal message: %v", err)
		return nil
	}
	return data
}
