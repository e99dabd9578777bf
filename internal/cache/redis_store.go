package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castos/studio/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotTTL = 24 * time.Hour
	jobTTL      = 24 * time.Hour
)

// RedisStore implements SnapshotStore and JobStore on Redis
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) SaveList(ctx context.Context, owner string, projects []model.Project) error {
	return s.set(ctx, listKey(owner), projects, snapshotTTL)
}

func (s *RedisStore) GetList(ctx context.Context, owner string) ([]model.Project, error) {
	var projects []model.Project
	if err := s.get(ctx, listKey(owner), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *RedisStore) SaveProject(ctx context.Context, owner string, p *model.Project) error {
	return s.set(ctx, fmt.Sprintf("project:%s", projectKey(owner, p.ID)), p, snapshotTTL)
}

func (s *RedisStore) GetProject(ctx context.Context, owner string, id model.ProjectID) (*model.Project, error) {
	var p model.Project
	if err := s.get(ctx, fmt.Sprintf("project:%s", projectKey(owner, id)), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject evicts the detail entry and rewrites the owner's cached list
func (s *RedisStore) DeleteProject(ctx context.Context, owner string, id model.ProjectID) error {
	if err := s.redis.Del(ctx, fmt.Sprintf("project:%s", projectKey(owner, id))).Err(); err != nil {
		return err
	}

	list, err := s.GetList(ctx, owner)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.SaveList(ctx, owner, withoutProject(list, id))
}

func (s *RedisStore) SaveJob(ctx context.Context, job *model.ReportJob) error {
	return s.set(ctx, fmt.Sprintf("report:%s", job.ID), job, jobTTL)
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.ReportJob, error) {
	var job model.ReportJob
	if err := s.get(ctx, fmt.Sprintf("report:%s", id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func listKey(owner string) string {
	return fmt.Sprintf("projects:%s", owner)
}

func (s *RedisStore) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) get(ctx context.Context, key string, out interface{}) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, out)
}
