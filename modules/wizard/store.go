package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clip-wizard-server/modules/pipeline"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore persists the latest state of each session
type SnapshotStore interface {
	Save(ctx context.Context, id string, st pipeline.State) error
	Load(ctx context.Context, id string) (pipeline.State, bool, error)
	Delete(ctx context.Context, id string) error
}

// NoopStore is used when Redis is not configured
type NoopStore struct{}

func (NoopStore) Save(ctx context.Context, id string, st pipeline.State) error { return nil }

func (NoopStore) Load(ctx context.Context, id string) (pipeline.State, bool, error) {
	return pipeline.State{}, false, nil
}

func (NoopStore) Delete(ctx context.Context, id string) error { return nil }

const snapshotKeyPrefix = "wizard:session:"

func snapshotKey(id string) string {
	return snapshotKeyPrefix + id
}

// RedisStore keeps one JSON snapshot per session, expiring after ttl
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, id string, st pipeline.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, snapshotKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (pipeline.State, bool, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return pipeline.State{}, false, nil
	}
	if err != nil {
		return pipeline.State{}, false, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}

	st, err := decodeSnapshot(data)
	if err != nil {
		return pipeline.State{}, false, err
	}
	return st, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, snapshotKey(id)).Err()
}

// decodeSnapshot rejects snapshots whose stage is out of range
func decodeSnapshot(data []byte) (pipeline.State, error) {
	var st pipeline.State
	if err := json.Unmarshal(data, &st); err != nil {
		return pipeline.State{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if st.Stage < pipeline.StageDescribing || st.Stage > pipeline.StageAssembling {
		return pipeline.State{}, fmt.Errorf("snapshot has invalid stage %d", st.Stage)
	}
	st.StageName = st.Stage.String()
	if st.Clips == nil {
		st.Clips = []pipeline.Clip{}
	}
	if st.Progress == nil {
		st.Progress = []pipeline.ProgressItem{}
	}
	if st.Videos == nil {
		st.Videos = []pipeline.GeneratedVideo{}
	}
	return st, nil
}
