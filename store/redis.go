package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/maastricht-university/harmon/types"
)

const (
	keyPrefix      = "harmon:conversation:"
	discussionsKey = "harmon:discussions"
)

// Redis keeps one list per conversation and record kind.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func transcriptKey(id string) string { return keyPrefix + id + ":transcript" }
func notesKey(id string) string { return keyPrefix + id + ":notes" }

func (r *Redis) push(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) AppendNote(ctx context.Context, conversationID string, note types.Note) error {
	if err := r.CreateDiscussion(ctx, types.Discussion{ID: conversationID, Created: note.Timestamp}); err != nil {
		return err
	}
	return r.push(ctx, notesKey(conversationID), note)
}

func (r *Redis) AppendTranscriptSegment(ctx context.Context, conversationID string, seg types.Segment) error {
	if err := r.CreateDiscussion(ctx, types.Discussion{ID: conversationID, Created: seg.Timestamp}); err != nil {
		return err
	}
	return r.push(ctx, transcriptKey(conversationID), seg)
}

// CreateDiscussion stores d in one hash field per id; HSETNX keeps the first.
func (r *Redis) CreateDiscussion(ctx context.Context, d types.Discussion) error {
	b, err := json.Marshal(withCreated(d))
	if err != nil {
		return err
	}
	if err := r.rdb.HSetNX(ctx, discussionsKey, d.ID, b).Err(); err != nil {
		return fmt.Errorf("redis hsetnx %s: %w", discussionsKey, err)
	}
	return nil
}

func (r *Redis) Discussions(ctx context.Context) ([]types.Discussion, error) {
	raw, err := r.rdb.HGetAll(ctx, discussionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", discussionsKey, err)
	}
	out := make([]types.Discussion, 0, len(raw))
	for _, s := range raw {
		var d types.Discussion
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", discussionsKey, err)
		}
		out = append(out, d)
	}
	sortDiscussions(out)
	return out, nil
}

func (r *Redis) RecentSegments(ctx context.Context, conversationID string, limit int) ([]types.Segment, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	return lrange[types.Segment](ctx, r.rdb, transcriptKey(conversationID), start)
}

func (r *Redis) Notes(ctx context.Context, conversationID string) ([]types.Note, error) {
	return lrange[types.Note](ctx, r.rdb, notesKey(conversationID), 0)
}

func lrange[T any](ctx context.Context, rdb *redis.Client, key string, start int64) ([]T, error) {
	raw, err := rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
