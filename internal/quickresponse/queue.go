package quickresponse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"wisefido-followup/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrRecordNotFound no queue entry under the given response id
var ErrRecordNotFound = errors.New("quick response not found")

// Queue durable local queue shared by the capturer and the reconciler
type Queue interface {
	Put(ctx context.Context, rec *models.QuickResponseRecord) error
	GetAll(ctx context.Context) ([]*models.QuickResponseRecord, error)
	MarkProcessed(ctx context.Context, responseID string, at time.Time) error
	PurgeProcessed(ctx context.Context, olderThan time.Time) (int, error)
}

// RedisQueue one redis hash, field = response_id, value = JSON record
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Put(ctx context.Context, rec *models.QuickResponseRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal quick response: %w", err)
	}
	if err := q.client.HSet(ctx, q.key, rec.ResponseID, data).Err(); err != nil {
		return fmt.Errorf("failed to put quick response: %w", err)
	}
	return nil
}

// GetAll every record, processed or not, oldest capture first
func (q *RedisQueue) GetAll(ctx context.Context) ([]*models.QuickResponseRecord, error) {
	entries, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quick responses: %w", err)
	}

	out := make([]*models.QuickResponseRecord, 0, len(entries))
	for field, raw := range entries {
		var rec models.QuickResponseRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quick response %s: %w", field, err)
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ResponseID < out[j].ResponseID
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

func (q *RedisQueue) MarkProcessed(ctx context.Context, responseID string, at time.Time) error {
	raw, err := q.client.HGet(ctx, q.key, responseID).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrRecordNotFound
		}
		return fmt.Errorf("failed to read quick response: %w", err)
	}

	var rec models.QuickResponseRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("failed to unmarshal quick response %s: %w", responseID, err)
	}
	if rec.Processed {
		return nil
	}
	rec.Processed = true
	rec.ProcessedAt = &at
	return q.Put(ctx, &rec)
}

// PurgeProcessed deletes processed records whose processing time is before olderThan
func (q *RedisQueue) PurgeProcessed(ctx context.Context, olderThan time.Time) (int, error) {
	records, err := q.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, rec := range records {
		if rec.Processed && rec.ProcessedAt != nil && rec.ProcessedAt.Before(olderThan) {
			stale = append(stale, rec.ResponseID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := q.client.HDel(ctx, q.key, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge quick responses: %w", err)
	}
	return int(n), nil
}
