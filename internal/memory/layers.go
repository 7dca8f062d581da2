package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/chatforge/chatforge/internal/models"
)

// RedisLayerStore implements LayerStore on Redis. Each entry is a hash;
// a per-(user, layer) sorted set scored by importance gives ordered
// listing without scanning.
type RedisLayerStore struct {
	client *redis.Client
}

// NewRedisLayerStore connects to Redis and verifies the connection.
func NewRedisLayerStore(config *Config) (*RedisLayerStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLayerStore{client: client}, nil
}

func entryKey(userID string, layer models.MemoryLayer, id string) string {
	return fmt.Sprintf("memory:%s:%s:%s", userID, layer, id)
}

func indexKey(userID string, layer models.MemoryLayer) string {
	return fmt.Sprintf("memoryidx:%s:%s", userID, layer)
}

// Append stores a memory entry in its layer.
func (s *RedisLayerStore) Append(ctx context.Context, mem *models.Memory) error {
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, entryKey(mem.UserID, mem.Layer, mem.ID), map[string]interface{}{
		"content":     mem.Content,
		"importance":  mem.Importance,
		"usage_count": mem.UsageCount,
		"project_id":  mem.ProjectID,
		"created_at":  mem.CreatedAt.Unix(),
	})
	pipe.ZAdd(ctx, indexKey(mem.UserID, mem.Layer), &redis.Z{
		Score:  mem.Importance,
		Member: mem.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// List returns a user's entries for one layer, highest importance first.
func (s *RedisLayerStore) List(ctx context.Context, userID string, layer models.MemoryLayer, projectID string) ([]*models.Memory, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey(userID, layer), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list layer index: %w", err)
	}

	var memories []*models.Memory
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, entryKey(userID, layer, id)).Result()
		if err != nil || len(fields) == 0 {
			continue // index entry for an expired hash
		}

		mem := &models.Memory{
			ID:        id,
			UserID:    userID,
			Layer:     layer,
			Content:   fields["content"],
			ProjectID: fields["project_id"],
		}
		mem.Importance, _ = strconv.ParseFloat(fields["importance"], 64)
		mem.UsageCount, _ = strconv.Atoi(fields["usage_count"])
		if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
			mem.CreatedAt = time.Unix(ts, 0)
		}

		if projectID != "" && mem.ProjectID != "" && mem.ProjectID != projectID {
			continue
		}
		memories = append(memories, mem)
	}

	return memories, nil
}

// BumpUsage increments an entry's usage counter.
func (s *RedisLayerStore) BumpUsage(ctx context.Context, userID string, layer models.MemoryLayer, id string) error {
	return s.client.HIncrBy(ctx, entryKey(userID, layer, id), "usage_count", 1).Err()
}

// Close closes the Redis connection.
func (s *RedisLayerStore) Close() error {
	return s.client.Close()
}
