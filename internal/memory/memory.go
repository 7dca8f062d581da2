// Package memory implements the four-layer long-term memory store and
// the retriever that turns it into a ranked context block for agents.
package memory

import (
	"context"

	"github.com/chatforge/chatforge/internal/models"
)

// LayerStore holds the personal, project, and aesthetic memory layers.
type LayerStore interface {
	// Append stores a memory entry in its layer.
	Append(ctx context.Context, mem *models.Memory) error

	// List returns a user's entries for one layer, ordered by
	// importance descending. projectID filters project-scoped layers;
	// empty means no filter.
	List(ctx context.Context, userID string, layer models.MemoryLayer, projectID string) ([]*models.Memory, error)

	// BumpUsage increments an entry's usage counter.
	BumpUsage(ctx context.Context, userID string, layer models.MemoryLayer, id string) error

	// Close closes the store connection.
	Close() error
}

// CodebaseStore answers the codebase layer from a per-project file
// knowledge graph.
type CodebaseStore interface {
	// StoreFileFact records what a generated file is for.
	StoreFileFact(ctx context.Context, projectID, path, summary string) error

	// ContextBlock renders the project's file knowledge as context text.
	ContextBlock(ctx context.Context, projectID string) (string, error)

	// Close closes the store connection.
	Close() error
}

// Config holds memory subsystem configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DgraphAlphaURL string

	// MaxPerLayer caps how many entries one layer contributes to a
	// context block.
	MaxPerLayer int
}

// DefaultConfig returns default memory configuration.
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		MaxPerLayer: 8,
	}
}
