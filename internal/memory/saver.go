package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
)

// Saver persists memory records as a fire-and-forget side effect. A
// failed save is logged and swallowed; it must never fail or alter the
// primary response it rode along with.
type Saver struct {
	layers   LayerStore
	codebase CodebaseStore
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSaver creates a saver over the layer and codebase stores.
func NewSaver(layers LayerStore, codebase CodebaseStore, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		layers:   layers,
		codebase: codebase,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// SaveAsync spawns a detached write for each record. It returns
// immediately; callers never observe the outcome.
func (s *Saver) SaveAsync(memories ...*models.Memory) {
	for _, mem := range memories {
		if mem == nil {
			continue
		}
		go s.save(mem)
	}
}

// SaveFileFactAsync records a codebase fact in the background.
func (s *Saver) SaveFileFactAsync(projectID, path, summary string) {
	if s.codebase == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.codebase.StoreFileFact(ctx, projectID, path, summary); err != nil {
			s.logger.Warn("file fact save failed",
				zap.String("project_id", projectID),
				zap.String("path", path),
				zap.Error(err))
		}
	}()
}

func (s *Saver) save(mem *models.Memory) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.layers.Append(ctx, mem); err != nil {
		s.logger.Warn("memory save failed",
			zap.String("layer", string(mem.Layer)),
			zap.String("user_id", mem.UserID),
			zap.Error(err))
	}
}
