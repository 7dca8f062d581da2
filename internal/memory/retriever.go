package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
)

// rankedLayers is the order layers appear in a context block.
var rankedLayers = []models.MemoryLayer{
	models.LayerPersonal,
	models.LayerProject,
	models.LayerCodebase,
	models.LayerAesthetic,
}

// Retriever assembles the ranked context block agents receive. It is a
// pure read dependency of the orchestration core: every failure degrades
// to a smaller (possibly empty) block, never to a dispatch failure.
type Retriever struct {
	layers      LayerStore
	codebase    CodebaseStore
	maxPerLayer int
	logger      *zap.Logger
}

// NewRetriever creates a retriever over the layer and codebase stores.
// codebase may be nil when no graph store is configured.
func NewRetriever(layers LayerStore, codebase CodebaseStore, config *Config, logger *zap.Logger) *Retriever {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		layers:      layers,
		codebase:    codebase,
		maxPerLayer: config.MaxPerLayer,
		logger:      logger,
	}
}

// Context returns the semantic variant: layer entries ranked against the
// prompt, capped per layer. Retrieval bumps usage counters in the
// background.
func (r *Retriever) Context(ctx context.Context, userID, prompt, projectID string) (string, error) {
	return r.assemble(ctx, userID, projectID, prompt, true)
}

// AllContext returns the non-semantic variant used by agents that want
// everything: all entries per layer, ordered by importance.
func (r *Retriever) AllContext(ctx context.Context, userID, projectID string) (string, error) {
	return r.assemble(ctx, userID, projectID, "", false)
}

func (r *Retriever) assemble(ctx context.Context, userID, projectID, prompt string, ranked bool) (string, error) {
	var block strings.Builder

	for _, layer := range rankedLayers {
		if layer == models.LayerCodebase {
			r.appendCodebase(ctx, &block, projectID)
			continue
		}
		if layer == models.LayerProject && projectID == "" {
			continue
		}

		entries, err := r.layers.List(ctx, userID, layer, projectID)
		if err != nil {
			r.logger.Warn("memory layer unavailable",
				zap.String("layer", string(layer)),
				zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			continue
		}

		if ranked {
			sortByRelevance(entries, prompt)
			if len(entries) > r.maxPerLayer {
				entries = entries[:r.maxPerLayer]
			}
		} else {
			sortByImportance(entries)
		}

		fmt.Fprintf(&block, "[%s]\n", layer)
		for _, mem := range entries {
			fmt.Fprintf(&block, "- %s\n", mem.Content)
			go r.bumpUsage(userID, layer, mem.ID)
		}
	}

	return strings.TrimSpace(block.String()), nil
}

func (r *Retriever) appendCodebase(ctx context.Context, block *strings.Builder, projectID string) {
	if r.codebase == nil || projectID == "" {
		return
	}
	text, err := r.codebase.ContextBlock(ctx, projectID)
	if err != nil {
		r.logger.Warn("codebase layer unavailable", zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	fmt.Fprintf(block, "[%s]\n%s", models.LayerCodebase, text)
}

// bumpUsage runs detached; a failed bump only costs ranking signal.
func (r *Retriever) bumpUsage(userID string, layer models.MemoryLayer, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.layers.BumpUsage(ctx, userID, layer, id); err != nil {
		r.logger.Debug("usage bump failed", zap.String("memory_id", id), zap.Error(err))
	}
}

// sortByRelevance orders entries by importance weighted with usage and
// keyword overlap against the prompt. Deterministic for fixed inputs.
func sortByRelevance(entries []*models.Memory, prompt string) {
	scores := make(map[string]float64, len(entries))
	for _, mem := range entries {
		scores[mem.ID] = relevanceScore(mem, prompt)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return scores[entries[i].ID] > scores[entries[j].ID]
	})
}

func sortByImportance(entries []*models.Memory) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Importance > entries[j].Importance
	})
}

func relevanceScore(mem *models.Memory, prompt string) float64 {
	score := mem.Importance * (1 + math.Log1p(float64(mem.UsageCount)))

	content := strings.ToLower(mem.Content)
	overlap := 0
	for _, word := range strings.Fields(strings.ToLower(prompt)) {
		if len(word) <= 3 {
			continue
		}
		if strings.Contains(content, word) {
			overlap++
		}
	}
	return score * (1 + float64(overlap))
}
