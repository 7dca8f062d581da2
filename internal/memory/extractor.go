package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

// Extractor decides whether a completed exchange contains something
// worth remembering, and if so in which layer.
type Extractor struct {
	completer provider.Completer
}

// NewExtractor creates an extractor over the completion provider.
func NewExtractor(completer provider.Completer) *Extractor {
	return &Extractor{completer: completer}
}

var extractionSchema = provider.Schema{
	Name: "memory_extraction",
	Definition: provider.Object(map[string]any{
		"worth_saving": map[string]any{"type": "boolean"},
		"layer":        provider.Enum("personal", "project", "codebase", "aesthetic"),
		"content":      provider.String(),
		"importance":   provider.Number(),
	}),
}

// ExtractFromExchange asks the provider whether the exchange holds a
// durable fact. Returns nil when nothing is worth saving.
func (e *Extractor) ExtractFromExchange(ctx context.Context, req provider.Request, userPrompt, aiResponse string) (*models.Memory, error) {
	req.Instruction = `You decide whether a chat exchange contains a durable fact worth remembering about the user or their project.
Only mark worth_saving when the exchange reveals a lasting preference, decision, or fact. Greetings and one-off questions are not worth saving.
Layers: personal (about the user), project (about this project's goals), codebase (about generated code), aesthetic (style and design taste).`
	req.History = nil
	req.Prompt = fmt.Sprintf("User said:\n%s\n\nAssistant replied:\n%s", userPrompt, aiResponse)

	doc, err := e.completer.CompleteJSON(ctx, req, extractionSchema)
	if err != nil {
		return nil, fmt.Errorf("memory extraction failed: %w", err)
	}

	var decision struct {
		WorthSaving bool    `json:"worth_saving"`
		Layer       string  `json:"layer"`
		Content     string  `json:"content"`
		Importance  float64 `json:"importance"`
	}
	if err := json.Unmarshal(doc, &decision); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}

	if !decision.WorthSaving || strings.TrimSpace(decision.Content) == "" {
		return nil, nil
	}

	importance := decision.Importance
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}

	return &models.Memory{
		Layer:      models.MemoryLayer(decision.Layer),
		Content:    decision.Content,
		Importance: importance,
	}, nil
}
