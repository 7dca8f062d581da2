// Package provider wraps the LLM completion provider behind small
// interfaces the agents depend on: one-shot text, schema-constrained
// JSON, chunked streaming, and image generation.
package provider

import (
	"context"

	"github.com/chatforge/chatforge/internal/models"
)

// Request carries everything a completion call needs. APIKey is per-call
// because callers bring their own keys.
type Request struct {
	Model       string
	APIKey      string
	Instruction string
	History     []models.ConversationTurn
	Prompt      string
	Temperature float64
}

// Schema declares a strict output contract for a structured completion.
// Definition is a JSON-schema object with fixed field names and
// enumerated types, so the response is guaranteed parseable.
type Schema struct {
	Name       string
	Definition map[string]any
}

// Completer is the completion provider surface the agents consume.
type Completer interface {
	// CompleteText performs a one-shot free-text completion.
	CompleteText(ctx context.Context, req Request) (string, error)

	// CompleteJSON performs a one-shot completion constrained to the
	// given schema and returns the raw JSON document.
	CompleteJSON(ctx context.Context, req Request, schema Schema) ([]byte, error)

	// StreamText streams a completion chunk by chunk through sink and
	// returns the accumulated full text.
	StreamText(ctx context.Context, req Request, sink func(chunk string)) (string, error)
}

// ImageGenerator produces an image URL for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// Sink receives streaming chunks during a turn. Each chunk is either
// plain text to append or a JSON string carrying a stream event;
// consumers must try-parse every chunk as JSON to tell the two apart.
type Sink func(chunk string)

// StreamEvent is the one distinguished JSON-encoded event type that
// shares the chunk stream with plain text.
type StreamEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EventImageGenerationStart is emitted before a potentially slow image
// call so the caller can render a placeholder.
const EventImageGenerationStart = "image_generation_start"
