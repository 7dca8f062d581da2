package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
)

// Config holds the completion client configuration.
type Config struct {
	BaseURL     string // empty means the provider default
	APIKey      string // fallback key when a request carries none
	Temperature float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Temperature: 0.7,
	}
}

// Client is the openai-go-backed completion provider. All calls pass
// through the per-model rate limiter before touching the network.
type Client struct {
	config  *Config
	api     openai.Client
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewClient creates a new completion client.
func NewClient(config *Config, limiter *RateLimiter, logger *zap.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.RequestOption
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	return &Client{
		config:  config,
		api:     openai.NewClient(opts...),
		limiter: limiter,
		logger:  logger,
	}
}

// CompleteText performs a one-shot free-text completion.
func (c *Client) CompleteText(ctx context.Context, req Request) (string, error) {
	if err := c.wait(ctx, req.Model); err != nil {
		return "", err
	}

	completion, err := c.api.Chat.Completions.New(ctx, c.buildParams(req), c.callOptions(req)...)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

// CompleteJSON performs a schema-constrained completion and returns the
// raw JSON document after fence cleaning and validation.
func (c *Client) CompleteJSON(ctx context.Context, req Request, schema Schema) ([]byte, error) {
	if err := c.wait(ctx, req.Model); err != nil {
		return nil, err
	}

	params := c.buildParams(req)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   schema.Name,
				Strict: openai.Bool(true),
				Schema: schema.Definition,
			},
		},
	}

	completion, err := c.api.Chat.Completions.New(ctx, params, c.callOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("structured completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	doc, err := CleanJSON(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", schema.Name, err)
	}
	return []byte(doc), nil
}

// StreamText streams a completion chunk by chunk through sink and
// returns the accumulated full text.
func (c *Client) StreamText(ctx context.Context, req Request, sink func(chunk string)) (string, error) {
	if err := c.wait(ctx, req.Model); err != nil {
		return "", err
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, c.buildParams(req), c.callOptions(req)...)

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if sink != nil {
			sink(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("streaming completion failed: %w", err)
	}

	return full.String(), nil
}

// GenerateImage produces an image for a prompt and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, apiKey, model, prompt string) (string, error) {
	if err := c.wait(ctx, model); err != nil {
		return "", err
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	resp, err := c.api.Images.Generate(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("image provider returned no data")
	}

	return resp.Data[0].URL, nil
}

// buildParams assembles chat parameters from a request. Turns whose text
// is empty after trimming are stripped so the provider never sees a
// blank message.
func (c *Client) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if req.Instruction != "" {
		messages = append(messages, openai.SystemMessage(req.Instruction))
	}
	for _, turn := range req.History {
		text := strings.TrimSpace(turn.Prompt)
		if text == "" {
			continue
		}
		if turn.SenderRole == models.SenderAI {
			messages = append(messages, openai.AssistantMessage(text))
		} else {
			messages = append(messages, openai.UserMessage(text))
		}
	}
	if strings.TrimSpace(req.Prompt) != "" {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}

	return openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
}

// callOptions returns per-call request options.
func (c *Client) callOptions(req Request) []option.RequestOption {
	if req.APIKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(req.APIKey)}
}

// wait blocks until the rate limiter admits a call for the model.
func (c *Client) wait(ctx context.Context, model string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, model); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
