package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/memory"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/store"
)

const autonomousInstruction = `You are an all-in-one assistant inside a software building
workspace. Decide on your own what the user needs: a plain reply, generated code, or an
image. Fill code and language only when the user wants something built; fill image_prompt
only when the user wants a picture. user_response is always filled and doubles as the
caption when an image or code is produced. If the exchange revealed something durable
about the user or the project, add it to memories_to_create.`

var autonomousSchema = provider.Schema{
	Name: "autonomous_result",
	Definition: provider.Object(map[string]any{
		"user_response": provider.String(),
		"image_prompt":  provider.String(),
		"code":          provider.String(),
		"language":      provider.String(),
		"memories_to_create": provider.Array(provider.Object(map[string]any{
			"layer":      provider.Enum("personal", "project", "codebase", "aesthetic"),
			"content":    provider.String(),
			"importance": provider.Number(),
		})),
	}),
}

// AutonomousAgent handles every message in autonomous workspaces with a
// single schema call, then resolves the response branch in a fixed
// order: code wins over image, image wins over plain chat.
type AutonomousAgent struct {
	completer  provider.Completer
	images     provider.ImageGenerator
	gateway    store.Gateway
	saver      *memory.Saver
	imageModel string
	logger     *zap.Logger
}

func NewAutonomousAgent(completer provider.Completer, images provider.ImageGenerator, gateway store.Gateway, saver *memory.Saver, imageModel string, logger *zap.Logger) *AutonomousAgent {
	return &AutonomousAgent{
		completer:  completer,
		images:     images,
		gateway:    gateway,
		saver:      saver,
		imageModel: imageModel,
		logger:     logger,
	}
}

func (a *AutonomousAgent) Name() string { return "autonomous" }

func (a *AutonomousAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	req := input.request()
	req.Instruction = withMemoryContext(autonomousInstruction, input)
	req.Prompt = input.Prompt

	doc, err := a.completer.CompleteJSON(ctx, req, autonomousSchema)
	if err != nil {
		a.logger.Warn("autonomous completion failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err))), nil
	}

	// Memory writes are a fire-and-forget side effect regardless of
	// which response branch fires below.
	if entries := parseMemoryEntries(doc, "memories_to_create", input); len(entries) > 0 {
		a.saver.SaveAsync(entries...)
	}

	response := provider.Field(doc, "user_response")
	code := provider.Field(doc, "code")
	imagePrompt := provider.Field(doc, "image_prompt")

	switch {
	case code != "":
		input.emit(response)
		msg := input.aiMessage(response)
		msg.Code = code
		msg.Language = provider.Field(doc, "language")
		return singleMessage(msg), nil
	case imagePrompt != "":
		return a.generateImage(ctx, input, imagePrompt, response), nil
	default:
		if response == "" {
			response = "I'm not sure what to do with that, could you say a bit more?"
		}
		input.emit(response)
		return singleMessage(input.aiMessage(response)), nil
	}
}

// generateImage runs the credit-gated image branch. The profile is
// re-fetched fresh because credits may have changed since the turn
// started, and the decrement is a single atomic store operation so two
// near-simultaneous requests cannot double-spend.
func (a *AutonomousAgent) generateImage(ctx context.Context, input *AgentInput, imagePrompt, caption string) *AgentExecutionResult {
	isAdmin := input.Profile != nil && input.Profile.IsAdmin
	if !isAdmin {
		profile, err := a.gateway.GetProfile(ctx, input.UserID)
		if err != nil {
			a.logger.Warn("profile refresh failed", zap.String("user_id", input.UserID), zap.Error(err))
			return singleMessage(input.aiMessage(userSafeMessage(err)))
		}
		settings, err := a.gateway.GetCostSettings(ctx)
		if err != nil {
			a.logger.Warn("cost table read failed", zap.Error(err))
			return singleMessage(input.aiMessage(userSafeMessage(err)))
		}
		cost := settings.Cost(a.imageModel)
		if profile.Credits < cost {
			text := fmt.Sprintf(
				"Generating this image costs %d credit(s) but you only have %d. Please top up your credits and try again.",
				cost, profile.Credits,
			)
			input.emit(text)
			return singleMessage(input.aiMessage(text))
		}
		if err := a.gateway.DecrementCredits(ctx, input.UserID, cost); err != nil {
			if errors.Is(err, store.ErrInsufficientCredits) {
				text := "Your credits ran out just before this image could be generated. Please top up and try again."
				input.emit(text)
				return singleMessage(input.aiMessage(text))
			}
			a.logger.Warn("credit decrement failed", zap.String("user_id", input.UserID), zap.Error(err))
			return singleMessage(input.aiMessage(userSafeMessage(err)))
		}
	}

	a.emitImageStart(input, caption)

	url, err := a.images.GenerateImage(ctx, input.APIKey, a.imageModel, imagePrompt)
	if err != nil {
		a.logger.Warn("image generation failed", zap.String("user_id", input.UserID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err)))
	}

	if caption == "" {
		caption = "Here's your image."
	}
	msg := input.aiMessage(caption)
	msg.ImageURL = url
	return singleMessage(msg)
}

// emitImageStart sends the one distinguished JSON event down the chunk
// stream so the caller can render a placeholder before the slow call.
func (a *AutonomousAgent) emitImageStart(input *AgentInput, caption string) {
	if input.Sink == nil {
		return
	}
	event, err := json.Marshal(provider.StreamEvent{
		Type: provider.EventImageGenerationStart,
		Text: caption,
	})
	if err != nil {
		return
	}
	input.Sink(string(event))
}
