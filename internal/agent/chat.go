package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/provider"
)

const chatInstruction = `You are a friendly, knowledgeable assistant inside a software
building workspace. Answer conversationally and concretely. When the user asks about
their project, use the provided project memory and context. Do not emit code blocks
unless the user explicitly asks for a snippet.`

// redirection is one ordered trigger-phrase rule checked before any
// provider call. Cheap and deterministic on purpose.
type redirection struct {
	triggers []string
	response string
}

// Rules are evaluated in order; thinker triggers win over build triggers.
var chatRedirections = []redirection{
	{
		triggers: []string{"debate", "argue", "pros and cons", "reason through", "think through", "weigh the options"},
		response: "That sounds like something worth reasoning through carefully. Switch this chat to Thinker mode and I'll work through a standing argument, a counter-argument, and a synthesis for you.",
	},
	{
		triggers: []string{"build me", "build a", "create a", "make me a", "generate a", "scaffold", "write the code"},
		response: "It sounds like you want something built. Switch this chat to Build mode and I'll generate the files for you directly into your project.",
	},
}

// ChatAgent is pure conversation: no schema, streamed token by token.
type ChatAgent struct {
	completer provider.Completer
	logger    *zap.Logger
}

func NewChatAgent(completer provider.Completer, logger *zap.Logger) *ChatAgent {
	return &ChatAgent{completer: completer, logger: logger}
}

func (a *ChatAgent) Name() string { return "chat" }

func (a *ChatAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	if canned := redirect(input.Prompt); canned != "" {
		input.emit(canned)
		return singleMessage(input.aiMessage(canned)), nil
	}

	req := input.request()
	req.Instruction = withMemoryContext(chatInstruction, input)
	req.Prompt = input.Prompt
	req.Temperature = 0.7

	full, err := a.completer.StreamText(ctx, req, func(chunk string) {
		input.emit(chunk)
	})
	if err != nil {
		a.logger.Warn("chat completion failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err))), nil
	}
	return singleMessage(input.aiMessage(full)), nil
}

// redirect returns the canned response for the first matching trigger
// rule, or "" when the prompt should go to the provider.
func redirect(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rule := range chatRedirections {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				return rule.response
			}
		}
	}
	return ""
}

// withMemoryContext appends the retrieved memory block and the project
// memory blob to an instruction when either is present.
func withMemoryContext(instruction string, input *AgentInput) string {
	var b strings.Builder
	b.WriteString(instruction)
	if input.MemoryContext != "" {
		b.WriteString("\n\nWhat you remember about this user:\n")
		b.WriteString(input.MemoryContext)
	}
	if input.Project != nil && input.Project.ProjectMemory != "" {
		b.WriteString("\n\nProject memory:\n")
		b.WriteString(input.Project.ProjectMemory)
	}
	return b.String()
}
